package web

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fluxorio/todo/pkg/core"
	"github.com/valyala/fasthttp/fasthttputil"
)

func startTestServer(t *testing.T, cfg ServerConfig, router *Router) (*Server, *http.Client) {
	t.Helper()
	server := NewServer(cfg, router, core.NewNopLogger())
	ln := fasthttputil.NewInmemoryListener()
	go func() {
		_ = server.Serve(ln)
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
		_ = ln.Close()
	})

	client := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return ln.Dial()
			},
		},
	}
	return server, client
}

func TestServer_RequestID(t *testing.T) {
	router := NewRouter(core.NewNopLogger())
	router.GET("/ping", func(ctx *FastRequestContext) error {
		return ctx.Text(200, ctx.RequestID())
	})
	_, client := startTestServer(t, DefaultServerConfig(""), router)

	resp, err := client.Get("http://test/ping")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	generated := resp.Header.Get(core.RequestIDHeader)
	if generated == "" {
		t.Fatal("X-Request-ID should be generated")
	}
	if string(body) != generated {
		t.Errorf("handler saw %q, header %q", body, generated)
	}

	req, _ := http.NewRequest(http.MethodGet, "http://test/ping", nil)
	req.Header.Set(core.RequestIDHeader, "client-id-1")
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(core.RequestIDHeader); got != "client-id-1" {
		t.Errorf("X-Request-ID = %q, want client-id-1", got)
	}
}

func TestServer_RecoversPanics(t *testing.T) {
	router := NewRouter(core.NewNopLogger())
	router.GET("/panic", func(ctx *FastRequestContext) error {
		panic("boom")
	})
	server, client := startTestServer(t, DefaultServerConfig(""), router)

	resp, err := client.Get("http://test/panic")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"error":"internal_server_error"`) {
		t.Errorf("body = %s", body)
	}
	if server.Metrics().ErrorRequests != 1 {
		t.Errorf("ErrorRequests = %d, want 1", server.Metrics().ErrorRequests)
	}
}

func TestServer_Backpressure(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	router := NewRouter(core.NewNopLogger())
	router.GET("/slow", func(ctx *FastRequestContext) error {
		close(entered)
		<-release
		return ctx.Text(200, "done")
	})
	router.GET("/fast", func(ctx *FastRequestContext) error {
		return ctx.Text(200, "ok")
	})

	cfg := DefaultServerConfig("")
	cfg.MaxInflight = 1
	server, client := startTestServer(t, cfg, router)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		resp, err := client.Get("http://test/slow")
		if err == nil {
			resp.Body.Close()
		}
	}()
	<-entered

	resp, err := client.Get("http://test/fast")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	if !strings.Contains(string(body), "capacity_exceeded") {
		t.Errorf("body = %s", body)
	}

	close(release)
	wg.Wait()

	resp, err = client.Get("http://test/fast")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status after release = %d, want 200", resp.StatusCode)
	}

	m := server.Metrics()
	if m.RejectedRequests != 1 {
		t.Errorf("RejectedRequests = %d, want 1", m.RejectedRequests)
	}
	if m.InflightRequests != 0 {
		t.Errorf("InflightRequests = %d, want 0", m.InflightRequests)
	}
}
