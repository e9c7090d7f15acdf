package prometheus

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fluxorio/todo/pkg/core"
	"github.com/fluxorio/todo/pkg/db"
	"github.com/fluxorio/todo/pkg/events"
	"github.com/fluxorio/todo/pkg/web"
	"github.com/valyala/fasthttp"
)

func do(server *web.Server, method, uri string) *fasthttp.RequestCtx {
	rc := &fasthttp.RequestCtx{}
	rc.Request.Header.SetMethod(method)
	rc.Request.SetRequestURI(uri)
	server.Handler()(rc)
	return rc
}

// scrape renders the registry in the text exposition format
func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rc := &fasthttp.RequestCtx{}
	rc.Request.Header.SetMethod(fasthttp.MethodGet)
	rc.Request.SetRequestURI("/metrics")
	if err := Handler(m)(&web.FastRequestContext{RequestCtx: rc}); err != nil {
		t.Fatalf("Handler: %v", err)
	}
	return string(rc.Response.Body())
}

func expectLines(t *testing.T, body string, lines ...string) {
	t.Helper()
	for _, want := range lines {
		if !strings.Contains(body, want+"\n") {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func newInstrumentedServer(t *testing.T) (*Metrics, *web.Server) {
	t.Helper()
	m := NewMetrics("todo")

	router := web.NewRouter(core.NewNopLogger())
	router.Use(FastHTTPMetricsMiddleware(m))
	router.GET("/todos/:id", func(ctx *web.FastRequestContext) error {
		return ctx.Text(200, "item")
	})
	router.GET("/fail", func(ctx *web.FastRequestContext) error {
		return errors.New("boom")
	})
	router.GET("/metrics", Handler(m))

	server := web.NewServer(web.DefaultServerConfig(""), router, core.NewNopLogger())
	if err := RegisterServerMetrics(m, server); err != nil {
		t.Fatalf("RegisterServerMetrics: %v", err)
	}
	return m, server
}

func TestMiddleware_LabelsByRoute(t *testing.T) {
	m, server := newInstrumentedServer(t)

	do(server, "GET", "/todos/1")
	do(server, "GET", "/todos/2")
	do(server, "GET", "/fail")
	do(server, "GET", "/nowhere/at/all")

	expectLines(t, scrape(t, m),
		`todo_http_requests_total{method="GET",route="/todos/:id",status="2xx"} 2`,
		`todo_http_requests_total{method="GET",route="/fail",status="5xx"} 1`,
		`todo_http_requests_total{method="GET",route="unmatched",status="4xx"} 1`,
		`todo_http_requests_inflight 0`,
	)
}

func TestHandler_Exposition(t *testing.T) {
	m, server := newInstrumentedServer(t)

	pool, err := db.NewPool(db.DefaultPoolConfig(filepath.Join(t.TempDir(), "m.db"), "sqlite3"))
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()
	if err := m.RegisterDBStats(pool.DB(), "todo"); err != nil {
		t.Fatalf("RegisterDBStats: %v", err)
	}

	do(server, "GET", "/todos/1")
	rc := do(server, "GET", "/metrics")

	if rc.Response.StatusCode() != 200 {
		t.Fatalf("status = %d", rc.Response.StatusCode())
	}
	body := string(rc.Response.Body())
	expectLines(t, body,
		`todo_http_requests_total{method="GET",route="/todos/:id",status="2xx"} 1`,
		`go_sql_max_open_connections{db_name="todo"} 25`,
		`todo_http_rejected_requests_total 0`,
		`todo_http_admitted_requests 0`,
	)
	if !strings.Contains(body, "go_goroutines") {
		t.Error("exposition missing Go runtime metrics")
	}
}

type failingPublisher struct{ events.Publisher }

func (failingPublisher) Publish(context.Context, string, interface{}) error {
	return errors.New("down")
}

func TestInstrumentPublisher(t *testing.T) {
	m := NewMetrics("todo")

	ok := InstrumentPublisher(m, events.NewNoopPublisher())
	_ = ok.Publish(context.Background(), "created", 1)
	_ = ok.Publish(context.Background(), "created", 2)

	bad := InstrumentPublisher(m, failingPublisher{events.NewNoopPublisher()})
	if err := bad.Publish(context.Background(), "created", 3); err == nil {
		t.Error("error should pass through")
	}

	expectLines(t, scrape(t, m),
		`todo_events_published_total{event="created",outcome="ok"} 2`,
		`todo_events_published_total{event="created",outcome="error"} 1`,
	)
	if err := ok.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestStatusCodeString(t *testing.T) {
	tests := map[int]string{200: "2xx", 201: "2xx", 301: "3xx", 404: "4xx", 503: "5xx", 0: "unknown", 700: "unknown"}
	for code, want := range tests {
		if got := statusCodeString(code); got != want {
			t.Errorf("statusCodeString(%d) = %s, want %s", code, got, want)
		}
	}
}
