package web

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/fluxorio/todo/pkg/core"
	"github.com/fluxorio/todo/pkg/core/failfast"
	"github.com/valyala/fasthttp"
)

// ServerConfig configures the fasthttp server
type ServerConfig struct {
	Addr               string
	Name               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	// MaxRequestBodySize caps request bodies; zero keeps fasthttp's 4 MiB default
	MaxRequestBodySize int
	// MaxInflight bounds concurrent requests; excess requests get 503.
	// Zero disables backpressure.
	MaxInflight        int
}

// DefaultServerConfig returns default configuration
func DefaultServerConfig(addr string) ServerConfig {
	return ServerConfig{
		Addr:         addr,
		Name:         "todo",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server serves a Router over fasthttp. Each request runs on its own
// fasthttp worker goroutine.
type Server struct {
	config       ServerConfig
	router       *Router
	server       *fasthttp.Server
	backpressure *BackpressureController
	logger       core.Logger

	totalRequests      atomic.Int64
	successfulRequests atomic.Int64
	errorRequests      atomic.Int64
	rejectedRequests   atomic.Int64
}

// ServerMetrics provides server counters
type ServerMetrics struct {
	TotalRequests      int64 // Requests routed
	SuccessfulRequests int64 // 2xx answers
	ErrorRequests      int64 // 5xx answers
	RejectedRequests   int64 // Requests shed by backpressure (503)
	InflightRequests   int64 // Requests currently admitted (0 when backpressure is off)
}

// NewServer creates a server for router
func NewServer(config ServerConfig, router *Router, logger core.Logger) *Server {
	failfast.NotNil(router, "router")
	failfast.If(config.MaxInflight >= 0, "MaxInflight cannot be negative: %d", config.MaxInflight)
	if logger == nil {
		logger = core.NewDefaultLogger()
	}

	s := &Server{
		config: config,
		router: router,
		logger: logger,
	}
	if config.MaxInflight > 0 {
		s.backpressure = NewBackpressureController(config.MaxInflight)
	}
	s.server = &fasthttp.Server{
		Handler:               s.handleRequest,
		Name:                  config.Name,
		ReadTimeout:           config.ReadTimeout,
		WriteTimeout:          config.WriteTimeout,
		IdleTimeout:           config.IdleTimeout,
		MaxRequestBodySize:    config.MaxRequestBodySize,
		NoDefaultServerHeader: true,
		Logger:                fasthttpLogger{logger},
	}
	return s
}

// Start listens on the configured address and serves until Stop. It blocks.
func (s *Server) Start() error {
	s.logger.Infof("HTTP server listening on %s", s.config.Addr)
	return s.server.ListenAndServe(s.config.Addr)
}

// Serve serves connections accepted by ln until Stop. It blocks.
func (s *Server) Serve(ln net.Listener) error {
	return s.server.Serve(ln)
}

// Stop stops accepting connections and waits for in-flight requests to finish
// or ctx to expire
func (s *Server) Stop(ctx context.Context) error {
	return s.server.ShutdownWithContext(ctx)
}

// Handler returns the raw fasthttp handler
func (s *Server) Handler() fasthttp.RequestHandler {
	return s.handleRequest
}

// Router returns the route table
func (s *Server) Router() *Router {
	return s.router
}

// Metrics returns current server counters
func (s *Server) Metrics() ServerMetrics {
	m := ServerMetrics{
		TotalRequests:      s.totalRequests.Load(),
		SuccessfulRequests: s.successfulRequests.Load(),
		ErrorRequests:      s.errorRequests.Load(),
		RejectedRequests:   s.rejectedRequests.Load(),
	}
	if s.backpressure != nil {
		m.InflightRequests = s.backpressure.GetMetrics().CurrentLoad
	}
	return m
}

func (s *Server) handleRequest(rc *fasthttp.RequestCtx) {
	requestID := core.ResolveRequestID(string(rc.Request.Header.Peek(core.RequestIDHeader)))
	rc.Response.Header.Set(core.RequestIDHeader, requestID)
	ctx := newFastRequestContext(rc, requestID)

	if s.backpressure != nil {
		if !s.backpressure.TryAcquire() {
			s.rejectedRequests.Add(1)
			_ = WriteError(ctx, fasthttp.StatusServiceUnavailable, "capacity_exceeded", "Server at capacity - backpressure applied")
			return
		}
		defer s.backpressure.Release()
	}

	// Last line of defence; middleware.Recovery normally handles panics first.
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithContext(ctx.Context()).Errorf("handler panic: %v", r)
			rc.Response.ResetBody()
			_ = WriteError(ctx, fasthttp.StatusInternalServerError, "internal_server_error", "Internal Server Error")
			s.errorRequests.Add(1)
		}
	}()

	s.totalRequests.Add(1)
	s.router.ServeFastHTTP(ctx)

	statusCode := rc.Response.StatusCode()
	if statusCode >= 200 && statusCode < 300 {
		s.successfulRequests.Add(1)
	} else if statusCode >= 500 {
		s.errorRequests.Add(1)
	}
}

// fasthttpLogger routes fasthttp's internal messages to the application logger
type fasthttpLogger struct {
	logger core.Logger
}

func (l fasthttpLogger) Printf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}
