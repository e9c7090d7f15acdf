// Package app wires configuration, storage, HTTP routing and observability
// into the todo service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/fluxorio/todo/pkg/core"
	"github.com/fluxorio/todo/pkg/db"
	"github.com/fluxorio/todo/pkg/docs"
	"github.com/fluxorio/todo/pkg/events"
	"github.com/fluxorio/todo/pkg/observability/otel"
	prom "github.com/fluxorio/todo/pkg/observability/prometheus"
	"github.com/fluxorio/todo/pkg/todo"
	"github.com/fluxorio/todo/pkg/web"
	"github.com/fluxorio/todo/pkg/web/middleware"
	"github.com/fluxorio/todo/pkg/web/middleware/security"
	"github.com/valyala/fasthttp"
	gotel "go.opentelemetry.io/otel"
)

const serviceName = "todo"

// App is the assembled service
type App struct {
	config    Config
	logger    core.Logger
	pool      *db.Pool
	store     *todo.Store
	publisher events.Publisher
	metrics   *prom.Metrics
	server    *web.Server

	shutdownTracing otel.ShutdownFunc
}

// NewLogger creates the logger described by cfg
func NewLogger(cfg LogConfig) (core.Logger, error) {
	level, err := core.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return core.NewLogger(core.LoggerOptions{Format: cfg.Format, Level: level}), nil
}

// New assembles the service from cfg. The database schema is created if
// missing. On error every resource opened so far is released.
func New(cfg Config, logger core.Logger) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		if logger, err = NewLogger(cfg.Log); err != nil {
			return nil, err
		}
	}

	a := &App{config: cfg, logger: logger}
	defer func() {
		if err != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = a.release(ctx)
		}
	}()

	tp, shutdownTracing, err := otel.Setup(otel.Config{
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	a.shutdownTracing = shutdownTracing

	a.pool, err = db.NewPool(db.PoolConfig{
		DSN:             cfg.Database.DSN,
		DriverName:      cfg.Database.Driver,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a.store = todo.NewStore(a.pool)
	schemaCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.store.EnsureSchema(schemaCtx); err != nil {
		return nil, err
	}

	a.publisher = events.NewNoopPublisher()
	if cfg.Events.NATSURL != "" {
		a.publisher, err = events.NewNATSPublisher(events.NATSConfig{
			URL:           cfg.Events.NATSURL,
			SubjectPrefix: cfg.Events.SubjectPrefix,
			Name:          serviceName,
		}, logger)
		if err != nil {
			return nil, err
		}
	}

	recovery := middleware.DefaultRecoveryConfig()
	recovery.Logger = logger

	router := web.NewRouter(logger)
	router.Use(middleware.AccessLog(logger))
	if cfg.Metrics.Enabled {
		a.metrics = prom.NewMetrics(serviceName)
		if err := a.metrics.RegisterDBStats(a.pool.DB(), serviceName); err != nil {
			return nil, fmt.Errorf("register db metrics: %w", err)
		}
		router.Use(prom.FastHTTPMetricsMiddleware(a.metrics))
		a.publisher = prom.InstrumentPublisher(a.metrics, a.publisher)
	}
	router.Use(
		otel.Middleware(tp, gotel.GetTextMapPropagator()),
		middleware.Recovery(recovery),
	)

	apiHeaders := security.Headers(security.DefaultHeadersConfig())
	todo.NewHandler(a.store, a.publisher, logger).Register(router, apiHeaders)
	router.GET("/health", a.health, apiHeaders)
	router.GET("/ready", a.ready, apiHeaders)
	if a.metrics != nil {
		router.GET(cfg.Metrics.Path, prom.Handler(a.metrics))
	}
	if cfg.IsDevelopment() {
		if err := docs.Register(router, security.Headers(security.DocsHeadersConfig())); err != nil {
			return nil, err
		}
	}

	serverCfg := web.DefaultServerConfig(cfg.Server.Addr)
	serverCfg.Name = serviceName
	serverCfg.ReadTimeout = cfg.Server.ReadTimeout
	serverCfg.WriteTimeout = cfg.Server.WriteTimeout
	serverCfg.MaxInflight = cfg.Server.MaxInflight
	serverCfg.MaxRequestBodySize = cfg.Server.MaxRequestBodySize
	a.server = web.NewServer(serverCfg, router, logger)
	if a.metrics != nil {
		if err := prom.RegisterServerMetrics(a.metrics, a.server); err != nil {
			return nil, fmt.Errorf("register server metrics: %w", err)
		}
	}

	return a, nil
}

// Start serves on the configured address until Stop. It blocks.
func (a *App) Start() error {
	a.logger.WithFields(map[string]interface{}{
		"environment": a.config.Environment,
		"driver":      a.config.Database.Driver,
		"max_conns":   a.pool.Config().MaxOpenConns,
	}).Infof("starting %s", serviceName)
	return a.server.Start()
}

// Serve serves connections accepted by ln until Stop. It blocks.
func (a *App) Serve(ln net.Listener) error {
	return a.server.Serve(ln)
}

// Stop shuts the server down gracefully, then releases the event
// connection, the tracer provider and the database pool
func (a *App) Stop(ctx context.Context) error {
	var errs []error
	if a.server != nil {
		if err := a.server.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop http server: %w", err))
		}
	}
	if err := a.release(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) release(ctx context.Context) error {
	var errs []error
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Server returns the HTTP server
func (a *App) Server() *web.Server {
	return a.server
}

func (a *App) health(ctx *web.FastRequestContext) error {
	return ctx.JSON(fasthttp.StatusOK, map[string]string{
		"status":  "UP",
		"service": serviceName,
	})
}

func (a *App) ready(ctx *web.FastRequestContext) error {
	pingCtx, cancel := context.WithTimeout(ctx.Context(), 2*time.Second)
	defer cancel()

	if err := a.pool.Ping(pingCtx); err != nil {
		a.logger.WithContext(ctx.Context()).WithFields(map[string]interface{}{
			"open_connections": a.pool.Stats().OpenConnections,
		}).Warnf("readiness check failed: %v", err)
		return ctx.JSON(fasthttp.StatusServiceUnavailable, map[string]string{
			"status":  "DOWN",
			"service": serviceName,
		})
	}
	return ctx.JSON(fasthttp.StatusOK, map[string]string{
		"status":  "UP",
		"service": serviceName,
	})
}
