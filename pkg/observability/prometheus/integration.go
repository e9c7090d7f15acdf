package prometheus

import (
	"context"
	"time"

	"github.com/fluxorio/todo/pkg/events"
	"github.com/fluxorio/todo/pkg/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// unmatchedRoute labels requests that matched no route, keeping label
// cardinality bounded
const unmatchedRoute = "unmatched"

// FastHTTPMetricsMiddleware records request count, latency and response size
// labelled by route pattern
func FastHTTPMetricsMiddleware(m *Metrics) web.FastMiddleware {
	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			start := time.Now()
			m.HTTPInflight.Inc()
			defer m.HTTPInflight.Dec()

			err := next(ctx)

			route := ctx.Route()
			if route == "" {
				route = unmatchedRoute
			}
			m.RecordHTTPRequest(string(ctx.Method()), route, ctx.StatusCode(), time.Since(start), len(ctx.RequestCtx.Response.Body()))
			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format
func Handler(m *Metrics) web.FastRequestHandler {
	h := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return func(ctx *web.FastRequestContext) error {
		h(ctx.RequestCtx)
		return nil
	}
}

// RegisterServerMetrics exports the server's backpressure counters
func RegisterServerMetrics(m *Metrics, server *web.Server) error {
	if err := m.RegisterCounterFunc("http_rejected_requests_total",
		"Requests rejected with 503 by backpressure",
		func() float64 { return float64(server.Metrics().RejectedRequests) }); err != nil {
		return err
	}
	return m.RegisterGaugeFunc("http_admitted_requests",
		"Requests admitted by backpressure and not yet finished",
		func() float64 { return float64(server.Metrics().InflightRequests) })
}

// InstrumentPublisher counts every publish made through p
func InstrumentPublisher(m *Metrics, p events.Publisher) events.Publisher {
	return &instrumentedPublisher{Publisher: p, metrics: m}
}

type instrumentedPublisher struct {
	events.Publisher
	metrics *Metrics
}

func (p *instrumentedPublisher) Publish(ctx context.Context, event string, payload interface{}) error {
	err := p.Publisher.Publish(ctx, event, payload)
	p.metrics.RecordEvent(event, err)
	return err
}
