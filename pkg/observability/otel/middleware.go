package otel

import (
	"github.com/fluxorio/todo/pkg/web"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/fluxorio/todo/pkg/observability/otel"

// headerCarrier adapts fasthttp request headers to propagation.TextMapCarrier
type headerCarrier struct {
	header *fasthttp.RequestHeader
}

func (c headerCarrier) Get(key string) string {
	return string(c.header.Peek(key))
}

func (c headerCarrier) Set(key, value string) {
	c.header.Set(key, value)
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, c.header.Len())
	c.header.VisitAll(func(k, _ []byte) {
		keys = append(keys, string(k))
	})
	return keys
}

// Middleware starts a server span per request, continuing any trace found in
// the incoming headers. The span is named after the matched route pattern.
func Middleware(tp trace.TracerProvider, propagator propagation.TextMapPropagator) web.FastMiddleware {
	tracer := tp.Tracer(instrumentationName)

	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			parent := propagator.Extract(ctx.Context(), headerCarrier{&ctx.RequestCtx.Request.Header})
			method := string(ctx.Method())

			spanCtx, span := tracer.Start(parent, method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", method),
					attribute.String("url.path", string(ctx.Path())),
					attribute.String("http.request_id", ctx.RequestID()),
				),
			)
			defer span.End()
			ctx.SetContext(spanCtx)

			err := next(ctx)

			if route := ctx.Route(); route != "" {
				span.SetName(method + " " + route)
				span.SetAttributes(attribute.String("http.route", route))
			}
			status := ctx.StatusCode()
			span.SetAttributes(attribute.Int("http.response.status_code", status))
			if err != nil {
				span.RecordError(err)
			}
			if status >= 500 || err != nil {
				span.SetStatus(codes.Error, fasthttp.StatusMessage(status))
			}
			return err
		}
	}
}
