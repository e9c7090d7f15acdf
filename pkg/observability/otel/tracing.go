// Package otel configures OpenTelemetry tracing for the service.
package otel

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Exporter names accepted by Config.Exporter
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterJaeger = "jaeger"
	ExporterZipkin = "zipkin"
)

// Config configures tracing
type Config struct {
	// Exporter is one of none, stdout, jaeger, zipkin
	Exporter string

	// Endpoint is the collector URL for jaeger and zipkin
	Endpoint string

	// ServiceName is reported as the service.name resource attribute
	ServiceName string

	// SampleRatio is the fraction of root traces sampled, in [0, 1]
	SampleRatio float64

	// Writer receives stdout exporter output (default os.Stdout)
	Writer io.Writer
}

// ShutdownFunc flushes and stops the tracer provider
type ShutdownFunc func(ctx context.Context) error

// Setup builds a tracer provider for cfg, installs it and the W3C trace
// context propagator globally, and returns them. With exporter "none" a
// no-op provider is installed.
func Setup(cfg Config) (trace.TracerProvider, ShutdownFunc, error) {
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return nil, nil, fmt.Errorf("tracing sample ratio %v out of range [0, 1]", cfg.SampleRatio)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, nil, err
	}
	if exporter == nil {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp, func(context.Context) error { return nil }, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "todo"
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown, nil
}

func newExporter(cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "", ExporterNone:
		return nil, nil
	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(stdouttrace.WithWriter(w))
	case ExporterJaeger:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("jaeger exporter requires an endpoint")
		}
		return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
	case ExporterZipkin:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("zipkin exporter requires an endpoint")
		}
		return zipkin.New(cfg.Endpoint)
	}
	return nil, fmt.Errorf("unknown tracing exporter %q", cfg.Exporter)
}
