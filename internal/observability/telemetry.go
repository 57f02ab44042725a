// Package observability owns the OpenTelemetry tracer provider. Until Init
// enables tracing every span is a no-op.
package observability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/oriys/tenantgate/internal/tenant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Exporter names accepted in Config.Exporter.
const (
	ExporterOTLPHTTP = "otlp-http"
	ExporterNone     = "none"
)

const shutdownTimeout = 5 * time.Second

// Config holds tracing settings.
type Config struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Exporter    string  `json:"exporter" yaml:"exporter"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`
	ServiceName string  `json:"service_name" yaml:"service_name"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`
}

// Validate checks an enabled config. A disabled config is always valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.Exporter {
	case ExporterOTLPHTTP, ExporterNone, "":
	default:
		return fmt.Errorf("unknown trace exporter %q: %w", c.Exporter, tenant.ErrInvalidConfiguration)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("trace sample rate %v outside [0, 1]: %w", c.SampleRate, tenant.ErrInvalidConfiguration)
	}
	if c.ServiceName == "" {
		return fmt.Errorf("trace service name is required: %w", tenant.ErrInvalidConfiguration)
	}
	return nil
}

type state struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

var current atomic.Pointer[state]

func init() {
	current.Store(&state{tracer: noop.NewTracerProvider().Tracer("")})
}

// Init installs the tracer provider described by cfg and the W3C trace
// context propagator. Calling it with a disabled config restores no-op spans.
func Init(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !cfg.Enabled {
		current.Store(&state{tracer: noop.NewTracerProvider().Tracer("")})
		return nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return err
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	current.Store(&state{tp: tp, tracer: tp.Tracer(cfg.ServiceName)})
	return nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	if cfg.Exporter == ExporterNone {
		return discardExporter{}, nil
	}
	exp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}
	return exp, nil
}

// Shutdown flushes pending spans and stops the provider.
func Shutdown(ctx context.Context) error {
	st := current.Load()
	if st.tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return st.tp.Shutdown(ctx)
}

// Tracer returns the active tracer.
func Tracer() trace.Tracer {
	return current.Load().tracer
}

// Enabled reports whether Init installed a real provider.
func Enabled() bool {
	return current.Load().tp != nil
}

// discardExporter drops finished spans. Sampling and ids still work, which
// keeps trace ids in logs without a collector.
type discardExporter struct{}

func (discardExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }

func (discardExporter) Shutdown(context.Context) error { return nil }
