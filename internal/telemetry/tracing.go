// Package telemetry installs the OpenTelemetry tracer provider and propagators.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Exporter names accepted by NewExporter.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// TracerOptions configures InitTracerProvider.
type TracerOptions struct {
	ServiceName string
	// RunID becomes the service instance id, so every span of a crawl shares it.
	RunID string
	// SampleRatio is the fraction of new root traces recorded, clamped to [0,1].
	SampleRatio float64
	// Exporter receives finished spans. Nil keeps spans in-process only.
	Exporter sdktrace.SpanExporter
}

// NewExporter builds the named span exporter. "none" and "" yield a nil
// exporter; "stdout" writes pretty JSON spans to w.
func NewExporter(name string, w io.Writer) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ExporterNone:
		return nil, nil
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", name)
	}
}

// Sampler honours the parent's decision and samples new roots at ratio.
func Sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// InitTracerProvider installs a global tracer provider and the W3C
// trace-context and baggage propagators. Unsampled spans still carry trace
// ids, which the pubsub sink forwards as message attributes. The caller must
// call Shutdown on the result to flush the exporter.
func InitTracerProvider(ctx context.Context, opts TracerOptions) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
			semconv.ServiceInstanceID(opts.RunID),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(opts.SampleRatio)),
	}
	if opts.Exporter != nil {
		providerOpts = append(providerOpts, sdktrace.WithBatcher(opts.Exporter))
	}
	tp := sdktrace.NewTracerProvider(providerOpts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}
