package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// These tests replace the global tracer provider, so none of them run in parallel.

func TestInitTracerProviderPropagatesTraceContext(t *testing.T) {
	tp, err := InitTracerProvider(context.Background(), TracerOptions{
		ServiceName: "trendcrawler-test",
		RunID:       "run-1",
		SampleRatio: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := otel.Tracer("test").Start(context.Background(), "unit")
	defer span.End()
	require.True(t, span.SpanContext().IsValid())
	require.True(t, span.SpanContext().IsSampled())

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	assert.Contains(t, carrier.Get("traceparent"), span.SpanContext().TraceID().String())
}

func TestZeroRatioStillPropagatesUnsampledContext(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp, err := InitTracerProvider(context.Background(), TracerOptions{
		ServiceName: "trendcrawler-test",
		RunID:       "run-2",
		SampleRatio: 0,
		Exporter:    exporter,
	})
	require.NoError(t, err)

	ctx, span := otel.Tracer("test").Start(context.Background(), "unsampled")
	require.True(t, span.SpanContext().IsValid())
	require.False(t, span.SpanContext().IsSampled())
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	assert.Contains(t, carrier.Get("traceparent"), span.SpanContext().TraceID().String())
	span.End()

	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Empty(t, exporter.GetSpans())
}

func TestExporterReceivesSampledSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp, err := InitTracerProvider(context.Background(), TracerOptions{
		ServiceName: "trendcrawler-test",
		RunID:       "run-3",
		SampleRatio: 1,
		Exporter:    exporter,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "enrich.video")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "enrich.video", spans[0].Name)
	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestNewExporter(t *testing.T) {
	exp, err := NewExporter("", nil)
	require.NoError(t, err)
	assert.Nil(t, exp)

	exp, err = NewExporter(" None ", nil)
	require.NoError(t, err)
	assert.Nil(t, exp)

	_, err = NewExporter("jaeger", nil)
	require.ErrorContains(t, err, "unknown trace exporter")

	var buf bytes.Buffer
	exp, err = NewExporter(ExporterStdout, &buf)
	require.NoError(t, err)
	require.NotNil(t, exp)

	tp, err := InitTracerProvider(context.Background(), TracerOptions{ServiceName: "trendcrawler-test", SampleRatio: 1, Exporter: exp})
	require.NoError(t, err)
	_, span := otel.Tracer("test").Start(context.Background(), "stdout-span")
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "stdout-span")
}

func TestSamplerDescriptions(t *testing.T) {
	assert.Contains(t, Sampler(1).Description(), "root:AlwaysOnSampler")
	assert.Contains(t, Sampler(-3).Description(), "root:AlwaysOffSampler")
	assert.Contains(t, Sampler(0.25).Description(), "root:TraceIDRatioBased{0.25}")
}
