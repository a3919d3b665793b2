package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fyrsmithlabs/hapticd/internal/config"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, tel)

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.False(t, tel.IsEnabled())
	assert.Nil(t, tel.LoggerProvider())

	health := tel.Health()
	assert.True(t, health.Healthy)
	assert.False(t, health.Degraded)
	assert.Empty(t, health.Reasons)
}

func TestNew_InvalidConfig(t *testing.T) {
	tel, err := New(context.Background(), &Config{Enabled: true})
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestNew_EnabledWithInjectedExporters(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()

	cfg := NewDefaultConfig()
	cfg.Enabled = true

	tel, err := New(context.Background(), cfg, WithSpanExporter(exporter), WithMetricReader(reader))
	require.NoError(t, err)
	assert.True(t, tel.IsEnabled())
	assert.False(t, tel.Health().Degraded)

	_, span := tel.Tracer("hapticd.test").Start(context.Background(), "resolve")
	span.End()

	counter, err := tel.Meter("hapticd.test").Int64Counter("hapticd.test.events")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	require.NoError(t, tel.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "resolve", spans[0].Name)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	m, ok := FindMetric(rm, "hapticd.test.events")
	require.True(t, ok)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)

	require.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.IsEnabled())
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		_ = tel.Tracer("test")
		_ = tel.Meter("test")
		_ = tel.LoggerProvider()
		tel.SetLoggerProvider(nil)
		_ = tel.IsEnabled()
		_ = tel.Shutdown(context.Background())
		_ = tel.ForceFlush(context.Background())
	})

	health := tel.Health()
	assert.False(t, health.Healthy)
	assert.True(t, health.Degraded)
}

func TestTelemetry_Shutdown(t *testing.T) {
	t.Run("marks unhealthy", func(t *testing.T) {
		tel, err := New(context.Background(), NewDefaultConfig())
		require.NoError(t, err)
		require.NoError(t, tel.Shutdown(context.Background()))
		assert.False(t, tel.Health().Healthy)
	})

	t.Run("honours caller deadline", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Shutdown.Timeout = config.Duration(100 * time.Millisecond)
		tel, err := New(context.Background(), cfg)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		require.NoError(t, tel.Shutdown(ctx))
	})

	t.Run("flushes test providers", func(t *testing.T) {
		tt := NewTestTelemetry()
		_, span := tt.Tracer("test").Start(context.Background(), "last")
		span.End()

		require.NoError(t, tt.Shutdown(context.Background()))
		tt.AssertSpanExists(t, "last")
		assert.False(t, tt.Health().Healthy)
	})
}

func TestTelemetry_SetDegraded(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	tel.setDegraded("meter provider: %v", "boom")

	health := tel.Health()
	assert.True(t, health.Degraded)
	assert.Equal(t, []string{"meter provider: boom"}, health.Reasons)
}

func TestTestTelemetry_Spans(t *testing.T) {
	tt := NewTestTelemetry()
	tracer := tt.Tracer("test")

	_, a := tracer.Start(context.Background(), "engine.resolve")
	a.SetAttributes(
		attribute.String("package", "com.chat"),
		attribute.Int64("segments", 3),
		attribute.Float64("ratio", 0.5),
		attribute.Bool("matched", true),
	)
	a.End()

	_, b := tracer.Start(context.Background(), "dispatch")
	b.End()

	assert.Len(t, tt.Spans(), 2)
	assert.Nil(t, tt.SpanByName("missing"))
	tt.AssertSpanExists(t, "dispatch")
	tt.AssertSpanAttribute(t, "engine.resolve", "package", "com.chat")
	tt.AssertSpanAttribute(t, "engine.resolve", "segments", int64(3))
	tt.AssertSpanAttribute(t, "engine.resolve", "ratio", 0.5)
	tt.AssertSpanAttribute(t, "engine.resolve", "matched", true)
}

func TestTestTelemetry_Metrics(t *testing.T) {
	tt := NewTestTelemetry()

	counter, err := tt.Meter("test").Int64Counter("hapticd.requests")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)
	counter.Add(context.Background(), 2)

	rm, err := tt.CollectMetrics(context.Background())
	require.NoError(t, err)

	m, ok := FindMetric(rm, "hapticd.requests")
	require.True(t, ok)
	sum := m.Data.(metricdata.Sum[int64])
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)

	_, ok = FindMetric(rm, "missing")
	assert.False(t, ok)
}
