package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), Config{ServiceName: "test"}, zaptest.NewLogger(t))

	require.NoError(t, err)
	assert.False(t, tp.IsEnabled())
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestStartSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	ctx, span := StartSpan(context.Background(), "import.run", "category", "cpu", "records", 3, 42, "ignored")
	assert.NotEmpty(t, GetTraceID(ctx))
	SetAttributes(span, "created", int64(2))
	RecordError(span, errors.New("boom"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	got := spans[0]
	assert.Equal(t, "import.run", got.Name())
	assert.Equal(t, codes.Error, got.Status().Code)
	assert.ElementsMatch(t, []attribute.KeyValue{
		attribute.String("category", "cpu"),
		attribute.Int("records", 3),
		attribute.Int64("created", 2),
	}, got.Attributes())
}

func TestGetTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
}

func TestImportMetrics_NilSafe(t *testing.T) {
	var m *ImportMetrics
	assert.NotPanics(t, func() {
		m.RecordOutcome(context.Background(), "cpu", OutcomeCreated, 1)
		m.RecordRun(context.Background(), "cpu", "succeeded", time.Second)
	})

	m, err := NewImportMetrics(nil)
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.RecordOutcome(context.Background(), "cpu", OutcomeSkipped, 2)
		m.RecordRun(context.Background(), "cpu", "failed", time.Millisecond)
	})
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	mp, err := NewMeterProvider(context.Background(), Config{ServiceName: "test"}, zaptest.NewLogger(t))

	require.NoError(t, err)
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestImportMetrics_Record(t *testing.T) {
	// Arrange
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewImportMetrics(provider.Meter("test"))
	require.NoError(t, err)

	// Act
	m.RecordOutcome(ctx, "cpu", OutcomeCreated, 3)
	m.RecordOutcome(ctx, "cpu", OutcomeCreated, 2)
	m.RecordOutcome(ctx, "cpu", OutcomeSkipped, 1)
	m.RecordOutcome(ctx, "cpu", OutcomeUpdated, 0)
	m.RecordRun(ctx, "cpu", "succeeded", 1500*time.Millisecond)

	// Assert
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	records := sumByAttribute(t, rm, "partsdb.import.records", "outcome")
	assert.Equal(t, map[string]int64{"created": 5, "skipped": 1}, records)

	runs := sumByAttribute(t, rm, "partsdb.import.runs", "status")
	assert.Equal(t, map[string]int64{"succeeded": 1}, runs)
}

// sumByAttribute returns an int64 counter's values keyed by one attribute.
func sumByAttribute(t *testing.T, rm metricdata.ResourceMetrics, name, key string) map[string]int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != name {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)

			out := map[string]int64{}
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value(attribute.Key(key))
				out[v.AsString()] += dp.Value
			}
			return out
		}
	}
	t.Fatalf("metric %s not collected", name)
	return nil
}

func TestInstrumentDB(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	tests := []struct {
		name      string
		enabled   bool
		wantSpans bool
	}{
		{name: "disabled", enabled: false, wantSpans: false},
		{name: "enabled", enabled: true, wantSpans: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
			require.NoError(t, err)
			before := len(recorder.Ended())

			// Act
			err = InstrumentDB(db, Config{Enabled: tt.enabled}, "sqlite", zaptest.NewLogger(t))
			require.NoError(t, err)
			var n int
			require.NoError(t, db.Raw("SELECT 1").Scan(&n).Error)

			// Assert
			assert.Equal(t, 1, n)
			assert.Equal(t, tt.wantSpans, len(recorder.Ended()) > before)
		})
	}
}
