package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Record outcomes reported by ImportMetrics.
const (
	OutcomeCreated   = "created"
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeSkipped   = "skipped"
)

// ImportMetrics holds the instruments recorded by catalog imports.
type ImportMetrics struct {
	records  metric.Int64Counter
	runs     metric.Int64Counter
	duration metric.Float64Histogram
}

// NewImportMetrics creates import instruments on meter. A nil meter uses the
// global meter provider.
func NewImportMetrics(meter metric.Meter) (*ImportMetrics, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(TracerName)
	}

	records, err := meter.Int64Counter("partsdb.import.records",
		metric.WithDescription("Source records processed by catalog imports, by outcome"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter partsdb.import.records: %w", err)
	}

	runs, err := meter.Int64Counter("partsdb.import.runs",
		metric.WithDescription("Catalog import runs, by final status"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter partsdb.import.runs: %w", err)
	}

	duration, err := meter.Float64Histogram("partsdb.import.duration",
		metric.WithDescription("Catalog import run duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram partsdb.import.duration: %w", err)
	}

	return &ImportMetrics{records: records, runs: runs, duration: duration}, nil
}

// RecordOutcome adds n records with the given outcome for a category.
func (m *ImportMetrics) RecordOutcome(ctx context.Context, category, outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.records.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("outcome", outcome),
	))
}

// RecordRun counts a finished run and its duration.
func (m *ImportMetrics) RecordRun(ctx context.Context, category, status string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("status", status),
	)
	m.runs.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
}
