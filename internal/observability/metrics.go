// Package observability records metrics for join compilation, fallback eager
// loads and schema cache lookups. All recording methods are safe on a nil
// receiver so callers can run without metrics configured.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the library's instruments.
type Metrics struct {
	joinsCompiled metric.Int64Counter
	fallbackLoads metric.Int64Counter
	cacheLookups  metric.Int64Counter
	queryDuration metric.Float64Histogram
	rowsHydrated  metric.Int64Counter
}

// InitMetrics creates instruments on the global meter provider.
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("with-join")

	joinsCompiled, err := meter.Int64Counter(
		"withjoin.joins.compiled",
		metric.WithDescription("Relations satisfied by a LEFT JOIN instead of a separate query"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create joins counter: %w", err)
	}

	fallbackLoads, err := meter.Int64Counter(
		"withjoin.eagerload.fallbacks",
		metric.WithDescription("Relations loaded through a separate eager-load query"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fallback counter: %w", err)
	}

	cacheLookups, err := meter.Int64Counter(
		"withjoin.schema_cache.lookups",
		metric.WithDescription("Schema cache lookups by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema cache counter: %w", err)
	}

	queryDuration, err := meter.Float64Histogram(
		"withjoin.query.duration",
		metric.WithDescription("Duration of compiled query executions in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query duration histogram: %w", err)
	}

	rowsHydrated, err := meter.Int64Counter(
		"withjoin.rows.hydrated",
		metric.WithDescription("Rows unflattened into entity trees"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rows counter: %w", err)
	}

	return &Metrics{
		joinsCompiled: joinsCompiled,
		fallbackLoads: fallbackLoads,
		cacheLookups:  cacheLookups,
		queryDuration: queryDuration,
		rowsHydrated:  rowsHydrated,
	}, nil
}

// RecordJoin counts a relation compiled into a join.
func (m *Metrics) RecordJoin(ctx context.Context, model string, depth int) {
	if m == nil {
		return
	}
	m.joinsCompiled.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.Int("depth", depth),
	))
}

// RecordFallback counts a relation left to a separate query.
func (m *Metrics) RecordFallback(ctx context.Context, model, reason string) {
	if m == nil {
		return
	}
	m.fallbackLoads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("reason", reason),
	))
}

// RecordCacheLookup counts a schema cache lookup.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", hit)))
}

// RecordQuery records one query execution and the rows it produced.
func (m *Metrics) RecordQuery(ctx context.Context, model string, duration time.Duration, rows int, success bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.Bool("success", success),
	)
	m.queryDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	if rows > 0 {
		m.rowsHydrated.Add(ctx, int64(rows), metric.WithAttributes(attribute.String("model", model)))
	}
}
