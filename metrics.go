package pgpool

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ObservePoolMetrics registers observable gauges that report pool occupancy.
// Gauges emit capacity, idle, and leased connection counts labelled with the
// pool name.
func ObservePoolMetrics(p *Pool) {
	if p == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("pool", p.Name()),
	}

	meter := otel.Meter("pgpool")
	if _, err := meter.Int64ObservableGauge("pgpool_connections_total",
		metric.WithDescription("Fixed pool capacity (idle + leased)"),
		metric.WithUnit("{connection}"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			stat := p.Stat()
			observer.Observe(int64(stat.Capacity), metric.WithAttributes(attrs...))
			return nil
		}),
	); err != nil {
		return
	}
	if _, err := meter.Int64ObservableGauge("pgpool_connections_idle",
		metric.WithDescription("Idle connections ready for checkout"),
		metric.WithUnit("{connection}"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			stat := p.Stat()
			observer.Observe(int64(stat.Idle), metric.WithAttributes(attrs...))
			return nil
		}),
	); err != nil {
		return
	}
	if _, err := meter.Int64ObservableGauge("pgpool_connections_leased",
		metric.WithDescription("Connections currently leased to callers"),
		metric.WithUnit("{connection}"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			stat := p.Stat()
			observer.Observe(int64(stat.Leased), metric.WithAttributes(attrs...))
			return nil
		}),
	); err != nil {
		return
	}
}
