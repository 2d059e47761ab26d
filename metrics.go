package rxdb

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RegisterMetrics registers this handle's metrics with Prometheus.
// The collectors read live state, so there is no update loop to stop;
// they simply report zeroes once the handle is destroyed. Call at
// most once per handle per registry; the db label carries the
// database name.
func (db *Database) RegisterMetrics(registry *prometheus.Registry) *Database {
	labels := prometheus.Labels{"db": db.name}

	registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "rxdb",
			Subsystem:   "events",
			Name:        "emitted_total",
			Help:        "Change events emitted by this handle",
			ConstLabels: labels,
		}, func() float64 { return float64(db.bus.emitted.Load()) }),

		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "rxdb",
			Subsystem:   "events",
			Name:        "received_total",
			Help:        "Change events received from other instances",
			ConstLabels: labels,
		}, func() float64 { return float64(db.bus.received.Load()) }),

		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "rxdb",
			Subsystem:   "events",
			Name:        "dropped_total",
			Help:        "Change events dropped on full subscriber buffers",
			ConstLabels: labels,
		}, func() float64 { return float64(db.bus.dropped.Load()) }),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "rxdb",
			Subsystem:   "database",
			Name:        "collections_open",
			Help:        "Collections currently open on this handle",
			ConstLabels: labels,
		}, func() float64 { return float64(db.collections.Count()) }),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "rxdb",
			Subsystem:   "database",
			Name:        "queue_depth",
			Help:        "Locked operations queued or running",
			ConstLabels: labels,
		}, func() float64 { return float64(db.queue.Depth()) }),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "rxdb",
			Subsystem:   "database",
			Name:        "leader",
			Help:        "1 when this handle holds leadership",
			ConstLabels: labels,
		}, func() float64 {
			if db.destroyed.Load() {
				return 0
			}
			if db.IsLeader() {
				return 1
			}
			return 0
		}),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "rxdb",
			Subsystem:   "database",
			Name:        "handles_live",
			Help:        "Live database handles in this handle's registry",
			ConstLabels: labels,
		}, func() float64 { return float64(db.registry.LiveHandles()) }),
	)

	return db
}
