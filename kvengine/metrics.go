package kvengine

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the counters an Engine maintains. They are created
// unregistered; callers that want them scraped call MustRegister with
// their own registry, so multiple Engines in one process (as in tests)
// never collide on prometheus's default registry.
type Metrics struct {
	Puts       prometheus.Counter
	Gets       prometheus.Counter
	Deletes    prometheus.Counter
	IndexFull  prometheus.Counter
	Tombstones prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		Puts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvdb_puts_total",
			Help: "Total successful Put calls.",
		}),
		Gets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvdb_gets_total",
			Help: "Total Get calls, hit or miss.",
		}),
		Deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvdb_deletes_total",
			Help: "Total successful Delete calls.",
		}),
		IndexFull: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvdb_index_full_total",
			Help: "Total Put calls rejected because the hash index has no free slot for a new key.",
		}),
		Tombstones: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvdb_tombstones_written_total",
			Help: "Total tombstone records written to a segment.",
		}),
	}
}

// MustRegister registers every metric in m with reg. Panics on collision,
// matching promauto's own behavior.
func (m *Metrics) MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(m.Puts, m.Gets, m.Deletes, m.IndexFull, m.Tombstones)
}
