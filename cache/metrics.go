package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by a Memo.
type Metrics struct {
	lookups          *prometheus.CounterVec
	producerErrors   *prometheus.CounterVec
	producerDuration *prometheus.HistogramVec
	inflight         *prometheus.GaugeVec
}

// NewMetrics creates the cache collectors and registers them with reg. A nil
// reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		lookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homepage",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by key and result (hit or miss).",
		}, []string{"key", "result"}),
		producerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homepage",
			Subsystem: "cache",
			Name:      "producer_errors_total",
			Help:      "Failed producer runs by key and kind.",
		}, []string{"key", "kind"}),
		producerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "homepage",
			Subsystem: "cache",
			Name:      "producer_duration_seconds",
			Help:      "Time spent running producers on cache misses.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"key"}),
		inflight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "homepage",
			Subsystem: "cache",
			Name:      "inflight",
			Help:      "Producers currently running, by key.",
		}, []string{"key"}),
	}
}

func (m *Metrics) hit(key string)  { m.lookups.WithLabelValues(key, "hit").Inc() }
func (m *Metrics) miss(key string) { m.lookups.WithLabelValues(key, "miss").Inc() }

func (m *Metrics) failed(key, kind string) {
	m.producerErrors.WithLabelValues(key, kind).Inc()
}
