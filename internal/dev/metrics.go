package dev

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "servedev"

// buildBuckets widens prometheus.DefBuckets to one minute.
var buildBuckets = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}

// Metrics holds the server's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	subscribers      prometheus.Gauge
	broadcasts       prometheus.Counter
	deliveryFailures prometheus.Counter
	changes          *prometheus.CounterVec
	builds           *prometheus.CounterVec
	buildDuration    *prometheus.HistogramVec
}

// NewMetrics registers the collectors on registry.
//
// Metrics collected:
//   - servedev_subscribers: Gauge of open reload connections
//   - servedev_broadcasts_total: Counter of reload notifications sent
//   - servedev_delivery_failures_total: Counter of subscribers dropped on send failure
//   - servedev_changes_total: Counter of file changes by watch pattern
//   - servedev_builds_total: Counter of builds by target and status
//   - servedev_build_duration_seconds: Histogram of build duration by target
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "subscribers",
			Help:      "Number of open reload connections",
		}),
		broadcasts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "broadcasts_total",
			Help:      "Total number of reload notifications broadcast",
		}),
		deliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "delivery_failures_total",
			Help:      "Total number of subscribers dropped after a failed send",
		}),
		changes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "changes_total",
			Help:      "Total number of file changes by watch pattern",
		}, []string{"pattern"}),
		builds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "builds_total",
			Help:      "Total number of builds by target and status",
		}, []string{"target", "status"}),
		buildDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "build_duration_seconds",
			Help:      "Build duration in seconds",
			Buckets:   buildBuckets,
		}, []string{"target"}),
	}
}

func (m *Metrics) setSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

func (m *Metrics) incBroadcasts() {
	if m == nil {
		return
	}
	m.broadcasts.Inc()
}

func (m *Metrics) incDeliveryFailures() {
	if m == nil {
		return
	}
	m.deliveryFailures.Inc()
}

func (m *Metrics) incChanges(pattern string) {
	if m == nil {
		return
	}
	m.changes.WithLabelValues(pattern).Inc()
}

func (m *Metrics) observeBuild(target string, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.builds.WithLabelValues(target, status).Inc()
	m.buildDuration.WithLabelValues(target).Observe(d.Seconds())
}
