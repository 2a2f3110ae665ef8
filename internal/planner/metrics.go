package planner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK       = "ok"
	outcomeDegraded = "degraded"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

// Metrics is optional; a nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planbot",
			Subsystem: "planner",
			Name:      "requests_total",
			Help:      "Scheduling requests by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "planbot",
			Subsystem: "planner",
			Name:      "generate_duration_seconds",
			Help:      "End-to-end time spent generating a schedule, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 9),
		}),
	}
	for _, o := range []string{outcomeOK, outcomeDegraded, outcomeRejected, outcomeFailed} {
		m.requests.WithLabelValues(o)
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration)
	}
	return m
}

func (m *Metrics) outcome(o string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(o).Inc()
}

func (m *Metrics) observeRun(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}
