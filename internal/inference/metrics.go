package inference

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts backend attempts. A nil *Metrics is a no-op.
type Metrics struct {
	attempts *prometheus.CounterVec
	latency  prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planbot",
			Subsystem: "inference",
			Name:      "attempts_total",
			Help:      "Backend call attempts by result (ok, retryable, fatal).",
		}, []string{"result"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "planbot",
			Subsystem: "inference",
			Name:      "attempt_duration_seconds",
			Help:      "Latency of single backend attempts.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.attempts, m.latency)
	}
	return m
}

func (m *Metrics) observe(d time.Duration, err error, class errClass) {
	if m == nil {
		return
	}
	m.latency.Observe(d.Seconds())
	result := "ok"
	if err != nil {
		result = class.String()
	}
	m.attempts.WithLabelValues(result).Inc()
}
