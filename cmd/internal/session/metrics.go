package session

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the session subsystem's Prometheus collectors.
// A nil *Metrics records nothing.
type Metrics struct {
	lockWait     prometheus.Histogram
	lockAttempts prometheus.Counter
	writes       *prometheus.CounterVec
	collections  *prometheus.CounterVec
	reclaimed    prometheus.Counter
	lastCutoff   prometheus.Gauge
}

// NewMetrics registers the session collectors on reg (prometheus.DefaultRegisterer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		lockWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sessiond",
			Subsystem: "session",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for a session advisory lock.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		lockAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sessiond",
			Subsystem: "session",
			Name:      "lock_attempts_total",
			Help:      "Advisory lock attempts, including busy retries.",
		}),
		writes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiond",
			Subsystem: "session",
			Name:      "writes_total",
			Help:      "Session writes by outcome (inserted, updated, touched, skipped).",
		}, []string{"outcome"}),
		collections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiond",
			Subsystem: "gc",
			Name:      "passes_total",
			Help:      "Reclamation passes by result.",
		}, []string{"result"}),
		reclaimed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sessiond",
			Subsystem: "gc",
			Name:      "deleted_rows_total",
			Help:      "Expired session rows deleted by reclamation.",
		}),
		lastCutoff: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "sessiond",
			Subsystem: "gc",
			Name:      "last_threshold_seconds",
			Help:      "Unix threshold used by the last successful reclamation pass.",
		}),
	}
}

func (m *Metrics) lockAttempt() {
	if m == nil {
		return
	}
	m.lockAttempts.Inc()
}

func (m *Metrics) lockAcquired(waited time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(waited.Seconds())
}

func (m *Metrics) write(o WriteOutcome) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(string(o)).Inc()
}

func (m *Metrics) collection(result string) {
	if m == nil {
		return
	}
	m.collections.WithLabelValues(result).Inc()
}

func (m *Metrics) collected(c Collection) {
	if m == nil {
		return
	}
	m.collections.WithLabelValues("ok").Inc()
	m.reclaimed.Add(float64(c.Deleted))
	m.lastCutoff.Set(float64(c.Threshold))
}
