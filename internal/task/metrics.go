package task

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the runner. The counters are process-local; no
// exposition endpoint is wired up.
type Metrics struct {
	Submitted  prometheus.Counter
	Cancelled  prometheus.Counter
	Completed  *prometheus.CounterVec
	QueueDepth prometheus.Gauge
}

// NewMetrics builds and registers the runner's metrics. reg may be nil
// for tests that do not care about registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mend_tasks_submitted_total",
			Help: "Tasks accepted into the queue.",
		}),
		Cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mend_tasks_cancelled_total",
			Help: "Tasks cancelled before or during execution.",
		}),
		Completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mend_tasks_completed_total",
			Help: "Tasks reaching a terminal state, by state.",
		}, []string{"state"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mend_queue_depth",
			Help: "Tasks currently waiting in the queue.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Submitted, m.Cancelled, m.Completed, m.QueueDepth)
	}
	return m
}
