package grassroots

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts submission workflow activity.
type Metrics struct {
	transitions *prometheus.CounterVec
}

// NewMetrics registers the workflow collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pitchside",
			Subsystem: "grassroots",
			Name:      "transitions_total",
			Help:      "Grassroots submission status transitions.",
		}, []string{"from", "to"}),
	}
	reg.MustRegister(m.transitions)
	return m
}

func (m *Metrics) observe(from, to string) {
	if m == nil {
		return
	}
	if from == "" {
		from = "new"
	}
	m.transitions.WithLabelValues(from, to).Inc()
}
