package queue

import "github.com/prometheus/client_golang/prometheus"

var (
	registrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_registrations_total",
			Help: "Total number of queue registrations by outcome",
		},
		[]string{"outcome"},
	)

	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_transitions_total",
			Help: "Total number of queue status transitions by target status and outcome",
		},
		[]string{"status", "outcome"},
	)

	deletionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_deletions_total",
			Help: "Total number of administrative queue entry deletions",
		},
	)
)

func init() {
	prometheus.MustRegister(registrationsTotal, transitionsTotal, deletionsTotal)
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
