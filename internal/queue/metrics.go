package queue

import "github.com/prometheus/client_golang/prometheus"

var (
	// ProcessedTotal counts handled tasks grouped by outcome.
	ProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_processed_total",
			Help: "Total tasks processed grouped by status",
		},
		[]string{"kind", "status"},
	)
	// DeadLetteredTotal counts tasks moved to the dead-letter list.
	DeadLetteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_dead_lettered_total",
			Help: "Tasks moved to the dead-letter list after exhausting retries",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(ProcessedTotal, DeadLetteredTotal)
}
