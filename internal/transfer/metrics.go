package transfer

import "github.com/prometheus/client_golang/prometheus"

var (
	initiatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "transferguard",
		Subsystem: "transfer",
		Name:      "initiated_total",
		Help:      "Pending transfers created.",
	})

	outcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transferguard",
		Subsystem: "transfer",
		Name:      "outcomes_total",
		Help:      "Confirm attempts by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(initiatedTotal, outcomesTotal)
}
