package risk

import "github.com/prometheus/client_golang/prometheus"

var (
	assessmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transferguard",
		Subsystem: "risk",
		Name:      "assessments_total",
		Help:      "Risk assessments by model used (none when rule-only).",
	}, []string{"model"})

	modelFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transferguard",
		Subsystem: "risk",
		Name:      "model_failures_total",
		Help:      "Model scoring failures that fell back to the rule score.",
	}, []string{"model"})

	blendedScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "transferguard",
		Subsystem: "risk",
		Name:      "blended_score",
		Help:      "Distribution of blended risk scores.",
		Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 1},
	})
)

func init() {
	prometheus.MustRegister(assessmentsTotal, modelFailuresTotal, blendedScore)
}
