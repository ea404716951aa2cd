package admission

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const MetricsNamespace = "checkpoint"

var (
	evaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "rule_evaluations_total",
			Help:      "Total number of rule evaluations by rule kind, rule name, and verdict.",
		},
		[]string{"kind", "rule", "verdict"},
	)

	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "admission_requests_total",
			Help:      "Total number of admission requests by webhook path and result.",
		},
		[]string{"path", "allowed"},
	)
)

func init() {
	metrics.Registry.MustRegister(
		evaluations,
		requests,
	)
}
