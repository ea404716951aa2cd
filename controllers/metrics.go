package controllers

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/devsisters/checkpoint/internal/registry"
)

const MetricsNamespace = "checkpoint"

var (
	reconcileErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "reconcile_errors_total",
			Help:      "Total number of errors encountered during reconciliation by CRD kind.",
		},
		[]string{"kind"},
	)

	reconciles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "reconciles_total",
			Help:      "Total number of reconciles by CRD kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	metrics.Registry.MustRegister(
		reconcileErrors,
		reconciles,
	)
}

var (
	installedRulesDesc = prometheus.NewDesc(
		MetricsNamespace+"_registry_rules",
		"Number of rules installed in the registry by kind.",
		[]string{"kind"},
		nil,
	)
	installedCronPoliciesDesc = prometheus.NewDesc(
		MetricsNamespace+"_registry_cronpolicies",
		"Number of cron policies installed in the registry.",
		nil,
		nil,
	)
)

// RegistryCollector exposes the current registry contents as gauges.
type RegistryCollector struct {
	Registry *registry.Registry
}

// Describe implements the prometheus.Collector interface.
func (c *RegistryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- installedRulesDesc
	ch <- installedCronPoliciesDesc
}

// Collect implements the prometheus.Collector interface.
func (c *RegistryCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.Registry.Snapshot()

	counts := map[registry.RuleKind]int{}
	for _, rule := range snap.Rules() {
		counts[rule.Kind]++
	}
	for _, kind := range []registry.RuleKind{registry.KindValidating, registry.KindMutating} {
		ch <- prometheus.MustNewConstMetric(
			installedRulesDesc,
			prometheus.GaugeValue,
			float64(counts[kind]),
			string(kind),
		)
	}

	ch <- prometheus.MustNewConstMetric(
		installedCronPoliciesDesc,
		prometheus.GaugeValue,
		float64(len(snap.CronPolicies())),
	)
}
