package cron

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "checkpoint",
			Name:      "cronpolicy_runs_total",
			Help:      "Total number of cron policy firings by result.",
		},
		[]string{"cronpolicy", "result"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "checkpoint",
			Name:      "cronpolicy_notifications_total",
			Help:      "Total number of notifications sent for cron policy output.",
		},
		[]string{"cronpolicy"},
	)
)

func init() {
	metrics.Registry.MustRegister(
		runs,
		notifications,
	)
}
