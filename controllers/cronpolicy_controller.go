package controllers

import (
	"context"
	"fmt"

	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	checkpointv1 "github.com/devsisters/checkpoint/api/v1"
	"github.com/devsisters/checkpoint/internal/registry"
)

// CronPolicyReconciler syncs CronPolicy objects into the registry. The cron
// runner follows the registry through its change handler.
type CronPolicyReconciler struct {
	client.Client

	Registry *registry.Registry
}

//+kubebuilder:rbac:groups=checkpoint.devsisters.com,resources=cronpolicies,verbs=get;list;watch

// Reconcile rebuilds the full cron policy set on every change.
func (r *CronPolicyReconciler) Reconcile(ctx context.Context, _ reconcile.Request) (ctrl.Result, error) {
	l := log.FromContext(ctx).WithName("CronPolicyReconciler.reconcile")
	reconciles.WithLabelValues("CronPolicy").Inc()

	var policies checkpointv1.CronPolicyList
	if err := r.List(ctx, &policies); err != nil {
		reconcileErrors.WithLabelValues("CronPolicy").Inc()
		return ctrl.Result{}, fmt.Errorf("failed to list cron policies: %w", err)
	}

	current := make(map[string]struct{}, len(policies.Items))
	for _, policy := range policies.Items {
		current[policy.Name] = struct{}{}
	}
	for _, installed := range r.Registry.Snapshot().CronPolicies() {
		if _, ok := current[installed.Name]; !ok {
			r.Registry.DeleteCronPolicy(installed.Name)
		}
	}
	for _, policy := range policies.Items {
		r.Registry.UpsertCronPolicy(policy)
	}

	l.Info("synced cron policies", "count", len(policies.Items))
	return ctrl.Result{}, nil
}

// SetupWithManager sets up the controller with the Manager.
func (r *CronPolicyReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return builder.ControllerManagedBy(mgr).
		For(&checkpointv1.CronPolicy{}).
		Named("cronpolicy").
		Complete(r)
}
