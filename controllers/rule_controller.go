// Package controllers reconciles checkpoint CRDs into the in-memory
// registry and the cluster webhook configurations.
package controllers

import (
	"context"
	"fmt"
	"slices"

	admissionregistrationv1 "k8s.io/api/admissionregistration/v1"
	"k8s.io/utils/ptr"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	"github.com/devsisters/checkpoint/admission"
	checkpointv1 "github.com/devsisters/checkpoint/api/v1"
	"github.com/devsisters/checkpoint/internal/registry"
)

const fieldOwner = "checkpoint-rule-controller"

// ValidatingRuleReconciler keeps the registry and the cluster's
// ValidatingWebhookConfiguration in sync with the installed ValidatingRules.
type ValidatingRuleReconciler struct {
	client.Client

	Registry *registry.Registry

	WebhookName         string
	WebhookServiceName  string
	WebhookPort         int32
	ControllerNamespace string
}

//+kubebuilder:rbac:groups=checkpoint.devsisters.com,resources=validatingrules;mutatingrules,verbs=get;list;watch
//+kubebuilder:rbac:groups=admissionregistration.k8s.io,resources=mutatingwebhookconfigurations;validatingwebhookconfigurations,verbs=get;list;watch;create;update;patch;delete

// Reconcile rebuilds the full rule set on every change: the registry is
// replaced entry by entry and the aggregated webhook configuration is
// applied with server-side apply.
func (r *ValidatingRuleReconciler) Reconcile(ctx context.Context, _ reconcile.Request) (ctrl.Result, error) {
	l := log.FromContext(ctx).WithName("ValidatingRuleReconciler.reconcile")
	reconciles.WithLabelValues("ValidatingRule").Inc()

	var rules checkpointv1.ValidatingRuleList
	if err := r.List(ctx, &rules); err != nil {
		reconcileErrors.WithLabelValues("ValidatingRule").Inc()
		return ctrl.Result{}, fmt.Errorf("failed to list validating rules: %w", err)
	}

	specs := make(map[string]checkpointv1.RuleSpec, len(rules.Items))
	for _, rule := range rules.Items {
		specs[rule.Name] = rule.Spec
	}
	syncRegistryRules(r.Registry, registry.KindValidating, specs)
	l.Info("synced validating rules", "count", len(specs))

	webhook := &admissionregistrationv1.ValidatingWebhookConfiguration{}
	webhook.SetGroupVersionKind(admissionregistrationv1.SchemeGroupVersion.WithKind("ValidatingWebhookConfiguration"))
	webhook.Name = r.WebhookName
	if len(rules.Items) > 0 {
		webhook.Webhooks = []admissionregistrationv1.ValidatingWebhook{{
			Name:                    "rules.checkpoint.devsisters.com",
			ClientConfig:            r.clientConfig(admission.PathValidate),
			Rules:                   aggregateObjectRules(rules.Items, func(rule checkpointv1.ValidatingRule) checkpointv1.RuleSpec { return rule.Spec }),
			FailurePolicy:           aggregateFailurePolicy(rules.Items, func(rule checkpointv1.ValidatingRule) checkpointv1.RuleSpec { return rule.Spec }),
			TimeoutSeconds:          aggregateTimeoutSeconds(rules.Items, func(rule checkpointv1.ValidatingRule) checkpointv1.RuleSpec { return rule.Spec }),
			SideEffects:             ptr.To(admissionregistrationv1.SideEffectClassNone),
			AdmissionReviewVersions: []string{"v1"},
		}}
	}
	if err := r.Patch(ctx, webhook, client.Apply, client.FieldOwner(fieldOwner)); err != nil {
		reconcileErrors.WithLabelValues("ValidatingRule").Inc()
		return ctrl.Result{}, fmt.Errorf("failed to patch ValidatingWebhookConfiguration: %w", err)
	}

	return ctrl.Result{}, nil
}

func (r *ValidatingRuleReconciler) clientConfig(path string) admissionregistrationv1.WebhookClientConfig {
	return admissionregistrationv1.WebhookClientConfig{
		Service: &admissionregistrationv1.ServiceReference{
			Name:      r.WebhookServiceName,
			Namespace: r.ControllerNamespace,
			Path:      ptr.To(path),
			Port:      ptr.To(r.WebhookPort),
		},
	}
}

// SetupWithManager sets up the controller with the Manager.
func (r *ValidatingRuleReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return builder.ControllerManagedBy(mgr).
		For(&checkpointv1.ValidatingRule{}).
		Watches(&admissionregistrationv1.ValidatingWebhookConfiguration{}, handler.EnqueueRequestsFromMapFunc(mapToSingleRequest)).
		Named("validatingrule").
		Complete(r)
}

// MutatingRuleReconciler keeps the registry and the cluster's
// MutatingWebhookConfiguration in sync with the installed MutatingRules.
type MutatingRuleReconciler struct {
	client.Client

	Registry *registry.Registry

	WebhookName         string
	WebhookServiceName  string
	WebhookPort         int32
	ControllerNamespace string
}

// Reconcile mirrors ValidatingRuleReconciler.Reconcile for mutating rules.
func (r *MutatingRuleReconciler) Reconcile(ctx context.Context, _ reconcile.Request) (ctrl.Result, error) {
	l := log.FromContext(ctx).WithName("MutatingRuleReconciler.reconcile")
	reconciles.WithLabelValues("MutatingRule").Inc()

	var rules checkpointv1.MutatingRuleList
	if err := r.List(ctx, &rules); err != nil {
		reconcileErrors.WithLabelValues("MutatingRule").Inc()
		return ctrl.Result{}, fmt.Errorf("failed to list mutating rules: %w", err)
	}

	specs := make(map[string]checkpointv1.RuleSpec, len(rules.Items))
	for _, rule := range rules.Items {
		specs[rule.Name] = rule.Spec
	}
	syncRegistryRules(r.Registry, registry.KindMutating, specs)
	l.Info("synced mutating rules", "count", len(specs))

	webhook := &admissionregistrationv1.MutatingWebhookConfiguration{}
	webhook.SetGroupVersionKind(admissionregistrationv1.SchemeGroupVersion.WithKind("MutatingWebhookConfiguration"))
	webhook.Name = r.WebhookName
	if len(rules.Items) > 0 {
		webhook.Webhooks = []admissionregistrationv1.MutatingWebhook{{
			Name: "rules.checkpoint.devsisters.com",
			ClientConfig: admissionregistrationv1.WebhookClientConfig{
				Service: &admissionregistrationv1.ServiceReference{
					Name:      r.WebhookServiceName,
					Namespace: r.ControllerNamespace,
					Path:      ptr.To(admission.PathMutate),
					Port:      ptr.To(r.WebhookPort),
				},
			},
			Rules:                   aggregateObjectRules(rules.Items, func(rule checkpointv1.MutatingRule) checkpointv1.RuleSpec { return rule.Spec }),
			FailurePolicy:           aggregateFailurePolicy(rules.Items, func(rule checkpointv1.MutatingRule) checkpointv1.RuleSpec { return rule.Spec }),
			TimeoutSeconds:          aggregateTimeoutSeconds(rules.Items, func(rule checkpointv1.MutatingRule) checkpointv1.RuleSpec { return rule.Spec }),
			SideEffects:             ptr.To(admissionregistrationv1.SideEffectClassNone),
			AdmissionReviewVersions: []string{"v1"},
		}}
	}
	if err := r.Patch(ctx, webhook, client.Apply, client.FieldOwner(fieldOwner)); err != nil {
		reconcileErrors.WithLabelValues("MutatingRule").Inc()
		return ctrl.Result{}, fmt.Errorf("failed to patch MutatingWebhookConfiguration: %w", err)
	}

	return ctrl.Result{}, nil
}

// SetupWithManager sets up the controller with the Manager.
func (r *MutatingRuleReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return builder.ControllerManagedBy(mgr).
		For(&checkpointv1.MutatingRule{}).
		Watches(&admissionregistrationv1.MutatingWebhookConfiguration{}, handler.EnqueueRequestsFromMapFunc(mapToSingleRequest)).
		Named("mutatingrule").
		Complete(r)
}

// syncRegistryRules replaces all rules of one kind in the registry with the
// given specs.
func syncRegistryRules(reg *registry.Registry, kind registry.RuleKind, specs map[string]checkpointv1.RuleSpec) {
	for _, rule := range reg.Snapshot().Rules() {
		if rule.Kind != kind {
			continue
		}
		if _, ok := specs[rule.Name]; !ok {
			reg.DeleteRule(kind, rule.Name)
		}
	}
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		reg.UpsertRule(registry.Rule{Kind: kind, Name: name, Spec: specs[name]})
	}
}

// aggregateObjectRules collects the union of all rules' object rule entries.
// The dispatcher narrows down to the matching rules internally, the webhook
// configuration only needs to cover the union.
func aggregateObjectRules[T any](rules []T, spec func(T) checkpointv1.RuleSpec) []admissionregistrationv1.RuleWithOperations {
	var out []admissionregistrationv1.RuleWithOperations
	for _, rule := range rules {
		s := spec(rule)
		if len(s.ObjectRules) == 0 {
			// a rule without object rules matches everything
			return []admissionregistrationv1.RuleWithOperations{{
				Operations: []admissionregistrationv1.OperationType{admissionregistrationv1.OperationAll},
				Rule: admissionregistrationv1.Rule{
					APIGroups:   []string{"*"},
					APIVersions: []string{"*"},
					Resources:   []string{"*"},
				},
			}}
		}
		out = append(out, s.ObjectRules...)
	}
	return out
}

// aggregateFailurePolicy is Ignore only when every rule opted into Ignore;
// a single Fail (or unset) rule keeps the webhook failing closed.
func aggregateFailurePolicy[T any](rules []T, spec func(T) checkpointv1.RuleSpec) *admissionregistrationv1.FailurePolicyType {
	for _, rule := range rules {
		fp := spec(rule).FailurePolicy
		if fp == nil || *fp != checkpointv1.FailurePolicyIgnore {
			return ptr.To(admissionregistrationv1.Fail)
		}
	}
	return ptr.To(admissionregistrationv1.Ignore)
}

// aggregateTimeoutSeconds is the largest rule timeout, capped at the 30
// second maximum the API server accepts for webhooks.
func aggregateTimeoutSeconds[T any](rules []T, spec func(T) checkpointv1.RuleSpec) *int32 {
	var max int32
	for _, rule := range rules {
		if ts := spec(rule).TimeoutSeconds; ts != nil && *ts > max {
			max = *ts
		}
	}
	if max == 0 {
		return nil
	}
	if max > 30 {
		max = 30
	}
	return ptr.To(max)
}

func mapToSingleRequest(_ context.Context, _ client.Object) []reconcile.Request {
	// every change funnels into the same full rebuild
	return []reconcile.Request{{}}
}
