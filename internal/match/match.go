// Package match selects the rules applying to an admission request.
package match

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	admissionv1 "k8s.io/api/admission/v1"
	admissionregistrationv1 "k8s.io/api/admissionregistration/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/devsisters/checkpoint/internal/registry"
)

// Matcher filters registry snapshots against admission requests. The Reader
// resolves namespace labels for namespace selectors.
type Matcher struct {
	Reader client.Reader
}

// Match returns the rules whose object rules and selectors match the
// request, validating rules first, lexicographic by name within each kind.
// The ordering is deterministic: two calls with the same snapshot and
// request return identical results.
func (m *Matcher) Match(ctx context.Context, snap *registry.Snapshot, req *admissionv1.AdmissionRequest) ([]*registry.Rule, error) {
	candidates := snap.Candidates(schema.GroupVersionResource{
		Group:    req.Resource.Group,
		Version:  req.Resource.Version,
		Resource: req.Resource.Resource,
	})

	out := make([]*registry.Rule, 0, len(candidates))
	for _, rule := range candidates {
		ok, err := m.matches(ctx, rule, req)
		if err != nil {
			return nil, fmt.Errorf("failed to match rule %q: %w", rule.Name, err)
		}
		if ok {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (m *Matcher) matches(ctx context.Context, rule *registry.Rule, req *admissionv1.AdmissionRequest) (bool, error) {
	if !objectRulesMatch(rule.Spec.ObjectRules, req) {
		return false, nil
	}

	if sel := rule.Spec.NamespaceSelector; sel != nil {
		ok, err := m.namespaceMatches(ctx, sel, req)
		if err != nil || !ok {
			return false, err
		}
	}

	if sel := rule.Spec.ObjectSelector; sel != nil {
		ok, err := objectMatches(sel, req)
		if err != nil || !ok {
			return false, err
		}
	}

	return true, nil
}

// objectRulesMatch reports whether any entry matches. A rule without
// entries matches every request.
func objectRulesMatch(entries []admissionregistrationv1.RuleWithOperations, req *admissionv1.AdmissionRequest) bool {
	if len(entries) == 0 {
		return true
	}
	for _, entry := range entries {
		if entryMatches(entry, req) {
			return true
		}
	}
	return false
}

func entryMatches(entry admissionregistrationv1.RuleWithOperations, req *admissionv1.AdmissionRequest) bool {
	if !containsOrWildcard(entry.APIGroups, req.Resource.Group) {
		return false
	}
	if !containsOrWildcard(entry.APIVersions, req.Resource.Version) {
		return false
	}
	if !resourcesMatch(entry.Resources, req.Resource.Resource, req.SubResource) {
		return false
	}
	if !operationsMatch(entry.Operations, req.Operation) {
		return false
	}
	return scopeMatches(entry.Scope, req.Namespace)
}

func containsOrWildcard(values []string, v string) bool {
	for _, value := range values {
		if value == "*" || value == v {
			return true
		}
	}
	return false
}

// resourcesMatch handles the subresource notation: "pods" matches only main
// resource requests, "pods/exec" only that subresource, "*/*" everything.
func resourcesMatch(values []string, resource, subresource string) bool {
	for _, value := range values {
		base, sub, hasSub := strings.Cut(value, "/")
		if hasSub {
			if base == "*" && sub == "*" {
				return true
			}
			if subresource == "" {
				continue
			}
			if (base == "*" || base == resource) && (sub == "*" || sub == subresource) {
				return true
			}
			continue
		}
		if subresource != "" {
			continue
		}
		if value == "*" || value == resource {
			return true
		}
	}
	return false
}

func operationsMatch(ops []admissionregistrationv1.OperationType, op admissionv1.Operation) bool {
	for _, o := range ops {
		if o == admissionregistrationv1.OperationAll || string(o) == string(op) {
			return true
		}
	}
	return false
}

func scopeMatches(scope *admissionregistrationv1.ScopeType, namespace string) bool {
	if scope == nil {
		return true
	}
	switch *scope {
	case admissionregistrationv1.NamespacedScope:
		return namespace != ""
	case admissionregistrationv1.ClusterScope:
		return namespace == ""
	default:
		return true
	}
}

// namespaceMatches evaluates the namespace selector. When the admitted
// object is itself a namespace the matching is performed on the object's own
// labels; other cluster-scoped objects always match.
func (m *Matcher) namespaceMatches(ctx context.Context, sel *metav1.LabelSelector, req *admissionv1.AdmissionRequest) (bool, error) {
	selector, err := metav1.LabelSelectorAsSelector(sel)
	if err != nil {
		return false, fmt.Errorf("invalid namespace selector: %w", err)
	}
	if selector.Empty() {
		return true, nil
	}

	if req.Resource.Group == "" && req.Resource.Resource == "namespaces" {
		objLabels, err := objectLabels(req.Object)
		if err != nil {
			return false, err
		}
		if objLabels == nil {
			objLabels, err = objectLabels(req.OldObject)
			if err != nil {
				return false, err
			}
		}
		return selector.Matches(labels.Set(objLabels)), nil
	}

	if req.Namespace == "" {
		return true, nil
	}

	var ns corev1.Namespace
	if err := m.Reader.Get(ctx, types.NamespacedName{Name: req.Namespace}, &ns); err != nil {
		if apierrors.IsNotFound(err) {
			return selector.Matches(labels.Set(nil)), nil
		}
		return false, fmt.Errorf("failed to get namespace %q: %w", req.Namespace, err)
	}
	return selector.Matches(labels.Set(ns.Labels)), nil
}

// objectMatches evaluates the object selector against the object and the old
// object, whichever are present. Either matching admits the rule.
func objectMatches(sel *metav1.LabelSelector, req *admissionv1.AdmissionRequest) (bool, error) {
	selector, err := metav1.LabelSelectorAsSelector(sel)
	if err != nil {
		return false, fmt.Errorf("invalid object selector: %w", err)
	}
	if selector.Empty() {
		return true, nil
	}

	for _, raw := range []runtime.RawExtension{req.Object, req.OldObject} {
		objLabels, err := objectLabels(raw)
		if err != nil {
			return false, err
		}
		if objLabels != nil && selector.Matches(labels.Set(objLabels)) {
			return true, nil
		}
	}
	return false, nil
}

// objectLabels extracts metadata.labels from a raw object. Returns nil for
// an absent object.
func objectLabels(raw runtime.RawExtension) (map[string]string, error) {
	if len(raw.Raw) == 0 {
		return nil, nil
	}
	var meta metav1.PartialObjectMetadata
	if err := json.Unmarshal(raw.Raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal object metadata: %w", err)
	}
	if meta.Labels == nil {
		return map[string]string{}, nil
	}
	return meta.Labels, nil
}
