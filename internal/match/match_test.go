package match_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	admissionv1 "k8s.io/api/admission/v1"
	admissionregistrationv1 "k8s.io/api/admissionregistration/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/utils/ptr"

	checkpointv1 "github.com/devsisters/checkpoint/api/v1"
	"github.com/devsisters/checkpoint/internal/match"
	"github.com/devsisters/checkpoint/internal/registry"
	"github.com/devsisters/checkpoint/testutil"
)

func ruleWithEntries(name string, entries ...admissionregistrationv1.RuleWithOperations) registry.Rule {
	return registry.Rule{
		Kind: registry.KindValidating,
		Name: name,
		Spec: checkpointv1.RuleSpec{ObjectRules: entries, Code: `allow()`},
	}
}

func entry(groups, versions, resources []string, ops ...admissionregistrationv1.OperationType) admissionregistrationv1.RuleWithOperations {
	return admissionregistrationv1.RuleWithOperations{
		Operations: ops,
		Rule: admissionregistrationv1.Rule{
			APIGroups:   groups,
			APIVersions: versions,
			Resources:   resources,
		},
	}
}

func podCreateRequest(namespace string) *admissionv1.AdmissionRequest {
	return &admissionv1.AdmissionRequest{
		UID:       "uid",
		Resource:  metav1.GroupVersionResource{Group: "", Version: "v1", Resource: "pods"},
		Operation: admissionv1.Create,
		Namespace: namespace,
	}
}

func rawObject(t *testing.T, labels map[string]string) runtime.RawExtension {
	t.Helper()

	b, err := json.Marshal(map[string]any{
		"metadata": map[string]any{"name": "obj", "labels": labels},
	})
	require.NoError(t, err)
	return runtime.RawExtension{Raw: b}
}

func Test_Match_ObjectRuleEntries(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name    string
		entry   admissionregistrationv1.RuleWithOperations
		req     *admissionv1.AdmissionRequest
		matches bool
	}{
		{
			name:    "exact match",
			entry:   entry([]string{""}, []string{"v1"}, []string{"pods"}, admissionregistrationv1.Create),
			req:     podCreateRequest("default"),
			matches: true,
		},
		{
			name:    "wildcard everything",
			entry:   entry([]string{"*"}, []string{"*"}, []string{"*"}, admissionregistrationv1.OperationAll),
			req:     podCreateRequest("default"),
			matches: true,
		},
		{
			name:    "wrong group",
			entry:   entry([]string{"apps"}, []string{"v1"}, []string{"pods"}, admissionregistrationv1.Create),
			req:     podCreateRequest("default"),
			matches: false,
		},
		{
			name:    "wrong version",
			entry:   entry([]string{""}, []string{"v1beta1"}, []string{"pods"}, admissionregistrationv1.Create),
			req:     podCreateRequest("default"),
			matches: false,
		},
		{
			name:    "wrong resource",
			entry:   entry([]string{""}, []string{"v1"}, []string{"configmaps"}, admissionregistrationv1.Create),
			req:     podCreateRequest("default"),
			matches: false,
		},
		{
			name:    "operation not listed",
			entry:   entry([]string{""}, []string{"v1"}, []string{"pods"}, admissionregistrationv1.Delete),
			req:     podCreateRequest("default"),
			matches: false,
		},
		{
			name:  "subresource entry requires subresource request",
			entry: entry([]string{""}, []string{"v1"}, []string{"pods/exec"}, admissionregistrationv1.Connect),
			req: &admissionv1.AdmissionRequest{
				Resource:  metav1.GroupVersionResource{Group: "", Version: "v1", Resource: "pods"},
				Operation: admissionv1.Connect,
				Namespace: "default",
			},
			matches: false,
		},
		{
			name:  "subresource entry matches subresource request",
			entry: entry([]string{""}, []string{"v1"}, []string{"pods/exec"}, admissionregistrationv1.Connect),
			req: &admissionv1.AdmissionRequest{
				Resource:    metav1.GroupVersionResource{Group: "", Version: "v1", Resource: "pods"},
				SubResource: "exec",
				Operation:   admissionv1.Connect,
				Namespace:   "default",
			},
			matches: true,
		},
		{
			name:  "plain resource entry ignores subresource request",
			entry: entry([]string{""}, []string{"v1"}, []string{"pods"}, admissionregistrationv1.Connect),
			req: &admissionv1.AdmissionRequest{
				Resource:    metav1.GroupVersionResource{Group: "", Version: "v1", Resource: "pods"},
				SubResource: "exec",
				Operation:   admissionv1.Connect,
				Namespace:   "default",
			},
			matches: false,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			reg := registry.New()
			reg.UpsertRule(ruleWithEntries("r", tc.entry))

			m := &match.Matcher{Reader: testutil.NewFakeClient(t)}
			got, err := m.Match(context.Background(), reg.Snapshot(), tc.req)
			require.NoError(t, err)
			assert.Equal(t, tc.matches, len(got) == 1)
		})
	}
}

func Test_Match_Scope(t *testing.T) {
	t.Parallel()

	namespaced := ruleWithEntries("namespaced", admissionregistrationv1.RuleWithOperations{
		Operations: []admissionregistrationv1.OperationType{admissionregistrationv1.OperationAll},
		Rule: admissionregistrationv1.Rule{
			APIGroups:   []string{"*"},
			APIVersions: []string{"*"},
			Resources:   []string{"*"},
			Scope:       ptr.To(admissionregistrationv1.NamespacedScope),
		},
	})
	cluster := ruleWithEntries("cluster", admissionregistrationv1.RuleWithOperations{
		Operations: []admissionregistrationv1.OperationType{admissionregistrationv1.OperationAll},
		Rule: admissionregistrationv1.Rule{
			APIGroups:   []string{"*"},
			APIVersions: []string{"*"},
			Resources:   []string{"*"},
			Scope:       ptr.To(admissionregistrationv1.ClusterScope),
		},
	})

	reg := registry.New()
	reg.UpsertRule(namespaced)
	reg.UpsertRule(cluster)

	m := &match.Matcher{Reader: testutil.NewFakeClient(t)}

	got, err := m.Match(context.Background(), reg.Snapshot(), podCreateRequest("default"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "namespaced", got[0].Name)

	got, err = m.Match(context.Background(), reg.Snapshot(), podCreateRequest(""))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "cluster", got[0].Name)
}

func Test_Match_NamespaceSelector(t *testing.T) {
	t.Parallel()

	rule := ruleWithEntries("r", entry([]string{""}, []string{"v1"}, []string{"pods"}, admissionregistrationv1.Create))
	rule.Spec.NamespaceSelector = &metav1.LabelSelector{
		MatchLabels: map[string]string{"env": "prod"},
	}

	reg := registry.New()
	reg.UpsertRule(rule)

	c := testutil.NewFakeClient(t,
		&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "prod-ns", Labels: map[string]string{"env": "prod"}}},
		&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "dev-ns", Labels: map[string]string{"env": "dev"}}},
	)
	m := &match.Matcher{Reader: c}

	got, err := m.Match(context.Background(), reg.Snapshot(), podCreateRequest("prod-ns"))
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = m.Match(context.Background(), reg.Snapshot(), podCreateRequest("dev-ns"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func Test_Match_NamespaceSelectorMatchExpressions(t *testing.T) {
	t.Parallel()

	rule := ruleWithEntries("r", entry([]string{""}, []string{"v1"}, []string{"pods"}, admissionregistrationv1.Create))
	rule.Spec.NamespaceSelector = &metav1.LabelSelector{
		MatchExpressions: []metav1.LabelSelectorRequirement{{
			Key:      "runlevel",
			Operator: metav1.LabelSelectorOpNotIn,
			Values:   []string{"0", "1"},
		}},
	}

	reg := registry.New()
	reg.UpsertRule(rule)

	c := testutil.NewFakeClient(t,
		&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "system", Labels: map[string]string{"runlevel": "0"}}},
		&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "apps", Labels: map[string]string{"runlevel": "2"}}},
	)
	m := &match.Matcher{Reader: c}

	got, err := m.Match(context.Background(), reg.Snapshot(), podCreateRequest("system"))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = m.Match(context.Background(), reg.Snapshot(), podCreateRequest("apps"))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func Test_Match_NamespaceSelectorOnNamespaceObject(t *testing.T) {
	t.Parallel()

	rule := ruleWithEntries("r", entry([]string{""}, []string{"v1"}, []string{"namespaces"}, admissionregistrationv1.Create))
	rule.Spec.NamespaceSelector = &metav1.LabelSelector{
		MatchLabels: map[string]string{"team": "infra"},
	}

	reg := registry.New()
	reg.UpsertRule(rule)
	m := &match.Matcher{Reader: testutil.NewFakeClient(t)}

	req := &admissionv1.AdmissionRequest{
		Resource:  metav1.GroupVersionResource{Group: "", Version: "v1", Resource: "namespaces"},
		Operation: admissionv1.Create,
		Object:    rawObject(t, map[string]string{"team": "infra"}),
	}
	got, err := m.Match(context.Background(), reg.Snapshot(), req)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	req.Object = rawObject(t, map[string]string{"team": "web"})
	got, err = m.Match(context.Background(), reg.Snapshot(), req)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func Test_Match_ObjectSelector(t *testing.T) {
	t.Parallel()

	rule := ruleWithEntries("r", entry([]string{""}, []string{"v1"}, []string{"pods"}, admissionregistrationv1.Create))
	rule.Spec.ObjectSelector = &metav1.LabelSelector{
		MatchLabels: map[string]string{"app": "web"},
	}

	reg := registry.New()
	reg.UpsertRule(rule)
	m := &match.Matcher{Reader: testutil.NewFakeClient(t)}

	req := podCreateRequest("default")
	req.Object = rawObject(t, map[string]string{"app": "web"})
	got, err := m.Match(context.Background(), reg.Snapshot(), req)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	req.Object = rawObject(t, map[string]string{"app": "db"})
	got, err = m.Match(context.Background(), reg.Snapshot(), req)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func Test_Match_Deterministic(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	for _, name := range []string{"charlie", "alpha", "bravo"} {
		reg.UpsertRule(ruleWithEntries(name, entry([]string{""}, []string{"v1"}, []string{"pods"}, admissionregistrationv1.Create)))
	}
	mut := ruleWithEntries("aardvark", entry([]string{""}, []string{"v1"}, []string{"pods"}, admissionregistrationv1.Create))
	mut.Kind = registry.KindMutating
	reg.UpsertRule(mut)

	m := &match.Matcher{Reader: testutil.NewFakeClient(t)}
	snap := reg.Snapshot()
	req := podCreateRequest("default")

	first, err := m.Match(context.Background(), snap, req)
	require.NoError(t, err)
	second, err := m.Match(context.Background(), snap, req)
	require.NoError(t, err)
	require.Equal(t, first, second)

	require.Len(t, first, 4)
	// validating first, lexicographic within each kind
	assert.Equal(t, "alpha", first[0].Name)
	assert.Equal(t, "bravo", first[1].Name)
	assert.Equal(t, "charlie", first[2].Name)
	assert.Equal(t, "aardvark", first[3].Name)
	assert.Equal(t, registry.KindMutating, first[3].Kind)
}
