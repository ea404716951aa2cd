package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	admissionregistrationv1 "k8s.io/api/admissionregistration/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"

	checkpointv1 "github.com/devsisters/checkpoint/api/v1"
)

func namespacesRule(kind RuleKind, name string) Rule {
	return Rule{
		Kind: kind,
		Name: name,
		Spec: checkpointv1.RuleSpec{
			ObjectRules: []admissionregistrationv1.RuleWithOperations{{
				Operations: []admissionregistrationv1.OperationType{admissionregistrationv1.Create},
				Rule: admissionregistrationv1.Rule{
					APIGroups:   []string{""},
					APIVersions: []string{"v1"},
					Resources:   []string{"namespaces"},
				},
			}},
			Code: `allow()`,
		},
	}
}

func wildcardRule(kind RuleKind, name string) Rule {
	return Rule{
		Kind: kind,
		Name: name,
		Spec: checkpointv1.RuleSpec{
			ObjectRules: []admissionregistrationv1.RuleWithOperations{{
				Operations: []admissionregistrationv1.OperationType{admissionregistrationv1.OperationAll},
				Rule: admissionregistrationv1.Rule{
					APIGroups:   []string{"*"},
					APIVersions: []string{"*"},
					Resources:   []string{"*"},
				},
			}},
			Code: `allow()`,
		},
	}
}

var namespacesGVR = schema.GroupVersionResource{Group: "", Version: "v1", Resource: "namespaces"}

func Test_Registry_UpsertAndLookup(t *testing.T) {
	t.Parallel()

	reg := New()
	reg.UpsertRule(namespacesRule(KindValidating, "a"))

	rule, ok := reg.Snapshot().Rule(KindValidating, "a")
	require.True(t, ok)
	assert.Equal(t, "a", rule.Name)

	_, ok = reg.Snapshot().Rule(KindMutating, "a")
	assert.False(t, ok)
}

func Test_Registry_SnapshotIsImmutable(t *testing.T) {
	t.Parallel()

	reg := New()
	reg.UpsertRule(namespacesRule(KindValidating, "a"))

	snap := reg.Snapshot()
	require.Len(t, snap.Rules(), 1)

	reg.UpsertRule(namespacesRule(KindValidating, "b"))
	reg.DeleteRule(KindValidating, "a")

	// the old snapshot still sees the state at capture time
	assert.Len(t, snap.Rules(), 1)
	_, ok := snap.Rule(KindValidating, "a")
	assert.True(t, ok)

	// a fresh snapshot sees the update
	fresh := reg.Snapshot()
	_, ok = fresh.Rule(KindValidating, "a")
	assert.False(t, ok)
	_, ok = fresh.Rule(KindValidating, "b")
	assert.True(t, ok)
}

func Test_Registry_UpsertReplaces(t *testing.T) {
	t.Parallel()

	reg := New()
	reg.UpsertRule(namespacesRule(KindValidating, "a"))

	updated := namespacesRule(KindValidating, "a")
	updated.Spec.Code = `deny("updated")`
	reg.UpsertRule(updated)

	rule, ok := reg.Snapshot().Rule(KindValidating, "a")
	require.True(t, ok)
	assert.Equal(t, `deny("updated")`, rule.Spec.Code)
	assert.Len(t, reg.Snapshot().Rules(), 1)
}

func Test_Snapshot_CandidatesBucketsAndWildcard(t *testing.T) {
	t.Parallel()

	reg := New()
	reg.UpsertRule(namespacesRule(KindValidating, "exact"))
	reg.UpsertRule(wildcardRule(KindValidating, "wild"))
	reg.UpsertRule(namespacesRule(KindMutating, "exact-mut"))

	snap := reg.Snapshot()

	names := func(rules []*Rule) []string {
		out := make([]string, 0, len(rules))
		for _, r := range rules {
			out = append(out, r.Name)
		}
		return out
	}

	got := snap.Candidates(namespacesGVR)
	assert.Equal(t, []string{"exact", "wild", "exact-mut"}, names(got))

	// a resource nothing buckets on still sees wildcard rules
	got = snap.Candidates(schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "deployments"})
	assert.Equal(t, []string{"wild"}, names(got))
}

func Test_Snapshot_CandidatesDeterministicOrder(t *testing.T) {
	t.Parallel()

	reg := New()
	reg.UpsertRule(namespacesRule(KindMutating, "zeta"))
	reg.UpsertRule(namespacesRule(KindMutating, "alpha"))
	reg.UpsertRule(namespacesRule(KindValidating, "zeta"))
	reg.UpsertRule(namespacesRule(KindValidating, "alpha"))

	snap := reg.Snapshot()
	first := snap.Candidates(namespacesGVR)
	second := snap.Candidates(namespacesGVR)
	require.Equal(t, first, second)

	require.Len(t, first, 4)
	assert.Equal(t, KindValidating, first[0].Kind)
	assert.Equal(t, "alpha", first[0].Name)
	assert.Equal(t, KindValidating, first[1].Kind)
	assert.Equal(t, "zeta", first[1].Name)
	assert.Equal(t, KindMutating, first[2].Kind)
	assert.Equal(t, "alpha", first[2].Name)
	assert.Equal(t, KindMutating, first[3].Kind)
	assert.Equal(t, "zeta", first[3].Name)
}

func Test_Snapshot_SubresourceEntryBucketsUnderParent(t *testing.T) {
	t.Parallel()

	rule := Rule{
		Kind: KindValidating,
		Name: "exec",
		Spec: checkpointv1.RuleSpec{
			ObjectRules: []admissionregistrationv1.RuleWithOperations{{
				Operations: []admissionregistrationv1.OperationType{admissionregistrationv1.Connect},
				Rule: admissionregistrationv1.Rule{
					APIGroups:   []string{""},
					APIVersions: []string{"v1"},
					Resources:   []string{"pods/exec"},
				},
			}},
			Code: `allow()`,
		},
	}

	reg := New()
	reg.UpsertRule(rule)

	got := reg.Snapshot().Candidates(schema.GroupVersionResource{Group: "", Version: "v1", Resource: "pods"})
	require.Len(t, got, 1)
	assert.Equal(t, "exec", got[0].Name)
}

func Test_Registry_CronPolicies(t *testing.T) {
	t.Parallel()

	var notified [][]checkpointv1.CronPolicy

	reg := New()
	reg.OnCronPoliciesChanged(func(policies []checkpointv1.CronPolicy) {
		notified = append(notified, policies)
	})

	reg.UpsertCronPolicy(checkpointv1.CronPolicy{
		ObjectMeta: metav1.ObjectMeta{Name: "b"},
		Spec:       checkpointv1.CronPolicySpec{Schedule: "* * * * *"},
	})
	reg.UpsertCronPolicy(checkpointv1.CronPolicy{
		ObjectMeta: metav1.ObjectMeta{Name: "a"},
		Spec:       checkpointv1.CronPolicySpec{Schedule: "*/5 * * * *"},
	})

	policies := reg.Snapshot().CronPolicies()
	require.Len(t, policies, 2)
	assert.Equal(t, "a", policies[0].Name)
	assert.Equal(t, "b", policies[1].Name)

	reg.DeleteCronPolicy("b")
	assert.Len(t, reg.Snapshot().CronPolicies(), 1)

	require.Len(t, notified, 3)
	assert.Len(t, notified[2], 1)
}
