// Package registry holds the in-memory set of installed rules and cron
// policies. Readers always operate on an immutable point-in-time snapshot;
// writers build a new snapshot and swap it in atomically so in-flight
// admission decisions never observe a partial update.
package registry

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"k8s.io/apimachinery/pkg/runtime/schema"

	checkpointv1 "github.com/devsisters/checkpoint/api/v1"
)

// RuleKind partitions rules by their CRD kind.
type RuleKind string

const (
	KindValidating RuleKind = "ValidatingRule"
	KindMutating   RuleKind = "MutatingRule"
)

// Rule is an installed rule. Rules are immutable once installed; updates
// replace the entry as a whole.
type Rule struct {
	Kind RuleKind
	Name string
	Spec checkpointv1.RuleSpec
}

type ruleKey struct {
	kind RuleKind
	name string
}

type gvrKey struct {
	group    string
	version  string
	resource string
}

// Snapshot is an immutable view of the registry.
type Snapshot struct {
	rules    map[ruleKey]*Rule
	byGVR    map[gvrKey][]*Rule
	wildcard []*Rule
	policies map[string]*checkpointv1.CronPolicy
}

// Rule looks up a rule by kind and name.
func (s *Snapshot) Rule(kind RuleKind, name string) (*Rule, bool) {
	r, ok := s.rules[ruleKey{kind: kind, name: name}]
	return r, ok
}

// Candidates returns the rules that may match a request for the given
// resource: the exact GVR bucket plus all rules carrying wildcard entries.
// The result is deduplicated and ordered by kind (validating first) and
// name.
func (s *Snapshot) Candidates(gvr schema.GroupVersionResource) []*Rule {
	bucket := s.byGVR[gvrKey{group: gvr.Group, version: gvr.Version, resource: gvr.Resource}]

	seen := make(map[ruleKey]struct{}, len(bucket)+len(s.wildcard))
	out := make([]*Rule, 0, len(bucket)+len(s.wildcard))
	for _, r := range bucket {
		k := ruleKey{kind: r.Kind, name: r.Name}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	for _, r := range s.wildcard {
		k := ruleKey{kind: r.Kind, name: r.Name}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}

	sortRules(out)
	return out
}

// Rules returns all rules ordered by kind (validating first) and name.
func (s *Snapshot) Rules() []*Rule {
	out := make([]*Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	sortRules(out)
	return out
}

// CronPolicies returns all cron policies ordered by name.
func (s *Snapshot) CronPolicies() []checkpointv1.CronPolicy {
	out := make([]checkpointv1.CronPolicy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, *p.DeepCopy())
	}
	slices.SortFunc(out, func(a, b checkpointv1.CronPolicy) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

func sortRules(rules []*Rule) {
	slices.SortFunc(rules, func(a, b *Rule) int {
		if a.Kind != b.Kind {
			// validating sorts before mutating
			if a.Kind == KindValidating {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
}

// Registry is the mutable holder of the current snapshot.
type Registry struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[Snapshot]

	onCronChange func([]checkpointv1.CronPolicy)
}

// New returns an empty registry.
func New() *Registry {
	r := &Registry{}
	r.snapshot.Store(&Snapshot{
		rules:    map[ruleKey]*Rule{},
		byGVR:    map[gvrKey][]*Rule{},
		policies: map[string]*checkpointv1.CronPolicy{},
	})
	return r
}

// Snapshot returns the current immutable view. Callers keep the returned
// snapshot for the duration of one request.
func (r *Registry) Snapshot() *Snapshot {
	return r.snapshot.Load()
}

// OnCronPoliciesChanged registers a handler invoked with the full cron
// policy set after every cron policy write.
func (r *Registry) OnCronPoliciesChanged(fn func([]checkpointv1.CronPolicy)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCronChange = fn
}

// UpsertRule installs or replaces a rule.
func (r *Registry) UpsertRule(rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule.Spec = *rule.Spec.DeepCopy()
	r.rebuild(func(next *Snapshot) {
		next.rules[ruleKey{kind: rule.Kind, name: rule.Name}] = &rule
	})
}

// DeleteRule removes a rule. Removing an absent rule is a no-op.
func (r *Registry) DeleteRule(kind RuleKind, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebuild(func(next *Snapshot) {
		delete(next.rules, ruleKey{kind: kind, name: name})
	})
}

// UpsertCronPolicy installs or replaces a cron policy.
func (r *Registry) UpsertCronPolicy(policy checkpointv1.CronPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebuild(func(next *Snapshot) {
		next.policies[policy.Name] = policy.DeepCopy()
	})
	r.notifyCronChangeLocked()
}

// DeleteCronPolicy removes a cron policy.
func (r *Registry) DeleteCronPolicy(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebuild(func(next *Snapshot) {
		delete(next.policies, name)
	})
	r.notifyCronChangeLocked()
}

func (r *Registry) notifyCronChangeLocked() {
	if r.onCronChange != nil {
		r.onCronChange(r.snapshot.Load().CronPolicies())
	}
}

// rebuild copies the current snapshot, applies mutate, reindexes, and swaps
// the new snapshot in.
func (r *Registry) rebuild(mutate func(*Snapshot)) {
	cur := r.snapshot.Load()
	next := &Snapshot{
		rules:    make(map[ruleKey]*Rule, len(cur.rules)),
		policies: make(map[string]*checkpointv1.CronPolicy, len(cur.policies)),
	}
	for k, v := range cur.rules {
		next.rules[k] = v
	}
	for k, v := range cur.policies {
		next.policies[k] = v
	}

	mutate(next)

	next.byGVR = make(map[gvrKey][]*Rule)
	next.wildcard = nil
	for _, rule := range next.rules {
		indexRule(next, rule)
	}

	r.snapshot.Store(next)
}

// indexRule places a rule into the exact GVR buckets for its non-wildcard
// entries, or into the wildcard list if any entry needs a full scan. A rule
// without object rules matches everything and goes to the wildcard list.
func indexRule(s *Snapshot, rule *Rule) {
	if len(rule.Spec.ObjectRules) == 0 {
		s.wildcard = append(s.wildcard, rule)
		return
	}

	keys := map[gvrKey]struct{}{}
	for _, entry := range rule.Spec.ObjectRules {
		if hasWildcard(entry.APIGroups) || hasWildcard(entry.APIVersions) || hasWildcard(entry.Resources) {
			s.wildcard = append(s.wildcard, rule)
			return
		}
		for _, g := range entry.APIGroups {
			for _, v := range entry.APIVersions {
				for _, res := range entry.Resources {
					// subresource notation buckets under the parent resource
					base, _, _ := strings.Cut(res, "/")
					if base == "*" {
						s.wildcard = append(s.wildcard, rule)
						return
					}
					keys[gvrKey{group: g, version: v, resource: base}] = struct{}{}
				}
			}
		}
	}
	for k := range keys {
		s.byGVR[k] = append(s.byGVR[k], rule)
	}
}

func hasWildcard(values []string) bool {
	return slices.Contains(values, "*")
}
