package admission

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	jsonpatchv5 "github.com/evanphx/json-patch/v5"
	admissionv1 "k8s.io/api/admission/v1"
	"sigs.k8s.io/controller-runtime/pkg/log"

	checkpointv1 "github.com/devsisters/checkpoint/api/v1"
	"github.com/devsisters/checkpoint/internal/match"
	"github.com/devsisters/checkpoint/internal/registry"
	"github.com/devsisters/checkpoint/internal/script"
)

// GrantFunc binds a rule's ServiceAccount to a cluster reader for the
// script's kubeGet/kubeList calls.
type GrantFunc func(ctx context.Context, sa checkpointv1.ServiceAccountInfo) (script.Kube, error)

// Dispatcher orchestrates the matching rules for one admission request and
// composes their verdicts into a single outcome.
type Dispatcher struct {
	Matcher *match.Matcher
	Grants  GrantFunc
}

// RuleResult is the recorded verdict of a single rule, kept for
// observability even when it cannot change the outcome anymore.
type RuleResult struct {
	Rule   *registry.Rule
	Result *script.Result
	Err    error
}

// Outcome is the composed result of one dispatch.
type Outcome struct {
	Allowed    bool
	DenyReason string
	// Patch is the accumulated JSON-Patch producing the final object from
	// the request's object, nil when no mutation happened.
	Patch []byte
	// Results holds the per-rule verdicts in evaluation order.
	Results []RuleResult
}

// Dispatch evaluates rules (already in matcher order) against the request.
// Validating rules are all evaluated with the original object; the first
// deny decides the outcome but later rules still run for deterministic
// logging. Mutating rules run after, each observing the object with all
// earlier patches applied, and are skipped entirely when a validator denied.
// Any rule error fails closed with a message carrying the rule name and
// error kind.
func (d *Dispatcher) Dispatch(ctx context.Context, req *admissionv1.AdmissionRequest, rules []*registry.Rule) *Outcome {
	l := log.FromContext(ctx).WithValues("uid", req.UID)
	outcome := &Outcome{Allowed: true}

	reqValue, err := requestValue(req)
	if err != nil {
		outcome.Allowed = false
		outcome.DenyReason = fmt.Sprintf("failed to decode admission request: %s", err)
		return outcome
	}

	// Validating phase.
	for _, rule := range rules {
		if rule.Kind != registry.KindValidating {
			continue
		}
		res, err := d.evaluate(ctx, rule, reqValue)
		outcome.Results = append(outcome.Results, RuleResult{Rule: rule, Result: res, Err: err})
		evaluations.WithLabelValues(string(rule.Kind), rule.Name, verdictLabel(res, err)).Inc()

		if err != nil {
			l.Error(err, "validating rule failed", "rule", rule.Name)
			outcome.deny(failClosedReason(rule, err))
			continue
		}
		if res.Denied() {
			l.Info("validating rule denied", "rule", rule.Name, "reason", *res.DenyReason)
			outcome.deny(*res.DenyReason)
		}
	}
	if !outcome.Allowed {
		return outcome
	}

	// Mutating phase.
	currentObject, err := rawValue(req.Object.Raw)
	if err != nil {
		outcome.deny(fmt.Sprintf("failed to decode request object: %s", err))
		return outcome
	}
	originalObject := currentObject

	var accumulated []any
	for _, rule := range rules {
		if rule.Kind != registry.KindMutating {
			continue
		}

		derived, err := withObject(reqValue, currentObject)
		if err != nil {
			outcome.deny(failClosedReason(rule, err))
			return outcome
		}
		res, err := d.evaluate(ctx, rule, derived)
		outcome.Results = append(outcome.Results, RuleResult{Rule: rule, Result: res, Err: err})
		evaluations.WithLabelValues(string(rule.Kind), rule.Name, verdictLabel(res, err)).Inc()

		if err != nil {
			l.Error(err, "mutating rule failed", "rule", rule.Name)
			outcome.deny(failClosedReason(rule, err))
			return outcome
		}
		if res.Denied() {
			// Deny dominates any patch emitted by the same run.
			l.Info("mutating rule denied", "rule", rule.Name, "reason", *res.DenyReason)
			outcome.deny(*res.DenyReason)
			return outcome
		}
		if res.Patch == nil {
			continue
		}

		next, err := applyPatch(currentObject, res.Patch)
		if err != nil {
			err = &script.Error{Kind: script.ErrorKindPatchApply, Err: err}
			l.Error(err, "mutating rule emitted an unappliable patch", "rule", rule.Name)
			outcome.deny(failClosedReason(rule, err))
			return outcome
		}
		currentObject = next

		accumulated, err = script.Diff(originalObject, currentObject)
		if err != nil {
			outcome.deny(failClosedReason(rule, &script.Error{Kind: script.ErrorKindPatchApply, Err: err}))
			return outcome
		}
	}

	if len(accumulated) > 0 {
		patch, err := json.Marshal(accumulated)
		if err != nil {
			outcome.deny(fmt.Sprintf("failed to marshal accumulated patch: %s", err))
			return outcome
		}
		outcome.Patch = patch
	}
	return outcome
}

// deny records the first deny reason; later denies are kept in Results only.
func (o *Outcome) deny(reason string) {
	if o.Allowed {
		o.Allowed = false
		o.DenyReason = reason
	}
}

func (d *Dispatcher) evaluate(ctx context.Context, rule *registry.Rule, reqValue map[string]any) (*script.Result, error) {
	timeout := script.DefaultAdmissionTimeout
	if rule.Spec.TimeoutSeconds != nil {
		timeout = time.Duration(*rule.Spec.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var kubeReader script.Kube
	if sa := rule.Spec.ServiceAccount; sa != nil && d.Grants != nil {
		var err error
		kubeReader, err = d.Grants(ctx, *sa)
		if err != nil {
			return nil, err
		}
	}

	return script.Run(ctx, rule.Name, rule.Spec.Code, script.Invocation{
		Request: reqValue,
		Timeout: timeout,
		Kube:    kubeReader,
	})
}

func failClosedReason(rule *registry.Rule, err error) string {
	return fmt.Sprintf("evaluation of rule %q failed (%s): %s", rule.Name, script.KindOf(err), err)
}

// requestValue converts the typed request into the JSON shape handed to
// scripts.
func requestValue(req *admissionv1.AdmissionRequest) (map[string]any, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func rawValue(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// withObject derives a request whose object field is replaced by the
// evolving object of the mutation chain.
func withObject(reqValue map[string]any, object any) (map[string]any, error) {
	cloned, err := cloneMap(reqValue)
	if err != nil {
		return nil, err
	}
	if object == nil {
		delete(cloned, "object")
	} else {
		cloned["object"] = object
	}
	return cloned, nil
}

func cloneMap(v map[string]any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// applyPatch applies an RFC 6902 patch to a JSON-shaped object.
func applyPatch(object any, ops []any) (any, error) {
	patchBytes, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patch: %w", err)
	}
	patch, err := jsonpatchv5.DecodePatch(patchBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to decode patch: %w", err)
	}
	objectBytes, err := json.Marshal(object)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal object: %w", err)
	}
	patched, err := patch.Apply(objectBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to apply patch: %w", err)
	}
	var out any
	if err := json.Unmarshal(patched, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal patched object: %w", err)
	}
	return out, nil
}

func verdictLabel(res *script.Result, err error) string {
	switch {
	case err != nil:
		return "error"
	case res.Denied():
		return "deny"
	case res.Patch != nil:
		return "allow_and_mutate"
	default:
		return "allow"
	}
}
