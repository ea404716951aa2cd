// Package admission serves the webhook ingress and composes rule verdicts
// for each AdmissionReview.
package admission

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	jsonpatch "gomodules.xyz/jsonpatch/v2"
	"k8s.io/apimachinery/pkg/util/json"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/webhook"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"

	"github.com/devsisters/checkpoint/internal/registry"
)

// Webhook paths served by the admission ingress.
const (
	PathValidate = "/validate"
	PathMutate   = "/mutate"
	PathPing     = "/ping"
)

// NewValidatingHandler returns the admission handler for the validating
// webhook path. It expects to be registered with the webhook server.
func NewValidatingHandler(reg *registry.Registry, d *Dispatcher) *webhook.Admission {
	return &webhook.Admission{Handler: &handler{
		registry:   reg,
		dispatcher: d,
		kind:       registry.KindValidating,
		path:       PathValidate,
	}}
}

// NewMutatingHandler returns the admission handler for the mutating webhook
// path.
func NewMutatingHandler(reg *registry.Registry, d *Dispatcher) *webhook.Admission {
	return &webhook.Admission{Handler: &handler{
		registry:   reg,
		dispatcher: d,
		kind:       registry.KindMutating,
		path:       PathMutate,
	}}
}

// Ping serves the liveness/readiness probe endpoint.
func Ping() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

type handler struct {
	registry   *registry.Registry
	dispatcher *Dispatcher

	kind registry.RuleKind
	path string
}

func (h *handler) Handle(ctx context.Context, req webhook.AdmissionRequest) webhook.AdmissionResponse {
	l := log.FromContext(ctx).WithValues(
		"path", h.path,
		"resource", req.Resource,
		"namespace", req.Namespace,
		"name", req.Name,
		"operation", req.Operation,
	)

	// The snapshot read here is observed for the whole request; concurrent
	// rule updates do not affect in-flight decisions.
	snap := h.registry.Snapshot()

	matched, err := h.dispatcher.Matcher.Match(ctx, snap, &req.AdmissionRequest)
	if err != nil {
		l.Error(err, "failed to match rules")
		return admission.Errored(http.StatusInternalServerError, err)
	}

	rules := make([]*registry.Rule, 0, len(matched))
	for _, rule := range matched {
		if rule.Kind == h.kind {
			rules = append(rules, rule)
		}
	}

	outcome := h.dispatcher.Dispatch(ctx, &req.AdmissionRequest, rules)
	requests.WithLabelValues(h.path, strconv.FormatBool(outcome.Allowed)).Inc()

	l.Info("admission outcome",
		"rules", len(rules),
		"allowed", outcome.Allowed,
		"patched", len(outcome.Patch) > 0,
	)

	resp := admission.ValidationResponse(outcome.Allowed, outcome.DenyReason)
	if outcome.Allowed && len(outcome.Patch) > 0 {
		var patches []jsonpatch.Operation
		if err := json.Unmarshal(outcome.Patch, &patches); err != nil {
			return admission.Errored(http.StatusInternalServerError, fmt.Errorf("failed to unmarshal accumulated patch: %w", err))
		}
		resp.Patches = patches
	}
	return resp
}
