package script

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/multierr"
	jsonpatch "gomodules.xyz/jsonpatch/v2"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Default evaluation deadlines.
const (
	DefaultAdmissionTimeout = 5 * time.Second
	DefaultCronTimeout      = 30 * time.Second
)

// GetArgument is the argument of the `kubeGet` host op.
type GetArgument struct {
	Group     string `json:"group"`
	Version   string `json:"version"`
	Kind      string `json:"kind"`
	Plural    string `json:"plural,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	Name      string `json:"name"`
}

// ListArgument is the argument of the `kubeList` host op.
type ListArgument struct {
	Group         string `json:"group"`
	Version       string `json:"version"`
	Kind          string `json:"kind"`
	Plural        string `json:"plural,omitempty"`
	Namespace     string `json:"namespace,omitempty"`
	LabelSelector string `json:"labelSelector,omitempty"`
	FieldSelector string `json:"fieldSelector,omitempty"`
	Limit         int64  `json:"limit,omitempty"`
	Continue      string `json:"continue,omitempty"`
}

// Kube performs the cluster reads backing `kubeGet` and `kubeList`.
// Get returns nil without error when the object does not exist.
type Kube interface {
	Get(ctx context.Context, arg GetArgument) (map[string]any, error)
	List(ctx context.Context, arg ListArgument) (map[string]any, error)
}

// Invocation is the per-invocation context of one script run. It is private
// to the run; nothing is shared between invocations.
type Invocation struct {
	// Request holds the AdmissionRequest for admission use, nil for cron use.
	Request map[string]any
	// Resources holds the resource slot snapshots for cron use, nil for
	// admission use.
	Resources []any
	// Timeout is the wall-clock deadline for the run.
	// Defaults to DefaultAdmissionTimeout.
	Timeout time.Duration
	// Kube serves kubeGet/kubeList. Nil means the rule carries no
	// ServiceAccount grant and cluster reads fail with Forbidden.
	Kube Kube
}

// Result is what a completed invocation produced.
type Result struct {
	// DenyReason is set when the script's last verdict call was deny().
	DenyReason *string
	// Patch is the JSON-Patch emitted by mutate()/allowAndMutate(),
	// nil if none.
	Patch []any
	// Output is what the script stored with setOutput(), nil if never called.
	Output map[string]any
}

// Denied reports whether the script settled on a deny verdict.
func (r *Result) Denied() bool { return r.DenyReason != nil }

var errDeadlineExceeded = errors.New("script deadline exceeded")

// Run compiles and evaluates code under a fresh runtime with the host ABI
// registered. Each call owns its own runtime; global state set by one run is
// never visible to another. The run is interrupted when the timeout expires
// or ctx is cancelled, yielding a Timeout error.
func Run(ctx context.Context, name, code string, inv Invocation) (*Result, error) {
	prog, err := goja.Compile(name, code, false)
	if err != nil {
		return nil, &Error{Kind: ErrorKindParse, Err: err}
	}

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = DefaultAdmissionTimeout
	}

	vm := goja.New()
	h := &host{vm: vm, ctx: ctx, inv: inv}
	if err := h.register(); err != nil {
		return nil, &Error{Kind: ErrorKindRuntime, Err: fmt.Errorf("failed to register host ops: %w", err)}
	}

	watchdog := time.AfterFunc(timeout, func() { vm.Interrupt(errDeadlineExceeded) })
	defer watchdog.Stop()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-stop:
		}
	}()

	if _, err := vm.RunProgram(prog); err != nil {
		return nil, h.classify(err)
	}
	// A failed host op poisons the run even if the script caught the
	// exception.
	if h.hostErr != nil {
		return nil, h.classify(h.hostErr)
	}

	return &Result{DenyReason: h.denyReason, Patch: h.patch, Output: h.output}, nil
}

// host owns the context slots of one invocation.
type host struct {
	vm  *goja.Runtime
	ctx context.Context
	inv Invocation

	denyReason *string
	patch      []any
	output     map[string]any
	hostErr    error
}

func (h *host) register() error {
	vm := h.vm
	console := vm.NewObject()
	return multierr.Combine(
		vm.Set("getRequest", h.getRequest),
		vm.Set("getResources", h.getResources),
		vm.Set("allow", h.allow),
		vm.Set("deny", h.deny),
		vm.Set("mutate", h.mutate),
		vm.Set("allowAndMutate", h.allowAndMutate),
		vm.Set("setOutput", h.setOutput),
		vm.Set("kubeGet", h.kubeGet),
		vm.Set("kubeList", h.kubeList),
		vm.Set("jsonPatchDiff", h.jsonPatchDiff),
		vm.Set("jsonClone", h.jsonClone),
		vm.Set("print", h.print),
		console.Set("log", h.print),
		vm.Set("console", console),
	)
}

func (h *host) classify(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return &Error{Kind: ErrorKindTimeout, Err: err}
	}
	if h.hostErr != nil {
		var serr *Error
		if errors.As(h.hostErr, &serr) {
			return serr
		}
		return &Error{Kind: ErrorKindKubeClient, Err: h.hostErr}
	}
	var serr *Error
	if errors.As(err, &serr) {
		return serr
	}
	return &Error{Kind: ErrorKindRuntime, Err: err}
}

// throw records err as the run's host error and raises it as a script
// exception. The first host error wins.
func (h *host) throw(err error) {
	if h.hostErr == nil {
		h.hostErr = err
	}
	panic(h.vm.NewGoError(err))
}

func (h *host) getRequest() goja.Value {
	if h.inv.Request == nil {
		return goja.Null()
	}
	req, err := cloneValue(h.inv.Request)
	if err != nil {
		h.throw(&Error{Kind: ErrorKindRuntime, Err: err})
	}
	return h.vm.ToValue(req)
}

func (h *host) getResources() goja.Value {
	if h.inv.Resources == nil {
		return goja.Null()
	}
	res, err := cloneValue(h.inv.Resources)
	if err != nil {
		h.throw(&Error{Kind: ErrorKindRuntime, Err: err})
	}
	return h.vm.ToValue(res)
}

func (h *host) allow() {
	h.denyReason = nil
}

func (h *host) deny(reason string) {
	h.denyReason = &reason
}

func (h *host) mutate(patch []any) {
	if patch == nil {
		h.patch = nil
		return
	}
	cloned, err := cloneValue(patch)
	if err != nil {
		h.throw(&Error{Kind: ErrorKindRuntime, Err: err})
	}
	h.patch = cloned.([]any)
}

func (h *host) allowAndMutate(patch []any) {
	h.allow()
	h.mutate(patch)
}

func (h *host) setOutput(output map[string]any) {
	if output == nil {
		h.output = nil
		return
	}
	cloned, err := cloneValue(output)
	if err != nil {
		h.throw(&Error{Kind: ErrorKindRuntime, Err: err})
	}
	h.output = cloned.(map[string]any)
}

func serviceAccountRequired(op string) error {
	return &Error{
		Kind: ErrorKindForbidden,
		Err:  fmt.Errorf("serviceAccount field is not provided. You should provide the serviceAccount field in the rule spec if you want to use `%s` in code", op),
	}
}

func (h *host) kubeGet(arg map[string]any) goja.Value {
	var get GetArgument
	if err := decodeArgument(arg, &get); err != nil {
		h.throw(&Error{Kind: ErrorKindRuntime, Err: fmt.Errorf("invalid kubeGet argument: %w", err)})
	}
	if h.inv.Kube == nil {
		h.throw(serviceAccountRequired("kubeGet"))
	}
	obj, err := h.inv.Kube.Get(h.ctx, get)
	if err != nil {
		h.throw(err)
	}
	if obj == nil {
		return goja.Null()
	}
	return h.vm.ToValue(obj)
}

func (h *host) kubeList(arg map[string]any) goja.Value {
	var list ListArgument
	if err := decodeArgument(arg, &list); err != nil {
		h.throw(&Error{Kind: ErrorKindRuntime, Err: fmt.Errorf("invalid kubeList argument: %w", err)})
	}
	if h.inv.Kube == nil {
		h.throw(serviceAccountRequired("kubeList"))
	}
	objs, err := h.inv.Kube.List(h.ctx, list)
	if err != nil {
		h.throw(err)
	}
	return h.vm.ToValue(objs)
}

func (h *host) jsonPatchDiff(a, b any) goja.Value {
	patch, err := Diff(a, b)
	if err != nil {
		h.throw(&Error{Kind: ErrorKindRuntime, Err: err})
	}
	return h.vm.ToValue(patch)
}

func (h *host) jsonClone(v any) goja.Value {
	cloned, err := cloneValue(v)
	if err != nil {
		h.throw(&Error{Kind: ErrorKindRuntime, Err: err})
	}
	return h.vm.ToValue(cloned)
}

func (h *host) print(vals ...any) {
	l := log.FromContext(h.ctx)
	for _, v := range vals {
		b, err := json.Marshal(v)
		if err != nil {
			l.Info("debug print from script", "value", fmt.Sprintf("%v", v))
			continue
		}
		l.Info("debug print from script", "value", string(b))
	}
}

// Diff computes the RFC 6902 JSON-Patch producing b from a, as a JSON-shaped
// operation list.
func Diff(a, b any) ([]any, error) {
	ab, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal diff operand: %w", err)
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal diff operand: %w", err)
	}
	ops, err := jsonpatch.CreatePatch(ab, bb)
	if err != nil {
		return nil, fmt.Errorf("failed to diff values: %w", err)
	}
	raw, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patch: %w", err)
	}
	var patch []any
	if err := json.Unmarshal(raw, &patch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal patch: %w", err)
	}
	return patch, nil
}

// cloneValue deep-copies a JSON-shaped value so the script and the host never
// share mutable state.
func cloneValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value is not JSON-shaped: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeArgument strictly unmarshals a script-provided argument object.
// Unknown fields are rejected so typos surface instead of silently matching
// everything.
func decodeArgument(arg map[string]any, into any) error {
	b, err := json.Marshal(arg)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	return dec.Decode(into)
}
