package script

import (
	"errors"
	"fmt"
)

// ErrorKind classifies how a script invocation failed.
type ErrorKind string

const (
	// ErrorKindParse means the source failed to compile. The rule is
	// unusable until its code is updated.
	ErrorKindParse ErrorKind = "ScriptParseError"
	// ErrorKindRuntime means the script raised an uncaught exception.
	ErrorKindRuntime ErrorKind = "ScriptRuntimeError"
	// ErrorKindTimeout means the invocation exceeded its deadline or was
	// cancelled by the caller.
	ErrorKindTimeout ErrorKind = "Timeout"
	// ErrorKindKubeClient means a cluster read failed with a transport,
	// auth, or non-404 API error.
	ErrorKindKubeClient ErrorKind = "KubeClientError"
	// ErrorKindForbidden means a cluster read was attempted without a
	// ServiceAccount grant or was rejected by the cluster.
	ErrorKindForbidden ErrorKind = "Forbidden"
	// ErrorKindPatchApply means an emitted JSON-Patch did not apply cleanly.
	ErrorKindPatchApply ErrorKind = "PatchApplyError"
)

// Error is a classified script invocation failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the ErrorKind of err, or ErrorKindRuntime if err carries no
// classification.
func KindOf(err error) ErrorKind {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Kind
	}
	return ErrorKindRuntime
}
