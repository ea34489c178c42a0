// Package errs defines the structured error taxonomy the enforcement
// pipeline distinguishes (see the Error Handling Design section of the
// specification): GateCrash, GateTimeout, StateCorrupt, SidebandWriteFailed,
// WorkerUnavailable, and InvalidPayload. Each wraps an optional cause while
// remaining usable through errors.Is/errors.As, mirroring the teacher's
// runtime/agent/toolerrors.ToolError chain-preserving pattern.
package errs

import (
	"errors"
	"fmt"
)

// Kind enumerates the distinguished failure categories of the pipeline.
type Kind string

const (
	// KindGateCrash marks a gate that raised an unhandled error.
	KindGateCrash Kind = "gate_crash"
	// KindGateTimeout marks a gate that exceeded its soft deadline.
	// Treated identically to KindGateCrash by the circuit breaker.
	KindGateTimeout Kind = "gate_timeout"
	// KindStateCorrupt marks an unparseable durable state file.
	KindStateCorrupt Kind = "state_corrupt"
	// KindSidebandWriteFailed marks a tolerated sideband write failure.
	KindSidebandWriteFailed Kind = "sideband_write_failed"
	// KindWorkerUnavailable marks an unreachable memory worker.
	KindWorkerUnavailable Kind = "worker_unavailable"
	// KindInvalidPayload marks malformed stdin input.
	KindInvalidPayload Kind = "invalid_payload"
)

// PipelineError is the structured error type used across the pipeline. It
// preserves a cause for errors.Unwrap while carrying the distinguished Kind
// so callers can branch on category without string matching.
type PipelineError struct {
	Kind    Kind
	Message string
	Cause   error
}

// New constructs a PipelineError of the given kind with no cause.
func New(kind Kind, message string) *PipelineError {
	return &PipelineError{Kind: kind, Message: message}
}

// Wrap constructs a PipelineError of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, enabling errors.Is/errors.As chains.
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target is a PipelineError with the same Kind, so
// errors.Is(err, errs.New(errs.KindWorkerUnavailable, "")) works as a
// category check regardless of message or cause.
func (e *PipelineError) Is(target error) bool {
	var other *PipelineError
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// KindOf extracts the Kind of err if it is (or wraps) a PipelineError.
func KindOf(err error) (Kind, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

// IsTimeoutOrCrash reports whether err should be treated as a circuit-breaker
// failure (GateCrash or GateTimeout), per the spec's "GateTimeout is treated
// as GateCrash" rule.
func IsTimeoutOrCrash(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		// Any unclassified error from a gate is also treated as a crash.
		return err != nil
	}
	return kind == KindGateCrash || kind == KindGateTimeout
}
