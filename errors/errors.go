// Package errors provides typed error handling for the agent-task-runner
// daemon and its helper binaries. All errors support the standard
// errors.Is() and errors.As() functions for error inspection.
package errors

import (
	"errors"
	"fmt"
)

// Kind represents the category of an error, mirroring the error-handling
// design in spec.md §7.
type Kind int

const (
	// KindProtocol indicates a malformed frame, unknown message type, or
	// oversized payload on the control channel.
	KindProtocol Kind = iota
	// KindResource indicates a resource limit was hit (client table full,
	// thread/goroutine spawn failure).
	KindResource
	// KindSandbox indicates a launcher setup step (mount, privilege drop,
	// capability check) failed.
	KindSandbox
	// KindKernel indicates an unexpected ioctl/syscall error from the
	// seccomp-notify or process_vm_readv interfaces.
	KindKernel
	// KindIO indicates an audit-log or other durability-critical I/O
	// failure. Fatal to the daemon per spec.md §7.
	KindIO
	// KindConfig indicates a bad CLI flag or environment value.
	KindConfig
	// KindInternal indicates an internal invariant violation.
	KindInternal
)

// String returns a human-readable name for the error kind.
func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol error"
	case KindResource:
		return "resource error"
	case KindSandbox:
		return "sandbox setup error"
	case KindKernel:
		return "kernel error"
	case KindIO:
		return "i/o error"
	case KindConfig:
		return "config error"
	case KindInternal:
		return "internal error"
	default:
		return "unknown error"
	}
}

// RunnerError represents an error that occurred during a daemon or
// launcher operation.
type RunnerError struct {
	// Op is the operation that failed (e.g. "accept", "mask-path", "capset").
	Op string
	// Subject is the client/agent/session identifier the error pertains
	// to, if any.
	Subject string
	// Err is the underlying error.
	Err error
	// Kind is the error classification.
	Kind Kind
	// Detail provides additional context about the error.
	Detail string
}

// Error returns the error message.
func (e *RunnerError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var msg string
	if e.Subject != "" {
		msg = fmt.Sprintf("%s: ", e.Subject)
	}
	if e.Op != "" {
		msg += fmt.Sprintf("%s: ", e.Op)
	}
	if e.Detail != "" {
		msg += e.Detail
	} else {
		msg += e.Kind.String()
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *RunnerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether the error matches the target. It matches if the
// target is a *RunnerError with the same Kind, or if the underlying error
// matches.
func (e *RunnerError) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if t, ok := target.(*RunnerError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a new RunnerError with the given kind.
func New(kind Kind, op string, detail string) *RunnerError {
	return &RunnerError{
		Op:     op,
		Kind:   kind,
		Detail: detail,
	}
}

// Wrap wraps an error with operation context.
func Wrap(err error, kind Kind, op string) *RunnerError {
	return &RunnerError{
		Op:   op,
		Err:  err,
		Kind: kind,
	}
}

// WrapWithSubject wraps an error with operation context and a subject
// (client/agent/session identifier).
func WrapWithSubject(err error, kind Kind, op string, subject string) *RunnerError {
	return &RunnerError{
		Op:      op,
		Subject: subject,
		Err:     err,
		Kind:    kind,
	}
}

// WrapWithDetail wraps an error with additional detail.
func WrapWithDetail(err error, kind Kind, op string, detail string) *RunnerError {
	return &RunnerError{
		Op:     op,
		Err:    err,
		Kind:   kind,
		Detail: detail,
	}
}

// IsKind checks if an error is of a specific kind.
func IsKind(err error, kind Kind) bool {
	var rerr *RunnerError
	if errors.As(err, &rerr) {
		return rerr.Kind == kind
	}
	return false
}

// GetKind returns the error kind if the error is a RunnerError.
func GetKind(err error) (Kind, bool) {
	var rerr *RunnerError
	if errors.As(err, &rerr) {
		return rerr.Kind, true
	}
	return 0, false
}

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)
