package interfaces

import (
	"errors"
	"fmt"
)

// ErrorKind classifies request-processing failures into the three tiers the
// protocol distinguishes. The kind decides both the wire reply and the log
// severity, in exactly one place (the HTTP handler).
type ErrorKind int

const (
	// ConsistencyError means the client sent something structurally or
	// semantically unusable. Reported back verbatim, never retried.
	ConsistencyError ErrorKind = iota

	// ProcessError means the request was well formed but cannot proceed
	// given current state (stale session, duplicate digest, rate limit).
	// The client is expected to retry later or start a new session.
	ProcessError

	// SystemError means the service found broken data in the store or hit
	// a store fault. Logged centrally at error level; the client only ever
	// sees an opaque generic message.
	SystemError
)

func (k ErrorKind) String() string {
	switch k {
	case ConsistencyError:
		return "consistency"
	case ProcessError:
		return "process"
	case SystemError:
		return "system"
	default:
		return "unknown"
	}
}

// Error is the tagged error type carried through validators, the rate
// limiter and the session state machine.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Consistencyf creates a client-caused consistency error.
func Consistencyf(format string, args ...any) error {
	return &Error{Kind: ConsistencyError, Message: fmt.Sprintf(format, args...)}
}

// Processf creates a process error. Its message is shown to the client in a
// fail reply.
func Processf(format string, args ...any) error {
	return &Error{Kind: ProcessError, Message: fmt.Sprintf(format, args...)}
}

// Systemf creates a system error. The message is logged, never sent to the
// client.
func Systemf(format string, args ...any) error {
	return &Error{Kind: SystemError, Message: fmt.Sprintf(format, args...)}
}

// SystemWrap wraps an underlying fault (store connectivity, malformed
// stored data) as a system error.
func SystemWrap(err error, format string, args ...any) error {
	return &Error{Kind: SystemError, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the kind of err. Untagged errors are treated as system
// errors so that unexpected faults never leak detail to the client.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return SystemError
}

// ErrorMessage returns the message suitable for the given error, falling
// back to the plain Error() string for untagged errors.
func ErrorMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
