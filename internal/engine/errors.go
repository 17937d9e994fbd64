package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure so callers can react without parsing messages.
type Kind string

const (
	KindNotFound         Kind = "engine_not_found"
	KindSpawn            Kind = "spawn_failed"
	KindComputation      Kind = "computation_failed"
	KindArgumentRejected Kind = "argument_rejected"
	KindMalformedOutput  Kind = "malformed_output"
	KindInvalidParams    Kind = "invalid_params"
	KindIO               Kind = "io_error"
)

// Error is the single error type produced by invocations.
// ExitCode is meaningful only for KindComputation and KindArgumentRejected.
type Error struct {
	Kind     Kind
	Message  string
	ExitCode int
	Stderr   string
	Stdout   string
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindComputation, KindArgumentRejected:
		detail := strings.TrimSpace(e.Stderr)
		head := fmt.Sprintf("engine returned non-zero exit (%d)", e.ExitCode)
		if e.ExitCode < 0 {
			head = "engine " + e.Message
		}
		if detail == "" {
			return head
		}
		return head + ": " + detail
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// InvalidParams reports a parameter problem detected before spawning.
func InvalidParams(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidParams, Message: "invalid parameters: " + fmt.Sprintf(format, args...)}
}

// IOError wraps a local filesystem failure.
func IOError(op string, err error) *Error {
	return &Error{Kind: KindIO, Message: "IO error: " + op, Err: err}
}

// ArgumentRejectionPatterns are matched case-insensitively against stderr of
// a failed run to distinguish bad arguments from failed computations.
var ArgumentRejectionPatterns = []string{
	"unknown option",
	"unrecognized option",
	"missing required argument",
	"invalid argument",
	"expected argument",
	"no such command",
	"unknown command",
}

func exitKind(stderr string) Kind {
	lower := strings.ToLower(stderr)
	for _, p := range ArgumentRejectionPatterns {
		if strings.Contains(lower, p) {
			return KindArgumentRejected
		}
	}
	return KindComputation
}
