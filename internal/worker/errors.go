package worker

import (
	"errors"
	"fmt"
)

// Error taxonomy for job processing. Handlers return typed errors so the
// worker can decide between immediate failure and a retried attempt;
// anything untyped is treated as transient and retried up to the attempt
// ceiling. Partial failures are not errors at all; they ride inside the
// job result.

// ValidationError marks a malformed job payload. Never retried.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation: %s: %v", e.Msg, e.Err)
	}
	return "validation: " + e.Msg
}

func (e *ValidationError) Unwrap() error   { return e.Err }
func (e *ValidationError) Retryable() bool { return false }

// NotFoundError marks a missing referenced record or blob. Never retried.
type NotFoundError struct {
	Msg string
	Err error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("not found: %s: %v", e.Msg, e.Err)
	}
	return "not found: " + e.Msg
}

func (e *NotFoundError) Unwrap() error   { return e.Err }
func (e *NotFoundError) Retryable() bool { return false }

// TransientError marks a network/storage hiccup worth retrying.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error   { return e.Err }
func (e *TransientError) Retryable() bool { return true }

type retryable interface {
	Retryable() bool
}

// Retryable classifies an error. Typed errors anywhere in the chain decide;
// unknown errors default to retryable so transient infrastructure faults
// are not lost to a conservative default.
func Retryable(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}
