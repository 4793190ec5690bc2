// Package toasterr defines the error idioms shared across the engine: a
// stack-trace-carrying wrapper for errors that should be reported at the
// top level, and a coded error for cases calling code needs to branch on.
package toasterr

import (
	"fmt"

	"github.com/go-errors/errors"
	"golang.org/x/xerrors"
)

// Code distinguishes the error kinds enumerated in spec §7.
type Code int

const (
	// ErrValidation covers toastfile and config validation failures:
	// unresolved task references, unknown keys, missing required
	// environment variables, cacheable tasks with ports or mounts.
	ErrValidation Code = iota

	// ErrCycle indicates the task graph contains a cycle.
	ErrCycle

	// ErrTaskFailed indicates the user's command exited non-zero.
	ErrTaskFailed

	// ErrExecutor indicates the container runtime subprocess failed
	// (pull, create, commit, push, copy).
	ErrExecutor

	// ErrCancelled indicates the run was interrupted by a signal.
	ErrCancelled
)

func (c Code) String() string {
	switch c {
	case ErrValidation:
		return "validation error"
	case ErrCycle:
		return "cycle error"
	case ErrTaskFailed:
		return "task failed"
	case ErrExecutor:
		return "executor error"
	case ErrCancelled:
		return "cancelled"
	default:
		return "error"
	}
}

// WrapError wraps an error for the sake of showing a stack trace at the top
// level. go-errors does not return nil when asked to wrap a non-error, so we
// guard that here.
func WrapError(err error) error {
	if err == nil {
		return err
	}

	return errors.Wrap(err, 0)
}

// CodedError is an error which carries a code so that calling code can
// branch on the kind of failure without string matching.
type CodedError struct {
	Message string
	Code    Code
	Task    string
	frame   xerrors.Frame
}

// NewCodedError builds a CodedError, capturing the caller's frame the way
// the teacher's ComplexError does.
func NewCodedError(code Code, task, message string) CodedError {
	return CodedError{
		Code:    code,
		Task:    task,
		Message: message,
		frame:   xerrors.Caller(1),
	}
}

func (ce CodedError) FormatError(p xerrors.Printer) error {
	if ce.Task != "" {
		p.Printf("%s (task %s): %s", ce.Code, ce.Task, ce.Message)
	} else {
		p.Printf("%s: %s", ce.Code, ce.Message)
	}
	ce.frame.Format(p)
	return nil
}

func (ce CodedError) Format(f fmt.State, c rune) {
	xerrors.FormatError(ce, f, c)
}

func (ce CodedError) Error() string {
	return fmt.Sprint(ce)
}

// HasCode reports whether err is, or wraps, a CodedError with the given code.
func HasCode(err error, code Code) bool {
	var ce CodedError
	if xerrors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// AsCoded extracts a CodedError from err if present.
func AsCoded(err error) (CodedError, bool) {
	var ce CodedError
	ok := xerrors.As(err, &ce)
	return ce, ok
}
