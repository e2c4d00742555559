// Package chaind is the public surface of the evlbi chain runtime: a
// processing-chain engine and transfer-mode state machine for streaming
// VLBI recorder data between disk, network, and file endpoints. The bulk
// of the engineering lives under internal/; this file re-exports the
// structured error type defined in internal/errs (moved there so
// internal packages like internal/control and internal/diskarray can
// report it without importing this root package and creating a cycle).
package chaind

import (
	"errors"

	"github.com/jive-evlbi/chaind/internal/errs"
)

// Code is the small integer the control protocol reports in a response
// line (spec.md §6): "! verb = code : text ;".
type Code = errs.Code

const (
	CodeOK             = errs.CodeOK
	CodeInitiated      = errs.CodeInitiated
	CodeNotImplemented = errs.CodeNotImplemented
	CodeRuntimeError   = errs.CodeRuntimeError
	CodeNotActive      = errs.CodeNotActive
	CodeConflict       = errs.CodeConflict
	CodeNoSuchDevice   = errs.CodeNoSuchDevice
	CodeParamError     = errs.CodeParamError
)

// Error is a structured chaind error carrying enough context to both
// compose a control-protocol response and support errors.Is/As chains
// back to the underlying I/O failure.
type Error = errs.Error

// NewError creates a structured error with the given op/code/message.
func NewError(op string, code Code, msg string) *Error {
	return errs.NewError(op, code, msg)
}

// NewModeError attaches a transfer mode to the error, used by handlers
// that must report which mode they were servicing.
func NewModeError(op, mode string, code Code, msg string) *Error {
	return errs.NewModeError(op, mode, code, msg)
}

// WrapError wraps err with chaind context, inferring CodeRuntimeError
// unless err is already a *Error (in which case its code is preserved).
func WrapError(op string, err error) *Error {
	return errs.WrapError(op, err)
}

// IsCode reports whether err (or something it wraps) is a *Error with the
// given code.
func IsCode(err error, code Code) bool {
	return errs.IsCode(err, code)
}

// Sentinel errors used by the bounded-queue / chain plumbing; these are
// not control-protocol-facing and so carry no Code.
var (
	// ErrQueueClosed names the disabled queue state. internal/queue
	// reports that state through Push/Pop's false result and does not
	// return this error.
	ErrQueueClosed = errors.New("chaind: queue disabled")
	// ErrQueueDraining names the pop-only queue state, in which no
	// further pushes are accepted. internal/queue reports it through
	// Push's false result and does not return this error.
	ErrQueueDraining = errors.New("chaind: queue pop-only")
	// ErrPoolExhausted names block-pool exhaustion. internal/blockpool
	// grows a new sub-pool whenever every existing one is exhausted,
	// so nothing in this module returns this error.
	ErrPoolExhausted = errors.New("chaind: block pool exhausted")
)
