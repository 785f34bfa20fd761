// Package faults classifies capture and encode failures by how the caller
// must react to them.
package faults

import (
	"errors"
	"fmt"
)

// Kind groups errors by recovery strategy.
type Kind string

// Error kinds.
const (
	// KindTransient means nothing changed within the timeout. Retry as-is.
	KindTransient Kind = "transient"
	// KindResource means a device resource is still busy. Skip this tick.
	KindResource Kind = "resource"
	// KindFatalDevice means the adapter or output was invalidated. Capture,
	// buffering and encoder state must be rebuilt.
	KindFatalDevice Kind = "fatal_device"
	// KindFatalConfig means the requested format cannot be produced. Abort
	// before any output exists.
	KindFatalConfig Kind = "fatal_config"
	// KindUsage reports API misuse such as a double End or a missing release.
	KindUsage Kind = "usage"
)

// Code identifies a specific failure.
type Code string

// Error codes.
const (
	CodeNoNewFrame       Code = "NO_NEW_FRAME"
	CodeResourceBusy     Code = "RESOURCE_BUSY"
	CodeDeviceLost       Code = "DEVICE_LOST"
	CodeUnsupported      Code = "UNSUPPORTED_FORMAT"
	CodeInvalidConfig    Code = "INVALID_CONFIG"
	CodeFrameNotReleased Code = "FRAME_NOT_RELEASED"
	CodeBadState         Code = "BAD_STATE"
	CodeShortBuffer      Code = "SHORT_BUFFER"
	CodeNotReady         Code = "NOT_READY"
	CodeMapBusy          Code = "MAP_BUSY"
	CodeNotHeld          Code = "NOT_HELD"
	CodeClosed           Code = "CLOSED"
	CodeAlreadyBegun     Code = "ALREADY_BEGUN"
	CodeNotWriting       Code = "NOT_WRITING"
	CodeFinalized        Code = "FINALIZED"
)

// Error is a classified error.
type Error struct {
	Kind    Kind           `json:"kind"`
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
	Cause   error          `json:"cause,omitempty"`
}

// New creates a classified error.
func New(kind Kind, code Code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap creates a classified error with a cause.
func Wrap(kind Kind, code Code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Cause: cause}
}

// With returns a copy of e with the context key set.
func (e *Error) With(key string, value any) *Error {
	ctx := make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	out := *e
	out.Context = ctx
	return &out
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by kind and code so sentinel values work with
// errors.Is after With produced a copy. Every sentinel carries its own code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

// KindOf returns the kind of the first classified error in err's chain.
// Unclassified errors are treated as fatal device errors so they reach the
// top-level loop instead of being retried forever.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatalDevice
}

// IsRetryable reports whether err may be retried on the next tick.
func IsRetryable(err error) bool {
	k := KindOf(err)
	return k == KindTransient || k == KindResource
}

// IsFatal reports whether err must terminate the current session.
func IsFatal(err error) bool {
	k := KindOf(err)
	return k == KindFatalDevice || k == KindFatalConfig
}
