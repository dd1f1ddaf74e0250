// Package errors provides error handling for anvil.
//
// It re-exports github.com/cockroachdb/errors so every package gets stack
// traces, wrapping, hints and details from one import:
//
//	if err := store.Set(key, value); err != nil {
//	    return errors.Wrapf(err, "persist translation for %s", key)
//	}
//
//	return errors.WithHint(err, "check that metakb_directory contains *.json files")
//
// Per-item translation failures are not errors in this sense: they travel as
// data on the work item. Everything defined here is meant to propagate.
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint       = crdb.WithHint
	WithHintf      = crdb.WithHintf
	WithDetail     = crdb.WithDetail
	WithDetailf    = crdb.WithDetailf
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
	GetAllHints    = crdb.GetAllHints
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
	Join      = crdb.Join
)

// GetStack returns the reportable stack trace recorded on err, if any.
var GetStack = crdb.GetReportableStackTrace

// AssertionFailedf reports a broken internal invariant.
var AssertionFailedf = crdb.AssertionFailedf

// Sentinel errors. Wrap them to add context; test with Is.
var (
	// ErrNotFound indicates the requested file, registry or record does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates malformed input (bad manifest value, bad expression)
	ErrInvalidRequest = New("invalid request")

	// ErrServiceUnavailable indicates the translation service could not be reached
	// or answered with a server-side failure. These are never memoized.
	ErrServiceUnavailable = New("service unavailable")

	// ErrTranslation marks a deterministic rejection of an expression by the
	// translation service (reference mismatch, unparsable expression, ...)
	ErrTranslation = New("translation failed")

	// ErrBudgetExceeded indicates the run-level error budget was exhausted and
	// consumption of further results stopped
	ErrBudgetExceeded = New("error budget exceeded")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsBudgetExceeded checks if an error is or wraps ErrBudgetExceeded
func IsBudgetExceeded(err error) bool {
	return err != nil && Is(err, ErrBudgetExceeded)
}

// IsServiceUnavailableError checks if an error is or wraps ErrServiceUnavailable
func IsServiceUnavailableError(err error) bool {
	return err != nil && Is(err, ErrServiceUnavailable)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}
