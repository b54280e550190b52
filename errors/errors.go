// Package errors provides error handling for Modelry.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - User-facing hints and details
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrNotFound) {
//	    // handle not found
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
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
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll

	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors forming the Modelry error taxonomy.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates a referenced rule, occurrence, canvas or type
	// does not exist. Surfaced to the caller, never retried.
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrInvalidConfiguration indicates a design rule carries an unparseable
	// or self-contradictory condition list. The rule is skipped during bulk
	// evaluation; other rules continue.
	ErrInvalidConfiguration = New("invalid configuration")

	// ErrLimitExceeded indicates a repository capacity guard tripped
	// (canvas or occurrence count). No partial write is performed.
	ErrLimitExceeded = New("limit exceeded")

	// ErrStoreTransient indicates SQLite timeout or lock contention after
	// bounded retries were exhausted. Distinct from ErrNotFound; the caller
	// may retry.
	ErrStoreTransient = New("transient store failure")
)

// IsNotFound checks if an error is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidConfiguration checks if an error is or wraps ErrInvalidConfiguration.
func IsInvalidConfiguration(err error) bool {
	return err != nil && Is(err, ErrInvalidConfiguration)
}

// IsLimitExceeded checks if an error is or wraps ErrLimitExceeded.
func IsLimitExceeded(err error) bool {
	return err != nil && Is(err, ErrLimitExceeded)
}

// IsTransient checks if an error is or wraps ErrStoreTransient.
func IsTransient(err error) bool {
	return err != nil && Is(err, ErrStoreTransient)
}

// NewNotFoundf creates a not-found error with a formatted message.
func NewNotFoundf(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewLimitExceededf creates a limit-exceeded error with a formatted message.
// The message should carry the current and limit values so the caller can
// tell the user what to clean up.
func NewLimitExceededf(format string, args ...interface{}) error {
	return Wrap(ErrLimitExceeded, Newf(format, args...).Error())
}

// NewInvalidConfigurationf creates an invalid-configuration error with a
// formatted message.
func NewInvalidConfigurationf(format string, args ...interface{}) error {
	return Wrap(ErrInvalidConfiguration, Newf(format, args...).Error())
}
