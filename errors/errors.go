// Package errors provides error handling for BlockForge.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
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
//	if errors.Is(err, errors.ErrPolicyDenied) {
//	    // skip candidate
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
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Stack trace extraction (for crash reporting and tests)
var (
	GetReportableStackTrace = crdb.GetReportableStackTrace
)

// Sentinel errors for the block pipeline taxonomy.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrSchemaRejected indicates a candidate block failed schema or static
	// validation. Fatal for that candidate; never retried.
	ErrSchemaRejected = New("schema rejected")

	// ErrQuarantined indicates a block failed dynamic verification and is
	// permanently excluded from indexing and execution. Terminal for that
	// content hash; a retry requires a new hash.
	ErrQuarantined = New("block quarantined")

	// ErrPolicyDenied indicates the policy engine denied a block for this
	// request. Non-fatal to the system; the candidate is skipped.
	ErrPolicyDenied = New("policy denied")

	// ErrTransient indicates a retryable execution failure (timeout or a
	// declared-retryable failure mode).
	ErrTransient = New("transient execution failure")

	// ErrNonRetryable indicates a contract violation at runtime; surfaced
	// immediately without retry.
	ErrNonRetryable = New("non-retryable execution failure")

	// ErrCircuitOpen indicates the per-block circuit breaker is open and
	// the call was short-circuited.
	ErrCircuitOpen = New("circuit open")

	// ErrChainIntegrity indicates audit chain tampering. Fatal at the
	// system level; audit-dependent operations must halt. Never
	// auto-repaired.
	ErrChainIntegrity = New("audit chain integrity failure")

	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = New("not found")

	// ErrTimeout indicates an operation exceeded its deadline.
	ErrTimeout = New("operation timed out")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsTransient reports whether err should be retried under a retry policy.
// Timeouts count as transient per the execution guard contract.
func IsTransient(err error) bool {
	return err != nil && (Is(err, ErrTransient) || Is(err, ErrTimeout))
}

// NewNotFoundError creates a not-found error with a formatted message.
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}
