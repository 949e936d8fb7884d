package domain

import (
	"errors"
	"fmt"
)

var (
	// Taxonomy roots. Every error surfaced by a use case matches one of these with errors.Is.
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAuthFailure     = errors.New("authentication failed")
	ErrProvider        = errors.New("payment provider error")
	ErrTransient       = errors.New("transient failure")
	ErrFatal           = errors.New("invariant violation")

	// Storage plumbing
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = fmt.Errorf("%w: database operation failed", ErrTransient)
	ErrReadDatabaseRow    = fmt.Errorf("%w: failed to read database row", ErrTransient)
	ErrStaleRecord        = fmt.Errorf("%w: record changed concurrently", ErrTransient)
	ErrLockNotAcquired    = fmt.Errorf("%w: lock is held by another worker", ErrTransient)

	// Lifecycle
	ErrMandateExists     = fmt.Errorf("%w: user already has a pending or active mandate", ErrAlreadyExists)
	ErrDuplicatePayment  = fmt.Errorf("%w: duplicate payment", ErrAlreadyExists)
	ErrDuplicateEvent    = fmt.Errorf("%w: webhook event already applied", ErrAlreadyExists)
	ErrInvalidTransition = fmt.Errorf("%w: transition not allowed from current state", ErrInvalidArgument)
	ErrInvalidUPIID      = fmt.Errorf("%w: invalid UPI id", ErrInvalidArgument)
	ErrCheckoutNotPaid   = fmt.Errorf("%w: checkout was not paid", ErrInvalidArgument)
	ErrUserBlocked       = errors.New("user is blocked")
	ErrBadSignature      = fmt.Errorf("%w: signature mismatch", ErrAuthFailure)
)

// ConflictError reports a uniqueness violation together with the public view of the record
// that already holds the key.
type ConflictError struct {
	Reason   error
	Existing any
}

func (e *ConflictError) Error() string {
	if e.Reason == nil {
		return ErrAlreadyExists.Error()
	}
	return e.Reason.Error()
}

func (e *ConflictError) Unwrap() error {
	if e.Reason == nil {
		return ErrAlreadyExists
	}
	return e.Reason
}

// ProviderError wraps an upstream failure. Retryable is true for timeouts and 5xx-class failures
// where the caller may try again without side effects.
type ProviderError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool {
	if target == ErrProvider {
		return true
	}
	return e.Retryable && target == ErrTransient
}

// NewProviderError builds a ProviderError.
func NewProviderError(op string, retryable bool, err error) error {
	return &ProviderError{Op: op, Retryable: retryable, Err: err}
}

// FatalError flags a detected invariant violation. It is never auto-repaired.
type FatalError struct {
	Invariant string
	Detail    string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("invariant %q violated: %s", e.Invariant, e.Detail)
}

func (e *FatalError) Is(target error) bool { return target == ErrFatal }
