// Package constant defines the closed error-kind taxonomy every core
// component surfaces, mirrored from spec.md §7.
package constant

import (
	"errors"
	"fmt"
)

// ErrorKind is the wire-serialized error category from spec.md §7.
type ErrorKind string

const (
	KindValidation                ErrorKind = "Validation"
	KindNotFound                  ErrorKind = "NotFound"
	KindDuplicateBarcode          ErrorKind = "DuplicateBarcode"
	KindDuplicateEmail            ErrorKind = "DuplicateEmail"
	KindWeakPassword              ErrorKind = "WeakPassword"
	KindInvalidCredentials        ErrorKind = "InvalidCredentials"
	KindAccountLocked             ErrorKind = "AccountLocked"
	KindAccountNotVerified        ErrorKind = "AccountNotVerified"
	KindAccountDisabled           ErrorKind = "AccountDisabled"
	KindTokenInvalid              ErrorKind = "TokenInvalid"
	KindTokenExpired              ErrorKind = "TokenExpired"
	KindSessionNotFound           ErrorKind = "SessionNotFound"
	KindInvalidWorkflowTransition ErrorKind = "InvalidWorkflowTransition"
	KindCapacityExceeded          ErrorKind = "CapacityExceeded"
	KindTemperatureViolation      ErrorKind = "TemperatureViolation"
	KindBusinessRule              ErrorKind = "BusinessRule"
	KindServiceCommunicationFailed ErrorKind = "ServiceCommunicationFailed"
	KindTimeoutError              ErrorKind = "TimeoutError"
	KindResourceLimit             ErrorKind = "ResourceLimit"
	KindInternal                  ErrorKind = "Internal"
)

// CoreError is the single error type every component returns, carrying
// enough structured context to be logged without additional lookups
// (spec.md §7). It mirrors the teacher's per-kind struct errors
// (common/errors.go: EntityNotFoundError, ValidationError, ...) collapsed
// into one type parameterized by Kind, since spec.md enumerates the kinds
// as a flat wire taxonomy rather than the teacher's ad hoc struct-per-kind
// approach.
type CoreError struct {
	Kind       ErrorKind
	EntityType string
	Code       string
	Title      string
	Message    string
	Details    map[string]any
	Err        error
}

func (e *CoreError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Err != nil {
		return e.Err.Error()
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.EntityType)
}

func (e *CoreError) Unwrap() error { return e.Err }

// New builds a CoreError of the given kind.
func New(kind ErrorKind, entityType, message string) *CoreError {
	return &CoreError{Kind: kind, EntityType: entityType, Message: message}
}

// Wrap builds a CoreError of the given kind around an existing error,
// preserving it via Unwrap.
func Wrap(kind ErrorKind, entityType string, err error) *CoreError {
	return &CoreError{Kind: kind, EntityType: entityType, Message: err.Error(), Err: err}
}

// WithDetails attaches structured detail fields to e and returns e.
func (e *CoreError) WithDetails(details map[string]any) *CoreError {
	e.Details = details
	return e
}

// KindOf extracts the ErrorKind from err if it (or something it wraps) is
// a *CoreError, defaulting to KindInternal otherwise.
func KindOf(err error) ErrorKind {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind
	}

	return KindInternal
}

// Retryable reports whether an error of this kind should be retried by the
// saga coordinator's backoff policy (spec.md §4.6/§4.7).
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindServiceCommunicationFailed, KindTimeoutError, KindResourceLimit:
		return true
	default:
		return false
	}
}
