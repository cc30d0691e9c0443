package golease

import (
	"errors"
	"fmt"
)

var (
	// ErrContractNotFound is returned when a contract id is unknown to the store
	ErrContractNotFound = errors.New("contract not found")

	// ErrDuplicateInvoice is returned when an invoice already exists for
	// the same (contractId, issuedAt, partner) triple
	ErrDuplicateInvoice = errors.New("invoice already issued")

	// ErrRateUnavailable is returned when no exchange rate can be resolved
	ErrRateUnavailable = errors.New("exchange rate unavailable")

	// ErrOccurrenceUnpriced is returned when issuing an occurrence that has no amount or rate
	ErrOccurrenceUnpriced = errors.New("occurrence is not priced")

	// ErrInvalidMonth is returned for a month outside 1..12
	ErrInvalidMonth = errors.New("invalid month")

	// ErrInvalidDate is returned for a malformed calendar date
	ErrInvalidDate = errors.New("invalid date")

	// ErrStorageUnavailable is returned when a required store is missing
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrFallbackUnavailable is returned when no fallback rate record exists
	ErrFallbackUnavailable = errors.New("fallback unavailable")
)

// ValidationError reports a contract or extension field that breaks an invariant.
// It is returned at write time and never repaired silently.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("validation failed on %s (%s): %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func newValidationError(field string, value fmt.Stringer, msg string) *ValidationError {
	v := ""
	if value != nil {
		v = value.String()
	}
	return &ValidationError{Field: field, Value: v, Message: msg}
}

// IsValidationError reports whether err carries a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// MissingDataError describes why an occurrence could not be priced.
type MissingDataError struct {
	ContractID string
	IssuedAt   Date
	What       string
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("contract %s on %s: missing %s", e.ContractID, e.IssuedAt, e.What)
}

func (e *MissingDataError) Unwrap() error { return ErrOccurrenceUnpriced }

// SourceError wraps a failure of the live exchange rate source.
type SourceError struct {
	Source string
	Date   Date
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s rate fetch for %s failed: %v", e.Source, e.Date, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }
