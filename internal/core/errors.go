package core

import "errors"

// Error taxonomy for ledger operations. Every core error is one of these
// four families so callers can map them to terminal vs retryable outcomes.
var (
	// ErrValidation marks a malformed or missing draft field. Matched by
	// every *ValidationError through errors.Is.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound means a referenced account, category, movement or bill
	// does not exist; the whole operation aborts.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the resource exists but belongs to another owner.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict means the store failed mid-operation; the transaction has
	// been rolled back and the caller may retry.
	ErrConflict = errors.New("conflict")
)

// ValidationError reports the field that made a draft unacceptable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}

// Is lets errors.Is(err, ErrValidation) match any validation error.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
