// Package errs defines the error taxonomy shared by the core services.
// Services wrap these sentinels with context; the HTTP layer maps them to
// status codes with errors.Is.
package errs

import "errors"

var (
	// ErrNotFound is returned when a referenced node, job, payment, model or
	// split does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned on ownership or role mismatch.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict is returned when the current state does not allow the
	// operation (terminal job, node at capacity, confirmed payment).
	ErrConflict = errors.New("conflict")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrInconclusive is returned when an external dependency could not give
	// an answer. Nothing was changed; the caller may retry later.
	ErrInconclusive = errors.New("inconclusive")

	// ErrInvariant is returned when an operation would break a ledger
	// invariant, e.g. a second distribution for the same period.
	ErrInvariant = errors.New("invariant violation")
)

// Is reports whether err matches any of the given targets.
func Is(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
