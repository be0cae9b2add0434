package ledger

import "errors"

// Sentinel error kinds. Handlers map these to HTTP status codes
// (ErrValidation -> 400, ErrNotFound -> 404, ErrConflict -> 409).
// Wrap with fmt.Errorf("...: %w", Err...) to attach detail.

var (
	// ErrValidation marks malformed or missing input. Rejected before any
	// storage write; no side effects.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a reference to a client or transaction that does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks an isolation conflict with a concurrent writer.
	// Safe to retry; the guard retries it a bounded number of times before
	// surfacing it.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrConsistency marks a post-mutation invariant failure
	// (balance != totalCharged - totalPaid). Never retried; writes to the
	// affected client are halted until resolved.
	ErrConsistency = errors.New("ledger consistency violation")
)
