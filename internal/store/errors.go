package store

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrStatusMismatch means a conditional write found the row in a different status
	// than the caller read. The write did not happen.
	ErrStatusMismatch      = errors.New("status precondition failed")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
)
