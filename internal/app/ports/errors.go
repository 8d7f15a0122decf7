package ports

import "errors"

// Storage adapters wrap these so callers can tell a missing record or a
// record owned by someone else from an I/O failure.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record conflict")
)
