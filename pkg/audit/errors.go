package audit

import "errors"

var (
	// ErrEntryValidation indicates the entry is missing required fields.
	ErrEntryValidation = errors.New("audit entry validation failed")

	// ErrStoreFailed indicates the underlying store rejected the append.
	ErrStoreFailed = errors.New("failed to append audit entry")
)
