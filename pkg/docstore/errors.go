package docstore

import "errors"

var (
	ErrNotFound     = errors.New("document not found")
	ErrBatchEmpty   = errors.New("write batch is empty")
	ErrCommitFailed = errors.New("failed to commit write batch")
	ErrInvalidKey   = errors.New("collection and key are required")
)
