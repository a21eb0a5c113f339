package audit

import (
	"fmt"
	"time"
)

// Entry is a single append-only audit record. Entries are never updated or
// deleted; they are the sole source of history for reconciliation and
// support investigations.
type Entry struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	EventType string         `json:"eventType"`
	Reference string         `json:"reference,omitempty"` // payment reference, indexed for idempotency lookups
	EventData map[string]any `json:"eventData,omitempty"`
	CreatedAt time.Time      `json:"timestamp"`
}

// Validate checks that the entry carries the required fields.
func (e *Entry) Validate() error {
	if e.EventType == "" {
		return fmt.Errorf("%w: eventType is required", ErrEntryValidation)
	}
	if e.UserID == "" {
		return fmt.Errorf("%w: userId is required", ErrEntryValidation)
	}
	return nil
}

// EntryOption applies configuration to an Entry during creation.
type EntryOption func(*Entry)

// WithReference sets the indexed reference field the duplicate-reference
// check queries. Reserved for entries recording an applied mutation;
// breadcrumbs about a reference that was never applied carry it in the
// payload via WithData instead.
func WithReference(reference string) EntryOption {
	return func(e *Entry) {
		e.Reference = reference
	}
}

// WithData adds a single key/value pair to the entry payload.
func WithData(key string, value any) EntryOption {
	return func(e *Entry) {
		if e.EventData == nil {
			e.EventData = make(map[string]any)
		}
		e.EventData[key] = value
	}
}

// WithDataMap merges a payload map into the entry.
func WithDataMap(data map[string]any) EntryOption {
	return func(e *Entry) {
		if e.EventData == nil {
			e.EventData = make(map[string]any, len(data))
		}
		for k, v := range data {
			e.EventData[k] = v
		}
	}
}
