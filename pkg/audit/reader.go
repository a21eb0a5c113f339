package audit

import (
	"context"
	"time"

	"github.com/renewkit/renewkit/pkg/docstore"
)

// Criteria narrows a Find call. Zero-value fields are ignored.
type Criteria struct {
	UserID    string
	EventType string
	Reference string
	Limit     int
}

// Reader queries the audit trail. It is used by the duplicate-reference
// check and by support tooling; it never mutates entries.
type Reader struct {
	store      docstore.Store
	collection string
}

// NewReader creates a reader over the same collection a Trail writes to.
func NewReader(store docstore.Store, opts ...Option) *Reader {
	if store == nil {
		panic("audit: store cannot be nil")
	}

	// Reuse Trail options so reader and writer stay configured identically.
	t := &Trail{collection: DefaultCollection, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return &Reader{store: store, collection: t.collection}
}

// Find returns entries matching the criteria.
func (r *Reader) Find(ctx context.Context, criteria Criteria) ([]Entry, error) {
	filter := map[string]any{}
	if criteria.UserID != "" {
		filter["userId"] = criteria.UserID
	}
	if criteria.EventType != "" {
		filter["eventType"] = criteria.EventType
	}
	if criteria.Reference != "" {
		filter["reference"] = criteria.Reference
	}

	docs, err := r.store.Find(ctx, r.collection, filter, criteria.Limit)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, entryFromDoc(doc))
	}
	return entries, nil
}

// HasReference reports whether an entry carries the given reference in the
// indexed field, meaning a mutation with that reference was applied. This
// backs the idempotency check for at-least-once webhook delivery.
func (r *Reader) HasReference(ctx context.Context, reference string) (bool, error) {
	entries, err := r.Find(ctx, Criteria{Reference: reference, Limit: 1})
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

func entryFromDoc(doc docstore.Document) Entry {
	entry := Entry{}
	if v, ok := doc["id"].(string); ok {
		entry.ID = v
	}
	if v, ok := doc["userId"].(string); ok {
		entry.UserID = v
	}
	if v, ok := doc["eventType"].(string); ok {
		entry.EventType = v
	}
	if v, ok := doc["reference"].(string); ok {
		entry.Reference = v
	}
	if v, ok := doc["eventData"].(map[string]any); ok {
		entry.EventData = v
	}
	switch ts := doc["timestamp"].(type) {
	case time.Time:
		entry.CreatedAt = ts
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			entry.CreatedAt = parsed
		}
	}
	return entry
}
