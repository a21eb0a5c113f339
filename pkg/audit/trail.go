package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/renewkit/renewkit/pkg/docstore"
)

// DefaultCollection is the store collection audit entries are appended to.
const DefaultCollection = "audit_logs"

// Trail writes audit entries into an append-only docstore collection.
// Record writes and their audit entry commit together when the entry is
// enlisted into the caller's batch via Enlist.
type Trail struct {
	store      docstore.Store
	collection string
	now        func() time.Time
}

// Option configures a Trail.
type Option func(*Trail)

// WithCollection overrides the target collection name.
func WithCollection(name string) Option {
	return func(t *Trail) {
		if name != "" {
			t.collection = name
		}
	}
}

// WithClock injects a clock for deterministic timestamps in tests.
func WithClock(now func() time.Time) Option {
	return func(t *Trail) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTrail creates an audit trail over the given store.
func NewTrail(store docstore.Store, opts ...Option) *Trail {
	if store == nil {
		panic("audit: store cannot be nil")
	}

	t := &Trail{
		store:      store,
		collection: DefaultCollection,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record appends a standalone entry. Use Enlist instead when the entry must
// commit atomically with record mutations.
func (t *Trail) Record(ctx context.Context, userID, eventType string, opts ...EntryOption) error {
	entry, err := t.build(userID, eventType, opts...)
	if err != nil {
		return err
	}
	if _, err := t.store.Append(ctx, t.collection, entryDoc(entry)); err != nil {
		return errors.Join(ErrStoreFailed, err)
	}
	return nil
}

// Enlist adds the entry as an append operation on an existing batch so it
// commits in the same atomic unit as the batch's record writes.
func (t *Trail) Enlist(batch docstore.Batch, userID, eventType string, opts ...EntryOption) error {
	entry, err := t.build(userID, eventType, opts...)
	if err != nil {
		return err
	}
	batch.Append(t.collection, entryDoc(entry))
	return nil
}

func (t *Trail) build(userID, eventType string, opts ...EntryOption) (Entry, error) {
	entry := Entry{
		ID:        uuid.New().String(),
		UserID:    userID,
		EventType: eventType,
		CreatedAt: t.now().UTC(),
	}
	for _, opt := range opts {
		opt(&entry)
	}
	if err := entry.Validate(); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func entryDoc(e Entry) docstore.Document {
	doc := docstore.Document{
		"id":        e.ID,
		"userId":    e.UserID,
		"eventType": e.EventType,
		"timestamp": e.CreatedAt,
	}
	if e.Reference != "" {
		doc["reference"] = e.Reference
	}
	if len(e.EventData) > 0 {
		doc["eventData"] = map[string]any(e.EventData)
	}
	return doc
}
