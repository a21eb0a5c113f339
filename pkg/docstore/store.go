package docstore

import (
	"context"
	"maps"
)

// Document is a schemaless record stored under a collection/key pair.
type Document = map[string]any

// Store is the keyed document store the engine persists through.
// Implementations must provide an all-or-nothing Batch; they are NOT required
// to support conditional writes that depend on a read inside the same batch.
// Callers that need read-then-write consistency must serialize externally.
type Store interface {
	// Get retrieves a document by key. Returns ErrNotFound if absent.
	Get(ctx context.Context, collection, key string) (Document, error)

	// Set creates or fully replaces a document.
	Set(ctx context.Context, collection, key string, doc Document) error

	// Merge creates the document if absent, otherwise merges doc into the
	// existing one: top-level fields are replaced, nested maps are merged
	// recursively, and an explicit nil value overwrites the stored field
	// with null rather than removing it.
	Merge(ctx context.Context, collection, key string, doc Document) error

	// Delete removes a document. Deleting an absent key is a no-op.
	Delete(ctx context.Context, collection, key string) error

	// Append inserts a document into an append-only collection under a
	// generated ID and returns that ID. Appended documents are never
	// updated or deleted.
	Append(ctx context.Context, collection string, doc Document) (string, error)

	// Find returns up to limit documents whose top-level fields equal the
	// filter values. A limit <= 0 means no limit.
	Find(ctx context.Context, collection string, filter map[string]any, limit int) ([]Document, error)

	// Batch starts a new write batch. Ops are applied in order on Commit,
	// either all of them or none.
	Batch() Batch
}

// Batch groups Set/Merge/Append operations into one atomic commit.
type Batch interface {
	Set(collection, key string, doc Document) Batch
	Merge(collection, key string, doc Document) Batch
	Append(collection string, doc Document) Batch

	// Commit applies every collected operation as a single unit.
	// Returns ErrBatchEmpty when nothing was collected.
	Commit(ctx context.Context) error
}

type opKind int

const (
	opSet opKind = iota
	opMerge
	opAppend
)

// op is a single collected batch operation, shared by all backends.
type op struct {
	kind       opKind
	collection string
	key        string
	doc        Document
}

// mergeDocs merges src into dst, replacing top-level values and recursing
// into nested maps. Explicit nils in src survive into the result so callers
// can null out stored fields.
func mergeDocs(dst, src Document) Document {
	if dst == nil {
		dst = Document{}
	}
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := dst[k].(map[string]any); ok {
				dst[k] = mergeDocs(maps.Clone(existing), sub)
				continue
			}
		}
		dst[k] = v
	}
	return dst
}

// cloneDoc deep-copies a document one nested-map level at a time so callers
// cannot mutate stored state through returned references.
func cloneDoc(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		if sub, ok := v.(map[string]any); ok {
			out[k] = cloneDoc(sub)
			continue
		}
		out[k] = v
	}
	return out
}
