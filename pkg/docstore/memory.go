package docstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// CommitHook inspects the operations of a batch before they are applied.
// Returning an error aborts the whole commit without applying anything.
// Intended for tests that need to fail a batch mid-flight.
type CommitHook func(ops []BatchOp) error

// BatchOp is the exported view of a collected batch operation, handed to
// commit hooks so tests can assert on or reject specific writes.
type BatchOp struct {
	Kind       string // "set", "merge" or "append"
	Collection string
	Key        string
	Doc        Document
}

// MemoryStore is an in-process Store used in tests and single-node setups.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	commitHook  CommitHook
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Document),
	}
}

// SetCommitHook installs a hook invoked for every batch commit.
// Pass nil to remove a previously installed hook.
func (s *MemoryStore) SetCommitHook(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitHook = hook
}

func (s *MemoryStore) Get(ctx context.Context, collection, key string) (Document, error) {
	if collection == "" || key == "" {
		return nil, ErrInvalidKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDoc(doc), nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, key string, doc Document) error {
	if collection == "" || key == "" {
		return ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.applySet(collection, key, doc)
	return nil
}

func (s *MemoryStore) Merge(ctx context.Context, collection, key string, doc Document) error {
	if collection == "" || key == "" {
		return ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.applyMerge(collection, key, doc)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, key string) error {
	if collection == "" || key == "" {
		return ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections[collection], key)
	return nil
}

func (s *MemoryStore) Append(ctx context.Context, collection string, doc Document) (string, error) {
	if collection == "" {
		return "", ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	s.applySet(collection, id, doc)
	return id, nil
}

func (s *MemoryStore) Find(ctx context.Context, collection string, filter map[string]any, limit int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Document
	for _, doc := range s.collections[collection] {
		if matchesFilter(doc, filter) {
			out = append(out, cloneDoc(doc))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) Batch() Batch {
	return &memoryBatch{store: s}
}

// applySet must be called with the write lock held.
func (s *MemoryStore) applySet(collection, key string, doc Document) {
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]Document)
	}
	s.collections[collection][key] = cloneDoc(doc)
}

// applyMerge must be called with the write lock held.
func (s *MemoryStore) applyMerge(collection, key string, doc Document) {
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]Document)
	}
	existing := s.collections[collection][key]
	s.collections[collection][key] = mergeDocs(cloneDoc(existing), cloneDoc(doc))
}

func matchesFilter(doc Document, filter map[string]any) bool {
	for k, want := range filter {
		if doc[k] != want {
			return false
		}
	}
	return true
}

type memoryBatch struct {
	store *MemoryStore
	ops   []op
}

func (b *memoryBatch) Set(collection, key string, doc Document) Batch {
	b.ops = append(b.ops, op{kind: opSet, collection: collection, key: key, doc: cloneDoc(doc)})
	return b
}

func (b *memoryBatch) Merge(collection, key string, doc Document) Batch {
	b.ops = append(b.ops, op{kind: opMerge, collection: collection, key: key, doc: cloneDoc(doc)})
	return b
}

func (b *memoryBatch) Append(collection string, doc Document) Batch {
	b.ops = append(b.ops, op{kind: opAppend, collection: collection, doc: cloneDoc(doc)})
	return b
}

func (b *memoryBatch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return ErrBatchEmpty
	}

	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	// The hook sees the full batch before any mutation happens so an
	// injected failure leaves the store untouched.
	if b.store.commitHook != nil {
		exported := make([]BatchOp, len(b.ops))
		for i, o := range b.ops {
			exported[i] = BatchOp{
				Kind:       [...]string{"set", "merge", "append"}[o.kind],
				Collection: o.collection,
				Key:        o.key,
				Doc:        cloneDoc(o.doc),
			}
		}
		if err := b.store.commitHook(exported); err != nil {
			return err
		}
	}

	for _, o := range b.ops {
		switch o.kind {
		case opSet:
			b.store.applySet(o.collection, o.key, o.doc)
		case opMerge:
			b.store.applyMerge(o.collection, o.key, o.doc)
		case opAppend:
			b.store.applySet(o.collection, uuid.New().String(), o.doc)
		}
	}
	return nil
}
