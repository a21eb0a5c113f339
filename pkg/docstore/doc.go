// Package docstore provides the keyed document store the billing engine
// persists through. It exposes per-key get/set/merge/delete, append-only
// writes for log collections, and a write batch that applies a group of
// operations all-or-nothing.
//
// The batch deliberately does not support conditional writes that depend on
// a read made inside the same batch. Components that need read-then-write
// consistency for a key must serialize those writers themselves; the
// lifecycle updater does this with a per-user lock.
//
// Three backends are provided: an in-memory store for tests and single-node
// setups, a MongoDB store (batches use multi-document transactions and need
// a replica set), and a Postgres store keeping documents as JSONB rows
// (batches are one SQL transaction, schema managed by goose migrations).
package docstore
