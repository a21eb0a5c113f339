// Package audit maintains the append-only audit trail: one entry per
// lifecycle mutation, tagged with the operation that produced it.
//
// Entries can be written standalone with Trail.Record, or enlisted into a
// docstore write batch with Trail.Enlist so the entry commits in the same
// atomic unit as the record writes it describes. The Reader side backs the
// duplicate-reference idempotency check and support queries.
package audit
