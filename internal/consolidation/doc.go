// Package consolidation implements the batch dedup/merge and decay-based
// retention engine: near-duplicate memories are merged behind supersedes
// edges rather than overwritten, and low-value memories are hard-deleted
// only once they clear an age floor and carry no active supersedes edge.
// Both passes are opt-in and never run on the query hot path.
package consolidation
