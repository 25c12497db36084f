// Package memorystore provides the business-logic layer over database.Memory:
// dedup-on-save, batched inserts, temporal soft-invalidation, access tracking,
// and hybrid search. It is the only caller of internal/graph's AutoLink and
// internal/ranker's SearchMemories on the write and read paths respectively.
package memorystore
