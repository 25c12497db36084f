// Package bm25index builds and queries per-corpus Okapi BM25 inverted
// indexes over token streams produced by internal/tokenizer.
//
// An Index is an immutable snapshot: callers rebuild rather than mutate one
// in place, so internal/indexcache can hand out a stale snapshot to
// in-flight readers while a rebuild is in progress.
package bm25index
