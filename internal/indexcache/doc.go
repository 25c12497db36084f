// Package indexcache coordinates lazy, coalesced rebuilds of per-corpus
// internal/bm25index snapshots. Consumers call Get for a corpus name and
// either receive a cached snapshot or block while exactly one rebuild runs
// on their behalf, via golang.org/x/sync/singleflight.
package indexcache
