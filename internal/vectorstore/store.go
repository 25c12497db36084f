// Package vectorstore abstracts approximate nearest-neighbor search behind
// a small capability-probed interface, so the ranker can run unmodified
// against either deployment profile: an embedded single-file SQLite+
// sqlite-vec index, or a server-side Qdrant collection.
//
// Both corpora (documents and memories) are addressed by name so a single
// ANNIndex instance can back both without cross-contaminating results.
package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/synapsedb/synapse/internal/apperrors"
	"github.com/synapsedb/synapse/internal/logging"
)

var log = logging.GetLogger("vectorstore")

// Corpus names the embedding space a vector belongs to.
type Corpus string

const (
	CorpusDocuments Corpus = "documents"
	CorpusMemories  Corpus = "memories"
)

// Match is a single ANN or brute-force search hit.
type Match struct {
	ID    string
	Score float64 // cosine similarity, higher is better
}

// ANNIndex is the capability a vector backend must provide. Both the
// embedded sqlite-vec profile and the Qdrant server profile implement it.
type ANNIndex interface {
	Upsert(ctx context.Context, corpus Corpus, id string, embedding []float32) error
	Delete(ctx context.Context, corpus Corpus, id string) error
	Search(ctx context.Context, corpus Corpus, query []float32, k int) ([]Match, error)
	// Available reports whether the backend can currently serve requests.
	// A server-profile backend (Qdrant) may be temporarily unreachable;
	// an embedded backend is always available once opened.
	Available(ctx context.Context) bool
}

// CandidateSource supplies the full embedding set for a corpus, used by
// the brute-force fallback and by small corpora that never graduate to
// ANN search.
type CandidateSource interface {
	Embeddings(ctx context.Context, corpus Corpus) (map[string][]float32, error)
}

// Store wraps an ANNIndex with the brute-force fallback policy: corpora at
// or below bruteForceMaxCorpus always search by brute force (ANN index
// maintenance isn't worth it below that size), and an ANN backend observed
// unavailable is skipped for backoffWindow before being retried, falling
// back to brute force in the meantime.
type Store struct {
	index               ANNIndex
	candidates          CandidateSource
	bruteForceMaxCorpus int
	backoffWindow       time.Duration
	// dimension is the vector width this store expects from the externally
	// owned embedder (spec §6). 0 means "don't validate" — used by tests
	// that exercise fixed-width fakes without wiring config through.
	dimension int

	mu        sync.Mutex
	unavailAt map[Corpus]time.Time
}

// NewStore builds a Store over the given ANN backend and candidate source.
// dimension is the embedding width every Upsert/Search call is validated
// against; pass 0 to skip validation (tests only).
func NewStore(index ANNIndex, candidates CandidateSource, bruteForceMaxCorpus int, backoffWindow time.Duration, dimension int) *Store {
	return &Store{
		index:               index,
		candidates:          candidates,
		bruteForceMaxCorpus: bruteForceMaxCorpus,
		backoffWindow:       backoffWindow,
		dimension:           dimension,
		unavailAt:           make(map[Corpus]time.Time),
	}
}

func (s *Store) checkDimension(embedding []float32) error {
	if s.dimension > 0 && len(embedding) != s.dimension {
		return apperrors.NewContract("vectorstore: embedding has dimension %d, store expects %d", len(embedding), s.dimension)
	}
	return nil
}

// Upsert writes to the ANN backend. Small corpora still get indexed (so
// growth past the brute-force threshold doesn't require a backfill) but
// search ignores the index until the corpus is large enough to matter.
func (s *Store) Upsert(ctx context.Context, corpus Corpus, id string, embedding []float32) error {
	if err := s.checkDimension(embedding); err != nil {
		return err
	}
	return s.index.Upsert(ctx, corpus, id, embedding)
}

// Delete removes a vector from the ANN backend.
func (s *Store) Delete(ctx context.Context, corpus Corpus, id string) error {
	return s.index.Delete(ctx, corpus, id)
}

// Search returns the k nearest neighbors to query within corpus, choosing
// between the ANN backend and brute-force scan per the fallback policy.
func (s *Store) Search(ctx context.Context, corpus Corpus, query []float32, k int) ([]Match, error) {
	if err := s.checkDimension(query); err != nil {
		return nil, err
	}
	candidates, err := s.candidates.Embeddings(ctx, corpus)
	if err != nil {
		return nil, err
	}

	if len(candidates) <= s.bruteForceMaxCorpus || !s.annUsable(ctx, corpus) {
		return bruteForceSearch(candidates, query, k), nil
	}

	matches, err := s.index.Search(ctx, corpus, query, k)
	if err != nil {
		log.Warn("ANN search failed, falling back to brute force", "corpus", corpus, "error", err)
		s.markUnavailable(corpus)
		return bruteForceSearch(candidates, query, k), nil
	}
	return matches, nil
}

func (s *Store) annUsable(ctx context.Context, corpus Corpus) bool {
	s.mu.Lock()
	since, backingOff := s.unavailAt[corpus]
	s.mu.Unlock()

	if backingOff {
		if time.Since(since) < s.backoffWindow {
			return false
		}
		s.mu.Lock()
		delete(s.unavailAt, corpus)
		s.mu.Unlock()
	}

	return s.index.Available(ctx)
}

func (s *Store) markUnavailable(corpus Corpus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailAt[corpus] = time.Now()
}

// bruteForceSearch computes cosine similarity against every candidate and
// returns the top k, descending by score.
func bruteForceSearch(candidates map[string][]float32, query []float32, k int) []Match {
	matches := make([]Match, 0, len(candidates))
	for id, vec := range candidates {
		sim := cosineSimilarity(query, vec)
		matches = append(matches, Match{ID: id, Score: sim})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0
// if either vector has zero magnitude.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
