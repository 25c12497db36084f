package memorystore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/synapsedb/synapse/internal/apperrors"
	"github.com/synapsedb/synapse/internal/database"
	"github.com/synapsedb/synapse/internal/graph"
	"github.com/synapsedb/synapse/internal/logging"
	"github.com/synapsedb/synapse/internal/ranker"
	"github.com/synapsedb/synapse/internal/scope"
	"github.com/synapsedb/synapse/internal/vectorstore"
	"github.com/synapsedb/synapse/pkg/config"
)

var log = logging.GetLogger("memorystore")

// Service is the C5 memory store: dedup-on-save, batched inserts, temporal
// invalidation, access tracking, and hybrid search. It owns the write path
// from raw content to a durable Memory plus its auto-derived graph edges.
type Service struct {
	db    *database.Database
	vec   *vectorstore.Store
	graph *graph.Service
	rank  *ranker.Engine
	cfg   *config.RankerConfig
}

// New builds a Service. rank and graph may be nil in tests that only
// exercise CRUD paths; Save then skips auto-link and BM25 invalidation.
// Dedup is skipped when vec is nil.
func New(db *database.Database, vec *vectorstore.Store, graphSvc *graph.Service, rank *ranker.Engine, cfg *config.RankerConfig) *Service {
	return &Service{db: db, vec: vec, graph: graphSvc, rank: rank, cfg: cfg}
}

// SaveOptions describes one memory write.
type SaveOptions struct {
	Content     string
	Embedding   []float32
	Tags        []string
	Source      string
	Kind        string
	ScopeID     string
	Global      bool // explicit opt-in to a scope-less (globally visible) memory
	IsInvariant bool

	// Dedup defaults to true, threshold cfg.DedupThreshold unless DedupThreshold is set.
	Dedup          *bool
	DedupThreshold float64

	// AutoLink defaults to true: after insert, link to the top AutoLinkMax
	// peers above cfg.AutoLinkThreshold.
	AutoLink *bool
}

// SaveResult reports whether a new memory was created or an existing
// near-duplicate was found instead.
type SaveResult struct {
	Memory      *database.Memory
	Duplicate   bool
	DuplicateOf string
	Similarity  float64
	Links       []*database.MemoryLink
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// Save stores content as a new memory, deduplicating against the existing
// corpus by embedding similarity and, unless disabled, auto-linking to
// similar peers.
func (s *Service) Save(ctx context.Context, opts SaveOptions) (*SaveResult, error) {
	content := strings.TrimSpace(opts.Content)
	if content == "" {
		return nil, apperrors.NewContract("save: content is required")
	}
	if err := scope.RequireWriteScope(opts.ScopeID, opts.Global); err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}

	dedup := boolOr(opts.Dedup, true)
	threshold := opts.DedupThreshold
	if threshold == 0 {
		threshold = s.cfg.DedupThreshold
	}

	if dedup && len(opts.Embedding) > 0 && s.vec != nil {
		matches, err := s.vec.Search(ctx, vectorstore.CorpusMemories, opts.Embedding, 1)
		if err != nil {
			return nil, fmt.Errorf("save: dedup search: %w", err)
		}
		if len(matches) > 0 && matches[0].Score >= threshold {
			return &SaveResult{Duplicate: true, DuplicateOf: matches[0].ID, Similarity: matches[0].Score}, nil
		}
	}

	mem := &database.Memory{
		ScopeID:     opts.ScopeID,
		Content:     content,
		Tags:        normalizeTags(opts.Tags),
		Source:      opts.Source,
		Kind:        opts.Kind,
		Embedding:   opts.Embedding,
		IsInvariant: opts.IsInvariant,
	}
	if err := s.db.CreateMemory(mem); err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}

	if s.vec != nil && len(opts.Embedding) > 0 {
		if err := s.vec.Upsert(ctx, vectorstore.CorpusMemories, mem.ID, opts.Embedding); err != nil {
			log.Warn("save: ANN upsert failed", "memory_id", mem.ID, "error", err)
		}
	}
	if s.rank != nil {
		s.rank.Invalidate("memories")
	}

	result := &SaveResult{Memory: mem}
	if boolOr(opts.AutoLink, true) && s.graph != nil && len(opts.Embedding) > 0 {
		links, err := s.graph.AutoLink(ctx, mem.ID, opts.Embedding, opts.ScopeID)
		if err != nil {
			log.Warn("save: auto-link failed", "memory_id", mem.ID, "error", err)
		} else {
			result.Links = links
		}
	}
	return result, nil
}

// BatchItem is one candidate memory in a BatchSave call.
type BatchItem struct {
	Content   string
	Embedding []float32
	Tags      []string
	Source    string
	Kind      string
	ScopeID   string
}

// BatchSaveResult is the per-item outcome of BatchSave, mirroring SaveResult
// but without per-item auto-link edges (those run as an optional pass after
// the whole batch commits).
type BatchSaveResult struct {
	ID          string
	Saved       bool
	DuplicateOf string
	Similarity  float64
}

// BatchSave inserts many memories in one transaction, deduplicating each
// against the existing corpus and against earlier items in the same batch.
// When autoLink is true, a post-hoc AutoLink pass runs over every newly
// saved item once the transaction has committed.
func (s *Service) BatchSave(ctx context.Context, items []BatchItem, dedupThreshold float64, autoLink bool) ([]BatchSaveResult, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if dedupThreshold == 0 {
		dedupThreshold = s.cfg.DedupThreshold
	}

	candidates := make([]*database.Memory, len(items))
	for i, it := range items {
		if strings.TrimSpace(it.Content) == "" {
			return nil, fmt.Errorf("batch save: item %d has empty content", i)
		}
		candidates[i] = &database.Memory{
			ScopeID:   it.ScopeID,
			Content:   strings.TrimSpace(it.Content),
			Tags:      normalizeTags(it.Tags),
			Source:    it.Source,
			Kind:      it.Kind,
			Embedding: it.Embedding,
		}
	}

	raw, err := s.db.BatchInsertMemories(candidates, dedupThreshold)
	if err != nil {
		return nil, fmt.Errorf("batch save: %w", err)
	}

	results := make([]BatchSaveResult, len(raw))
	var saved []*database.Memory
	for i, r := range raw {
		results[i] = BatchSaveResult{ID: r.ID, Saved: r.Saved, DuplicateOf: r.DuplicateOf, Similarity: r.Similarity}
		if r.Saved {
			saved = append(saved, candidates[i])
		}
	}

	if s.vec != nil {
		for _, m := range saved {
			if len(m.Embedding) == 0 {
				continue
			}
			if err := s.vec.Upsert(ctx, vectorstore.CorpusMemories, m.ID, m.Embedding); err != nil {
				log.Warn("batch save: ANN upsert failed", "memory_id", m.ID, "error", err)
			}
		}
	}
	if s.rank != nil && len(saved) > 0 {
		s.rank.Invalidate("memories")
	}

	if autoLink && s.graph != nil {
		for _, m := range saved {
			if len(m.Embedding) == 0 {
				continue
			}
			if _, err := s.graph.AutoLink(ctx, m.ID, m.Embedding, m.ScopeID); err != nil {
				log.Warn("batch save: auto-link failed", "memory_id", m.ID, "error", err)
			}
		}
	}

	return results, nil
}

// Get retrieves a memory by id. Returns (nil, nil) if not found.
func (s *Service) Get(id string) (*database.Memory, error) {
	if id == "" {
		return nil, fmt.Errorf("get: id is required")
	}
	return s.db.GetMemory(id)
}

// ListOptions narrows List beyond the default scope+global visibility
// listing.
type ListOptions struct {
	ScopeID       string
	IncludeGlobal bool
	Kind          string
	Tags          []string
	StartDate     *time.Time
	EndDate       *time.Time
	IncludeExpired bool
	AsOf          *time.Time
	Limit         int
	Offset        int
}

// List retrieves memories matching opts.
func (s *Service) List(opts ListOptions) ([]*database.Memory, error) {
	return s.db.ListMemories(&database.MemoryFilters{
		ScopeID:        opts.ScopeID,
		IncludeGlobal:  opts.IncludeGlobal,
		Kind:           opts.Kind,
		Tags:           normalizeTags(opts.Tags),
		StartDate:      opts.StartDate,
		EndDate:        opts.EndDate,
		IncludeExpired: opts.IncludeExpired,
		AsOf:           opts.AsOf,
		Limit:          opts.Limit,
		Offset:         opts.Offset,
	})
}

// SearchOptions configures a hybrid memory search.
type SearchOptions struct {
	QueryText      string
	QueryEmbedding []float32
	Limit          int
	Threshold      float64
	Alpha          float64
	ScopeID        string
	Regex          string
	IncludeExpired bool
	AsOf           *time.Time
}

// Search delegates to the hybrid ranker, adding the memory-specific temporal
// filters spec'd for this layer (as_of, include_expired).
func (s *Service) Search(ctx context.Context, opts SearchOptions) ([]ranker.MemoryResult, error) {
	if s.rank == nil {
		return nil, fmt.Errorf("search: no ranker configured")
	}
	return s.rank.SearchMemories(ctx, ranker.Options{
		QueryText:      opts.QueryText,
		QueryEmbedding: opts.QueryEmbedding,
		Limit:          opts.Limit,
		Threshold:      opts.Threshold,
		Alpha:          opts.Alpha,
		Filters: ranker.Filters{
			Regex:          opts.Regex,
			ScopeID:        opts.ScopeID,
			IncludeExpired: opts.IncludeExpired,
			AsOf:           opts.AsOf,
		},
	})
}

// SoftInvalidate marks a memory superseded by supersededBy, setting
// valid_until=now. Idempotent.
func (s *Service) SoftInvalidate(id, supersededBy string) error {
	if err := s.db.SoftInvalidateMemory(id, supersededBy); err != nil {
		return fmt.Errorf("soft invalidate: %w", err)
	}
	if s.rank != nil {
		s.rank.Invalidate("memories")
	}
	return nil
}

// Restore clears a memory's invalidation fields. Errors if the memory isn't
// currently invalidated.
func (s *Service) Restore(id string) error {
	if err := s.db.RestoreMemory(id); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if s.rank != nil {
		s.rank.Invalidate("memories")
	}
	return nil
}

// Access bumps access_count and last_accessed for every id in one
// transaction, used to feed the retention engine's access_boost term.
func (s *Service) Access(ids []string, weight float64) error {
	if err := s.db.AccessMemories(ids, weight); err != nil {
		return fmt.Errorf("access: %w", err)
	}
	return nil
}

// Delete permanently removes a memory and its incident links. Prefer
// SoftInvalidate for anything the temporal model should retain a record of;
// Delete is a hard, irreversible removal.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("delete: id is required")
	}
	if err := s.db.DeleteMemory(id); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if s.vec != nil {
		if err := s.vec.Delete(ctx, vectorstore.CorpusMemories, id); err != nil {
			log.Warn("delete: ANN delete failed", "memory_id", id, "error", err)
		}
	}
	if s.rank != nil {
		s.rank.Invalidate("memories")
	}
	return nil
}

// normalizeTags lowercases, trims, and deduplicates tags, preserving first
// occurrence order.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		t := strings.ToLower(strings.TrimSpace(tag))
		if t != "" && !seen[t] {
			seen[t] = true
			result = append(result, t)
		}
	}
	return result
}
