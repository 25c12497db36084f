package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/synapsedb/synapse/internal/apperrors"
	"github.com/synapsedb/synapse/internal/database"
	"github.com/synapsedb/synapse/internal/logging"
	"github.com/synapsedb/synapse/internal/scope"
	"github.com/synapsedb/synapse/internal/vectorstore"
	"github.com/synapsedb/synapse/pkg/config"
)

var log = logging.GetLogger("graph")

// Service owns the memory-link graph: explicit and auto-derived edges,
// point-in-time traversal, and cached centrality.
type Service struct {
	db  *database.Database
	vec *vectorstore.Store
	cfg *config.RankerConfig

	mu              sync.Mutex
	centralityStale time.Duration
}

// New builds a Service. cfg supplies the auto-link/dedup thresholds and the
// centrality cache TTL; vec may be nil if AutoLink is never called.
func New(db *database.Database, vec *vectorstore.Store, cfg *config.RankerConfig) *Service {
	return &Service{db: db, vec: vec, cfg: cfg}
}

// LinkOptions describes an explicit edge to create between two memories.
type LinkOptions struct {
	SourceID    string
	TargetID    string
	Relation    string
	Weight      float64
	LLMEnriched bool
}

// Link creates or returns the existing active edge between two memories.
// Weight defaults to 1.0 when unset. A self-loop is rejected.
func (s *Service) Link(opts LinkOptions) (*database.MemoryLink, error) {
	if opts.SourceID == opts.TargetID {
		return nil, apperrors.NewContract("cannot link a memory to itself: %s", opts.SourceID)
	}
	if !database.IsValidRelationType(opts.Relation) {
		return nil, apperrors.NewContract("invalid relation type: %s", opts.Relation)
	}

	source, err := s.db.GetMemory(opts.SourceID)
	if err != nil {
		return nil, fmt.Errorf("link: lookup source: %w", err)
	}
	target, err := s.db.GetMemory(opts.TargetID)
	if err != nil {
		return nil, fmt.Errorf("link: lookup target: %w", err)
	}
	if source == nil {
		return nil, apperrors.NewNotFound("memory", opts.SourceID)
	}
	if target == nil {
		return nil, apperrors.NewNotFound("memory", opts.TargetID)
	}
	if err := scope.CheckEdge(source.ScopeID, target.ScopeID); err != nil {
		return nil, err
	}

	weight := opts.Weight
	if weight == 0 {
		weight = 1.0
	}

	link := &database.MemoryLink{
		SourceID:    opts.SourceID,
		TargetID:    opts.TargetID,
		Relation:    opts.Relation,
		Weight:      weight,
		LLMEnriched: opts.LLMEnriched,
	}
	if err := s.db.CreateLink(link); err != nil {
		return nil, fmt.Errorf("link memories: %w", err)
	}
	return link, nil
}

// InvalidateLink soft-invalidates a single edge by id.
func (s *Service) InvalidateLink(id string) error {
	if err := s.db.InvalidateLink(id); err != nil {
		return fmt.Errorf("invalidate link: %w", err)
	}
	return nil
}

// AutoLink derives "similar_to" edges from embedding proximity: it searches
// the memories corpus for the closest neighbors to embedding, excludes the
// memory itself, memories outside scopeID's visibility, and anything at or
// above the dedup threshold (a near-duplicate belongs to consolidation, not
// the graph), then links the top AutoLinkMax survivors above the
// auto-link threshold.
func (s *Service) AutoLink(ctx context.Context, memoryID string, embedding []float32, scopeID string) ([]*database.MemoryLink, error) {
	if s.vec == nil {
		return nil, fmt.Errorf("auto-link requires a vector store")
	}

	// Over-fetch since self-match, scope, and dedup filtering all shrink
	// the candidate pool before the AutoLinkMax cutoff is applied.
	overFetch := s.cfg.AutoLinkMax*4 + 10
	matches, err := s.vec.Search(ctx, vectorstore.CorpusMemories, embedding, overFetch)
	if err != nil {
		return nil, fmt.Errorf("auto-link search: %w", err)
	}

	var links []*database.MemoryLink
	for _, m := range matches {
		if len(links) >= s.cfg.AutoLinkMax {
			break
		}
		if m.ID == memoryID {
			continue
		}
		if m.Score >= s.cfg.DedupThreshold || m.Score < s.cfg.AutoLinkThreshold {
			continue
		}

		candidate, err := s.db.GetMemory(m.ID)
		if err != nil {
			return nil, fmt.Errorf("auto-link candidate lookup: %w", err)
		}
		if candidate == nil || !candidate.Active(time.Now()) {
			continue
		}
		if !scope.Visible(scopeID, candidate.ScopeID) {
			continue
		}

		link := &database.MemoryLink{
			SourceID: memoryID,
			TargetID: m.ID,
			Relation: "similar_to",
			Weight:   m.Score,
		}
		if err := s.db.CreateLink(link); err != nil {
			return nil, fmt.Errorf("auto-link create: %w", err)
		}
		links = append(links, link)
	}

	log.Debug("auto-link complete", "memory_id", memoryID, "links_created", len(links))
	return links, nil
}

// Connected returns the bounded neighborhood graph around rootID, evaluated
// as of now.
func (s *Service) Connected(rootID string, maxDepth int) (*database.Graph, error) {
	g, err := s.db.GetGraph(rootID, maxDepth, nil)
	if err != nil {
		return nil, fmt.Errorf("connected: %w", err)
	}
	return g, nil
}

// ConnectedAsOf returns the bounded neighborhood graph around rootID as it
// existed at asOf: links that had not yet been created, or that were
// already invalidated by that time, are excluded.
func (s *Service) ConnectedAsOf(rootID string, maxDepth int, asOf time.Time) (*database.Graph, error) {
	g, err := s.db.GetGraph(rootID, maxDepth, &asOf)
	if err != nil {
		return nil, fmt.Errorf("connected as of: %w", err)
	}
	return g, nil
}

// Centrality returns the cached degree centrality for a memory, recomputing
// it first if the cache is missing or older than the configured TTL.
func (s *Service) Centrality(memoryID string) (*database.CentralityScore, error) {
	cached, err := s.db.GetCentralityScore(memoryID)
	if err != nil {
		return nil, fmt.Errorf("centrality lookup: %w", err)
	}
	if cached != nil && time.Since(cached.UpdatedAt) < s.cfg.CentralityTTL {
		return cached, nil
	}
	return s.recomputeOne(memoryID)
}

func (s *Service) recomputeOne(memoryID string) (*database.CentralityScore, error) {
	degree, err := s.db.CountActiveLinks(memoryID)
	if err != nil {
		return nil, fmt.Errorf("count links: %w", err)
	}

	score := &database.CentralityScore{
		MemoryID:         memoryID,
		Degree:           degree,
		NormalizedDegree: normalizeDegree(degree),
		UpdatedAt:        time.Now(),
	}
	if err := s.db.UpsertCentralityScore(score); err != nil {
		return nil, fmt.Errorf("store centrality: %w", err)
	}
	return score, nil
}

// RecomputeCentrality recomputes and caches degree centrality for every
// memory in the store, normalizing each memory's raw degree against the
// maximum degree observed in this pass. Intended to run periodically, not
// on the query hot path.
func (s *Service) RecomputeCentrality() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.db.AllMemoryIDs()
	if err != nil {
		return fmt.Errorf("recompute centrality: %w", err)
	}

	degrees := make(map[string]int, len(ids))
	maxDegree := 0
	for _, id := range ids {
		d, err := s.db.CountActiveLinks(id)
		if err != nil {
			return fmt.Errorf("recompute centrality: count links for %s: %w", id, err)
		}
		degrees[id] = d
		if d > maxDegree {
			maxDegree = d
		}
	}

	now := time.Now()
	for id, d := range degrees {
		norm := 0.0
		if maxDegree > 0 {
			norm = float64(d) / float64(maxDegree)
		}
		score := &database.CentralityScore{MemoryID: id, Degree: d, NormalizedDegree: norm, UpdatedAt: now}
		if err := s.db.UpsertCentralityScore(score); err != nil {
			return fmt.Errorf("recompute centrality: store %s: %w", id, err)
		}
	}

	log.Info("recomputed centrality", "memory_count", len(ids), "max_degree", maxDegree)
	return nil
}

// normalizeDegree is used for single-memory Centrality refreshes, where
// there's no full-corpus pass to derive a true maximum; it falls back to a
// fixed soft cap so an isolated recompute still yields a comparable scale.
func normalizeDegree(degree int) float64 {
	const softCap = 20.0
	if degree <= 0 {
		return 0
	}
	if float64(degree) >= softCap {
		return 1.0
	}
	return float64(degree) / softCap
}

// Stats summarizes the current graph: total active links and a tally by
// relation type.
type Stats struct {
	TotalLinks int
	ByRelation map[string]int
}

// Stats computes a point-in-time summary of the link graph.
func (s *Service) Stats() (*Stats, error) {
	tally, err := s.db.CountLinksByRelation()
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	total := 0
	for _, c := range tally {
		total += c
	}
	return &Stats{TotalLinks: total, ByRelation: tally}, nil
}

// RelationTypes returns the relation vocabulary, ordered for stable display.
func RelationTypes() []string {
	types := append([]string(nil), database.RelationTypes...)
	sort.Strings(types)
	return types
}
