package consolidation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/synapsedb/synapse/internal/database"
	"github.com/synapsedb/synapse/internal/graph"
	"github.com/synapsedb/synapse/internal/logging"
	"github.com/synapsedb/synapse/internal/memorystore"
	"github.com/synapsedb/synapse/internal/vectorstore"
	"github.com/synapsedb/synapse/pkg/config"
)

var log = logging.GetLogger("consolidation")

// MergeFunc produces LLM-authored merged content from a set of
// near-duplicate memory contents (spec §6's consumed LLM interface). A nil
// MergeFunc means no LLM is wired up; callers with RequireLLMMerge set then
// skip rather than silently falling back, since the config explicitly asked
// for LLM-authored merges.
type MergeFunc func(ctx context.Context, contents []string) (string, error)

// Service owns the consolidation and retention passes.
type Service struct {
	db    *database.Database
	mem   *memorystore.Service
	graph *graph.Service
	vec   *vectorstore.Store
	cCfg  *config.ConsolidationConfig
	rCfg  *config.RetentionConfig
	merge MergeFunc
}

// New builds a Service. merge may be nil; RequireLLMMerge candidates are
// then skipped rather than silently concatenated.
func New(db *database.Database, mem *memorystore.Service, graphSvc *graph.Service, vec *vectorstore.Store, cCfg *config.ConsolidationConfig, rCfg *config.RetentionConfig, merge MergeFunc) *Service {
	return &Service{db: db, mem: mem, graph: graphSvc, vec: vec, cCfg: cCfg, rCfg: rCfg, merge: merge}
}

// MergeRecord describes one consolidation merge.
type MergeRecord struct {
	MergedID    string
	OriginalIDs []string
	Similarity  float64
}

// ConsolidationReport summarizes one Consolidate call.
type ConsolidationReport struct {
	Skipped      bool
	SkipReason   string
	CorpusSize   int
	Merges       []MergeRecord
	PairsSkipped int // candidate pairs that qualified but had no LLM merge available
}

// Consolidate scans every active memory visible in scopeID for near-duplicate
// pairs and merges them. A project-level config may disable consolidation
// even when the global flag is on, but never enable it when the global flag
// is off (spec §4.7); callers pass the already-resolved effective config.
func (s *Service) Consolidate(ctx context.Context, scopeID string) (*ConsolidationReport, error) {
	if !s.cCfg.Enabled {
		return &ConsolidationReport{Skipped: true, SkipReason: "consolidation disabled"}, nil
	}

	memories, err := s.db.ListMemoriesVisible(scopeID)
	if err != nil {
		return nil, fmt.Errorf("consolidate: list memories: %w", err)
	}
	report := &ConsolidationReport{CorpusSize: len(memories)}
	if len(memories) < s.cCfg.MinCorpusSize {
		report.Skipped = true
		report.SkipReason = fmt.Sprintf("corpus size %d below min_corpus_size %d", len(memories), s.cCfg.MinCorpusSize)
		return report, nil
	}

	now := time.Now()
	minAge := time.Duration(s.cCfg.MinMemoryAgeDays) * 24 * time.Hour
	eligible := make([]*database.Memory, 0, len(memories))
	for _, m := range memories {
		if now.Sub(m.CreatedAt) >= minAge {
			eligible = append(eligible, m)
		}
	}

	merged := make(map[string]bool, len(eligible))
	// Deterministic scan order: oldest first, so repeated runs over a
	// stable snapshot produce the same pairing.
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].CreatedAt.Before(eligible[j].CreatedAt) })

	for i := 0; i < len(eligible); i++ {
		a := eligible[i]
		if merged[a.ID] {
			continue
		}
		for j := i + 1; j < len(eligible); j++ {
			b := eligible[j]
			if merged[b.ID] {
				continue
			}
			sim := cosineSimilarity(a.Embedding, b.Embedding)
			if sim < s.cCfg.SimilarityForMerge {
				continue
			}

			record, err := s.mergePair(ctx, a, b, sim)
			if err != nil {
				if err == errNoMergeFunc {
					report.PairsSkipped++
					continue
				}
				return nil, fmt.Errorf("consolidate: merge %s+%s: %w", a.ID, b.ID, err)
			}
			merged[a.ID] = true
			merged[b.ID] = true
			report.Merges = append(report.Merges, *record)
			break
		}
	}

	return report, nil
}

var errNoMergeFunc = fmt.Errorf("require_llm_merge is set but no merge function is configured")

// mergePair creates the merged memory, links it to both originals via
// supersedes edges, and soft-invalidates the originals. Never hard-deletes.
func (s *Service) mergePair(ctx context.Context, a, b *database.Memory, sim float64) (*MergeRecord, error) {
	content, err := s.mergedContent(ctx, a, b)
	if err != nil {
		return nil, err
	}

	scopeID := a.ScopeID
	if scopeID == "" {
		scopeID = b.ScopeID
	}
	mergedMem := &database.Memory{
		ScopeID:   scopeID,
		Content:   content,
		Tags:      mergeTags(a.Tags, b.Tags),
		Source:    "consolidation",
		Kind:      a.Kind,
		Embedding: averageEmbedding(a.Embedding, b.Embedding),
	}
	if err := s.db.CreateMemory(mergedMem); err != nil {
		return nil, fmt.Errorf("create merged memory: %w", err)
	}
	if s.vec != nil && len(mergedMem.Embedding) > 0 {
		if err := s.vec.Upsert(ctx, vectorstore.CorpusMemories, mergedMem.ID, mergedMem.Embedding); err != nil {
			log.Warn("consolidate: ANN upsert failed for merged memory", "memory_id", mergedMem.ID, "error", err)
		}
	}

	for _, orig := range []*database.Memory{a, b} {
		if s.graph != nil {
			if _, err := s.graph.Link(graph.LinkOptions{
				SourceID: mergedMem.ID,
				TargetID: orig.ID,
				Relation: "supersedes",
				Weight:   1.0,
			}); err != nil {
				return nil, fmt.Errorf("link supersedes edge: %w", err)
			}
		}
		if err := s.mem.SoftInvalidate(orig.ID, mergedMem.ID); err != nil {
			return nil, fmt.Errorf("soft-invalidate %s: %w", orig.ID, err)
		}
	}

	log.Info("consolidated memories", "merged_id", mergedMem.ID, "originals", []string{a.ID, b.ID}, "similarity", sim)
	return &MergeRecord{MergedID: mergedMem.ID, OriginalIDs: []string{a.ID, b.ID}, Similarity: sim}, nil
}

func (s *Service) mergedContent(ctx context.Context, a, b *database.Memory) (string, error) {
	if !s.cCfg.RequireLLMMerge {
		return concatContents(a.Content, b.Content), nil
	}
	if s.merge == nil {
		return "", errNoMergeFunc
	}
	content, err := s.merge(ctx, []string{a.Content, b.Content})
	if err != nil {
		log.Warn("consolidate: LLM merge failed, skipping pair", "error", err)
		return "", errNoMergeFunc
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", errNoMergeFunc
	}
	return content, nil
}

func concatContents(a, b string) string {
	return strings.TrimSpace(a) + "\n\n" + strings.TrimSpace(b)
}

func mergeTags(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, t := range append(append([]string{}, a...), b...) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// averageEmbedding returns the element-wise mean of a and b, renormalized to
// unit length so downstream cosine-distance math stays well-formed.
func averageEmbedding(a, b []float32) []float32 {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	if len(a) != len(b) {
		return a
	}
	out := make([]float32, len(a))
	for i := range a {
		out[i] = (a[i] + b[i]) / 2
	}
	var mag float64
	for _, v := range out {
		mag += float64(v) * float64(v)
	}
	mag = math.Sqrt(mag)
	if mag == 0 {
		return out
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / mag)
	}
	return out
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0 if
// either vector has zero magnitude. Duplicated in-package rather than
// imported, matching the pack's existing per-package convention (database
// and vectorstore each carry their own identical copy).
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

// Undo reverses a consolidation merge: it restores both originals to active
// and hard-deletes the merged memory, but only if nothing besides the
// merge's own supersedes edges references it (spec §4.7 — "only if no new
// edges reference it").
func (s *Service) Undo(ctx context.Context, mergedID string) error {
	links, err := s.db.GetLinksForMemory(mergedID, nil)
	if err != nil {
		return fmt.Errorf("undo: list links: %w", err)
	}

	var originalIDs []string
	for _, l := range links {
		if l.SourceID == mergedID && l.Relation == "supersedes" {
			originalIDs = append(originalIDs, l.TargetID)
			continue
		}
		// Any other active edge touching mergedID means it has been
		// referenced since consolidation (e.g. an explicit link, or
		// auto-link from a later save); undo is no longer safe.
		return fmt.Errorf("undo: merged memory %s has additional references, cannot undo", mergedID)
	}
	if len(originalIDs) == 0 {
		return fmt.Errorf("undo: %s is not a consolidation merge result", mergedID)
	}

	for _, id := range originalIDs {
		if err := s.mem.Restore(id); err != nil {
			return fmt.Errorf("undo: restore %s: %w", id, err)
		}
	}
	if err := s.mem.Delete(ctx, mergedID); err != nil {
		return fmt.Errorf("undo: delete merged memory: %w", err)
	}
	log.Info("undid consolidation", "merged_id", mergedID, "restored", originalIDs)
	return nil
}

// RetentionAction is the outcome of scoring one memory.
type RetentionAction string

const (
	ActionKeep      RetentionAction = "keep"
	ActionDelete    RetentionAction = "delete"
	ActionProtected RetentionAction = "protected" // active supersedes edge or below min age
)

// RetentionDecision is one memory's retention evaluation.
type RetentionDecision struct {
	MemoryID  string
	Effective float64
	Action    RetentionAction
}

// RetentionReport summarizes one RunRetention call.
type RetentionReport struct {
	Skipped    bool
	SkipReason string
	Decisions  []RetentionDecision
	Deleted    int
}

// RunRetention scores every active memory visible in scopeID and hard-deletes
// the ones that fall below delete_threshold, subject to the min-age and
// supersedes-edge guards in spec §4.7.
func (s *Service) RunRetention(ctx context.Context, scopeID string) (*RetentionReport, error) {
	if !s.rCfg.Enabled {
		return &RetentionReport{Skipped: true, SkipReason: "retention disabled"}, nil
	}

	memories, err := s.db.ListMemoriesVisible(scopeID)
	if err != nil {
		return nil, fmt.Errorf("retention: list memories: %w", err)
	}

	now := time.Now()
	minAge := time.Duration(s.rCfg.MinMemoryAgeDays) * 24 * time.Hour
	report := &RetentionReport{}

	for _, m := range memories {
		age := now.Sub(m.CreatedAt)
		if age < minAge {
			report.Decisions = append(report.Decisions, RetentionDecision{MemoryID: m.ID, Action: ActionProtected})
			continue
		}

		protected, err := s.hasActiveSupersedesEdge(m.ID)
		if err != nil {
			return nil, fmt.Errorf("retention: check supersedes edges for %s: %w", m.ID, err)
		}
		if protected {
			report.Decisions = append(report.Decisions, RetentionDecision{MemoryID: m.ID, Action: ActionProtected})
			continue
		}

		effective := s.effectiveScore(m, age)
		decision := RetentionDecision{MemoryID: m.ID, Effective: effective, Action: ActionKeep}
		if effective < s.rCfg.DeleteThreshold {
			decision.Action = ActionDelete
		}
		report.Decisions = append(report.Decisions, decision)
	}

	for _, d := range report.Decisions {
		if d.Action != ActionDelete {
			continue
		}
		if err := s.mem.Delete(ctx, d.MemoryID); err != nil {
			return nil, fmt.Errorf("retention: delete %s: %w", d.MemoryID, err)
		}
		report.Deleted++
	}

	log.Info("retention pass complete", "scope", scopeID, "evaluated", len(memories), "deleted", report.Deleted)
	return report, nil
}

// hasActiveSupersedesEdge reports whether m has any active supersedes edge
// touching it in either direction: as a merge result pointing at still-live
// originals, or as an original still pointed at by a live merge.
func (s *Service) hasActiveSupersedesEdge(memoryID string) (bool, error) {
	links, err := s.db.GetLinksForMemory(memoryID, &database.RelationshipFilters{Relation: "supersedes"})
	if err != nil {
		return false, err
	}
	return len(links) > 0, nil
}

// effectiveScore computes quality * recency_factor * access_boost (spec
// §4.7). quality_score computation is out of scope for this core (§1); a
// memory with no externally-supplied quality_score is treated neutrally
// (factor 1.0) rather than penalized.
func (s *Service) effectiveScore(m *database.Memory, age time.Duration) float64 {
	quality := 1.0
	if m.QualityScore != nil {
		quality = *m.QualityScore
	}

	var recency float64
	switch s.rCfg.DecayShape {
	case config.DecayHyperbolic:
		ageDays := age.Hours() / 24
		recency = 1.0 / (1.0 + s.rCfg.DecayRatePerDay*ageDays)
	default: // exponential
		ageHours := age.Hours()
		recency = math.Pow(2, -ageHours/s.rCfg.HalfLifeHours)
	}

	accessCount := m.AccessCount
	accessBoost := 1.0 + s.rCfg.AccessWeight*math.Log1p(accessCount)
	if accessBoost > s.rCfg.MaxAccessBoost {
		accessBoost = s.rCfg.MaxAccessBoost
	}

	return quality * recency * accessBoost
}
