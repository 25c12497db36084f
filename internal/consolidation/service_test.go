package consolidation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/synapsedb/synapse/internal/bm25index"
	"github.com/synapsedb/synapse/internal/database"
	"github.com/synapsedb/synapse/internal/graph"
	"github.com/synapsedb/synapse/internal/memorystore"
	"github.com/synapsedb/synapse/internal/ranker"
	"github.com/synapsedb/synapse/internal/vectorstore"
	"github.com/synapsedb/synapse/pkg/config"
)

type fakeANN struct {
	vecs map[string][]float32
}

func newFakeANN() *fakeANN { return &fakeANN{vecs: make(map[string][]float32)} }

func (f *fakeANN) Upsert(ctx context.Context, corpus vectorstore.Corpus, id string, emb []float32) error {
	f.vecs[id] = emb
	return nil
}
func (f *fakeANN) Delete(ctx context.Context, corpus vectorstore.Corpus, id string) error {
	delete(f.vecs, id)
	return nil
}
func (f *fakeANN) Search(ctx context.Context, corpus vectorstore.Corpus, q []float32, k int) ([]vectorstore.Match, error) {
	return nil, nil
}
func (f *fakeANN) Available(ctx context.Context) bool { return true }

func newTestFixture(t *testing.T, cCfg config.ConsolidationConfig, rCfg config.RetentionConfig, merge MergeFunc) (*Service, *memorystore.Service, *database.Database) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(dbPath, 4)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}

	cfg := config.DefaultConfig()
	store := vectorstore.NewStore(newFakeANN(), database.NewCandidateSource(db), cfg.VectorStore.BruteForceMaxCorpus, cfg.VectorStore.ANNBackoffWindow, 4)
	graphSvc := graph.New(db, store, &cfg.Ranker)
	rankEngine := ranker.New(db, store, graphSvc, &cfg.Ranker, bm25index.DefaultParams())
	memSvc := memorystore.New(db, store, graphSvc, rankEngine, &cfg.Ranker)

	svc := New(db, memSvc, graphSvc, store, &cCfg, &rCfg, merge)
	return svc, memSvc, db
}

func backdate(t *testing.T, db *database.Database, id string, age time.Duration) {
	t.Helper()
	createdAt := time.Now().Add(-age)
	if _, err := db.Exec(`UPDATE memories SET created_at = ? WHERE id = ?`, createdAt, id); err != nil {
		t.Fatalf("backdate: %v", err)
	}
}

func TestConsolidateSkipsWhenDisabled(t *testing.T) {
	cCfg := config.ConsolidationConfig{Enabled: false}
	svc, _, _ := newTestFixture(t, cCfg, config.RetentionConfig{}, nil)

	report, err := svc.Consolidate(context.Background(), "proj")
	if err != nil {
		t.Fatalf("Consolidate() error = %v", err)
	}
	if !report.Skipped {
		t.Error("expected Skipped=true when consolidation disabled")
	}
}

func TestConsolidateSkipsBelowMinCorpusSize(t *testing.T) {
	cCfg := config.ConsolidationConfig{Enabled: true, MinCorpusSize: 20, SimilarityForMerge: 0.92}
	svc, mem, _ := newTestFixture(t, cCfg, config.RetentionConfig{}, nil)
	ctx := context.Background()

	mem.Save(ctx, memorystore.SaveOptions{Content: "a", Embedding: []float32{1, 0, 0, 0}, ScopeID: "proj"})

	report, err := svc.Consolidate(ctx, "proj")
	if err != nil {
		t.Fatalf("Consolidate() error = %v", err)
	}
	if !report.Skipped {
		t.Error("expected Skipped=true below min_corpus_size")
	}
}

// TestConsolidateMergesNearDuplicates is scenario S4 from the spec:
// two near-duplicate memories merge into one, with supersedes edges from
// the merge to both originals, and the originals soft-invalidated.
func TestConsolidateMergesNearDuplicates(t *testing.T) {
	cCfg := config.ConsolidationConfig{
		Enabled:            true,
		SimilarityForMerge: 0.92,
		MinMemoryAgeDays:   7,
		MinCorpusSize:      2,
		RequireLLMMerge:    false,
	}
	svc, mem, db := newTestFixture(t, cCfg, config.RetentionConfig{}, nil)
	ctx := context.Background()

	r1, err := mem.Save(ctx, memorystore.SaveOptions{
		Content: "the deploy pipeline uses blue-green rollouts", Embedding: []float32{1, 0, 0, 0}, ScopeID: "proj",
		Dedup: boolPtr(false), AutoLink: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("save 1: %v", err)
	}
	r2, err := mem.Save(ctx, memorystore.SaveOptions{
		Content: "deploys use a blue-green rollout strategy", Embedding: []float32{0.999, 0.01, 0, 0}, ScopeID: "proj",
		Dedup: boolPtr(false), AutoLink: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("save 2: %v", err)
	}
	backdate(t, db, r1.Memory.ID, 8*24*time.Hour)
	backdate(t, db, r2.Memory.ID, 8*24*time.Hour)

	report, err := svc.Consolidate(ctx, "proj")
	if err != nil {
		t.Fatalf("Consolidate() error = %v", err)
	}
	if report.Skipped {
		t.Fatalf("unexpected skip: %s", report.SkipReason)
	}
	if len(report.Merges) != 1 {
		t.Fatalf("expected 1 merge, got %d", len(report.Merges))
	}
	mergedID := report.Merges[0].MergedID

	a, err := mem.Get(r1.Memory.ID)
	if err != nil || a == nil {
		t.Fatalf("get original 1: %v", err)
	}
	if a.InvalidatedBy != mergedID {
		t.Errorf("original 1 invalidated_by = %q, want %q", a.InvalidatedBy, mergedID)
	}
	b, err := mem.Get(r2.Memory.ID)
	if err != nil || b == nil {
		t.Fatalf("get original 2: %v", err)
	}
	if b.InvalidatedBy != mergedID {
		t.Errorf("original 2 invalidated_by = %q, want %q", b.InvalidatedBy, mergedID)
	}

	links, err := db.GetLinksForMemory(mergedID, &database.RelationshipFilters{Relation: "supersedes"})
	if err != nil {
		t.Fatalf("get links: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected 2 supersedes edges, got %d", len(links))
	}

	// Undo restores the pre-consolidation state.
	if err := svc.Undo(ctx, mergedID); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	a2, _ := mem.Get(r1.Memory.ID)
	if a2.InvalidatedBy != "" {
		t.Errorf("original 1 still invalidated after undo")
	}
	b2, _ := mem.Get(r2.Memory.ID)
	if b2.InvalidatedBy != "" {
		t.Errorf("original 2 still invalidated after undo")
	}
	merged, _ := mem.Get(mergedID)
	if merged != nil {
		t.Errorf("merged memory still exists after undo")
	}
}

func TestConsolidateRequireLLMMergeWithoutFuncSkips(t *testing.T) {
	cCfg := config.ConsolidationConfig{
		Enabled:            true,
		SimilarityForMerge: 0.9,
		MinMemoryAgeDays:   7,
		MinCorpusSize:      2,
		RequireLLMMerge:    true,
	}
	svc, mem, db := newTestFixture(t, cCfg, config.RetentionConfig{}, nil)
	ctx := context.Background()

	r1, _ := mem.Save(ctx, memorystore.SaveOptions{Content: "a", Embedding: []float32{1, 0, 0, 0}, ScopeID: "proj", Dedup: boolPtr(false), AutoLink: boolPtr(false)})
	r2, _ := mem.Save(ctx, memorystore.SaveOptions{Content: "b", Embedding: []float32{1, 0, 0, 0}, ScopeID: "proj", Dedup: boolPtr(false), AutoLink: boolPtr(false)})
	backdate(t, db, r1.Memory.ID, 8*24*time.Hour)
	backdate(t, db, r2.Memory.ID, 8*24*time.Hour)

	report, err := svc.Consolidate(ctx, "proj")
	if err != nil {
		t.Fatalf("Consolidate() error = %v", err)
	}
	if len(report.Merges) != 0 {
		t.Fatalf("expected no merges without an LLM merge function, got %d", len(report.Merges))
	}
	if report.PairsSkipped != 1 {
		t.Errorf("expected 1 skipped pair, got %d", report.PairsSkipped)
	}
}

func TestRunRetentionProtectsYoungAndSupersededMemories(t *testing.T) {
	rCfg := config.RetentionConfig{
		Enabled:          true,
		DecayShape:       config.DecayExponential,
		HalfLifeHours:    168,
		AccessWeight:     0.2,
		MaxAccessBoost:   2.0,
		KeepThreshold:    0.3,
		DeleteThreshold:  0.05,
		MinMemoryAgeDays: 7,
	}
	svc, mem, db := newTestFixture(t, config.ConsolidationConfig{}, rCfg, nil)
	ctx := context.Background()

	young, _ := mem.Save(ctx, memorystore.SaveOptions{Content: "young memory", Embedding: []float32{1, 0, 0, 0}, ScopeID: "proj", Dedup: boolPtr(false), AutoLink: boolPtr(false)})

	old, _ := mem.Save(ctx, memorystore.SaveOptions{Content: "old stale memory", Embedding: []float32{0, 1, 0, 0}, ScopeID: "proj", Dedup: boolPtr(false), AutoLink: boolPtr(false)})
	backdate(t, db, old.Memory.ID, 365*24*time.Hour)

	report, err := svc.RunRetention(ctx, "proj")
	if err != nil {
		t.Fatalf("RunRetention() error = %v", err)
	}

	gotYoung, _ := mem.Get(young.Memory.ID)
	if gotYoung == nil {
		t.Error("young memory should never be deleted regardless of score")
	}

	gotOld, _ := mem.Get(old.Memory.ID)
	if gotOld != nil {
		t.Error("old low-scoring memory should have been deleted")
	}
	if report.Deleted != 1 {
		t.Errorf("report.Deleted = %d, want 1", report.Deleted)
	}
}

func boolPtr(b bool) *bool { return &b }
