package graph

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/synapsedb/synapse/internal/database"
	"github.com/synapsedb/synapse/pkg/config"
)

func newTestDB(t *testing.T) *database.Database {
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
	return db
}

func newTestMemory(t *testing.T, db *database.Database, content string) *database.Memory {
	t.Helper()
	m := &database.Memory{
		ID:        uuid.New().String(),
		Content:   content,
		Kind:      "fact",
		ValidFrom: time.Now(),
		CreatedAt: time.Now(),
	}
	if err := db.CreateMemory(m); err != nil {
		t.Fatalf("CreateMemory() error = %v", err)
	}
	return m
}

func newTestService(t *testing.T) (*Service, *database.Database) {
	t.Helper()
	db := newTestDB(t)
	cfg := config.DefaultConfig().Ranker
	return New(db, nil, &cfg), db
}

func TestLinkCreatesEdge(t *testing.T) {
	svc, db := newTestService(t)
	a := newTestMemory(t, db, "a")
	b := newTestMemory(t, db, "b")

	link, err := svc.Link(LinkOptions{SourceID: a.ID, TargetID: b.ID, Relation: "related"})
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if link.Weight != 1.0 {
		t.Errorf("default weight = %f, want 1.0", link.Weight)
	}

	links, err := db.GetLinksForMemory(a.ID, nil)
	if err != nil {
		t.Fatalf("GetLinksForMemory() error = %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
}

func TestLinkRejectsSelfLoop(t *testing.T) {
	svc, db := newTestService(t)
	a := newTestMemory(t, db, "a")

	if _, err := svc.Link(LinkOptions{SourceID: a.ID, TargetID: a.ID, Relation: "related"}); err == nil {
		t.Fatal("expected error linking a memory to itself")
	}
}

func TestLinkRejectsInvalidRelation(t *testing.T) {
	svc, db := newTestService(t)
	a := newTestMemory(t, db, "a")
	b := newTestMemory(t, db, "b")

	if _, err := svc.Link(LinkOptions{SourceID: a.ID, TargetID: b.ID, Relation: "bogus"}); err == nil {
		t.Fatal("expected error for invalid relation type")
	}
}

func TestLinkIsIdempotent(t *testing.T) {
	svc, db := newTestService(t)
	a := newTestMemory(t, db, "a")
	b := newTestMemory(t, db, "b")

	first, err := svc.Link(LinkOptions{SourceID: a.ID, TargetID: b.ID, Relation: "related", Weight: 0.5})
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	second, err := svc.Link(LinkOptions{SourceID: a.ID, TargetID: b.ID, Relation: "related", Weight: 0.9})
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if first.ID != second.ID || second.Weight != 0.5 {
		t.Fatalf("expected second Link call to return the existing edge unchanged, got %+v", second)
	}
}

func TestInvalidateLinkRemovesFromActive(t *testing.T) {
	svc, db := newTestService(t)
	a := newTestMemory(t, db, "a")
	b := newTestMemory(t, db, "b")

	link, err := svc.Link(LinkOptions{SourceID: a.ID, TargetID: b.ID, Relation: "related"})
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if err := svc.InvalidateLink(link.ID); err != nil {
		t.Fatalf("InvalidateLink() error = %v", err)
	}

	links, err := db.GetLinksForMemory(a.ID, nil)
	if err != nil {
		t.Fatalf("GetLinksForMemory() error = %v", err)
	}
	if len(links) != 0 {
		t.Fatalf("expected link to no longer be active, got %d", len(links))
	}
}

func TestConnectedTraversesMultiHop(t *testing.T) {
	svc, db := newTestService(t)
	a := newTestMemory(t, db, "a")
	b := newTestMemory(t, db, "b")
	c := newTestMemory(t, db, "c")

	if _, err := svc.Link(LinkOptions{SourceID: a.ID, TargetID: b.ID, Relation: "related"}); err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if _, err := svc.Link(LinkOptions{SourceID: b.ID, TargetID: c.ID, Relation: "leads_to"}); err != nil {
		t.Fatalf("Link() error = %v", err)
	}

	g, err := svc.Connected(a.ID, 2)
	if err != nil {
		t.Fatalf("Connected() error = %v", err)
	}
	if len(g.Nodes) != 3 {
		t.Fatalf("expected 3 reachable nodes, got %d", len(g.Nodes))
	}
}

func TestConnectedAsOfExcludesFutureLinks(t *testing.T) {
	svc, db := newTestService(t)
	a := newTestMemory(t, db, "a")
	b := newTestMemory(t, db, "b")

	before := time.Now()
	time.Sleep(5 * time.Millisecond)
	if _, err := svc.Link(LinkOptions{SourceID: a.ID, TargetID: b.ID, Relation: "related"}); err != nil {
		t.Fatalf("Link() error = %v", err)
	}

	g, err := svc.ConnectedAsOf(a.ID, 2, before)
	if err != nil {
		t.Fatalf("ConnectedAsOf() error = %v", err)
	}
	if len(g.Nodes) != 1 {
		t.Fatalf("expected link created after cutoff to be excluded, got %d nodes", len(g.Nodes))
	}
}

func TestCentralityReflectsDegree(t *testing.T) {
	svc, db := newTestService(t)
	a := newTestMemory(t, db, "a")
	b := newTestMemory(t, db, "b")
	c := newTestMemory(t, db, "c")

	if _, err := svc.Link(LinkOptions{SourceID: a.ID, TargetID: b.ID, Relation: "related"}); err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if _, err := svc.Link(LinkOptions{SourceID: a.ID, TargetID: c.ID, Relation: "related"}); err != nil {
		t.Fatalf("Link() error = %v", err)
	}

	score, err := svc.Centrality(a.ID)
	if err != nil {
		t.Fatalf("Centrality() error = %v", err)
	}
	if score.Degree != 2 {
		t.Errorf("degree = %d, want 2", score.Degree)
	}
}

func TestRecomputeCentralityNormalizesAgainstMax(t *testing.T) {
	svc, db := newTestService(t)
	a := newTestMemory(t, db, "a")
	b := newTestMemory(t, db, "b")
	c := newTestMemory(t, db, "c")

	if _, err := svc.Link(LinkOptions{SourceID: a.ID, TargetID: b.ID, Relation: "related"}); err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if _, err := svc.Link(LinkOptions{SourceID: a.ID, TargetID: c.ID, Relation: "related"}); err != nil {
		t.Fatalf("Link() error = %v", err)
	}

	if err := svc.RecomputeCentrality(); err != nil {
		t.Fatalf("RecomputeCentrality() error = %v", err)
	}

	scoreA, err := db.GetCentralityScore(a.ID)
	if err != nil {
		t.Fatalf("GetCentralityScore() error = %v", err)
	}
	if scoreA.NormalizedDegree != 1.0 {
		t.Errorf("expected memory a (max degree) to normalize to 1.0, got %f", scoreA.NormalizedDegree)
	}

	scoreB, err := db.GetCentralityScore(b.ID)
	if err != nil {
		t.Fatalf("GetCentralityScore() error = %v", err)
	}
	if scoreB.NormalizedDegree != 0.5 {
		t.Errorf("expected memory b (degree 1 of max 2) to normalize to 0.5, got %f", scoreB.NormalizedDegree)
	}
}

func TestStatsTalliesByRelation(t *testing.T) {
	svc, db := newTestService(t)
	a := newTestMemory(t, db, "a")
	b := newTestMemory(t, db, "b")
	c := newTestMemory(t, db, "c")

	if _, err := svc.Link(LinkOptions{SourceID: a.ID, TargetID: b.ID, Relation: "related"}); err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if _, err := svc.Link(LinkOptions{SourceID: a.ID, TargetID: c.ID, Relation: "contradicts"}); err != nil {
		t.Fatalf("Link() error = %v", err)
	}

	stats, err := svc.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalLinks != 2 {
		t.Errorf("total links = %d, want 2", stats.TotalLinks)
	}
	if stats.ByRelation["related"] != 1 || stats.ByRelation["contradicts"] != 1 {
		t.Errorf("unexpected tally: %+v", stats.ByRelation)
	}
}

func TestRelationTypesIncludesCoreSet(t *testing.T) {
	types := RelationTypes()
	want := map[string]bool{
		"related": false, "caused_by": false, "leads_to": false, "similar_to": false,
		"contradicts": false, "implements": false, "supersedes": false, "references": false,
	}
	for _, rt := range types {
		if _, ok := want[rt]; ok {
			want[rt] = true
		}
	}
	for rt, found := range want {
		if !found {
			t.Errorf("expected relation type %q in RelationTypes()", rt)
		}
	}
}
