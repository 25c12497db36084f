package database

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(dbPath, 8)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}
	return db
}

func testEmbedding(dim int, seed float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = seed + float32(i)*0.01
	}
	return v
}

func TestOpenAndInitSchema(t *testing.T) {
	db := newTestDB(t)

	version, err := db.GetSchemaVersion()
	if err != nil {
		t.Fatalf("GetSchemaVersion() error = %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("schema version = %d, want %d", version, SchemaVersion)
	}

	for _, table := range []string{"documents", "memories", "memory_links", "centrality_scores", "token_frequencies", "categories", "domains"} {
		exists, err := db.TableExists(table)
		if err != nil {
			t.Fatalf("TableExists(%s) error = %v", table, err)
		}
		if !exists {
			t.Errorf("table %s should exist after InitSchema", table)
		}
	}

	// Calling InitSchema again on an initialized database is a no-op.
	if err := db.InitSchema(); err != nil {
		t.Fatalf("second InitSchema() error = %v", err)
	}
}

func TestDocumentUpsertIsIdempotentOnPathAndChunk(t *testing.T) {
	db := newTestDB(t)

	doc := &Document{
		ScopeID:    "proj-a",
		Path:       "code:internal/foo.go",
		ChunkIndex: 0,
		Content:    "func Foo() {}",
		SymbolName: "Foo",
		SymbolType: "function",
		Embedding:  testEmbedding(8, 0.1),
	}
	if err := db.UpsertDocument(doc); err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}
	firstID := doc.ID
	if firstID == "" {
		t.Fatal("expected document ID to be generated")
	}

	doc2 := &Document{
		ScopeID:    "proj-a",
		Path:       "code:internal/foo.go",
		ChunkIndex: 0,
		Content:    "func Foo() { return }",
		SymbolName: "Foo",
		SymbolType: "function",
		Embedding:  testEmbedding(8, 0.2),
	}
	if err := db.UpsertDocument(doc2); err != nil {
		t.Fatalf("second UpsertDocument() error = %v", err)
	}
	if doc2.ID != firstID {
		t.Errorf("upsert on same (scope,path,chunk) should reuse id, got new id %s vs %s", doc2.ID, firstID)
	}

	docs, err := db.ListDocumentsByPath("proj-a", "code:internal/foo.go")
	if err != nil {
		t.Fatalf("ListDocumentsByPath() error = %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document after upsert, got %d", len(docs))
	}
	if docs[0].Content != "func Foo() { return }" {
		t.Errorf("expected updated content to persist, got %q", docs[0].Content)
	}
}

func TestDeleteDocumentsByPath(t *testing.T) {
	db := newTestDB(t)

	for i := 0; i < 3; i++ {
		doc := &Document{ScopeID: "proj-a", Path: "code:a.go", ChunkIndex: i, Content: "chunk", Embedding: testEmbedding(8, float32(i))}
		if err := db.UpsertDocument(doc); err != nil {
			t.Fatalf("UpsertDocument() error = %v", err)
		}
	}

	ids, err := db.DeleteDocumentsByPath("proj-a", "code:a.go")
	if err != nil {
		t.Fatalf("DeleteDocumentsByPath() error = %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("expected 3 deleted ids, got %d", len(ids))
	}

	docs, err := db.ListDocumentsByPath("proj-a", "code:a.go")
	if err != nil {
		t.Fatalf("ListDocumentsByPath() error = %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected 0 documents after delete, got %d", len(docs))
	}
}

func TestCreateAndGetMemory(t *testing.T) {
	db := newTestDB(t)

	m := &Memory{
		ScopeID: "proj-a",
		Content: "prefer table-driven tests",
		Tags:    []string{"testing", "style"},
		Kind:    "preference",
	}
	if err := db.CreateMemory(m); err != nil {
		t.Fatalf("CreateMemory() error = %v", err)
	}
	if m.ID == "" {
		t.Fatal("expected memory ID to be generated")
	}

	got, err := db.GetMemory(m.ID)
	if err != nil {
		t.Fatalf("GetMemory() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetMemory() returned nil for existing memory")
	}
	if got.Content != m.Content {
		t.Errorf("content = %q, want %q", got.Content, m.Content)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "testing" {
		t.Errorf("tags = %v, want [testing style]", got.Tags)
	}
	if !got.Active(time.Now()) {
		t.Error("newly created memory should be active")
	}
}

func TestGetMemoryNotFoundReturnsNilNil(t *testing.T) {
	db := newTestDB(t)

	got, err := db.GetMemory("does-not-exist")
	if err != nil {
		t.Fatalf("GetMemory() error = %v, want nil", err)
	}
	if got != nil {
		t.Errorf("GetMemory() = %v, want nil for missing id", got)
	}
}

func TestSoftInvalidateAndRestoreMemory(t *testing.T) {
	db := newTestDB(t)

	original := &Memory{ScopeID: "proj-a", Content: "the API uses REST", Kind: "decision"}
	replacement := &Memory{ScopeID: "proj-a", Content: "the API uses gRPC", Kind: "decision"}
	if err := db.CreateMemory(original); err != nil {
		t.Fatalf("CreateMemory(original) error = %v", err)
	}
	if err := db.CreateMemory(replacement); err != nil {
		t.Fatalf("CreateMemory(replacement) error = %v", err)
	}

	if err := db.SoftInvalidateMemory(original.ID, replacement.ID); err != nil {
		t.Fatalf("SoftInvalidateMemory() error = %v", err)
	}

	got, err := db.GetMemory(original.ID)
	if err != nil {
		t.Fatalf("GetMemory() error = %v", err)
	}
	if got.Active(time.Now()) {
		t.Error("invalidated memory should not be active")
	}
	if got.InvalidatedBy != replacement.ID {
		t.Errorf("invalidated_by = %q, want %q", got.InvalidatedBy, replacement.ID)
	}

	// As-of a time before invalidation, the memory is still active.
	past := got.ValidFrom.Add(-time.Second)
	if !got.Active(past) {
		t.Error("memory should be active as-of a time before its invalidation")
	}

	if err := db.RestoreMemory(original.ID); err != nil {
		t.Fatalf("RestoreMemory() error = %v", err)
	}
	got, err = db.GetMemory(original.ID)
	if err != nil {
		t.Fatalf("GetMemory() after restore error = %v", err)
	}
	if !got.Active(time.Now()) {
		t.Error("restored memory should be active again")
	}
}

func TestListMemoriesRespectsScopeAndTemporalFilter(t *testing.T) {
	db := newTestDB(t)

	global := &Memory{Content: "global fact", Kind: "observation"}
	scoped := &Memory{ScopeID: "proj-a", Content: "scoped fact", Kind: "observation"}
	other := &Memory{ScopeID: "proj-b", Content: "other scope fact", Kind: "observation"}
	for _, m := range []*Memory{global, scoped, other} {
		if err := db.CreateMemory(m); err != nil {
			t.Fatalf("CreateMemory() error = %v", err)
		}
	}

	results, err := db.ListMemories(&MemoryFilters{ScopeID: "proj-a", IncludeGlobal: true})
	if err != nil {
		t.Fatalf("ListMemories() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 memories (scoped + global), got %d", len(results))
	}

	results, err = db.ListMemories(&MemoryFilters{ScopeID: "proj-a", IncludeGlobal: false})
	if err != nil {
		t.Fatalf("ListMemories() error = %v", err)
	}
	if len(results) != 1 || results[0].ID != scoped.ID {
		t.Fatalf("expected only the proj-a scoped memory, got %d results", len(results))
	}

	if err := db.SoftInvalidateMemory(scoped.ID, ""); err != nil {
		t.Fatalf("SoftInvalidateMemory() error = %v", err)
	}
	results, err = db.ListMemories(&MemoryFilters{ScopeID: "proj-a", IncludeGlobal: false})
	if err != nil {
		t.Fatalf("ListMemories() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected invalidated memory excluded by default, got %d results", len(results))
	}

	results, err = db.ListMemories(&MemoryFilters{ScopeID: "proj-a", IncludeGlobal: false, IncludeExpired: true})
	if err != nil {
		t.Fatalf("ListMemories() error = %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected invalidated memory included with IncludeExpired, got %d results", len(results))
	}
}

func TestDeleteMemoryCascadesLinks(t *testing.T) {
	db := newTestDB(t)

	a := &Memory{Content: "a", Kind: "observation"}
	b := &Memory{Content: "b", Kind: "observation"}
	if err := db.CreateMemory(a); err != nil {
		t.Fatalf("CreateMemory(a) error = %v", err)
	}
	if err := db.CreateMemory(b); err != nil {
		t.Fatalf("CreateMemory(b) error = %v", err)
	}
	if err := db.CreateLink(&MemoryLink{SourceID: a.ID, TargetID: b.ID, Relation: "related", Weight: 0.8}); err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}

	if err := db.DeleteMemory(a.ID); err != nil {
		t.Fatalf("DeleteMemory() error = %v", err)
	}

	links, err := db.GetLinksForMemory(b.ID, nil)
	if err != nil {
		t.Fatalf("GetLinksForMemory() error = %v", err)
	}
	if len(links) != 0 {
		t.Errorf("expected cascaded link deletion, got %d remaining links", len(links))
	}
}

func TestCreateLinkRejectsUnknownRelation(t *testing.T) {
	db := newTestDB(t)

	a := &Memory{Content: "a"}
	b := &Memory{Content: "b"}
	if err := db.CreateMemory(a); err != nil {
		t.Fatalf("CreateMemory(a) error = %v", err)
	}
	if err := db.CreateMemory(b); err != nil {
		t.Fatalf("CreateMemory(b) error = %v", err)
	}

	err := db.CreateLink(&MemoryLink{SourceID: a.ID, TargetID: b.ID, Relation: "bogus", Weight: 0.5})
	if err == nil {
		t.Fatal("expected error for invalid relation type")
	}
}

func TestCreateLinkIsIdempotentOnSourceTargetRelation(t *testing.T) {
	db := newTestDB(t)

	a := &Memory{Content: "a"}
	b := &Memory{Content: "b"}
	if err := db.CreateMemory(a); err != nil {
		t.Fatalf("CreateMemory(a) error = %v", err)
	}
	if err := db.CreateMemory(b); err != nil {
		t.Fatalf("CreateMemory(b) error = %v", err)
	}

	if err := db.CreateLink(&MemoryLink{SourceID: a.ID, TargetID: b.ID, Relation: "similar_to", Weight: 0.5}); err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}
	second := &MemoryLink{SourceID: a.ID, TargetID: b.ID, Relation: "similar_to", Weight: 0.9}
	if err := db.CreateLink(second); err != nil {
		t.Fatalf("second CreateLink() error = %v", err)
	}
	if second.Weight != 0.5 {
		t.Errorf("expected conflicting CreateLink to return the existing edge unchanged (weight 0.5), got %f", second.Weight)
	}

	links, err := db.GetLinksBetween(a.ID, b.ID)
	if err != nil {
		t.Fatalf("GetLinksBetween() error = %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected single deduplicated link, got %d", len(links))
	}
	if links[0].Weight != 0.5 {
		t.Errorf("expected stored weight to remain 0.5 on conflict, got %f", links[0].Weight)
	}
}

func TestGetGraphTraversalRespectsDepthAndValidity(t *testing.T) {
	db := newTestDB(t)

	a := &Memory{Content: "a"}
	b := &Memory{Content: "b"}
	c := &Memory{Content: "c"}
	for _, m := range []*Memory{a, b, c} {
		if err := db.CreateMemory(m); err != nil {
			t.Fatalf("CreateMemory() error = %v", err)
		}
	}
	if err := db.CreateLink(&MemoryLink{SourceID: a.ID, TargetID: b.ID, Relation: "related", Weight: 0.5}); err != nil {
		t.Fatalf("CreateLink(a,b) error = %v", err)
	}
	if err := db.CreateLink(&MemoryLink{SourceID: b.ID, TargetID: c.ID, Relation: "leads_to", Weight: 0.5}); err != nil {
		t.Fatalf("CreateLink(b,c) error = %v", err)
	}

	graph, err := db.GetGraph(a.ID, 1, nil)
	if err != nil {
		t.Fatalf("GetGraph(depth=1) error = %v", err)
	}
	if len(graph.Nodes) != 2 {
		t.Errorf("depth-1 traversal should reach a and b only, got %d nodes", len(graph.Nodes))
	}

	graph, err = db.GetGraph(a.ID, 2, nil)
	if err != nil {
		t.Fatalf("GetGraph(depth=2) error = %v", err)
	}
	if len(graph.Nodes) != 3 {
		t.Errorf("depth-2 traversal should reach a, b and c, got %d nodes", len(graph.Nodes))
	}
}

func TestCentralityScoreRoundTrip(t *testing.T) {
	db := newTestDB(t)

	m := &Memory{Content: "central fact"}
	if err := db.CreateMemory(m); err != nil {
		t.Fatalf("CreateMemory() error = %v", err)
	}

	score, err := db.GetCentralityScore(m.ID)
	if err != nil {
		t.Fatalf("GetCentralityScore() error = %v", err)
	}
	if score != nil {
		t.Error("expected nil centrality score before it has been computed")
	}

	if err := db.UpsertCentralityScore(&CentralityScore{MemoryID: m.ID, Degree: 3, NormalizedDegree: 0.5}); err != nil {
		t.Fatalf("UpsertCentralityScore() error = %v", err)
	}
	score, err = db.GetCentralityScore(m.ID)
	if err != nil {
		t.Fatalf("GetCentralityScore() error = %v", err)
	}
	if score == nil || score.Degree != 3 {
		t.Fatalf("expected centrality score with degree 3, got %+v", score)
	}
}

func TestFileHashRoundTrip(t *testing.T) {
	db := newTestDB(t)

	fh, err := db.GetFileHash("proj-a", "main.go")
	if err != nil {
		t.Fatalf("GetFileHash() error = %v", err)
	}
	if fh != nil {
		t.Error("expected nil file hash before first index")
	}

	if err := db.UpsertFileHash(&FileHash{ScopeID: "proj-a", Path: "main.go", ContentHash: "abc123"}); err != nil {
		t.Fatalf("UpsertFileHash() error = %v", err)
	}
	fh, err = db.GetFileHash("proj-a", "main.go")
	if err != nil {
		t.Fatalf("GetFileHash() error = %v", err)
	}
	if fh == nil || fh.ContentHash != "abc123" {
		t.Fatalf("expected hash abc123, got %+v", fh)
	}

	if err := db.UpsertFileHash(&FileHash{ScopeID: "proj-a", Path: "main.go", ContentHash: "def456"}); err != nil {
		t.Fatalf("second UpsertFileHash() error = %v", err)
	}
	fh, err = db.GetFileHash("proj-a", "main.go")
	if err != nil {
		t.Fatalf("GetFileHash() error = %v", err)
	}
	if fh.ContentHash != "def456" {
		t.Errorf("expected updated hash def456, got %s", fh.ContentHash)
	}
}

func TestCategoryAndDomainCRUD(t *testing.T) {
	db := newTestDB(t)

	cat := &Category{Name: "architecture", Description: "structural decisions"}
	if err := db.CreateCategory(cat); err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
	m := &Memory{Content: "uses hexagonal architecture"}
	if err := db.CreateMemory(m); err != nil {
		t.Fatalf("CreateMemory() error = %v", err)
	}
	if err := db.CategorizeMemory(m.ID, cat.ID); err != nil {
		t.Fatalf("CategorizeMemory() error = %v", err)
	}

	cats, err := db.ListCategories()
	if err != nil {
		t.Fatalf("ListCategories() error = %v", err)
	}
	if len(cats) != 1 {
		t.Fatalf("expected 1 category, got %d", len(cats))
	}

	dom := &Domain{ScopeID: "proj-a", Name: "backend"}
	if err := db.CreateDomain(dom); err != nil {
		t.Fatalf("CreateDomain() error = %v", err)
	}
	domains, err := db.ListDomains("proj-a")
	if err != nil {
		t.Fatalf("ListDomains() error = %v", err)
	}
	if len(domains) != 1 || domains[0].Name != "backend" {
		t.Fatalf("expected 1 domain named backend, got %+v", domains)
	}
}

func TestGetStats(t *testing.T) {
	db := newTestDB(t)

	if err := db.CreateMemory(&Memory{Content: "fact one"}); err != nil {
		t.Fatalf("CreateMemory() error = %v", err)
	}
	if err := db.UpsertDocument(&Document{ScopeID: "proj-a", Path: "code:a.go", Content: "code", Embedding: testEmbedding(8, 0.1)}); err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.MemoryCount != 1 {
		t.Errorf("MemoryCount = %d, want 1", stats.MemoryCount)
	}
	if stats.DocumentCount != 1 {
		t.Errorf("DocumentCount = %d, want 1", stats.DocumentCount)
	}
	if stats.SchemaVersion != SchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", stats.SchemaVersion, SchemaVersion)
	}
}
