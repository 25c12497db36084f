package vectorstore

import (
	"context"
	"testing"
	"time"
)

type fakeIndex struct {
	available bool
	searchErr error
	upserts   map[string][]float32
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{available: true, upserts: make(map[string][]float32)}
}

func (f *fakeIndex) Upsert(ctx context.Context, corpus Corpus, id string, embedding []float32) error {
	f.upserts[id] = embedding
	return nil
}

func (f *fakeIndex) Delete(ctx context.Context, corpus Corpus, id string) error {
	delete(f.upserts, id)
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, corpus Corpus, query []float32, k int) ([]Match, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return []Match{{ID: "from-ann", Score: 0.99}}, nil
}

func (f *fakeIndex) Available(ctx context.Context) bool {
	return f.available
}

type fakeCandidates struct {
	byCorpus map[Corpus]map[string][]float32
}

func (f *fakeCandidates) Embeddings(ctx context.Context, corpus Corpus) (map[string][]float32, error) {
	return f.byCorpus[corpus], nil
}

func TestSearchUsesBruteForceBelowThreshold(t *testing.T) {
	candidates := &fakeCandidates{byCorpus: map[Corpus]map[string][]float32{
		CorpusDocuments: {
			"a": {1, 0, 0},
			"b": {0, 1, 0},
		},
	}}
	index := newFakeIndex()
	store := NewStore(index, candidates, 10, time.Minute, 0)

	matches, err := store.Search(context.Background(), CorpusDocuments, []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches from brute force, got %d", len(matches))
	}
	if matches[0].ID != "a" {
		t.Errorf("expected exact match 'a' to rank first, got %s", matches[0].ID)
	}
}

func TestSearchUsesANNAboveThreshold(t *testing.T) {
	candidates := &fakeCandidates{byCorpus: map[Corpus]map[string][]float32{
		CorpusDocuments: {"a": {1, 0, 0}, "b": {0, 1, 0}, "c": {0, 0, 1}},
	}}
	index := newFakeIndex()
	store := NewStore(index, candidates, 2, time.Minute, 0)

	matches, err := store.Search(context.Background(), CorpusDocuments, []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "from-ann" {
		t.Fatalf("expected ANN backend result above threshold, got %+v", matches)
	}
}

func TestSearchFallsBackAndBacksOffOnANNFailure(t *testing.T) {
	candidates := &fakeCandidates{byCorpus: map[Corpus]map[string][]float32{
		CorpusDocuments: {"a": {1, 0, 0}, "b": {0, 1, 0}, "c": {0, 0, 1}},
	}}
	index := newFakeIndex()
	index.searchErr = errBoom
	store := NewStore(index, candidates, 2, time.Hour, 0)

	matches, err := store.Search(context.Background(), CorpusDocuments, []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if matches[0].ID != "a" {
		t.Fatalf("expected brute force fallback after ANN error, got %+v", matches)
	}

	// Backoff window should keep routing to brute force even once the ANN
	// backend's Available() would report it healthy again.
	index.searchErr = nil
	matches, err = store.Search(context.Background(), CorpusDocuments, []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("second Search() error = %v", err)
	}
	if matches[0].ID != "a" {
		t.Fatalf("expected brute force still used during backoff window, got %+v", matches)
	}
}

func TestUpsertAndSearchRejectWrongDimension(t *testing.T) {
	candidates := &fakeCandidates{byCorpus: map[Corpus]map[string][]float32{}}
	index := newFakeIndex()
	store := NewStore(index, candidates, 10, time.Minute, 3)

	if err := store.Upsert(context.Background(), CorpusMemories, "a", []float32{1, 0}); err == nil {
		t.Fatal("expected Upsert() to reject a 2-dimensional vector against a 3-dimensional store")
	}
	if _, err := store.Search(context.Background(), CorpusMemories, []float32{1, 0}, 5); err == nil {
		t.Fatal("expected Search() to reject a 2-dimensional query against a 3-dimensional store")
	}
	if err := store.Upsert(context.Background(), CorpusMemories, "a", []float32{1, 0, 0}); err != nil {
		t.Fatalf("expected a correctly-sized vector to be accepted, got %v", err)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0.0},
		{"mismatched length", []float32{1, 0, 0}, []float32{1, 0}, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("cosineSimilarity(%v, %v) = %f, want %f", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

var errBoom = &boomError{}

type boomError struct{}

func (e *boomError) Error() string { return "boom" }
