package bm25index

import "testing"

func TestSearchRanksByRelevance(t *testing.T) {
	docs := []DocInput{
		{ID: "a", Tokens: []string{"parse", "token", "stream"}},
		{ID: "b", Tokens: []string{"parse", "parse", "parse", "config"}},
		{ID: "c", Tokens: []string{"render", "template"}},
	}
	ix := Build(DefaultParams(), docs)

	matches := ix.Search([]string{"parse"}, 0)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != "b" {
		t.Fatalf("expected doc b (3 occurrences) to rank first, got %s", matches[0].ID)
	}
}

func TestSearchNoMatchReturnsEmpty(t *testing.T) {
	ix := Build(DefaultParams(), []DocInput{{ID: "a", Tokens: []string{"foo"}}})
	if matches := ix.Search([]string{"bar"}, 0); len(matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(matches))
	}
}

func TestSearchLimit(t *testing.T) {
	docs := []DocInput{
		{ID: "a", Tokens: []string{"x"}},
		{ID: "b", Tokens: []string{"x"}},
		{ID: "c", Tokens: []string{"x"}},
	}
	ix := Build(DefaultParams(), docs)
	matches := ix.Search([]string{"x"}, 2)
	if len(matches) != 2 {
		t.Fatalf("expected limit to cap results at 2, got %d", len(matches))
	}
}

func TestSearchDeterministicTieBreak(t *testing.T) {
	docs := []DocInput{
		{ID: "z", Tokens: []string{"x"}},
		{ID: "a", Tokens: []string{"x"}},
	}
	ix := Build(DefaultParams(), docs)
	matches := ix.Search([]string{"x"}, 0)
	if len(matches) != 2 || matches[0].ID != "a" || matches[1].ID != "z" {
		t.Fatalf("expected tie to break by ascending ID, got %+v", matches)
	}
}

func TestEmptyIndex(t *testing.T) {
	ix := Build(DefaultParams(), nil)
	if ix.Size() != 0 {
		t.Fatalf("expected size 0, got %d", ix.Size())
	}
	if matches := ix.Search([]string{"x"}, 0); matches != nil {
		t.Fatalf("expected nil matches on empty index, got %+v", matches)
	}
}
