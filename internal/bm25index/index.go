package bm25index

import (
	"math"
	"sort"
)

// Params holds the Okapi BM25 free parameters.
type Params struct {
	K1 float64
	B  float64
}

// DefaultParams returns the tuning used across all corpora: k1=1.2, b=0.75.
func DefaultParams() Params {
	return Params{K1: 1.2, B: 0.75}
}

// DocInput is one document's token stream at index-build time. Tokens are
// expected to already be lowercased/stemmed/split by internal/tokenizer;
// this package only counts them.
type DocInput struct {
	ID     string
	Tokens []string
}

// Match is one scored hit from a Search call.
type Match struct {
	ID    string
	Score float64
}

// Index is an immutable BM25 snapshot over one corpus. Build a new Index to
// reflect updated documents; there is no in-place mutation.
type Index struct {
	params Params

	// postings[token][docID] = term frequency within that document.
	postings map[string]map[string]int
	docLen   map[string]int
	avgDL    float64
	n        int
}

// Build constructs an Index from a full set of per-document token streams.
// Documents with no tokens are indexed with length 0 and never match.
func Build(params Params, docs []DocInput) *Index {
	ix := &Index{
		params:   params,
		postings: make(map[string]map[string]int),
		docLen:   make(map[string]int, len(docs)),
	}

	var totalLen int64
	for _, d := range docs {
		ix.docLen[d.ID] = len(d.Tokens)
		totalLen += int64(len(d.Tokens))

		counts := make(map[string]int, len(d.Tokens))
		for _, tok := range d.Tokens {
			counts[tok]++
		}
		for tok, tf := range counts {
			bucket, ok := ix.postings[tok]
			if !ok {
				bucket = make(map[string]int)
				ix.postings[tok] = bucket
			}
			bucket[d.ID] = tf
		}
	}

	ix.n = len(docs)
	if ix.n > 0 {
		ix.avgDL = float64(totalLen) / float64(ix.n)
	}
	return ix
}

// Size returns the number of documents in the index.
func (ix *Index) Size() int {
	return ix.n
}

// Search scores every document containing at least one query token using
// Okapi BM25 with Lucene-style IDF, and returns the top limit matches sorted
// by descending score, tie-broken by ascending document ID for determinism.
// A limit <= 0 returns every match with nonzero score.
func (ix *Index) Search(queryTokens []string, limit int) []Match {
	if ix.n == 0 || len(queryTokens) == 0 {
		return nil
	}

	// Deduplicate query tokens: a token appearing twice in the query
	// contributes its IDF*TF term once
	// per document, matching standard BM25 (query term frequency is not
	// separately weighted here, consistent with the teacher's keyword
	// search which treats the query as a token set).
	seen := make(map[string]bool, len(queryTokens))
	scores := make(map[string]float64)

	for _, qt := range queryTokens {
		if seen[qt] {
			continue
		}
		seen[qt] = true

		bucket, ok := ix.postings[qt]
		if !ok {
			continue
		}
		df := len(bucket)
		idf := math.Log(1 + (float64(ix.n)-float64(df)+0.5)/(float64(df)+0.5))

		for docID, tf := range bucket {
			dl := float64(ix.docLen[docID])
			denom := float64(tf) + ix.params.K1*(1-ix.params.B+ix.params.B*dl/ix.avgDL)
			scores[docID] += idf * (float64(tf) * (ix.params.K1 + 1) / denom)
		}
	}

	matches := make([]Match, 0, len(scores))
	for docID, score := range scores {
		if score <= 0 {
			continue
		}
		matches = append(matches, Match{ID: docID, Score: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
