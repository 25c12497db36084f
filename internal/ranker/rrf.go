package ranker

import (
	"sort"

	"github.com/synapsedb/synapse/internal/bm25index"
	"github.com/synapsedb/synapse/internal/vectorstore"
)

const rrfK = 60

// candidate carries a fused score through the boost pipeline. Score starts
// as the RRF value and accumulates additive boosts; VectorScore never
// changes after fusion and backs both the tie-break rule and MMR.
type candidate struct {
	ID          string
	Score       float64
	VectorScore float64
}

// fuseRRF combines BM25 and vector result lists with Reciprocal Rank
// Fusion: rrf(x) = alpha*(1/(60+rank_vec)) + (1-alpha)*(1/(60+rank_bm25)).
// A candidate present in only one list is scored using only that list's
// term. The returned slice is sorted by descending fused score.
func fuseRRF(bm25 []bm25index.Match, vector []vectorstore.Match, alpha float64) []candidate {
	bm25Rank := make(map[string]int, len(bm25))
	for i, m := range bm25 {
		bm25Rank[m.ID] = i + 1
	}
	vectorRank := make(map[string]int, len(vector))
	vectorScore := make(map[string]float64, len(vector))
	for i, m := range vector {
		vectorRank[m.ID] = i + 1
		vectorScore[m.ID] = m.Score
	}

	seen := make(map[string]bool, len(bm25)+len(vector))
	var out []candidate
	addOnce := func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true

		var score float64
		if rank, ok := vectorRank[id]; ok {
			score += alpha * (1.0 / float64(rrfK+rank))
		}
		if rank, ok := bm25Rank[id]; ok {
			score += (1 - alpha) * (1.0 / float64(rrfK+rank))
		}
		out = append(out, candidate{ID: id, Score: score, VectorScore: vectorScore[id]})
	}

	for _, m := range bm25 {
		addOnce(m.ID)
	}
	for _, m := range vector {
		addOnce(m.ID)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].VectorScore != out[j].VectorScore {
			return out[i].VectorScore > out[j].VectorScore
		}
		return out[i].ID < out[j].ID
	})
	return out
}
