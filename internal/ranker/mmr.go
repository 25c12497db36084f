package ranker

import "math"

// diversify reorders candidates by Maximal Marginal Relevance: at each
// step it picks the remaining candidate maximizing
// lambda*score - (1-lambda)*maxSimilarityToAlreadySelected, so near-duplicate
// high-scoring candidates don't all cluster at the top. Candidates missing
// an embedding are treated as having zero similarity to everything (they
// can still be picked on relevance alone, just never penalized or penalize
// others).
func diversify(candidates []candidate, embeddings map[string][]float32, lambda float64) []candidate {
	if len(candidates) <= 1 {
		return candidates
	}

	remaining := append([]candidate(nil), candidates...)
	selected := make([]candidate, 0, len(candidates))

	for len(remaining) > 0 {
		bestIdx := 0
		bestValue := math.Inf(-1)
		for i, c := range remaining {
			maxSim := 0.0
			if vec, ok := embeddings[c.ID]; ok {
				for _, s := range selected {
					if sVec, ok := embeddings[s.ID]; ok {
						if sim := cosine(vec, sVec); sim > maxSim {
							maxSim = sim
						}
					}
				}
			}
			value := lambda*c.Score - (1-lambda)*maxSim
			if value > bestValue {
				bestValue = value
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

func cosine(a, b []float32) float64 {
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
