package ranker

import (
	"context"
	"sort"
	"time"

	"github.com/synapsedb/synapse/internal/database"
	"github.com/synapsedb/synapse/internal/tokenizer"
	"github.com/synapsedb/synapse/internal/vectorstore"
)

// MemoryResult is one ranked hit from SearchMemories.
type MemoryResult struct {
	Memory *database.Memory
	Score  float64
}

// SearchMemories ranks memories by fused BM25/vector relevance plus
// quality, recency, and centrality boosts.
func (e *Engine) SearchMemories(ctx context.Context, opts Options) ([]MemoryResult, error) {
	tokens := tokenizer.Tokenize(opts.QueryText, tokenizer.ModeProse)

	fused, err := e.fuse(ctx, corpusMemories, vectorstore.CorpusMemories, tokens, opts)
	if err != nil {
		return nil, err
	}
	if len(fused) == 0 {
		return nil, nil
	}

	re := compileFilterRegex(opts.Filters.Regex, e.cfg.MaxRegexLen)
	asOf := time.Now()
	if opts.Filters.AsOf != nil {
		asOf = *opts.Filters.AsOf
	}

	mems := make(map[string]*database.Memory, len(fused))
	kept := fused[:0:0]
	for _, c := range fused {
		mem, err := e.db.GetMemory(c.ID)
		if err != nil {
			return nil, err
		}
		if mem == nil {
			continue
		}
		if !opts.Filters.IncludeExpired && !mem.Active(asOf) {
			continue
		}
		if opts.Filters.ScopeID != "" && mem.ScopeID != "" && mem.ScopeID != opts.Filters.ScopeID {
			continue
		}
		if re != nil && !re.MatchString(mem.Content) {
			continue
		}

		if e.cfg.QualityBoostEnabled && mem.QualityScore != nil {
			c.Score += e.cfg.QualityBoostWeight * (*mem.QualityScore)
		}

		c.Score *= recencyDecay(time.Since(mem.CreatedAt), e.cfg)

		if e.cfg.CentralityEnabled && e.graph != nil {
			cs, err := e.graph.Centrality(mem.ID)
			if err != nil {
				log.Warn("centrality lookup failed, skipping boost", "memory_id", mem.ID, "error", err)
			} else if cs != nil {
				c.Score += e.cfg.CentralityWeight * cs.NormalizedDegree
			}
		}

		c.Score = clampScore(c.Score)
		mems[c.ID] = mem
		kept = append(kept, c)
	}
	if len(kept) == 0 {
		return nil, nil
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		if kept[i].VectorScore != kept[j].VectorScore {
			return kept[i].VectorScore > kept[j].VectorScore
		}
		return kept[i].ID < kept[j].ID
	})

	if e.cfg.MMREnabled {
		embeddings := make(map[string][]float32, len(mems))
		for id, m := range mems {
			embeddings[id] = m.Embedding
		}
		kept = diversify(kept, embeddings, e.cfg.MMRLambda)
	}

	limit := limitOrDefault(opts.Limit)
	var results []MemoryResult
	for _, c := range kept {
		if c.Score < opts.Threshold {
			continue
		}
		results = append(results, MemoryResult{Memory: mems[c.ID], Score: c.Score})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}
