package ranker

import (
	"context"
	"sort"

	"github.com/synapsedb/synapse/internal/database"
	"github.com/synapsedb/synapse/internal/tokenizer"
	"github.com/synapsedb/synapse/internal/vectorstore"
)

// DocumentResult is one ranked hit from SearchCode or SearchDocs.
type DocumentResult struct {
	Document *database.Document
	Score    float64
}

// SearchCode ranks code-corpus documents (paths with the "code:" prefix).
func (e *Engine) SearchCode(ctx context.Context, opts Options) ([]DocumentResult, error) {
	return e.searchDocuments(ctx, corpusCode, true, opts)
}

// SearchDocs ranks prose-corpus documents (everything not under "code:").
func (e *Engine) SearchDocs(ctx context.Context, opts Options) ([]DocumentResult, error) {
	return e.searchDocuments(ctx, corpusDocs, false, opts)
}

func (e *Engine) searchDocuments(ctx context.Context, bm25Corpus string, isCode bool, opts Options) ([]DocumentResult, error) {
	mode := tokenizer.ModeProse
	if isCode {
		mode = tokenizer.ModeCode
	}
	tokens := tokenizer.Tokenize(opts.QueryText, mode)

	fused, err := e.fuse(ctx, bm25Corpus, vectorstore.CorpusDocuments, tokens, opts)
	if err != nil {
		return nil, err
	}
	if len(fused) == 0 {
		return nil, nil
	}

	re := compileFilterRegex(opts.Filters.Regex, e.cfg.MaxRegexLen)
	query := normalizedQuery(opts.QueryText)

	docs := make(map[string]*database.Document, len(fused))
	kept := fused[:0:0]
	for _, c := range fused {
		doc, err := e.db.GetDocument(c.ID)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}
		if opts.Filters.ScopeID != "" && doc.ScopeID != opts.Filters.ScopeID {
			continue
		}
		if opts.Filters.SymbolType != "" && doc.SymbolType != opts.Filters.SymbolType {
			continue
		}
		if re != nil && !re.MatchString(doc.Content) {
			continue
		}

		if isCode {
			c.Score += symbolBoost(query, doc.SymbolName, e.cfg.SymbolExactBoost, e.cfg.SymbolPartialBoost)
		}
		c.Score = clampScore(c.Score)

		docs[c.ID] = doc
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
		embeddings := make(map[string][]float32, len(docs))
		for id, d := range docs {
			embeddings[id] = d.Embedding
		}
		kept = diversify(kept, embeddings, e.cfg.MMRLambda)
	}

	limit := limitOrDefault(opts.Limit)
	var results []DocumentResult
	for _, c := range kept {
		if c.Score < opts.Threshold {
			continue
		}
		results = append(results, DocumentResult{Document: docs[c.ID], Score: c.Score})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}
