package ranker

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/synapsedb/synapse/internal/bm25index"
	"github.com/synapsedb/synapse/internal/database"
	"github.com/synapsedb/synapse/internal/graph"
	"github.com/synapsedb/synapse/internal/indexcache"
	"github.com/synapsedb/synapse/internal/logging"
	"github.com/synapsedb/synapse/internal/tokenizer"
	"github.com/synapsedb/synapse/internal/vectorstore"
	"github.com/synapsedb/synapse/pkg/config"
)

var log = logging.GetLogger("ranker")

const (
	corpusCode     = "code"
	corpusDocs     = "docs"
	corpusMemories = "memories"
)

// Engine is the hybrid search entry point over the code, docs, and memories
// corpora. Construct one per open Database/vectorstore.Store pair.
type Engine struct {
	db    *database.Database
	vec   *vectorstore.Store
	index *indexcache.Coordinator
	graph *graph.Service // optional; nil disables the centrality boost
	cfg   *config.RankerConfig
	bm25  bm25index.Params
}

// New builds an Engine. graphSvc may be nil, which disables the centrality
// boost regardless of cfg.CentralityEnabled.
func New(db *database.Database, vec *vectorstore.Store, graphSvc *graph.Service, cfg *config.RankerConfig, bm25Params bm25index.Params) *Engine {
	e := &Engine{db: db, vec: vec, graph: graphSvc, cfg: cfg, bm25: bm25Params}
	e.index = indexcache.New(e.buildCorpus, 3)
	return e
}

// Invalidate marks a BM25 corpus stale, so the next search for it rebuilds.
// Call this after any write to documents (path "code" or "docs") or
// memories.
func (e *Engine) Invalidate(corpus string) {
	e.index.Invalidate(corpus)
}

func (e *Engine) buildCorpus(ctx context.Context, corpus string) (*bm25index.Index, error) {
	switch corpus {
	case corpusCode, corpusDocs:
		return e.buildDocumentCorpus(corpus)
	case corpusMemories:
		return e.buildMemoryCorpus()
	default:
		return nil, fmt.Errorf("unknown corpus: %s", corpus)
	}
}

func (e *Engine) buildDocumentCorpus(corpus string) (*bm25index.Index, error) {
	docs, err := e.allDocuments()
	if err != nil {
		return nil, err
	}

	var inputs []bm25index.DocInput
	for _, d := range docs {
		isCode := tokenizer.IsCodePath(d.Path)
		if (corpus == corpusCode) != isCode {
			continue
		}
		mode := tokenizer.ModeProse
		if isCode {
			mode = tokenizer.ModeCode
		}
		tokens := tokenizer.Tokenize(d.Content, mode)
		if isCode {
			tokens = append(tokens, tokenizer.BoostSymbol(d.SymbolName, d.Signature)...)
		}
		inputs = append(inputs, bm25index.DocInput{ID: d.ID, Tokens: tokens})
	}
	return bm25index.Build(e.bm25, inputs), nil
}

// buildMemoryCorpus indexes every memory, expired and invalidated ones
// included, across every scope; temporal validity (IncludeExpired/AsOf) and
// scope visibility are applied later as post-filters over fused candidates.
func (e *Engine) buildMemoryCorpus() (*bm25index.Index, error) {
	mems, err := e.db.ListMemories(&database.MemoryFilters{IncludeExpired: true, Limit: math.MaxInt32})
	if err != nil {
		return nil, fmt.Errorf("list memories for bm25 build: %w", err)
	}
	inputs := make([]bm25index.DocInput, 0, len(mems))
	for _, m := range mems {
		inputs = append(inputs, bm25index.DocInput{ID: m.ID, Tokens: tokenizer.Tokenize(m.Content, tokenizer.ModeProse)})
	}
	return bm25index.Build(e.bm25, inputs), nil
}

// allDocuments gathers every document across every scope. Scope visibility
// is enforced later, as a post-filter over fused candidates.
func (e *Engine) allDocuments() ([]*database.Document, error) {
	scopeIDs, err := e.db.AllDocumentScopeIDs()
	if err != nil {
		return nil, fmt.Errorf("list document scopes for bm25 build: %w", err)
	}
	var all []*database.Document
	for _, scopeID := range scopeIDs {
		docs, err := e.db.ListDocumentsByScope(scopeID)
		if err != nil {
			return nil, fmt.Errorf("list documents for scope %s: %w", scopeID, err)
		}
		all = append(all, docs...)
	}
	return all, nil
}

// Filters narrows a search beyond the fused relevance ranking.
type Filters struct {
	// Regex drops candidates whose content doesn't match. Invalid or
	// over-long patterns are silently ignored (ReDoS guard).
	Regex string
	// SymbolType, code/docs searches only: drop candidates whose
	// symbol_type doesn't equal this value.
	SymbolType string
	// ScopeID scopes the search; memories additionally see global
	// (scope_id NULL) entities, documents do not.
	ScopeID string
	// IncludeExpired and AsOf apply to memory searches only.
	IncludeExpired bool
	AsOf           *time.Time
}

// Options configures one hybrid search call.
type Options struct {
	QueryText      string
	QueryEmbedding []float32
	Limit          int
	Threshold      float64
	// Alpha overrides cfg.Alpha for this call; 0 means use the configured
	// default, so an explicit alpha of exactly 0 (pure BM25) must be
	// requested as a very small positive epsilon. In practice the default
	// is what nearly every caller wants.
	Alpha   float64
	Filters Filters
}

func (e *Engine) alpha(opts Options) float64 {
	if opts.Alpha != 0 {
		return opts.Alpha
	}
	return e.cfg.Alpha
}

// fuse runs steps 1-3 of the ranking algorithm: BM25 candidates, vector
// candidates, and RRF fusion.
func (e *Engine) fuse(ctx context.Context, bm25Corpus string, vecCorpus vectorstore.Corpus, queryTokens []string, opts Options) ([]candidate, error) {
	index, err := e.index.Get(ctx, bm25Corpus)
	if err != nil {
		return nil, fmt.Errorf("bm25 index for %s: %w", bm25Corpus, err)
	}
	bm25Matches := index.Search(queryTokens, e.cfg.KBM25)

	var vectorMatches []vectorstore.Match
	if len(opts.QueryEmbedding) > 0 && e.vec != nil {
		vectorMatches, err = e.vec.Search(ctx, vecCorpus, opts.QueryEmbedding, e.cfg.KVector)
		if err != nil {
			return nil, fmt.Errorf("vector search on %s: %w", vecCorpus, err)
		}
	}

	if len(bm25Matches) == 0 && len(vectorMatches) == 0 {
		return nil, nil
	}
	return fuseRRF(bm25Matches, vectorMatches, e.alpha(opts)), nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}

func clampScore(s float64) float64 {
	if s > 1.0 {
		return 1.0
	}
	return s
}

// normalizedQuery lowercases and trims query text for symbol comparisons.
func normalizedQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}
