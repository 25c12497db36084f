// Package ranker is the hybrid search entry point: it fuses BM25 and
// vector candidates with Reciprocal Rank Fusion, applies symbol/regex/type
// filters and quality/recency/centrality boosts, and optionally
// diversifies the final list with Maximal Marginal Relevance.
package ranker
