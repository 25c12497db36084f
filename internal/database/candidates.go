package database

import (
	"context"
	"fmt"

	"github.com/synapsedb/synapse/internal/vectorstore"
)

// CandidateSource adapts a Database to vectorstore.CandidateSource. It
// supplies the full embedding set for a corpus across every scope; scope
// visibility is enforced by the caller as a post-filter over the returned
// matches, the same policy internal/graph's AutoLink already applies.
type CandidateSource struct {
	db *Database
}

// NewCandidateSource wraps db as a vectorstore.CandidateSource.
func NewCandidateSource(db *Database) *CandidateSource {
	return &CandidateSource{db: db}
}

// Embeddings implements vectorstore.CandidateSource.
func (c *CandidateSource) Embeddings(ctx context.Context, corpus vectorstore.Corpus) (map[string][]float32, error) {
	switch corpus {
	case vectorstore.CorpusDocuments:
		return c.documentEmbeddings()
	case vectorstore.CorpusMemories:
		return c.memoryEmbeddings()
	default:
		return nil, fmt.Errorf("unknown corpus: %s", corpus)
	}
}

func (c *CandidateSource) documentEmbeddings() (map[string][]float32, error) {
	c.db.mu.RLock()
	defer c.db.mu.RUnlock()

	rows, err := c.db.db.Query(`SELECT id, embedding FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("failed to list document embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan document embedding: %w", err)
		}
		if vec := DecodeEmbedding(blob); vec != nil {
			out[id] = vec
		}
	}
	return out, nil
}

func (c *CandidateSource) memoryEmbeddings() (map[string][]float32, error) {
	c.db.mu.RLock()
	defer c.db.mu.RUnlock()

	rows, err := c.db.db.Query(`
		SELECT id, embedding FROM memories
		WHERE invalidated_by IS NULL AND (valid_until IS NULL OR valid_until > CURRENT_TIMESTAMP)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan memory embedding: %w", err)
		}
		if vec := DecodeEmbedding(blob); vec != nil {
			out[id] = vec
		}
	}
	return out, nil
}
