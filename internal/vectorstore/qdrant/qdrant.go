// Package qdrant implements the server ANN profile of
// internal/vectorstore.ANNIndex against a Qdrant collection pair, one per
// corpus, reached over its HTTP API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/synapsedb/synapse/internal/logging"
	"github.com/synapsedb/synapse/internal/vectorstore"
	"github.com/synapsedb/synapse/pkg/config"
)

var log = logging.GetLogger("vectorstore.qdrant")

// Index is a Qdrant-backed ANNIndex. It keeps one collection per corpus so
// document and memory embedding spaces never collide.
type Index struct {
	baseURL     string
	dimension   int
	httpClient  *http.Client
	collections map[vectorstore.Corpus]string
}

// New builds a Qdrant client from config. It does not create collections;
// call EnsureCollections before first use.
func New(cfg *config.QdrantConfig, dimension int) *Index {
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = "http://localhost:6333"
	}
	return &Index{
		baseURL:    baseURL,
		dimension:  dimension,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		collections: map[vectorstore.Corpus]string{
			vectorstore.CorpusDocuments: "synapse_documents",
			vectorstore.CorpusMemories:  "synapse_memories",
		},
	}
}

func (idx *Index) collectionFor(corpus vectorstore.Corpus) (string, error) {
	name, ok := idx.collections[corpus]
	if !ok {
		return "", fmt.Errorf("unknown corpus: %s", corpus)
	}
	return name, nil
}

// EnsureCollections creates both corpora's collections if they don't
// already exist, with HNSW parameters matched to the embedded profile's
// expected recall/latency tradeoff (m=16, ef_construct=100, as carried
// over from the reference Qdrant integration this client is modeled on).
func (idx *Index) EnsureCollections(ctx context.Context) error {
	for _, name := range idx.collections {
		exists, err := idx.collectionExists(ctx, name)
		if err != nil {
			return fmt.Errorf("check collection %s: %w", name, err)
		}
		if exists {
			continue
		}
		if err := idx.createCollection(ctx, name); err != nil {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
	}
	return nil
}

func (idx *Index) collectionExists(ctx context.Context, name string) (bool, error) {
	url := fmt.Sprintf("%s/collections/%s", idx.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return false, err
	}
	resp, err := idx.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func (idx *Index) createCollection(ctx context.Context, name string) error {
	createReq := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     idx.dimension,
			"distance": "Cosine",
		},
		"hnsw_config": map[string]interface{}{
			"m":            16,
			"ef_construct": 100,
		},
	}
	body, err := json.Marshal(createReq)
	if err != nil {
		return fmt.Errorf("marshal create request: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", idx.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, "PUT", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := idx.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("create collection request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("create collection failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Upsert writes a single point into corpus's collection, keyed by id.
func (idx *Index) Upsert(ctx context.Context, corpus vectorstore.Corpus, id string, embedding []float32) error {
	collection, err := idx.collectionFor(corpus)
	if err != nil {
		return err
	}

	vector := make([]float64, len(embedding))
	for i, f := range embedding {
		vector[i] = float64(f)
	}

	upsertReq := map[string]interface{}{
		"points": []map[string]interface{}{
			{"id": id, "vector": vector},
		},
	}
	body, err := json.Marshal(upsertReq)
	if err != nil {
		return fmt.Errorf("marshal upsert request: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points", idx.baseURL, collection)
	req, err := http.NewRequestWithContext(ctx, "PUT", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := idx.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upsert request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upsert failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Delete removes a point from corpus's collection.
func (idx *Index) Delete(ctx context.Context, corpus vectorstore.Corpus, id string) error {
	collection, err := idx.collectionFor(corpus)
	if err != nil {
		return err
	}

	deleteReq := map[string]interface{}{"points": []string{id}}
	body, err := json.Marshal(deleteReq)
	if err != nil {
		return fmt.Errorf("marshal delete request: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/delete", idx.baseURL, collection)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := idx.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Search performs a k-nearest-neighbor query against corpus's collection.
func (idx *Index) Search(ctx context.Context, corpus vectorstore.Corpus, query []float32, k int) ([]vectorstore.Match, error) {
	collection, err := idx.collectionFor(corpus)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 10
	}

	vector := make([]float64, len(query))
	for i, f := range query {
		vector[i] = float64(f)
	}

	searchReq := map[string]interface{}{
		"vector":       vector,
		"limit":        k,
		"with_payload": false,
	}
	body, err := json.Marshal(searchReq)
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", idx.baseURL, collection)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := idx.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("search failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var searchResp struct {
		Result []struct {
			ID    interface{} `json:"id"`
			Score float64     `json:"score"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	matches := make([]vectorstore.Match, len(searchResp.Result))
	for i, r := range searchResp.Result {
		var id string
		switch v := r.ID.(type) {
		case string:
			id = v
		default:
			id = fmt.Sprintf("%v", v)
		}
		matches[i] = vectorstore.Match{ID: id, Score: r.Score}
	}
	return matches, nil
}

// Available pings Qdrant's collections endpoint with a short timeout.
func (idx *Index) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, "GET", idx.baseURL+"/collections", nil)
	if err != nil {
		return false
	}
	resp, err := idx.httpClient.Do(req)
	if err != nil {
		log.Debug("qdrant unavailable", "error", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
