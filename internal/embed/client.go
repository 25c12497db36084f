package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/synapsedb/synapse/pkg/config"
)

// Client is the reference Embedder/LLM implementation, backed by a local
// Ollama server. It satisfies both consumed interfaces from spec §6:
// Embed (vector generation) and Generate (free-text completion, used by
// consolidation's merge pass and by callers that want an LLM-suggested
// relation type before calling graph.Link).
type Client struct {
	baseURL        string
	embeddingModel string
	chatModel      string
	httpClient     *http.Client
	enabled        bool
	timeout        time.Duration
}

// NewClient builds a Client from configuration. The returned Client is
// inert (every method returns an error) when cfg.Enabled is false, so
// callers can construct one unconditionally and let IsEnabled gate its use.
func NewClient(cfg *config.OllamaConfig, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:        cfg.BaseURL,
		embeddingModel: cfg.EmbeddingModel,
		chatModel:      cfg.ChatModel,
		enabled:        cfg.Enabled,
		timeout:        timeout,
		httpClient:     &http.Client{Timeout: timeout},
	}
	if c.baseURL == "" {
		c.baseURL = "http://localhost:11434"
	}
	if c.embeddingModel == "" {
		c.embeddingModel = "nomic-embed-text"
	}
	if c.chatModel == "" {
		c.chatModel = "qwen2.5:3b"
	}
	return c
}

// IsEnabled reports whether this client was configured on.
func (c *Client) IsEnabled() bool { return c.enabled }

// IsAvailable probes the Ollama server directly, with a 5-second timeout.
// It returns false without probing when the client is disabled.
func (c *Client) IsAvailable(ctx context.Context) bool {
	if !c.enabled {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed generates one vector per input text, in order. It is the Embedder
// side of spec §6: the store never computes embeddings itself, it only
// validates the dimension it's handed, so this is the boundary where text
// actually becomes a vector.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if !c.enabled {
		return nil, fmt.Errorf("embed: ollama client is disabled")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.embedOne(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

func (c *Client) embedOne(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: c.embeddingModel, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding request failed with status %d: %s", resp.StatusCode, string(errBody))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}

	vec := make([]float32, len(parsed.Embedding))
	for i, v := range parsed.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options options `json:"options,omitempty"`
}

type options struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate is the LLM side of spec §6: a single free-text completion given
// a prompt, a token budget, and a sampling temperature. Consolidation's
// merge pass calls this (through MergeFunc) to produce merged content when
// require_llm_merge is set; callers may also use it directly, e.g. to
// suggest a relation type before calling graph.Link with LLMEnriched=true.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	if !c.enabled {
		return "", fmt.Errorf("embed: ollama client is disabled")
	}
	reqBody := generateRequest{
		Model:   c.chatModel,
		Prompt:  prompt,
		Stream:  false,
		Options: options{Temperature: temperature, NumPredict: maxTokens},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("generate request failed with status %d: %s", resp.StatusCode, string(errBody))
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	return strings.TrimSpace(parsed.Response), nil
}

// Merge adapts Generate to consolidation.MergeFunc's signature: it asks the
// model for a single piece of content that preserves every fact across the
// given near-duplicate contents, for use as a merged memory's body.
func (c *Client) Merge(ctx context.Context, contents []string) (string, error) {
	var prompt strings.Builder
	prompt.WriteString("These memory entries were flagged as near-duplicates. Write one merged entry ")
	prompt.WriteString("that preserves every distinct fact from all of them, drops redundant phrasing, ")
	prompt.WriteString("and adds nothing new.\n\n")
	for i, content := range contents {
		fmt.Fprintf(&prompt, "Entry %d:\n%s\n\n", i+1, content)
	}
	return c.Generate(ctx, prompt.String(), 512, 0.2)
}

// SuggestRelation asks the model which typed edge, if any, best describes
// the relationship from source to target. The empty string means the model
// found no clear relation; callers should skip linking in that case rather
// than guessing.
func (c *Client) SuggestRelation(ctx context.Context, sourceContent, targetContent string) (string, error) {
	prompt := fmt.Sprintf(
		"Given two memory entries, name the single best relation from source to target, "+
			"chosen from exactly: related, caused_by, leads_to, similar_to, contradicts, implements, supersedes, references. "+
			"Reply with just the relation word, or \"none\" if no relation applies.\n\nSource:\n%s\n\nTarget:\n%s\n",
		sourceContent, targetContent,
	)
	resp, err := c.Generate(ctx, prompt, 16, 0.0)
	if err != nil {
		return "", err
	}
	relation := strings.ToLower(strings.TrimSpace(resp))
	if relation == "" || relation == "none" {
		return "", nil
	}
	return relation, nil
}
