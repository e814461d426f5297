// Package ollama is an Ollama-backed text embedding client.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/LoomworksAI/apiloom/pkg/resilience"
)

// Client calls Ollama's embeddings HTTP API. Requests pass through a token
// bucket so a large indexing batch cannot saturate the model server.
type Client struct {
	baseURL    string
	model      string
	dimensions int
	httpClient *http.Client
	limiter    *resilience.Limiter
}

// NewClient creates a client for the given Ollama base URL and model.
// dimensions must match the model's embedding width; callers get it from
// configuration since Ollama does not expose it cheaply.
func NewClient(baseURL, model string, dimensions int, ratePerSec float64) *Client {
	return &Client{
		baseURL:    baseURL,
		model:      model,
		dimensions: dimensions,
		httpClient: &http.Client{},
		limiter:    resilience.NewLimiter(ratePerSec, 1),
	}
}

// Dimensions returns the configured embedding width.
func (c *Client) Dimensions() int {
	return c.dimensions
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// EmbedText returns the model's embedding for one text.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, _ := json.Marshal(embedRequest{Model: c.model, Prompt: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed: status %d", resp.StatusCode)
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w", err)
	}
	if len(result.Embedding) != c.dimensions {
		return nil, fmt.Errorf("ollama embed: got %d dimensions, want %d", len(result.Embedding), c.dimensions)
	}

	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}
