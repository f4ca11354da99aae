package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaClient generates embeddings via a local Ollama server's /api/embed
// endpoint. Calls are wrapped with a circuit breaker and a per-call timeout.
type OllamaClient struct {
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *Breaker
}

// NewOllamaClient creates an Ollama embedding client.
// baseURL is the server address (e.g. "http://localhost:11434"), model the
// embedding model name (e.g. "nomic-embed-text"). A zero timeout defaults to
// 10 seconds.
func NewOllamaClient(baseURL, model string, timeout time.Duration) *OllamaClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &OllamaClient{
		baseURL:    baseURL,
		model:      model,
		timeout:    timeout,
		httpClient: &http.Client{},
		breaker:    NewBreaker(BreakerConfig{}),
	}
}

// Model returns the configured embedding model name.
func (c *OllamaClient) Model() string {
	return c.model
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed generates an embedding for the given text. Transport failures,
// non-2xx responses, and an open circuit all surface as ErrUnavailable so
// callers can apply a uniform retry/degrade policy.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := c.breaker.Execute(ctx, func() (any, error) {
		return c.embed(ctx, text)
	})
	if err != nil {
		if err == ErrCircuitOpen {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}
	return result.([]float32), nil
}

func (c *OllamaClient) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(embedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: ollama request failed: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: ollama returned status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	var respData embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}
	if len(respData.Embeddings) == 0 || len(respData.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama: empty embedding vector")
	}

	return respData.Embeddings[0], nil
}

// BreakerState exposes the circuit state for health endpoints.
func (c *OllamaClient) BreakerState() string {
	return c.breaker.State()
}

var _ Gateway = (*OllamaClient)(nil)
