// Package embedapi provides an HTTP client for the embedding model
// serving the translation memory index.
package embedapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/medtrans/qagate/internal/config"
	"github.com/medtrans/qagate/internal/port/embedding"
)

// Client talks to the embedding provider's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// New creates an embedding client.
func New(cfg config.Embedding) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

var _ embedding.Provider = (*Client)(nil)

type embedRequest struct {
	Model  string `json:"model"`
	Input  string `json:"input"`
	Domain string `json:"domain,omitempty"`
}

type embedResponse struct {
	Vector []float32 `json:"vector"`
}

// Embed turns text into a fixed-length vector. Domain is passed through
// so domain-tuned models can condition on it.
func (c *Client) Embed(ctx context.Context, text, domain string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.model, Input: text, Domain: domain})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Join(embedding.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Join(embedding.ErrUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", embedding.ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("embedding API error %d: %s", resp.StatusCode, string(data))
	}

	var result embedResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal embedding: %w", err)
	}
	if len(result.Vector) == 0 {
		return nil, fmt.Errorf("%w: empty vector", embedding.ErrUnavailable)
	}
	return result.Vector, nil
}
