// Package termapi provides an HTTP client for the medical terminology
// service consumed by the accuracy scorer.
package termapi

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
	"github.com/medtrans/qagate/internal/port/terminology"
)

// Client talks to the terminology service's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a terminology client.
func New(cfg config.Terminology) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

var _ terminology.Lookup = (*Client)(nil)

type extractRequest struct {
	Text string `json:"text"`
	Lang string `json:"lang"`
}

type extractResponse struct {
	Terms []string `json:"terms"`
}

// ExtractTerms returns the domain terms found in text.
func (c *Client) ExtractTerms(ctx context.Context, text, lang string) ([]string, error) {
	body, err := json.Marshal(extractRequest{Text: text, Lang: lang})
	if err != nil {
		return nil, fmt.Errorf("marshal extract request: %w", err)
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/v1/terms/extract", body)
	if err != nil {
		return nil, err
	}

	var result extractResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal terms: %w", err)
	}
	return result.Terms, nil
}

type lookupResponse struct {
	Translation string `json:"translation"`
}

// LookupTerm returns the expected translation of a term, or "" when the
// pair has no entry.
func (c *Client) LookupTerm(ctx context.Context, term, sourceLang, targetLang string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"term":        term,
		"source_lang": sourceLang,
		"target_lang": targetLang,
	})
	if err != nil {
		return "", fmt.Errorf("marshal lookup request: %w", err)
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/v1/terms/lookup", body)
	if err != nil {
		return "", err
	}

	var result lookupResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("unmarshal lookup: %w", err)
	}
	return result.Translation, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Connection-level failures degrade scoring rather than abort it.
		return nil, errors.Join(terminology.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Join(terminology.ErrUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", terminology.ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("terminology API error %d: %s", resp.StatusCode, string(data))
	}

	return data, nil
}
