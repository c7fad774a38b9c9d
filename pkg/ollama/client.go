// Package ollama provides a client for a local Ollama daemon's embeddings and
// generate endpoints.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "qwen2.5:7b"
)

// Client defines the Ollama operations used by the pipeline.
type Client interface {
	// Embeddings computes an embedding vector for the prompt.
	Embeddings(ctx context.Context, req EmbeddingsRequest) (*EmbeddingsResponse, error)
	// Generate runs a single non-streaming completion.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// EmbeddingsRequest is the request body for POST /api/embeddings.
type EmbeddingsRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// EmbeddingsResponse is the response from POST /api/embeddings.
type EmbeddingsResponse struct {
	Embedding []float32 `json:"embedding"`
}

// GenerateRequest is the request body for POST /api/generate.
type GenerateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options GenerateOptions `json:"options,omitempty"`
}

// GenerateOptions tunes sampling.
type GenerateOptions struct {
	Temperature   float64 `json:"temperature,omitempty"`
	TopP          float64 `json:"top_p,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
}

// GenerateResponse is the response from POST /api/generate.
type GenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default daemon address.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithModel overrides the default generation model.
func WithModel(model string) Option {
	return func(c *httpClient) {
		c.model = model
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	model   string
	http    *http.Client
}

// NewClient creates an Ollama client. Local inference can be slow, so the
// default timeout is generous.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		model:   defaultModel,
		http: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// postJSON executes a JSON POST with bounded retries on transient statuses.
func (c *httpClient) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "ollama: marshal request")
	}

	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return eris.Wrap(err, "ollama: create request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = eris.Wrap(err, "ollama: request failed")
		} else {
			respBody, readErr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if readErr != nil {
				return eris.Wrap(readErr, "ollama: read response body")
			}

			if resp.StatusCode == http.StatusOK {
				if err := json.Unmarshal(respBody, out); err != nil {
					return eris.Wrap(err, "ollama: unmarshal response")
				}
				return nil
			}

			lastErr = eris.Errorf("ollama: status %d: %s", resp.StatusCode, string(respBody))
			if !retryableStatusCode(resp.StatusCode) {
				return lastErr
			}
		}

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return lastErr
}

func (c *httpClient) Embeddings(ctx context.Context, req EmbeddingsRequest) (*EmbeddingsResponse, error) {
	var out EmbeddingsResponse
	if err := c.postJSON(ctx, "/api/embeddings", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	var out GenerateResponse
	if err := c.postJSON(ctx, "/api/generate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
