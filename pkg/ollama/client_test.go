package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req EmbeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, "texto de teste", req.Prompt)

		json.NewEncoder(w).Encode(EmbeddingsResponse{Embedding: []float32{0.1, 0.2}})
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	resp, err := c.Embeddings(context.Background(), EmbeddingsRequest{Model: "nomic-embed-text", Prompt: "texto de teste"})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, resp.Embedding)
}

func TestGenerateDefaultsModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "modelo-padrao", req.Model)
		assert.False(t, req.Stream)

		json.NewEncoder(w).Encode(GenerateResponse{Model: req.Model, Response: `{"is_valid": true}`, Done: true})
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithModel("modelo-padrao"))
	resp, err := c.Generate(context.Background(), GenerateRequest{Prompt: "avalie"})
	require.NoError(t, err)
	assert.Equal(t, `{"is_valid": true}`, resp.Response)
	assert.True(t, resp.Done)
}

func TestRetryOnTransientStatus(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(EmbeddingsResponse{Embedding: []float32{1}})
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	resp, err := c.Embeddings(context.Background(), EmbeddingsRequest{Model: "m", Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, resp.Embedding)
	assert.EqualValues(t, 2, calls.Load())
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.Embeddings(context.Background(), EmbeddingsRequest{Model: "m", Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.EqualValues(t, 1, calls.Load())
}
