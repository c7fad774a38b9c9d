// Package embedding turns opportunity and company text into vectors, with
// provider fallback and cache-or-generate resolution.
package embedding

import (
	"context"

	"github.com/rotisserie/eris"
)

// Provider computes embedding vectors with a fixed model and dimensionality.
type Provider interface {
	// Name identifies the backend ("openai", "ollama").
	Name() string
	// ModelName is the exact model identifier, used as the cache key segment.
	ModelName() string
	// Dimensions is the expected vector length. A provider response of any
	// other length is an error.
	Dimensions() int
	// Embed computes a vector for one text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch computes vectors for texts, one per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ErrAllProvidersFailed is returned when every provider in a chain failed.
var ErrAllProvidersFailed = eris.New("embedding: all providers failed")

// ErrDimensionMismatch is returned when a provider responds with a vector of
// unexpected length.
var ErrDimensionMismatch = eris.New("embedding: vector dimension mismatch")

// ErrEmptyText is returned when an empty or whitespace-only text is embedded.
var ErrEmptyText = eris.New("embedding: empty text")
