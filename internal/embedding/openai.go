package embedding

import (
	"context"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"

	"github.com/licitatech/match-cli/internal/textnorm"
)

const (
	openaiDefaultModel = "text-embedding-3-small"
	openaiDimensions   = 1536
)

// openaiEmbedder is the API surface of the OpenAI client we depend on.
type openaiEmbedder interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIProvider embeds text through the OpenAI embeddings API.
type OpenAIProvider struct {
	client openaiEmbedder
	model  string
	dims   int
}

// NewOpenAIProvider creates a provider for the given API key. An empty model
// selects text-embedding-3-small.
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return newOpenAIProvider(openai.NewClientWithConfig(cfg), model)
}

func newOpenAIProvider(client openaiEmbedder, model string) *OpenAIProvider {
	if model == "" {
		model = openaiDefaultModel
	}
	return &OpenAIProvider{client: client, model: model, dims: openaiDimensions}
}

func (p *OpenAIProvider) Name() string      { return "openai" }
func (p *OpenAIProvider) ModelName() string { return p.model }
func (p *OpenAIProvider) Dimensions() int   { return p.dims }

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	inputs := make([]string, len(texts))
	for i, t := range texts {
		normalized := textnorm.NormalizeForEmbedding(t)
		if normalized == "" {
			return nil, eris.Wrapf(ErrEmptyText, "openai: input %d", i)
		}
		inputs[i] = normalized
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: inputs,
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, eris.Wrap(err, "openai: create embeddings")
	}
	if len(resp.Data) != len(inputs) {
		return nil, eris.Errorf("openai: expected %d embeddings, got %d", len(inputs), len(resp.Data))
	}

	// The API may reorder results; Index restores input order.
	vectors := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, eris.Errorf("openai: embedding index %d out of range", d.Index)
		}
		if len(d.Embedding) != p.dims {
			return nil, eris.Wrapf(ErrDimensionMismatch, "openai: got %d, want %d", len(d.Embedding), p.dims)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
