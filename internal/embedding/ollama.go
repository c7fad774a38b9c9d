package embedding

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/licitatech/match-cli/internal/textnorm"
	"github.com/licitatech/match-cli/pkg/ollama"
)

const (
	ollamaDefaultModel = "nomic-embed-text"
	ollamaDimensions   = 768
)

// OllamaProvider embeds text through a local Ollama daemon. The daemon has no
// batch endpoint, so EmbedBatch issues sequential requests.
type OllamaProvider struct {
	client ollama.Client
	model  string
	dims   int
}

// NewOllamaProvider creates a provider over the given client. An empty model
// selects nomic-embed-text.
func NewOllamaProvider(client ollama.Client, model string) *OllamaProvider {
	if model == "" {
		model = ollamaDefaultModel
	}
	return &OllamaProvider{client: client, model: model, dims: ollamaDimensions}
}

func (p *OllamaProvider) Name() string      { return "ollama" }
func (p *OllamaProvider) ModelName() string { return p.model }
func (p *OllamaProvider) Dimensions() int   { return p.dims }

func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	normalized := textnorm.NormalizeForEmbedding(text)
	if normalized == "" {
		return nil, eris.Wrap(ErrEmptyText, "ollama")
	}

	resp, err := p.client.Embeddings(ctx, ollama.EmbeddingsRequest{
		Model:  p.model,
		Prompt: normalized,
	})
	if err != nil {
		return nil, eris.Wrap(err, "ollama: embeddings")
	}
	if len(resp.Embedding) != p.dims {
		return nil, eris.Wrapf(ErrDimensionMismatch, "ollama: got %d, want %d", len(resp.Embedding), p.dims)
	}
	return resp.Embedding, nil
}

func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := p.Embed(ctx, t)
		if err != nil {
			return nil, eris.Wrapf(err, "ollama: batch input %d", i)
		}
		vectors[i] = vec
	}
	return vectors, nil
}
