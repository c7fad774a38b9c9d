package validator

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/licitatech/match-cli/pkg/ollama"
)

const ollamaDefaultModel = "qwen2.5:7b"

// OllamaBackend validates through a local Ollama daemon. It is the default
// first hop of the chain: free, private, and slow.
type OllamaBackend struct {
	client ollama.Client
	model  string
}

// NewOllamaBackend creates the backend. An empty model selects qwen2.5:7b.
func NewOllamaBackend(client ollama.Client, model string) *OllamaBackend {
	if model == "" {
		model = ollamaDefaultModel
	}
	return &OllamaBackend{client: client, model: model}
}

func (b *OllamaBackend) Name() string      { return "ollama" }
func (b *OllamaBackend) ModelName() string { return b.model }

func (b *OllamaBackend) Complete(ctx context.Context, prompt Prompt) (string, error) {
	resp, err := b.client.Generate(ctx, ollama.GenerateRequest{
		Model:  b.model,
		Prompt: systemPrompt + "\n\n" + prompt.UserMessage(),
		Stream: false,
		Options: ollama.GenerateOptions{
			Temperature: 0.1,
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "validator: ollama generate")
	}
	return resp.Response, nil
}
