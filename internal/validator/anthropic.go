package validator

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/licitatech/match-cli/pkg/anthropic"
)

const anthropicDefaultModel = "claude-haiku-4-5-20251001"

// AnthropicBackend validates through the Anthropic messages API. Last hop of
// the default chain.
type AnthropicBackend struct {
	client anthropic.Client
	model  string
}

// NewAnthropicBackend creates the backend. An empty model selects the current
// Haiku snapshot.
func NewAnthropicBackend(client anthropic.Client, model string) *AnthropicBackend {
	if model == "" {
		model = anthropicDefaultModel
	}
	return &AnthropicBackend{client: client, model: model}
}

func (b *AnthropicBackend) Name() string      { return "anthropic" }
func (b *AnthropicBackend) ModelName() string { return b.model }

func (b *AnthropicBackend) Complete(ctx context.Context, prompt Prompt) (string, error) {
	temp := 0.1
	resp, err := b.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       b.model,
		MaxTokens:   512,
		System:      systemPrompt,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt.UserMessage()},
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "validator: anthropic create message")
	}
	text := resp.Text()
	if text == "" {
		return "", eris.Wrap(ErrMalformedResponse, "validator: anthropic returned no text")
	}
	return text, nil
}
