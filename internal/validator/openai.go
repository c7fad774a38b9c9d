package validator

import (
	"context"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"
)

const openaiDefaultModel = "gpt-4o-mini"

// openaiChatter is the API surface of the OpenAI client we depend on.
type openaiChatter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIBackend validates through the OpenAI chat API.
type OpenAIBackend struct {
	client openaiChatter
	model  string
}

// NewOpenAIBackend creates the backend. An empty model selects gpt-4o-mini.
func NewOpenAIBackend(apiKey, baseURL, model string) *OpenAIBackend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return newOpenAIBackend(openai.NewClientWithConfig(cfg), model)
}

func newOpenAIBackend(client openaiChatter, model string) *OpenAIBackend {
	if model == "" {
		model = openaiDefaultModel
	}
	return &OpenAIBackend{client: client, model: model}
}

func (b *OpenAIBackend) Name() string      { return "openai" }
func (b *OpenAIBackend) ModelName() string { return b.model }

func (b *OpenAIBackend) Complete(ctx context.Context, prompt Prompt) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       b.model,
		Temperature: 0.1,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt.UserMessage()},
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "validator: openai chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", eris.Wrap(ErrMalformedResponse, "validator: openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
