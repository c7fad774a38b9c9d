package validator

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitatech/match-cli/internal/model"
)

type fakeBackend struct {
	name  string
	model string
	reply string
	err   error
	calls int
}

func (f *fakeBackend) Name() string      { return f.name }
func (f *fakeBackend) ModelName() string { return f.model }

func (f *fakeBackend) Complete(context.Context, Prompt) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func testPrompt(similarity float64) Prompt {
	return Prompt{
		Company: model.CompanyProfile{
			ID:          "c1",
			Name:        "Distribuidora Alfa",
			Description: "Distribuidora de material hospitalar",
			Products:    []string{"luvas", "seringas"},
		},
		Opportunity: model.Opportunity{
			ID:                "o1",
			ObjectDescription: "Aquisição de medicamentos",
			LineItems:         []model.LineItem{{Description: "Dipirona 500mg"}},
		},
		SimilarityScore: similarity,
	}
}

func newTestValidator(priority []string, backends map[string]Backend) *Validator {
	cfg := DefaultConfig()
	if priority != nil {
		cfg.BackendPriority = priority
	}
	return New(cfg, backends)
}

func TestParseDecision(t *testing.T) {
	t.Run("strict json", func(t *testing.T) {
		d, err := parseDecision(`{"is_valid": true, "confidence": 0.9, "reasoning": "atende"}`)
		require.NoError(t, err)
		assert.True(t, d.IsValid)
		assert.InDelta(t, 0.9, d.Confidence, 1e-9)
	})

	t.Run("json embedded in prose", func(t *testing.T) {
		reply := "Claro! Aqui está a análise:\n```json\n{\"is_valid\": false, \"confidence\": 0.4, \"reasoning\": \"ramo {errado}\"}\n```\nEspero ter ajudado."
		d, err := parseDecision(reply)
		require.NoError(t, err)
		assert.False(t, d.IsValid)
		assert.Equal(t, "ramo {errado}", d.Reasoning)
	})

	t.Run("confidence out of range", func(t *testing.T) {
		_, err := parseDecision(`{"is_valid": true, "confidence": 1.7, "reasoning": "x"}`)
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("no json at all", func(t *testing.T) {
		_, err := parseDecision("a empresa parece adequada")
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("empty reply", func(t *testing.T) {
		_, err := parseDecision("   ")
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})
}

func TestShouldValidate(t *testing.T) {
	v := newTestValidator(nil, nil)
	assert.True(t, v.ShouldValidate(0.70))
	assert.True(t, v.ShouldValidate(0.95))
	assert.False(t, v.ShouldValidate(0.69))
}

// Primary backend down: the chain must answer through the next backend and
// record which one produced the decision.
func TestValidateFallsBackToNextBackend(t *testing.T) {
	primary := &fakeBackend{name: "ollama", model: "qwen2.5:7b", err: eris.New("connection refused")}
	secondary := &fakeBackend{name: "openai", model: "gpt-4o-mini", reply: `{"is_valid": true, "confidence": 0.82, "reasoning": "produtos compatíveis"}`}

	v := newTestValidator([]string{"ollama", "openai"}, map[string]Backend{
		"ollama": primary,
		"openai": secondary,
	})

	d := v.Validate(context.Background(), testPrompt(0.84))
	assert.True(t, d.IsValid)
	assert.Equal(t, "openai", d.Backend)
	assert.Equal(t, "gpt-4o-mini", d.ModelName)
	assert.True(t, d.LLMUsed)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestValidateUnparsableAdvances(t *testing.T) {
	garbled := &fakeBackend{name: "ollama", model: "m", reply: "não sei dizer"}
	clean := &fakeBackend{name: "openai", model: "m2", reply: `{"is_valid": true, "confidence": 0.9, "reasoning": "ok"}`}

	v := newTestValidator([]string{"ollama", "openai"}, map[string]Backend{
		"ollama": garbled,
		"openai": clean,
	})

	d := v.Validate(context.Background(), testPrompt(0.95))
	assert.True(t, d.IsValid)
	assert.Equal(t, "openai", d.Backend)
}

// Confidence never exceeds the similarity that triggered validation.
func TestValidateConfidenceCeiling(t *testing.T) {
	b := &fakeBackend{name: "ollama", model: "m", reply: `{"is_valid": true, "confidence": 0.99, "reasoning": "excelente"}`}
	v := newTestValidator([]string{"ollama"}, map[string]Backend{"ollama": b})

	d := v.Validate(context.Background(), testPrompt(0.81))
	assert.True(t, d.IsValid)
	assert.InDelta(t, 0.81, d.Confidence, 1e-9)
}

func TestValidateLowConfidenceForcesRejection(t *testing.T) {
	b := &fakeBackend{name: "ollama", model: "m", reply: `{"is_valid": true, "confidence": 0.5, "reasoning": "talvez"}`}
	v := newTestValidator([]string{"ollama"}, map[string]Backend{"ollama": b})

	d := v.Validate(context.Background(), testPrompt(0.90))
	assert.False(t, d.IsValid, "approval below the confidence floor becomes a rejection")
	assert.Contains(t, d.Reasoning, "abaixo do minimo")
	assert.True(t, d.LLMUsed)
}

func TestValidateHeuristicFallback(t *testing.T) {
	down := &fakeBackend{name: "ollama", model: "m", err: eris.New("timeout")}
	v := newTestValidator([]string{"ollama"}, map[string]Backend{"ollama": down})

	t.Run("strong similarity approved", func(t *testing.T) {
		d := v.Validate(context.Background(), testPrompt(0.90))
		assert.True(t, d.IsValid)
		assert.False(t, d.LLMUsed)
		assert.Equal(t, "heuristic", d.Backend)
	})

	t.Run("weak similarity rejected", func(t *testing.T) {
		d := v.Validate(context.Background(), testPrompt(0.80))
		assert.False(t, d.IsValid)
		assert.False(t, d.LLMUsed)
	})
}

func TestPromptUserMessage(t *testing.T) {
	msg := testPrompt(0.84).UserMessage()
	assert.Contains(t, msg, "Distribuidora Alfa")
	assert.Contains(t, msg, "Aquisição de medicamentos")
	assert.Contains(t, msg, "Dipirona 500mg")
	assert.Contains(t, msg, "0.84")
}
