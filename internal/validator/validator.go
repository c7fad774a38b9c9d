package validator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/licitatech/match-cli/internal/model"
	"github.com/licitatech/match-cli/internal/resilience"
)

// Config holds the validation policy.
type Config struct {
	// ScoreThreshold routes candidates at or above it to LLM review. Kept
	// low on purpose: ambiguous scores benefit most from review.
	ScoreThreshold float64
	// MinConfidence forces a rejection when a backend approves with less
	// conviction than this.
	MinConfidence float64
	// HeuristicBar is the raw-similarity bar the degraded heuristic approves
	// at when every backend has failed.
	HeuristicBar float64
	// BackendPriority orders the chain. Unknown names are skipped.
	BackendPriority []string
}

// DefaultConfig returns the local-first validation policy.
func DefaultConfig() Config {
	return Config{
		ScoreThreshold:  0.70,
		MinConfidence:   0.75,
		HeuristicBar:    0.85,
		BackendPriority: []string{"ollama", "openai", "anthropic"},
	}
}

// Validator walks a backend chain until one produces a parsable decision.
// Per-backend circuit breakers skip backends that keep failing.
type Validator struct {
	cfg      Config
	chain    []Backend
	breakers *resilience.BackendBreakers
}

// New builds a Validator from the registered backends, ordered by
// cfg.BackendPriority. Priority entries with no registered backend are
// logged and skipped so a missing API key degrades instead of failing.
func New(cfg Config, backends map[string]Backend) *Validator {
	var chain []Backend
	for _, name := range cfg.BackendPriority {
		b, ok := backends[name]
		if !ok {
			zap.L().Warn("validation backend not configured, skipping", zap.String("backend", name))
			continue
		}
		chain = append(chain, b)
	}
	return &Validator{
		cfg:   cfg,
		chain: chain,
		breakers: resilience.NewBackendBreakers(resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
		}),
	}
}

// ShouldValidate reports whether a final score warrants LLM review.
func (v *Validator) ShouldValidate(score float64) bool {
	return score >= v.cfg.ScoreThreshold
}

// Validate runs the candidate through the chain. The returned decision always
// names the backend that produced it, and its confidence never exceeds the
// similarity score that triggered validation.
func (v *Validator) Validate(ctx context.Context, prompt Prompt) model.ValidationDecision {
	for _, backend := range v.chain {
		breaker := v.breakers.Get(backend.Name())

		reply, err := resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (string, error) {
			return backend.Complete(ctx, prompt)
		})
		if err != nil {
			zap.L().Warn("validation backend failed, trying next",
				zap.String("backend", backend.Name()),
				zap.Error(err),
			)
			continue
		}

		raw, err := parseDecision(reply)
		if err != nil {
			// Unparsable counts as a failure for the breaker too.
			_ = breaker.Execute(ctx, func(context.Context) error { return err })
			zap.L().Warn("validation backend reply unparsable, trying next",
				zap.String("backend", backend.Name()),
				zap.Error(err),
			)
			continue
		}

		return v.finalize(raw, backend, prompt.SimilarityScore)
	}

	return v.heuristic(prompt.SimilarityScore)
}

// finalize applies the confidence ceiling and the minimum-confidence rule.
func (v *Validator) finalize(raw rawDecision, backend Backend, similarity float64) model.ValidationDecision {
	d := model.ValidationDecision{
		IsValid:    raw.IsValid,
		Confidence: raw.Confidence,
		Reasoning:  raw.Reasoning,
		Backend:    backend.Name(),
		ModelName:  backend.ModelName(),
		LLMUsed:    true,
	}
	if d.Confidence > similarity {
		d.Confidence = similarity
	}
	if d.IsValid && d.Confidence < v.cfg.MinConfidence {
		d.IsValid = false
		d.Reasoning = fmt.Sprintf("rejeitado: confianca %.2f abaixo do minimo %.2f. %s",
			d.Confidence, v.cfg.MinConfidence, d.Reasoning)
	}
	return d
}

// heuristic is the degraded decision when the whole chain is down: approve
// only clearly strong similarities and mark the result as not LLM-validated.
func (v *Validator) heuristic(similarity float64) model.ValidationDecision {
	approved := similarity >= v.cfg.HeuristicBar
	zap.L().Warn("all validation backends failed, using heuristic",
		zap.Float64("similarity", similarity),
		zap.Bool("approved", approved),
	)
	return model.ValidationDecision{
		IsValid:    approved,
		Confidence: similarity,
		Reasoning:  fmt.Sprintf("heuristica conservadora: similaridade %.2f contra limite %.2f", similarity, v.cfg.HeuristicBar),
		Backend:    "heuristic",
		LLMUsed:    false,
	}
}
