package embedding

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Result carries a computed vector together with the provider that produced
// it, so callers can key caches per model.
type Result struct {
	Vector    []float32
	Provider  string
	ModelName string
}

// BatchResult is Result for a batch call.
type BatchResult struct {
	Vectors   [][]float32
	Provider  string
	ModelName string
}

type chainEntry struct {
	provider Provider
	limiter  *rate.Limiter
	timeout  time.Duration
}

// Chain tries providers in priority order until one succeeds. A dimension
// mismatch or any other provider error advances to the next entry; the chain
// fails only when every provider has failed.
type Chain struct {
	entries []chainEntry
}

// ChainOption configures the most recently added provider.
type ChainOption struct {
	// RequestsPerSecond throttles calls to this provider. Zero means no limit.
	RequestsPerSecond float64
	// Timeout bounds each call to this provider. Zero means no extra bound
	// beyond the caller's context.
	Timeout time.Duration
}

// NewChain creates an empty chain. Providers are tried in Add order.
func NewChain() *Chain {
	return &Chain{}
}

// Add appends a provider with its throttle and timeout.
func (c *Chain) Add(p Provider, opt ChainOption) *Chain {
	var limiter *rate.Limiter
	if opt.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opt.RequestsPerSecond), 1)
	}
	c.entries = append(c.entries, chainEntry{provider: p, limiter: limiter, timeout: opt.Timeout})
	return c
}

// Len returns the number of providers in the chain.
func (c *Chain) Len() int {
	return len(c.entries)
}

// Primary returns the first provider, or nil for an empty chain. The primary
// provider's model name keys cache lookups before any call is made.
func (c *Chain) Primary() Provider {
	if len(c.entries) == 0 {
		return nil
	}
	return c.entries[0].provider
}

// Embed computes a vector for text, falling through the chain on failure.
func (c *Chain) Embed(ctx context.Context, text string) (*Result, error) {
	var lastErr error
	for _, e := range c.entries {
		vec, err := call(ctx, e, func(ctx context.Context) ([]float32, error) {
			return e.provider.Embed(ctx, text)
		})
		if err != nil {
			lastErr = err
			zap.L().Warn("embedding provider failed, trying next",
				zap.String("provider", e.provider.Name()),
				zap.Error(err),
			)
			continue
		}
		return &Result{Vector: vec, Provider: e.provider.Name(), ModelName: e.provider.ModelName()}, nil
	}
	if lastErr == nil {
		return nil, ErrAllProvidersFailed
	}
	return nil, eris.Wrap(lastErr, ErrAllProvidersFailed.Error())
}

// EmbedBatch computes vectors for texts, falling through the chain on failure.
// All vectors in a batch come from the same provider.
func (c *Chain) EmbedBatch(ctx context.Context, texts []string) (*BatchResult, error) {
	var lastErr error
	for _, e := range c.entries {
		vectors, err := call(ctx, e, func(ctx context.Context) ([][]float32, error) {
			return e.provider.EmbedBatch(ctx, texts)
		})
		if err != nil {
			lastErr = err
			zap.L().Warn("embedding provider failed, trying next",
				zap.String("provider", e.provider.Name()),
				zap.Int("batch_size", len(texts)),
				zap.Error(err),
			)
			continue
		}
		return &BatchResult{Vectors: vectors, Provider: e.provider.Name(), ModelName: e.provider.ModelName()}, nil
	}
	if lastErr == nil {
		return nil, ErrAllProvidersFailed
	}
	return nil, eris.Wrap(lastErr, ErrAllProvidersFailed.Error())
}

func call[T any](ctx context.Context, e chainEntry, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return zero, eris.Wrap(err, "embedding: rate limit wait")
		}
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return fn(ctx)
}
