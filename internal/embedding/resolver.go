package embedding

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/licitatech/match-cli/internal/cache"
	"github.com/licitatech/match-cli/internal/textnorm"
)

// Resolver implements cache-or-generate: look up the cache under the primary
// provider's model, compute through the chain on a miss, write the result
// back. Within one batch each distinct text is computed at most once.
type Resolver struct {
	cache *cache.EmbeddingCache
	chain *Chain

	hits   atomic.Int64
	misses atomic.Int64
}

// NewResolver creates a Resolver. The chain must have at least one provider.
func NewResolver(c *cache.EmbeddingCache, chain *Chain) *Resolver {
	return &Resolver{cache: c, chain: chain}
}

// ModelName is the cache-keying model: the primary provider's model.
func (r *Resolver) ModelName() string {
	p := r.chain.Primary()
	if p == nil {
		return ""
	}
	return p.ModelName()
}

// Resolve returns the vector for text, from cache when possible.
func (r *Resolver) Resolve(ctx context.Context, text string) ([]float32, error) {
	if textnorm.NormalizeForEmbedding(text) == "" {
		return nil, ErrEmptyText
	}

	vec, err := r.cache.Get(ctx, text, r.ModelName())
	if err != nil {
		return nil, err
	}
	if vec != nil {
		r.hits.Add(1)
		return vec, nil
	}
	r.misses.Add(1)

	result, err := r.chain.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Put(ctx, text, result.Vector, result.ModelName); err != nil {
		// The vector is still usable; losing the write-back only costs a
		// recomputation later.
		zap.L().Warn("embedding cache write-back failed", zap.Error(err))
	}
	return result.Vector, nil
}

// ResolveBatch returns a vector per input text, keyed by the text itself.
// Cached texts are served from one batched lookup; the remainder goes through
// the chain as a single batch, each distinct text computed exactly once.
// Empty and whitespace-only texts are absent from the result.
func (r *Resolver) ResolveBatch(ctx context.Context, texts []string) (map[string][]float32, error) {
	out, err := r.cache.BatchGet(ctx, texts, r.ModelName())
	if err != nil {
		return nil, err
	}
	r.hits.Add(int64(len(out)))

	var missing []string
	seen := make(map[string]struct{}, len(texts))
	for _, text := range texts {
		if textnorm.NormalizeForEmbedding(text) == "" {
			continue
		}
		if _, ok := out[text]; ok {
			continue
		}
		hash := cache.TextHash(text)
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}
		missing = append(missing, text)
	}
	if len(missing) == 0 {
		return out, nil
	}
	r.misses.Add(int64(len(missing)))

	result, err := r.chain.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(result.Vectors) != len(missing) {
		return nil, eris.Errorf("embedding: batch returned %d vectors for %d texts", len(result.Vectors), len(missing))
	}

	for i, text := range missing {
		out[text] = result.Vectors[i]
		if err := r.cache.Put(ctx, text, result.Vectors[i], result.ModelName); err != nil {
			zap.L().Warn("embedding cache write-back failed", zap.Error(err))
		}
	}
	return out, nil
}

// Counts returns the cache hit and miss totals since the resolver was created.
func (r *Resolver) Counts() (hits, misses int64) {
	return r.hits.Load(), r.misses.Load()
}

// CacheHitRatio reports the fraction of lookups served from cache since the
// resolver was created. Returns 0 before any lookup.
func (r *Resolver) CacheHitRatio() float64 {
	hits := r.hits.Load()
	total := hits + r.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
