// Package cache implements the content-addressed embedding cache: a fast
// volatile layer in front of the store's durable embedding_cache table.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/licitatech/match-cli/internal/model"
	"github.com/licitatech/match-cli/internal/store"
	"github.com/licitatech/match-cli/internal/textnorm"
)

const previewLen = 100

// TextHash returns the cache hash for a text: SHA-256 of its embedding-
// normalized form, hex encoded. This is the hash durable rows are keyed on.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(textnorm.NormalizeForEmbedding(text)))
	return hex.EncodeToString(sum[:])
}

// Key is the volatile-layer key format. It is stable across implementations so
// a pre-populated cache stays interoperable.
func Key(modelName, textHash string) string {
	return "emb:" + modelName + ":" + textHash
}

type memEntry struct {
	vector    []float32
	expiresAt time.Time
}

// EmbeddingCache is safe for concurrent use. Writes are idempotent upserts:
// concurrent writers computing the same vector do not conflict.
type EmbeddingCache struct {
	store store.Store
	ttl   time.Duration

	mu  sync.RWMutex
	mem map[string]memEntry
}

// New creates an EmbeddingCache over the durable store. ttl bounds how long the
// volatile layer serves an entry before falling through to the store again.
func New(st store.Store, ttl time.Duration) *EmbeddingCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &EmbeddingCache{
		store: st,
		ttl:   ttl,
		mem:   make(map[string]memEntry),
	}
}

// Get returns the cached vector for (text, model), or nil on a miss. A durable
// hit back-fills the volatile layer and bumps the row's access bookkeeping.
func (c *EmbeddingCache) Get(ctx context.Context, text, modelName string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	hash := TextHash(text)

	if vec, ok := c.memGet(Key(modelName, hash)); ok {
		return vec, nil
	}

	entry, err := c.store.GetEmbedding(ctx, hash, modelName)
	if err != nil {
		return nil, eris.Wrap(err, "cache: durable get")
	}
	if entry == nil {
		return nil, nil
	}

	if err := c.store.TouchEmbedding(ctx, hash, modelName); err != nil {
		zap.L().Warn("cache: touch failed", zap.String("hash", hash), zap.Error(err))
	}
	c.memSet(Key(modelName, hash), entry.Vector)
	return entry.Vector, nil
}

// Put upserts a vector for (text, model). Empty texts and empty vectors are
// ignored. The stored vector for an existing (hash, model) pair is immutable;
// a conflicting Put only moves the bookkeeping fields.
func (c *EmbeddingCache) Put(ctx context.Context, text string, vector []float32, modelName string) error {
	if strings.TrimSpace(text) == "" || len(vector) == 0 {
		return nil
	}
	hash := TextHash(text)

	entry := model.EmbeddingCacheEntry{
		TextHash:    hash,
		TextPreview: preview(text),
		Vector:      vector,
		ModelName:   modelName,
	}
	if err := c.store.PutEmbedding(ctx, entry); err != nil {
		return eris.Wrap(err, "cache: durable put")
	}

	c.memSet(Key(modelName, hash), vector)
	return nil
}

// BatchGet resolves many texts in one durable round trip. The result maps each
// input text (not its hash) to its vector; texts with no cached vector are
// absent. Empty and whitespace-only texts are skipped entirely.
func (c *EmbeddingCache) BatchGet(ctx context.Context, texts []string, modelName string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(texts))

	hashToText := make(map[string]string, len(texts))
	var missing []string
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		hash := TextHash(text)
		if _, seen := hashToText[hash]; seen {
			continue
		}
		hashToText[hash] = text

		if vec, ok := c.memGet(Key(modelName, hash)); ok {
			out[text] = vec
			continue
		}
		missing = append(missing, hash)
	}

	if len(missing) == 0 {
		return out, nil
	}

	entries, err := c.store.GetEmbeddingBatch(ctx, modelName, missing)
	if err != nil {
		return nil, eris.Wrap(err, "cache: durable batch get")
	}
	for hash, entry := range entries {
		text := hashToText[hash]
		out[text] = entry.Vector
		c.memSet(Key(modelName, hash), entry.Vector)
		if err := c.store.TouchEmbedding(ctx, hash, modelName); err != nil {
			zap.L().Warn("cache: touch failed", zap.String("hash", hash), zap.Error(err))
		}
	}
	return out, nil
}

// Stats reports durable-layer occupancy.
func (c *EmbeddingCache) Stats(ctx context.Context) (*model.CacheStats, error) {
	return c.store.EmbeddingCacheStats(ctx)
}

// Clear evicts durable entries (all models when modelName is empty) and drops
// the volatile layer. Administrative use only.
func (c *EmbeddingCache) Clear(ctx context.Context, modelName string) (int, error) {
	n, err := c.store.ClearEmbeddingCache(ctx, modelName)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.mem = make(map[string]memEntry)
	c.mu.Unlock()
	return n, nil
}

func (c *EmbeddingCache) memGet(key string) ([]float32, bool) {
	c.mu.RLock()
	e, ok := c.mem[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.vector, true
}

func (c *EmbeddingCache) memSet(key string, vector []float32) {
	c.mu.Lock()
	c.mem[key] = memEntry{vector: vector, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func preview(text string) string {
	r := []rune(text)
	if len(r) <= previewLen {
		return text
	}
	return string(r[:previewLen]) + "..."
}
