package embedding

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitatech/match-cli/internal/cache"
	"github.com/licitatech/match-cli/internal/store"
)

// fakeProvider returns a constant-dimension vector derived from text length
// and counts every call.
type fakeProvider struct {
	name       string
	model      string
	dims       int
	failWith   error
	embeds     atomic.Int64
	batchCalls atomic.Int64
}

func (f *fakeProvider) Name() string      { return f.name }
func (f *fakeProvider) ModelName() string { return f.model }
func (f *fakeProvider) Dimensions() int   { return f.dims }

func (f *fakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	f.embeds.Add(1)
	if f.failWith != nil {
		return nil, f.failWith
	}
	vec := make([]float32, f.dims)
	vec[0] = float32(len(text))
	return vec, nil
}

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batchCalls.Add(1)
	if f.failWith != nil {
		return nil, f.failWith
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func newTestResolver(t *testing.T, chain *Chain) *Resolver {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "emb.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return NewResolver(cache.New(st, time.Minute), chain)
}

func TestChainFallback(t *testing.T) {
	primary := &fakeProvider{name: "openai", model: "m-a", dims: 4, failWith: eris.New("boom")}
	backup := &fakeProvider{name: "ollama", model: "m-b", dims: 4}
	chain := NewChain().
		Add(primary, ChainOption{}).
		Add(backup, ChainOption{})

	result, err := chain.Embed(context.Background(), "texto")
	require.NoError(t, err)
	assert.Equal(t, "ollama", result.Provider)
	assert.Equal(t, "m-b", result.ModelName)
	assert.EqualValues(t, 1, primary.embeds.Load())
	assert.EqualValues(t, 1, backup.embeds.Load())
}

func TestChainAllProvidersFailed(t *testing.T) {
	chain := NewChain().Add(&fakeProvider{name: "openai", model: "m", dims: 4, failWith: eris.New("down")}, ChainOption{})

	_, err := chain.Embed(context.Background(), "texto")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrAllProvidersFailed.Error())
}

func TestResolverCacheOrGenerate(t *testing.T) {
	p := &fakeProvider{name: "openai", model: "m", dims: 4}
	r := newTestResolver(t, NewChain().Add(p, ChainOption{}))
	ctx := context.Background()

	vec1, err := r.Resolve(ctx, "Aquisição de medicamentos")
	require.NoError(t, err)
	require.NotNil(t, vec1)
	assert.EqualValues(t, 1, p.embeds.Load())

	vec2, err := r.Resolve(ctx, "Aquisição de medicamentos")
	require.NoError(t, err)
	assert.Equal(t, vec1, vec2)
	assert.EqualValues(t, 1, p.embeds.Load(), "second resolve must hit the cache")

	hits, misses := r.Counts()
	assert.EqualValues(t, 1, hits)
	assert.EqualValues(t, 1, misses)
}

func TestResolverEmptyText(t *testing.T) {
	r := newTestResolver(t, NewChain().Add(&fakeProvider{name: "openai", model: "m", dims: 4}, ChainOption{}))

	_, err := r.Resolve(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
}

// Duplicated texts in a batch reach the provider at most once.
func TestResolveBatchAtMostOneComputation(t *testing.T) {
	p := &fakeProvider{name: "openai", model: "m", dims: 4}
	r := newTestResolver(t, NewChain().Add(p, ChainOption{}))
	ctx := context.Background()

	texts := []string{
		"texto repetido", "texto repetido", "texto repetido",
		"texto unico",
		"", "  ",
	}
	got, err := r.ResolveBatch(ctx, texts)
	require.NoError(t, err)

	assert.Len(t, got, 2)
	assert.Contains(t, got, "texto repetido")
	assert.Contains(t, got, "texto unico")
	assert.EqualValues(t, 2, p.embeds.Load(), "one computation per distinct text")
	assert.EqualValues(t, 1, p.batchCalls.Load())

	// The whole batch is now cached.
	got2, err := r.ResolveBatch(ctx, texts)
	require.NoError(t, err)
	assert.Equal(t, got, got2)
	assert.EqualValues(t, 2, p.embeds.Load())
}
