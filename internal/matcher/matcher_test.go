package matcher

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitatech/match-cli/internal/cache"
	"github.com/licitatech/match-cli/internal/dedup"
	"github.com/licitatech/match-cli/internal/embedding"
	"github.com/licitatech/match-cli/internal/model"
	"github.com/licitatech/match-cli/internal/scorer"
	"github.com/licitatech/match-cli/internal/store"
	"github.com/licitatech/match-cli/internal/validator"
)

// markerProvider maps texts to fixed two-dimensional vectors by marker word,
// so cosine similarities in the pipeline are exact and chosen per test.
type markerProvider struct {
	failOn string
}

func (p *markerProvider) Name() string      { return "fake" }
func (p *markerProvider) ModelName() string { return "fake-model" }
func (p *markerProvider) Dimensions() int   { return 2 }

func vecWithCosine(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func (p *markerProvider) Embed(_ context.Context, text string) ([]float32, error) {
	if p.failOn != "" && strings.Contains(text, p.failOn) {
		return nil, eris.New("model not loaded")
	}
	switch {
	case strings.Contains(text, "Distribuidora"):
		return vecWithCosine(0.9), nil
	case strings.Contains(text, "Consultoria"):
		return vecWithCosine(0.1), nil
	default:
		// Opportunity objects, line items and everything else sit on the
		// reference axis.
		return []float32{1, 0}, nil
	}
}

func (p *markerProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// scriptedBackend always answers with the same JSON decision.
type scriptedBackend struct {
	reply string
}

func (b *scriptedBackend) Name() string      { return "fake" }
func (b *scriptedBackend) ModelName() string { return "fake-llm" }

func (b *scriptedBackend) Complete(context.Context, validator.Prompt) (string, error) {
	return b.reply, nil
}

type fixture struct {
	store store.Store
	orch  *Orchestrator
}

func newFixture(t *testing.T, provider embedding.Provider, reply string) *fixture {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "match.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	resolver := embedding.NewResolver(
		cache.New(st, time.Minute),
		embedding.NewChain().Add(provider, embedding.ChainOption{}),
	)

	vcfg := validator.DefaultConfig()
	vcfg.BackendPriority = []string{"fake"}
	v := validator.New(vcfg, map[string]validator.Backend{"fake": &scriptedBackend{reply: reply}})

	sc := scorer.New(scorer.DefaultConfig(), scorer.DefaultVocabulary())
	orch := New(st, dedup.New(st), resolver, sc, v, 4)
	return &fixture{store: st, orch: orch}
}

const approveReply = `{"is_valid": true, "confidence": 0.95, "reasoning": "produtos compatíveis com o objeto"}`

func seedCompanies(t *testing.T, st store.Store, companies ...model.CompanyProfile) {
	t.Helper()
	for _, c := range companies {
		require.NoError(t, st.UpsertCompany(context.Background(), c))
	}
}

// Healthcare opportunity with one line item, resolved against a strong
// healthcare distributor, a weak IT consultancy, and a healthcare company that
// clears the threshold but fails the specificity gate.
func healthcareScenario(t *testing.T, fx *fixture) model.Opportunity {
	t.Helper()
	seedCompanies(t, fx.store,
		model.CompanyProfile{
			ID:          "c-good",
			Name:        "Distribuidora Alfa",
			Description: "Distribuidora de medicamentos e material hospitalar para hospitais",
		},
		model.CompanyProfile{
			ID:          "c-weak",
			Name:        "Consultoria Beta",
			Description: "Consultoria de software e sistemas para escritorios",
		},
		model.CompanyProfile{
			ID:          "c-vague",
			Name:        "Farmácia Gama",
			Description: "Farmácia hospitalar de medicamentos",
		},
	)
	return model.Opportunity{
		ID:                "opp-1",
		ExternalID:        "PE-2026-001",
		ObjectDescription: "Aquisição de medicamentos e material hospitalar",
		LineItems: []model.LineItem{
			{Description: "Compra de dipirona e medicamentos injetaveis", Quantity: 100, Unit: "cx"},
		},
	}
}

func TestRunMatchesAndPersists(t *testing.T) {
	fx := newFixture(t, &markerProvider{}, approveReply)
	opp := healthcareScenario(t, fx)
	ctx := context.Background()

	result, err := fx.orch.Run(ctx, []model.Opportunity{opp})
	require.NoError(t, err)

	assert.Equal(t, []string{"opp-1"}, result.Processed)
	assert.Empty(t, result.Skipped)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 1, result.MatchesSaved)
	assert.Equal(t, 1, result.MatchesPhase2)
	assert.Equal(t, 1, result.QualityRejected, "high similarity with vague text must be gated out")
	assert.Equal(t, 1, result.LLMValidations)
	assert.Equal(t, 1, result.LLMApproved)
	assert.InDelta(t, 0.95, result.AverageScore, 1e-9)

	matches, err := fx.store.ListMatches(ctx, "opp-1")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, "c-good", m.CompanyID)
	assert.Equal(t, model.MatchObjectAndItems, m.MatchType)
	assert.InDelta(t, 0.95, m.Score, 1e-9)
	assert.True(t, m.ValidatedByLLM)
	assert.Equal(t, "fake-llm", m.ValidatorModel)
	assert.Contains(t, m.Justification, "saude_medicamentos")
}

func TestRunSkipsAlreadyProcessed(t *testing.T) {
	fx := newFixture(t, &markerProvider{}, approveReply)
	opp := healthcareScenario(t, fx)
	ctx := context.Background()

	_, err := fx.orch.Run(ctx, []model.Opportunity{opp})
	require.NoError(t, err)

	second, err := fx.orch.Run(ctx, []model.Opportunity{opp})
	require.NoError(t, err)
	assert.Equal(t, []string{"opp-1"}, second.Skipped)
	assert.Empty(t, second.Processed)
	assert.Zero(t, second.MatchesSaved)

	matches, err := fx.store.ListMatches(ctx, "opp-1")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

// A changed payload means new content under the same ID: the opportunity is
// rematched, and the match upsert keeps a single row per pair.
func TestRunReprocessesChangedContent(t *testing.T) {
	fx := newFixture(t, &markerProvider{}, approveReply)
	opp := healthcareScenario(t, fx)
	ctx := context.Background()

	_, err := fx.orch.Run(ctx, []model.Opportunity{opp})
	require.NoError(t, err)

	published := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	opp.PublishedAt = &published

	third, err := fx.orch.Run(ctx, []model.Opportunity{opp})
	require.NoError(t, err)
	assert.Equal(t, []string{"opp-1"}, third.Processed)

	matches, err := fx.store.ListMatches(ctx, "opp-1")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestRunSkipsEmptyObjectDescription(t *testing.T) {
	fx := newFixture(t, &markerProvider{}, approveReply)
	seedCompanies(t, fx.store, model.CompanyProfile{
		ID:          "c-good",
		Name:        "Distribuidora Alfa",
		Description: "Distribuidora de medicamentos e material hospitalar para hospitais",
	})

	result, err := fx.orch.Run(context.Background(), []model.Opportunity{
		{ID: "opp-empty", ObjectDescription: "   "},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"opp-empty"}, result.Skipped)
	assert.Zero(t, result.MatchesSaved)
}

// One opportunity with an unresolvable embedding must not take down the rest
// of the batch.
func TestRunIsolatesOpportunityFailures(t *testing.T) {
	fx := newFixture(t, &markerProvider{failOn: "ultrassom"}, approveReply)
	good := healthcareScenario(t, fx)
	broken := model.Opportunity{
		ID:                "opp-broken",
		ObjectDescription: "Aquisição de aparelho de ultrassom portatil",
	}

	result, err := fx.orch.Run(context.Background(), []model.Opportunity{broken, good})
	require.NoError(t, err)
	assert.Equal(t, []string{"opp-broken"}, result.Failed)
	assert.Equal(t, []string{"opp-1"}, result.Processed)
	assert.Equal(t, 1, result.MatchesSaved)
}

func TestRunValidatorRejectionNotPersisted(t *testing.T) {
	reject := `{"is_valid": false, "confidence": 0.3, "reasoning": "ramo incompatível"}`
	fx := newFixture(t, &markerProvider{}, reject)
	opp := healthcareScenario(t, fx)
	ctx := context.Background()

	result, err := fx.orch.Run(ctx, []model.Opportunity{opp})
	require.NoError(t, err)
	assert.Equal(t, []string{"opp-1"}, result.Processed)
	assert.Zero(t, result.MatchesSaved)
	assert.Equal(t, 1, result.LLMRejected)

	matches, err := fx.store.ListMatches(ctx, "opp-1")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRunRequiresCompanies(t *testing.T) {
	fx := newFixture(t, &markerProvider{}, approveReply)

	_, err := fx.orch.Run(context.Background(), []model.Opportunity{
		{ID: "opp-1", ObjectDescription: "Aquisição de medicamentos"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no companies")
}
