package dedup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitatech/match-cli/internal/model"
	"github.com/licitatech/match-cli/internal/store"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "dedup.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return New(st)
}

func TestFingerprintDeterminism(t *testing.T) {
	payload := map[string]any{"b": 2, "a": "x", "c": []int{1, 2}}

	fp1, err := Fingerprint(payload)
	require.NoError(t, err)
	fp2, err := Fingerprint(map[string]any{"c": []int{1, 2}, "a": "x", "b": 2})
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2, "key order must not change the fingerprint")
	assert.Len(t, fp1, 64)

	fp3, err := Fingerprint(map[string]any{"b": 2, "a": "x", "c": []int{1, 3}})
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp3)
}

func TestOpportunityPayload(t *testing.T) {
	published := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	o := model.Opportunity{
		ID:                "o1",
		ExternalID:        "PE-001",
		ObjectDescription: "Aquisição de medicamentos",
		LineItems:         []model.LineItem{{Description: "Dipirona"}},
		PublishedAt:       &published,
	}

	p := OpportunityPayload(o)
	assert.Equal(t, "Aquisição de medicamentos", p["object_description"])
	assert.Equal(t, "PE-001", p["external_id"])
	assert.Equal(t, "2026-03-10T09:30:00Z", p["published_at"])
	assert.Equal(t, 1, p["line_item_count"])
}

func TestTrackerIdempotence(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	payload := map[string]any{"object_description": "Aquisição de medicamentos", "external_id": "PE-001"}

	done, err := tr.IsProcessed(ctx, model.ResourceOpportunity, "o1", payload)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, tr.MarkProcessed(ctx, model.ResourceOpportunity, "o1", payload))
	require.NoError(t, tr.MarkProcessed(ctx, model.ResourceOpportunity, "o1", payload))

	done, err = tr.IsProcessed(ctx, model.ResourceOpportunity, "o1", payload)
	require.NoError(t, err)
	assert.True(t, done)

	// Any changed field produces a new fingerprint and fresh work.
	changed := map[string]any{"object_description": "Aquisição de medicamentos genéricos", "external_id": "PE-001"}
	done, err = tr.IsProcessed(ctx, model.ResourceOpportunity, "o1", changed)
	require.NoError(t, err)
	assert.False(t, done)
}
