// Package dedup tracks content fingerprints so identical opportunity payloads
// are never re-scored.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/licitatech/match-cli/internal/model"
	"github.com/licitatech/match-cli/internal/store"
)

// Tracker answers "has this exact content been processed before?". Records are
// append-only; a changed payload produces a new fingerprint and therefore a
// fresh unit of work.
type Tracker struct {
	store store.Store
}

// New creates a Tracker over the store's processed_resources ledger.
func New(st store.Store) *Tracker {
	return &Tracker{store: st}
}

// Fingerprint hashes a payload deterministically. json.Marshal sorts map keys,
// so equal payloads always produce equal fingerprints.
func Fingerprint(payload map[string]any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", eris.Wrap(err, "dedup: marshal payload")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// OpportunityPayload builds the canonical dedup payload for an opportunity.
// Only the fields whose change warrants re-scoring participate.
func OpportunityPayload(o model.Opportunity) map[string]any {
	published := ""
	if o.PublishedAt != nil {
		published = o.PublishedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	return map[string]any{
		"object_description": o.ObjectDescription,
		"external_id":        o.ExternalID,
		"published_at":       published,
		"line_item_count":    len(o.LineItems),
		"process_type":       "matching",
	}
}

// IsProcessed reports whether the resource has already been processed with
// exactly this payload content.
func (t *Tracker) IsProcessed(ctx context.Context, rt model.ResourceType, resourceID string, payload map[string]any) (bool, error) {
	fp, err := Fingerprint(payload)
	if err != nil {
		return false, err
	}
	return t.store.IsResourceProcessed(ctx, rt, resourceID, fp)
}

// MarkProcessed records the resource/payload pair. Calling it twice with the
// same payload is a no-op.
func (t *Tracker) MarkProcessed(ctx context.Context, rt model.ResourceType, resourceID string, payload map[string]any) error {
	fp, err := Fingerprint(payload)
	if err != nil {
		return err
	}
	return t.store.MarkResourceProcessed(ctx, model.ProcessedResource{
		ResourceType: rt,
		ResourceID:   resourceID,
		Fingerprint:  fp,
		Metadata:     payload,
	})
}
