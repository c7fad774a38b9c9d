// Package store persists companies, opportunities, matches, the durable
// embedding cache and the processed-resource ledger.
package store

import (
	"context"

	"github.com/licitatech/match-cli/internal/model"
)

// Store is the persistence interface consumed by the matching pipeline.
// Implementations exist for SQLite (local runs) and Postgres.
type Store interface {
	// Companies
	UpsertCompany(ctx context.Context, c model.CompanyProfile) error
	ListCompanies(ctx context.Context) ([]model.CompanyProfile, error)

	// Opportunities
	UpsertOpportunity(ctx context.Context, o model.Opportunity) error
	GetOpportunity(ctx context.Context, id string) (*model.Opportunity, error)
	ListOpportunities(ctx context.Context, limit int) ([]model.Opportunity, error)

	// Matches. UpsertMatch is keyed on (opportunity_id, company_id).
	UpsertMatch(ctx context.Context, m model.MatchRecord) error
	ListMatches(ctx context.Context, opportunityID string) ([]model.MatchRecord, error)
	ListAllMatches(ctx context.Context) ([]model.MatchRecord, error)
	ClearMatches(ctx context.Context, opportunityID string) (int, error)

	// Durable embedding cache. PutEmbedding is an idempotent upsert: a conflict
	// on (text_hash, model_name) bumps the access bookkeeping and leaves the
	// stored vector untouched.
	GetEmbedding(ctx context.Context, textHash, modelName string) (*model.EmbeddingCacheEntry, error)
	GetEmbeddingBatch(ctx context.Context, modelName string, hashes []string) (map[string]model.EmbeddingCacheEntry, error)
	PutEmbedding(ctx context.Context, entry model.EmbeddingCacheEntry) error
	TouchEmbedding(ctx context.Context, textHash, modelName string) error
	EmbeddingCacheStats(ctx context.Context) (*model.CacheStats, error)
	ClearEmbeddingCache(ctx context.Context, modelName string) (int, error)

	// Processed-resource ledger. MarkResourceProcessed is insert-do-nothing on
	// the (resource_type, resource_id, content_fingerprint) triple.
	IsResourceProcessed(ctx context.Context, rt model.ResourceType, resourceID, fingerprint string) (bool, error)
	MarkResourceProcessed(ctx context.Context, rec model.ProcessedResource) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
