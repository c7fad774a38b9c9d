package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"github.com/rotisserie/eris"

	"github.com/licitatech/match-cli/internal/db"
	"github.com/licitatech/match-cli/internal/model"
)

// PostgresStore implements Store using pgxpool. Cached vectors live in a
// pgvector column so pre-populated caches remain queryable with vector
// operators.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool (used by tests with pgxmock).
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS companies (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL,
	products    JSONB
);

CREATE TABLE IF NOT EXISTS opportunities (
	id                 TEXT PRIMARY KEY,
	external_id        TEXT NOT NULL,
	object_description TEXT NOT NULL,
	line_items         JSONB,
	published_at       TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS matches (
	opportunity_id   TEXT NOT NULL,
	company_id       TEXT NOT NULL,
	score            DOUBLE PRECISION NOT NULL,
	match_type       TEXT NOT NULL,
	justification    TEXT NOT NULL,
	validated_by_llm BOOLEAN NOT NULL DEFAULT FALSE,
	validator_model  TEXT,
	created_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (opportunity_id, company_id)
);

CREATE TABLE IF NOT EXISTS embedding_cache (
	text_hash    TEXT NOT NULL,
	model_name   TEXT NOT NULL,
	text_preview TEXT NOT NULL,
	vector       vector NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	accessed_at  TIMESTAMPTZ NOT NULL,
	access_count BIGINT NOT NULL DEFAULT 1,
	PRIMARY KEY (text_hash, model_name)
);

CREATE TABLE IF NOT EXISTS processed_resources (
	resource_type       TEXT NOT NULL,
	resource_id         TEXT NOT NULL,
	content_fingerprint TEXT NOT NULL,
	metadata            JSONB,
	processed_at        TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (resource_type, resource_id, content_fingerprint)
);

CREATE INDEX IF NOT EXISTS idx_matches_opportunity ON matches(opportunity_id);
CREATE INDEX IF NOT EXISTS idx_embedding_cache_model ON embedding_cache(model_name);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Companies ---

func (s *PostgresStore) UpsertCompany(ctx context.Context, c model.CompanyProfile) error {
	products, err := json.Marshal(c.Products)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal products")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO companies (id, name, description, products) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, description = excluded.description, products = excluded.products`,
		c.ID, c.Name, c.Description, products,
	)
	return eris.Wrapf(err, "postgres: upsert company %s", c.ID)
}

func (s *PostgresStore) ListCompanies(ctx context.Context) ([]model.CompanyProfile, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, description, products FROM companies ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	var out []model.CompanyProfile
	for rows.Next() {
		var c model.CompanyProfile
		var products []byte
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &products); err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		if len(products) > 0 {
			if err := json.Unmarshal(products, &c.Products); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal products")
			}
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list companies iterate")
}

// --- Opportunities ---

func (s *PostgresStore) UpsertOpportunity(ctx context.Context, o model.Opportunity) error {
	items, err := json.Marshal(o.LineItems)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal line items")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO opportunities (id, external_id, object_description, line_items, published_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET external_id = excluded.external_id,
		 object_description = excluded.object_description, line_items = excluded.line_items,
		 published_at = excluded.published_at`,
		o.ID, o.ExternalID, o.ObjectDescription, items, o.PublishedAt,
	)
	return eris.Wrapf(err, "postgres: upsert opportunity %s", o.ID)
}

func (s *PostgresStore) GetOpportunity(ctx context.Context, id string) (*model.Opportunity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, external_id, object_description, line_items, published_at FROM opportunities WHERE id = $1`, id)

	o, err := scanPgOpportunity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return o, err
}

func (s *PostgresStore) ListOpportunities(ctx context.Context, limit int) ([]model.Opportunity, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, external_id, object_description, line_items, published_at FROM opportunities ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list opportunities")
	}
	defer rows.Close()

	var out []model.Opportunity
	for rows.Next() {
		o, err := scanPgOpportunity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list opportunities iterate")
}

func scanPgOpportunity(row pgx.Row) (*model.Opportunity, error) {
	var o model.Opportunity
	var items []byte
	var published *time.Time
	if err := row.Scan(&o.ID, &o.ExternalID, &o.ObjectDescription, &items, &published); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan opportunity")
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.LineItems); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal line items")
		}
	}
	o.PublishedAt = published
	return &o, nil
}

// --- Matches ---

func (s *PostgresStore) UpsertMatch(ctx context.Context, m model.MatchRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO matches (opportunity_id, company_id, score, match_type, justification, validated_by_llm, validator_model, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (opportunity_id, company_id) DO UPDATE SET
		 score = excluded.score, match_type = excluded.match_type,
		 justification = excluded.justification, validated_by_llm = excluded.validated_by_llm,
		 validator_model = excluded.validator_model, created_at = excluded.created_at`,
		m.OpportunityID, m.CompanyID, m.Score, string(m.MatchType), m.Justification,
		m.ValidatedByLLM, m.ValidatorModel, m.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert match %s/%s", m.OpportunityID, m.CompanyID)
}

func (s *PostgresStore) ListMatches(ctx context.Context, opportunityID string) ([]model.MatchRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE opportunity_id = $1 ORDER BY score DESC`, opportunityID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list matches")
	}
	defer rows.Close()
	return collectPgMatches(rows)
}

func (s *PostgresStore) ListAllMatches(ctx context.Context) ([]model.MatchRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+matchColumns+` FROM matches ORDER BY opportunity_id, score DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list all matches")
	}
	defer rows.Close()
	return collectPgMatches(rows)
}

func collectPgMatches(rows pgx.Rows) ([]model.MatchRecord, error) {
	var out []model.MatchRecord
	for rows.Next() {
		var m model.MatchRecord
		var mt string
		var validator *string
		if err := rows.Scan(&m.OpportunityID, &m.CompanyID, &m.Score, &mt, &m.Justification,
			&m.ValidatedByLLM, &validator, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan match")
		}
		m.MatchType = model.MatchType(mt)
		if validator != nil {
			m.ValidatorModel = *validator
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: matches iterate")
}

func (s *PostgresStore) ClearMatches(ctx context.Context, opportunityID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM matches WHERE opportunity_id = $1`, opportunityID)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: clear matches")
	}
	return int(tag.RowsAffected()), nil
}

// --- Embedding cache ---

func (s *PostgresStore) GetEmbedding(ctx context.Context, textHash, modelName string) (*model.EmbeddingCacheEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT text_hash, model_name, text_preview, vector, created_at, accessed_at, access_count
		 FROM embedding_cache WHERE text_hash = $1 AND model_name = $2`, textHash, modelName)

	e, err := scanPgEmbedding(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (s *PostgresStore) GetEmbeddingBatch(ctx context.Context, modelName string, hashes []string) (map[string]model.EmbeddingCacheEntry, error) {
	out := make(map[string]model.EmbeddingCacheEntry, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT text_hash, model_name, text_preview, vector, created_at, accessed_at, access_count
		 FROM embedding_cache WHERE model_name = $1 AND text_hash = ANY($2)`, modelName, hashes)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: batch get embeddings")
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanPgEmbedding(rows)
		if err != nil {
			return nil, err
		}
		out[e.TextHash] = *e
	}
	return out, eris.Wrap(rows.Err(), "postgres: batch embeddings iterate")
}

func scanPgEmbedding(row pgx.Row) (*model.EmbeddingCacheEntry, error) {
	var e model.EmbeddingCacheEntry
	var vec pgvector.Vector
	if err := row.Scan(&e.TextHash, &e.ModelName, &e.TextPreview, &vec, &e.CreatedAt, &e.AccessedAt, &e.AccessCount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan embedding")
	}
	e.Vector = vec.Slice()
	return &e, nil
}

func (s *PostgresStore) PutEmbedding(ctx context.Context, entry model.EmbeddingCacheEntry) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO embedding_cache (text_hash, model_name, text_preview, vector, created_at, accessed_at, access_count)
		 VALUES ($1, $2, $3, $4, $5, $6, 1)
		 ON CONFLICT (text_hash, model_name) DO UPDATE SET
		 accessed_at = excluded.accessed_at,
		 access_count = embedding_cache.access_count + 1`,
		entry.TextHash, entry.ModelName, entry.TextPreview, pgvector.NewVector(entry.Vector), now, now,
	)
	return eris.Wrap(err, "postgres: put embedding")
}

func (s *PostgresStore) TouchEmbedding(ctx context.Context, textHash, modelName string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE embedding_cache SET access_count = access_count + 1, accessed_at = $1
		 WHERE text_hash = $2 AND model_name = $3`,
		time.Now().UTC(), textHash, modelName,
	)
	return eris.Wrap(err, "postgres: touch embedding")
}

func (s *PostgresStore) EmbeddingCacheStats(ctx context.Context) (*model.CacheStats, error) {
	stats := &model.CacheStats{ByModel: make(map[string]int64)}

	rows, err := s.pool.Query(ctx,
		`SELECT model_name, COUNT(*), COALESCE(SUM(access_count), 0) FROM embedding_cache GROUP BY model_name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: cache stats")
	}
	defer rows.Close()

	for rows.Next() {
		var modelName string
		var entries, accesses int64
		if err := rows.Scan(&modelName, &entries, &accesses); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cache stats")
		}
		stats.ByModel[modelName] = entries
		stats.TotalEntries += entries
		stats.TotalAccesses += accesses
	}
	return stats, eris.Wrap(rows.Err(), "postgres: cache stats iterate")
}

func (s *PostgresStore) ClearEmbeddingCache(ctx context.Context, modelName string) (int, error) {
	if modelName == "" {
		tag, err := s.pool.Exec(ctx, `DELETE FROM embedding_cache`)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: clear embedding cache")
		}
		return int(tag.RowsAffected()), nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM embedding_cache WHERE model_name = $1`, modelName)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: clear embedding cache")
	}
	return int(tag.RowsAffected()), nil
}

// --- Processed resources ---

func (s *PostgresStore) IsResourceProcessed(ctx context.Context, rt model.ResourceType, resourceID, fingerprint string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM processed_resources
		 WHERE resource_type = $1 AND resource_id = $2 AND content_fingerprint = $3)`,
		string(rt), resourceID, fingerprint,
	).Scan(&exists)
	return exists, eris.Wrap(err, "postgres: is resource processed")
}

func (s *PostgresStore) MarkResourceProcessed(ctx context.Context, rec model.ProcessedResource) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal metadata")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO processed_resources (resource_type, resource_id, content_fingerprint, metadata, processed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (resource_type, resource_id, content_fingerprint) DO NOTHING`,
		string(rec.ResourceType), rec.ResourceID, rec.Fingerprint, meta, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: mark resource processed")
}
