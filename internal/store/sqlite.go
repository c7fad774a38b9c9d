package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/licitatech/match-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL,
	products    TEXT
);

CREATE TABLE IF NOT EXISTS opportunities (
	id                 TEXT PRIMARY KEY,
	external_id        TEXT NOT NULL,
	object_description TEXT NOT NULL,
	line_items         TEXT,
	published_at       DATETIME
);

CREATE TABLE IF NOT EXISTS matches (
	opportunity_id   TEXT NOT NULL,
	company_id       TEXT NOT NULL,
	score            REAL NOT NULL,
	match_type       TEXT NOT NULL,
	justification    TEXT NOT NULL,
	validated_by_llm INTEGER NOT NULL DEFAULT 0,
	validator_model  TEXT,
	created_at       DATETIME NOT NULL,
	PRIMARY KEY (opportunity_id, company_id)
);

CREATE TABLE IF NOT EXISTS embedding_cache (
	text_hash    TEXT NOT NULL,
	model_name   TEXT NOT NULL,
	text_preview TEXT NOT NULL,
	vector       TEXT NOT NULL,
	created_at   DATETIME NOT NULL,
	accessed_at  DATETIME NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (text_hash, model_name)
);

CREATE TABLE IF NOT EXISTS processed_resources (
	resource_type       TEXT NOT NULL,
	resource_id         TEXT NOT NULL,
	content_fingerprint TEXT NOT NULL,
	metadata            TEXT,
	processed_at        DATETIME NOT NULL,
	PRIMARY KEY (resource_type, resource_id, content_fingerprint)
);

CREATE INDEX IF NOT EXISTS idx_matches_opportunity ON matches(opportunity_id);
CREATE INDEX IF NOT EXISTS idx_embedding_cache_model ON embedding_cache(model_name);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Companies ---

func (s *SQLiteStore) UpsertCompany(ctx context.Context, c model.CompanyProfile) error {
	products, err := json.Marshal(c.Products)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal products")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO companies (id, name, description, products) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, description = excluded.description, products = excluded.products`,
		c.ID, c.Name, c.Description, string(products),
	)
	return eris.Wrapf(err, "sqlite: upsert company %s", c.ID)
}

func (s *SQLiteStore) ListCompanies(ctx context.Context) ([]model.CompanyProfile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, products FROM companies ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list companies")
	}
	defer rows.Close()

	var out []model.CompanyProfile
	for rows.Next() {
		var c model.CompanyProfile
		var products sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &products); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		if products.Valid && products.String != "" {
			if err := json.Unmarshal([]byte(products.String), &c.Products); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal products")
			}
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list companies iterate")
}

// --- Opportunities ---

func (s *SQLiteStore) UpsertOpportunity(ctx context.Context, o model.Opportunity) error {
	items, err := json.Marshal(o.LineItems)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal line items")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO opportunities (id, external_id, object_description, line_items, published_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET external_id = excluded.external_id,
		 object_description = excluded.object_description, line_items = excluded.line_items,
		 published_at = excluded.published_at`,
		o.ID, o.ExternalID, o.ObjectDescription, string(items), o.PublishedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert opportunity %s", o.ID)
}

func (s *SQLiteStore) GetOpportunity(ctx context.Context, id string) (*model.Opportunity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, external_id, object_description, line_items, published_at FROM opportunities WHERE id = ?`, id)
	o, err := scanOpportunity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return o, err
}

func (s *SQLiteStore) ListOpportunities(ctx context.Context, limit int) ([]model.Opportunity, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, external_id, object_description, line_items, published_at FROM opportunities ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list opportunities")
	}
	defer rows.Close()

	var out []model.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list opportunities iterate")
}

func scanOpportunity(row scannable) (*model.Opportunity, error) {
	var o model.Opportunity
	var items sql.NullString
	var published sql.NullTime
	if err := row.Scan(&o.ID, &o.ExternalID, &o.ObjectDescription, &items, &published); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan opportunity")
	}
	if items.Valid && items.String != "" {
		if err := json.Unmarshal([]byte(items.String), &o.LineItems); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal line items")
		}
	}
	if published.Valid {
		t := published.Time
		o.PublishedAt = &t
	}
	return &o, nil
}

// --- Matches ---

func (s *SQLiteStore) UpsertMatch(ctx context.Context, m model.MatchRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO matches (opportunity_id, company_id, score, match_type, justification, validated_by_llm, validator_model, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (opportunity_id, company_id) DO UPDATE SET
		 score = excluded.score, match_type = excluded.match_type,
		 justification = excluded.justification, validated_by_llm = excluded.validated_by_llm,
		 validator_model = excluded.validator_model, created_at = excluded.created_at`,
		m.OpportunityID, m.CompanyID, m.Score, string(m.MatchType), m.Justification,
		m.ValidatedByLLM, m.ValidatorModel, m.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert match %s/%s", m.OpportunityID, m.CompanyID)
}

const matchColumns = `opportunity_id, company_id, score, match_type, justification, validated_by_llm, validator_model, created_at`

func (s *SQLiteStore) ListMatches(ctx context.Context, opportunityID string) ([]model.MatchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE opportunity_id = ? ORDER BY score DESC`, opportunityID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list matches")
	}
	defer rows.Close()
	return collectMatches(rows)
}

func (s *SQLiteStore) ListAllMatches(ctx context.Context) ([]model.MatchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+matchColumns+` FROM matches ORDER BY opportunity_id, score DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list all matches")
	}
	defer rows.Close()
	return collectMatches(rows)
}

func collectMatches(rows *sql.Rows) ([]model.MatchRecord, error) {
	var out []model.MatchRecord
	for rows.Next() {
		var m model.MatchRecord
		var mt string
		var validator sql.NullString
		if err := rows.Scan(&m.OpportunityID, &m.CompanyID, &m.Score, &mt, &m.Justification,
			&m.ValidatedByLLM, &validator, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan match")
		}
		m.MatchType = model.MatchType(mt)
		m.ValidatorModel = validator.String
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: matches iterate")
}

func (s *SQLiteStore) ClearMatches(ctx context.Context, opportunityID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM matches WHERE opportunity_id = ?`, opportunityID)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: clear matches")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// --- Embedding cache ---

func (s *SQLiteStore) GetEmbedding(ctx context.Context, textHash, modelName string) (*model.EmbeddingCacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT text_hash, model_name, text_preview, vector, created_at, accessed_at, access_count
		 FROM embedding_cache WHERE text_hash = ? AND model_name = ?`, textHash, modelName)

	e, err := scanEmbedding(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func (s *SQLiteStore) GetEmbeddingBatch(ctx context.Context, modelName string, hashes []string) (map[string]model.EmbeddingCacheEntry, error) {
	out := make(map[string]model.EmbeddingCacheEntry, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(hashes)), ",")
	args := make([]any, 0, len(hashes)+1)
	args = append(args, modelName)
	for _, h := range hashes {
		args = append(args, h)
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT text_hash, model_name, text_preview, vector, created_at, accessed_at, access_count
		 FROM embedding_cache WHERE model_name = ? AND text_hash IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: batch get embeddings")
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEmbedding(rows)
		if err != nil {
			return nil, err
		}
		out[e.TextHash] = *e
	}
	return out, eris.Wrap(rows.Err(), "sqlite: batch embeddings iterate")
}

func scanEmbedding(row scannable) (*model.EmbeddingCacheEntry, error) {
	var e model.EmbeddingCacheEntry
	var vec string
	if err := row.Scan(&e.TextHash, &e.ModelName, &e.TextPreview, &vec, &e.CreatedAt, &e.AccessedAt, &e.AccessCount); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan embedding")
	}
	if err := json.Unmarshal([]byte(vec), &e.Vector); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal vector")
	}
	return &e, nil
}

func (s *SQLiteStore) PutEmbedding(ctx context.Context, entry model.EmbeddingCacheEntry) error {
	vec, err := json.Marshal(entry.Vector)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal vector")
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO embedding_cache (text_hash, model_name, text_preview, vector, created_at, accessed_at, access_count)
		 VALUES (?, ?, ?, ?, ?, ?, 1)
		 ON CONFLICT (text_hash, model_name) DO UPDATE SET
		 accessed_at = excluded.accessed_at,
		 access_count = embedding_cache.access_count + 1`,
		entry.TextHash, entry.ModelName, entry.TextPreview, string(vec), now, now,
	)
	return eris.Wrap(err, "sqlite: put embedding")
}

func (s *SQLiteStore) TouchEmbedding(ctx context.Context, textHash, modelName string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE embedding_cache SET access_count = access_count + 1, accessed_at = ?
		 WHERE text_hash = ? AND model_name = ?`,
		time.Now().UTC(), textHash, modelName,
	)
	return eris.Wrap(err, "sqlite: touch embedding")
}

func (s *SQLiteStore) EmbeddingCacheStats(ctx context.Context) (*model.CacheStats, error) {
	stats := &model.CacheStats{ByModel: make(map[string]int64)}

	rows, err := s.db.QueryContext(ctx,
		`SELECT model_name, COUNT(*), COALESCE(SUM(access_count), 0) FROM embedding_cache GROUP BY model_name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: cache stats")
	}
	defer rows.Close()

	for rows.Next() {
		var modelName string
		var entries, accesses int64
		if err := rows.Scan(&modelName, &entries, &accesses); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cache stats")
		}
		stats.ByModel[modelName] = entries
		stats.TotalEntries += entries
		stats.TotalAccesses += accesses
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: cache stats iterate")
}

func (s *SQLiteStore) ClearEmbeddingCache(ctx context.Context, modelName string) (int, error) {
	var (
		res sql.Result
		err error
	)
	if modelName == "" {
		res, err = s.db.ExecContext(ctx, `DELETE FROM embedding_cache`)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM embedding_cache WHERE model_name = ?`, modelName)
	}
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: clear embedding cache")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// --- Processed resources ---

func (s *SQLiteStore) IsResourceProcessed(ctx context.Context, rt model.ResourceType, resourceID, fingerprint string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM processed_resources
		 WHERE resource_type = ? AND resource_id = ? AND content_fingerprint = ?)`,
		string(rt), resourceID, fingerprint,
	).Scan(&exists)
	return exists, eris.Wrap(err, "sqlite: is resource processed")
}

func (s *SQLiteStore) MarkResourceProcessed(ctx context.Context, rec model.ProcessedResource) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal metadata")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO processed_resources (resource_type, resource_id, content_fingerprint, metadata, processed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (resource_type, resource_id, content_fingerprint) DO NOTHING`,
		string(rec.ResourceType), rec.ResourceID, rec.Fingerprint, string(meta), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: mark resource processed")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}
