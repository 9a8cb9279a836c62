package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"pace/ingest-service/internal/model"
)

// DB is the subset of *pgxpool.Pool used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Schema creates the opportunities and source_logs tables.
const Schema = `
CREATE TABLE IF NOT EXISTS opportunities (
	id          TEXT PRIMARY KEY,
	apply_link  TEXT NOT NULL DEFAULT '',
	fetched_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	doc         JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS opportunities_apply_link_idx ON opportunities (apply_link);
CREATE INDEX IF NOT EXISTS opportunities_fetched_at_idx ON opportunities (fetched_at DESC);

CREATE TABLE IF NOT EXISTS source_logs (
	id          TEXT PRIMARY KEY,
	fetched_at  TIMESTAMPTZ NOT NULL,
	source      TEXT NOT NULL,
	category    TEXT NOT NULL,
	page        INTEGER NOT NULL,
	status_code INTEGER NOT NULL,
	raw         TEXT,
	truncated   BOOLEAN NOT NULL DEFAULT false
);`

// PostgresStore keeps each opportunity as a JSONB document. Merge-style
// writes concatenate the incoming document onto the stored one so only the
// written keys change.
type PostgresStore struct {
	db DB
}

// NewPostgresStore wraps a pgx pool (or any DB).
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies Schema. It is safe to run repeatedly.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByApplyLink(ctx context.Context, link string) (*model.Opportunity, error) {
	return s.queryOne(ctx,
		`SELECT doc FROM opportunities
		 WHERE apply_link = $1
		 ORDER BY fetched_at DESC
		 LIMIT 1`,
		link,
	)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Opportunity, error) {
	return s.queryOne(ctx, `SELECT doc FROM opportunities WHERE id = $1`, id)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]model.Opportunity, error) {
	rows, err := s.db.Query(ctx,
		`SELECT doc FROM opportunities
		 ORDER BY fetched_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent opportunities: %w", err)
	}
	defer rows.Close()

	opps := make([]model.Opportunity, 0, limit)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var opp model.Opportunity
		if err := json.Unmarshal(raw, &opp); err != nil {
			return nil, fmt.Errorf("decode opportunity: %w", err)
		}
		opps = append(opps, opp)
	}
	return opps, rows.Err()
}

func (s *PostgresStore) Upsert(ctx context.Context, opp model.Opportunity) error {
	doc, err := json.Marshal(opp)
	if err != nil {
		return fmt.Errorf("marshal opportunity: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO opportunities (id, apply_link, fetched_at, doc)
		 VALUES ($1, $2, $3, $4::jsonb)
		 ON CONFLICT (id) DO UPDATE SET
		   doc        = opportunities.doc || EXCLUDED.doc,
		   apply_link = COALESCE(NULLIF(EXCLUDED.apply_link, ''), opportunities.apply_link),
		   fetched_at = EXCLUDED.fetched_at`,
		opp.ID, opp.ApplyLink, opp.FetchedAt, string(doc),
	)
	if err != nil {
		return fmt.Errorf("upsert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

func (s *PostgresStore) AppendSourceLog(ctx context.Context, l model.SourceLog) error {
	var raw *string
	if l.Raw != "" {
		raw = &l.Raw
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO source_logs (id, fetched_at, source, category, page, status_code, raw, truncated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		l.ID, l.FetchedAt, l.Source, string(l.Category), l.Page, l.StatusCode, raw, l.Truncated,
	)
	if err != nil {
		return fmt.Errorf("insert source log: %w", err)
	}
	return nil
}

func (s *PostgresStore) queryOne(ctx context.Context, sql string, args ...any) (*model.Opportunity, error) {
	var raw []byte
	if err := s.db.QueryRow(ctx, sql, args...).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query opportunity: %w", err)
	}
	var opp model.Opportunity
	if err := json.Unmarshal(raw, &opp); err != nil {
		return nil, fmt.Errorf("decode opportunity: %w", err)
	}
	return &opp, nil
}
