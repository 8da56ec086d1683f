// Package sqlite persists per-request usage records. Every request that
// reaches the orchestrator produces exactly one row at finalization time,
// which makes this table the source of truth for token accounting.
package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// UsageRecord is one finalized request.
type UsageRecord struct {
	RequestID                string        `db:"request_id"`
	Provider                 string        `db:"provider"`
	Model                    string        `db:"model"`
	RequestedModel           string        `db:"requested_model"`
	Outcome                  string        `db:"outcome"`
	ErrorKind                string        `db:"error_kind"`
	Streamed                 bool          `db:"streamed"`
	InputTokens              int           `db:"input_tokens"`
	OutputTokens             int           `db:"output_tokens"`
	CacheReadInputTokens     int           `db:"cache_read_input_tokens"`
	CacheCreationInputTokens int           `db:"cache_creation_input_tokens"`
	Duration                 time.Duration `db:"duration_ns"`
	CreatedAt                time.Time     `db:"created_at"`
}

// Store wraps the database handle.
type Store struct {
	db *sqlx.DB
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

const schema = `
CREATE TABLE IF NOT EXISTS usage_records (
	request_id                  TEXT PRIMARY KEY,
	provider                    TEXT NOT NULL,
	model                       TEXT NOT NULL,
	requested_model             TEXT NOT NULL DEFAULT '',
	outcome                     TEXT NOT NULL,
	error_kind                  TEXT NOT NULL DEFAULT '',
	streamed                    INTEGER NOT NULL DEFAULT 0,
	input_tokens                INTEGER NOT NULL DEFAULT 0,
	output_tokens               INTEGER NOT NULL DEFAULT 0,
	cache_read_input_tokens     INTEGER NOT NULL DEFAULT 0,
	cache_creation_input_tokens INTEGER NOT NULL DEFAULT 0,
	duration_ns                 INTEGER NOT NULL DEFAULT 0,
	created_at                  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_provider_created ON usage_records (provider, created_at);
`

// Open opens (creating if necessary) the usage database at path. Use
// ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open usage database: %w", err)
	}

	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Insert writes one finalized request record.
func (s *Store) Insert(ctx context.Context, rec UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO usage_records (
			request_id, provider, model, requested_model, outcome, error_kind,
			streamed, input_tokens, output_tokens,
			cache_read_input_tokens, cache_creation_input_tokens,
			duration_ns, created_at
		) VALUES (
			:request_id, :provider, :model, :requested_model, :outcome, :error_kind,
			:streamed, :input_tokens, :output_tokens,
			:cache_read_input_tokens, :cache_creation_input_tokens,
			:duration_ns, :created_at
		)`, rec)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]UsageRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []UsageRecord
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM usage_records ORDER BY created_at DESC, request_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list usage records: %w", err)
	}
	return out, nil
}

// ProviderTotals sums token usage per provider.
type ProviderTotals struct {
	Provider     string `db:"provider" json:"provider"`
	Requests     int    `db:"requests" json:"requests"`
	InputTokens  int    `db:"input_tokens" json:"input_tokens"`
	OutputTokens int    `db:"output_tokens" json:"output_tokens"`
}

// Totals aggregates usage per provider across all records.
func (s *Store) Totals(ctx context.Context) ([]ProviderTotals, error) {
	var out []ProviderTotals
	err := s.db.SelectContext(ctx, &out, `
		SELECT provider,
		       COUNT(*) AS requests,
		       COALESCE(SUM(input_tokens), 0) AS input_tokens,
		       COALESCE(SUM(output_tokens), 0) AS output_tokens
		FROM usage_records
		GROUP BY provider
		ORDER BY provider`)
	if err != nil {
		return nil, fmt.Errorf("aggregate usage: %w", err)
	}
	return out, nil
}
