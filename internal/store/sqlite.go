package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/autoresumefiller/autofill/internal/cost"
	"github.com/autoresumefiller/autofill/internal/usage"
)

// sqliteTimeLayout is fixed width so text comparison orders by time.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements UsageStore using modernc.org/sqlite.
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
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS usage_records (
	id                TEXT PRIMARY KEY,
	session_id        TEXT NOT NULL DEFAULT '',
	provider          TEXT NOT NULL,
	model             TEXT NOT NULL,
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens      INTEGER NOT NULL DEFAULT 0,
	cost_usd          REAL NOT NULL DEFAULT 0,
	recorded_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_records_recorded_at ON usage_records(recorded_at);
CREATE INDEX IF NOT EXISTS idx_usage_records_provider ON usage_records(provider);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertUsage(ctx context.Context, r usage.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_records (id, session_id, provider, model, prompt_tokens, completion_tokens, total_tokens, cost_usd, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.Provider, r.Model, r.PromptTokens, r.CompletionTokens, r.TotalTokens, r.CostUSD,
		formatSQLiteTime(r.RecordedAt),
	)
	return eris.Wrapf(err, "sqlite: insert usage %s", r.ID)
}

func (s *SQLiteStore) ListUsage(ctx context.Context, filter UsageFilter) ([]usage.Record, error) {
	query := `SELECT id, session_id, provider, model, prompt_tokens, completion_tokens, total_tokens, cost_usd, recorded_at
		FROM usage_records WHERE 1=1`
	var args []any

	if !filter.Since.IsZero() {
		query += ` AND recorded_at >= ?`
		args = append(args, formatSQLiteTime(filter.Since))
	}
	if !filter.Until.IsZero() {
		query += ` AND recorded_at < ?`
		args = append(args, formatSQLiteTime(filter.Until))
	}
	if filter.Provider != "" {
		query += ` AND provider = ?`
		args = append(args, filter.Provider)
	}
	query += ` ORDER BY recorded_at DESC LIMIT ?`
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list usage")
	}
	defer rows.Close() //nolint:errcheck

	var out []usage.Record
	for rows.Next() {
		var (
			r  usage.Record
			at string
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Provider, &r.Model, &r.PromptTokens, &r.CompletionTokens, &r.TotalTokens, &r.CostUSD, &at); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan usage")
		}
		r.RecordedAt, err = time.Parse(sqliteTimeLayout, at)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse recorded_at %q", at)
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list usage iterate")
}

func (s *SQLiteStore) Summarize(ctx context.Context, since, until time.Time) ([]ProviderTotals, error) {
	query := `SELECT provider, COUNT(*), SUM(prompt_tokens), SUM(completion_tokens), SUM(total_tokens), SUM(cost_usd)
		FROM usage_records WHERE recorded_at >= ?`
	args := []any{formatSQLiteTime(since)}
	if !until.IsZero() {
		query += ` AND recorded_at < ?`
		args = append(args, formatSQLiteTime(until))
	}
	query += ` GROUP BY provider ORDER BY provider`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: summarize usage")
	}
	defer rows.Close() //nolint:errcheck

	var out []ProviderTotals
	for rows.Next() {
		var t ProviderTotals
		if err := rows.Scan(&t.Provider, &t.Requests, &t.PromptTokens, &t.CompletionTokens, &t.TotalTokens, &t.CostUSD); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan summary")
		}
		t.CostUSD = cost.Round(t.CostUSD, cost.DefaultPrecision)
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: summarize iterate")
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}
