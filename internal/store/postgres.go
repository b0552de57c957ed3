package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/autoresumefiller/autofill/internal/cost"
	"github.com/autoresumefiller/autofill/internal/usage"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements UsageStore using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_usage": `INSERT INTO usage_records (id, session_id, provider, model, prompt_tokens, completion_tokens, total_tokens, cost_usd, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
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
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
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

const postgresMigration = `
CREATE TABLE IF NOT EXISTS usage_records (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	session_id        TEXT NOT NULL DEFAULT '',
	provider          TEXT NOT NULL,
	model             TEXT NOT NULL,
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens      INTEGER NOT NULL DEFAULT 0,
	cost_usd          DOUBLE PRECISION NOT NULL DEFAULT 0,
	recorded_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_usage_records_recorded_at ON usage_records(recorded_at);
CREATE INDEX IF NOT EXISTS idx_usage_records_provider ON usage_records(provider);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) InsertUsage(ctx context.Context, r usage.Record) error {
	_, err := s.pool.Exec(ctx, preparedStatements["insert_usage"],
		r.ID, r.SessionID, r.Provider, r.Model, r.PromptTokens, r.CompletionTokens, r.TotalTokens, r.CostUSD, r.RecordedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert usage %s", r.ID)
}

func (s *PostgresStore) ListUsage(ctx context.Context, filter UsageFilter) ([]usage.Record, error) {
	query := `SELECT id, session_id, provider, model, prompt_tokens, completion_tokens, total_tokens, cost_usd, recorded_at
		FROM usage_records WHERE 1=1`
	var args []any

	if !filter.Since.IsZero() {
		args = append(args, filter.Since.UTC())
		query += fmt.Sprintf(" AND recorded_at >= $%d", len(args))
	}
	if !filter.Until.IsZero() {
		args = append(args, filter.Until.UTC())
		query += fmt.Sprintf(" AND recorded_at < $%d", len(args))
	}
	if filter.Provider != "" {
		args = append(args, filter.Provider)
		query += fmt.Sprintf(" AND provider = $%d", len(args))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY recorded_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list usage")
	}
	defer rows.Close()

	var out []usage.Record
	for rows.Next() {
		var r usage.Record
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Provider, &r.Model, &r.PromptTokens, &r.CompletionTokens, &r.TotalTokens, &r.CostUSD, &r.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan usage")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list usage iterate")
}

func (s *PostgresStore) Summarize(ctx context.Context, since, until time.Time) ([]ProviderTotals, error) {
	query := `SELECT provider, COUNT(*), COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0),
		COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost_usd), 0)
		FROM usage_records WHERE recorded_at >= $1`
	args := []any{since.UTC()}
	if !until.IsZero() {
		query += ` AND recorded_at < $2`
		args = append(args, until.UTC())
	}
	query += ` GROUP BY provider ORDER BY provider`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: summarize usage")
	}
	defer rows.Close()

	var out []ProviderTotals
	for rows.Next() {
		var (
			t                                   ProviderTotals
			requests, prompt, completion, total int64
		)
		if err := rows.Scan(&t.Provider, &requests, &prompt, &completion, &total, &t.CostUSD); err != nil {
			return nil, eris.Wrap(err, "postgres: scan summary")
		}
		t.Requests = int(requests)
		t.PromptTokens = int(prompt)
		t.CompletionTokens = int(completion)
		t.TotalTokens = int(total)
		t.CostUSD = cost.Round(t.CostUSD, cost.DefaultPrecision)
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: summarize iterate")
}
