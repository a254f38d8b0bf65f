package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/shiftscan/internal/db"
	"github.com/sells-group/shiftscan/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
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

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id                   TEXT PRIMARY KEY,
	user_id              TEXT NOT NULL,
	status               TEXT NOT NULL,
	providers            JSONB NOT NULL,
	recommended_provider TEXT NOT NULL DEFAULT '',
	overall_confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
	needs_review         BOOLEAN NOT NULL DEFAULT false,
	conflict_count       INTEGER NOT NULL DEFAULT 0,
	processing_ms        BIGINT NOT NULL DEFAULT 0,
	error                TEXT NOT NULL DEFAULT '',
	result               JSONB,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_outcomes (
	run_id        TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	provider      TEXT NOT NULL,
	success       BOOLEAN NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL,
	shift_count   INTEGER NOT NULL,
	processing_ms BIGINT NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, provider)
);

CREATE INDEX IF NOT EXISTS idx_runs_user ON runs(user_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveRun replaces the run row and bulk-copies its outcome summaries in one
// transaction.
func (s *PostgresStore) SaveRun(ctx context.Context, run *model.Run) error {
	providersJSON, resultJSON, err := marshalRun(run)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO runs (id, user_id, status, providers, recommended_provider, overall_confidence,
			needs_review, conflict_count, processing_ms, error, result, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			recommended_provider = EXCLUDED.recommended_provider,
			overall_confidence = EXCLUDED.overall_confidence,
			needs_review = EXCLUDED.needs_review,
			conflict_count = EXCLUDED.conflict_count,
			processing_ms = EXCLUDED.processing_ms,
			error = EXCLUDED.error,
			result = EXCLUDED.result`,
		run.ID, run.UserID, string(run.Status), providersJSON, string(run.RecommendedProvider),
		run.OverallConfidence, run.NeedsReview, run.ConflictCount, run.ProcessingTimeMs,
		run.Error, resultJSON, run.CreatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert run %s", run.ID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM run_outcomes WHERE run_id = $1`, run.ID); err != nil {
		return eris.Wrapf(err, "postgres: clear outcomes %s", run.ID)
	}

	rows := make([][]any, 0, len(run.Outcomes))
	for _, o := range run.Outcomes {
		rows = append(rows, outcomeRow(run.ID, o))
	}
	if _, err := db.CopyFrom(ctx, tx, "run_outcomes", outcomeColumns, rows); err != nil {
		return eris.Wrap(err, "postgres: copy outcomes")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

const postgresRunColumns = `id, user_id, status, providers, recommended_provider, overall_confidence,
	needs_review, conflict_count, processing_ms, error, result, created_at`

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+postgresRunColumns+` FROM runs WHERE id = $1`, id)
	run, err := scanPostgresRun(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT provider, success, confidence, shift_count, processing_ms, error
		 FROM run_outcomes WHERE run_id = $1 ORDER BY provider`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query outcomes %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		var o model.OutcomeSummary
		var provider string
		if err := rows.Scan(&provider, &o.Success, &o.Confidence, &o.ShiftCount, &o.ProcessingTimeMs, &o.ErrorMessage); err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome")
		}
		o.Provider = model.ProviderID(provider)
		run.Outcomes = append(run.Outcomes, o)
	}
	return run, eris.Wrap(rows.Err(), "postgres: iterate outcomes")
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(` AND user_id = $%d`, argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.NeedsReview != nil {
		query += fmt.Sprintf(` AND needs_review = $%d`, argIdx)
		args = append(args, *filter.NeedsReview)
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.CreatedAfter.UTC())
		argIdx++
	}
	query += ` ORDER BY created_at DESC, id`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	runs := []model.Run{}
	for rows.Next() {
		run, err := scanPostgresRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func (s *PostgresStore) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM runs WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete runs")
	}
	return tag.RowsAffected(), nil
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var (
		r                        model.Run
		status, recommended      string
		providersJSON, resultRaw []byte
	)
	err := row.Scan(&r.ID, &r.UserID, &status, &providersJSON, &recommended, &r.OverallConfidence,
		&r.NeedsReview, &r.ConflictCount, &r.ProcessingTimeMs, &r.Error, &resultRaw, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}
	r.Status = model.SessionStatus(status)
	r.RecommendedProvider = model.ProviderID(recommended)

	if err := unmarshalRun(&r, providersJSON, resultRaw); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal run")
	}
	return &r, nil
}
