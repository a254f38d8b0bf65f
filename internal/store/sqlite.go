package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/shiftscan/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = "shiftscan.db"
	}
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
			db.Close() //nolint:errcheck,gosec
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id                   TEXT PRIMARY KEY,
	user_id              TEXT NOT NULL,
	status               TEXT NOT NULL,
	providers            TEXT NOT NULL,
	recommended_provider TEXT NOT NULL DEFAULT '',
	overall_confidence   REAL NOT NULL DEFAULT 0,
	needs_review         INTEGER NOT NULL DEFAULT 0,
	conflict_count       INTEGER NOT NULL DEFAULT 0,
	processing_ms        INTEGER NOT NULL DEFAULT 0,
	error                TEXT NOT NULL DEFAULT '',
	result               TEXT,
	created_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS run_outcomes (
	run_id        TEXT NOT NULL REFERENCES runs(id),
	provider      TEXT NOT NULL,
	success       INTEGER NOT NULL,
	confidence    REAL NOT NULL,
	shift_count   INTEGER NOT NULL,
	processing_ms INTEGER NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, provider)
);

CREATE INDEX IF NOT EXISTS idx_runs_user ON runs(user_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.Run) error {
	providersJSON, resultJSON, err := marshalRun(run)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, q := range []string{
		`DELETE FROM run_outcomes WHERE run_id = ?`,
		`DELETE FROM runs WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, run.ID); err != nil {
			return eris.Wrapf(err, "sqlite: replace run %s", run.ID)
		}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, user_id, status, providers, recommended_provider, overall_confidence,
			needs_review, conflict_count, processing_ms, error, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.UserID, string(run.Status), string(providersJSON), string(run.RecommendedProvider),
		run.OverallConfidence, run.NeedsReview, run.ConflictCount, run.ProcessingTimeMs,
		run.Error, sql.NullString{String: string(resultJSON), Valid: resultJSON != nil}, run.CreatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
	}

	if len(run.Outcomes) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO run_outcomes (run_id, provider, success, confidence, shift_count, processing_ms, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare outcome insert")
		}
		defer stmt.Close() //nolint:errcheck

		for _, o := range run.Outcomes {
			if _, err := stmt.ExecContext(ctx, outcomeRow(run.ID, o)...); err != nil {
				return eris.Wrapf(err, "sqlite: insert outcome %s/%s", run.ID, o.Provider)
			}
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

const sqliteRunColumns = `id, user_id, status, providers, recommended_provider, overall_confidence,
	needs_review, conflict_count, processing_ms, error, result, created_at`

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanSQLiteRun(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, success, confidence, shift_count, processing_ms, error
		 FROM run_outcomes WHERE run_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query outcomes %s", id)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var o model.OutcomeSummary
		if err := rows.Scan(&o.Provider, &o.Success, &o.Confidence, &o.ShiftCount, &o.ProcessingTimeMs, &o.ErrorMessage); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outcome")
		}
		run.Outcomes = append(run.Outcomes, o)
	}
	return run, eris.Wrap(rows.Err(), "sqlite: iterate outcomes")
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.NeedsReview != nil {
		query += ` AND needs_review = ?`
		args = append(args, *filter.NeedsReview)
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, filter.limit())
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	runs := []model.Run{}
	for rows.Next() {
		run, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoff = cutoff.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`DELETE FROM run_outcomes WHERE run_id IN (SELECT id FROM runs WHERE created_at < ?)`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete outcomes")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete runs")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: commit")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row scannable) (*model.Run, error) {
	var (
		r             model.Run
		providersJSON string
		resultJSON    sql.NullString
	)
	err := row.Scan(&r.ID, &r.UserID, &r.Status, &providersJSON, &r.RecommendedProvider, &r.OverallConfidence,
		&r.NeedsReview, &r.ConflictCount, &r.ProcessingTimeMs, &r.Error, &resultJSON, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	var result []byte
	if resultJSON.Valid {
		result = []byte(resultJSON.String)
	}
	if err := unmarshalRun(&r, []byte(providersJSON), result); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal run")
	}
	return &r, nil
}

func marshalRun(run *model.Run) (providers []byte, result []byte, err error) {
	ps := run.Providers
	if ps == nil {
		ps = []model.ProviderID{}
	}
	providers, err = json.Marshal(ps)
	if err != nil {
		return nil, nil, err
	}
	if run.Result != nil {
		result, err = json.Marshal(run.Result)
		if err != nil {
			return nil, nil, err
		}
	}
	return providers, result, nil
}

func unmarshalRun(r *model.Run, providers, result []byte) error {
	if err := json.Unmarshal(providers, &r.Providers); err != nil {
		return err
	}
	if len(result) > 0 {
		r.Result = &model.ConsolidatedResult{}
		if err := json.Unmarshal(result, r.Result); err != nil {
			return err
		}
	}
	return nil
}

var outcomeColumns = []string{"run_id", "provider", "success", "confidence", "shift_count", "processing_ms", "error"}

func outcomeRow(runID string, o model.OutcomeSummary) []any {
	return []any{runID, string(o.Provider), o.Success, o.Confidence, o.ShiftCount, o.ProcessingTimeMs, o.ErrorMessage}
}
