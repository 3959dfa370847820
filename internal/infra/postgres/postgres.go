// Package postgres stores run history in PostgreSQL, for deployments
// where several hosts share one history.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/tutu-network/pfp/internal/domain"
	"github.com/tutu-network/pfp/internal/infra/store"
)

// ErrDuplicateRun is returned when a run ID already exists.
var ErrDuplicateRun = errors.New("run already stored")

// DB is a PostgreSQL-backed domain.RunStore.
type DB struct {
	db *sql.DB
}

// Open connects to dsn, verifies connectivity and migrates the schema.
func Open(ctx context.Context, dsn string) (*DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres: connection string is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	d := &DB{db: db}
	if err := d.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Close releases the connection pool.
func (d *DB) Close() error { return d.db.Close() }

// Ping checks connectivity.
func (d *DB) Ping() error { return d.db.Ping() }

func (d *DB) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS pfp_runs (
			id          TEXT PRIMARY KEY,
			root        TEXT NOT NULL,
			workers     INTEGER NOT NULL,
			total       INTEGER NOT NULL,
			completed   INTEGER NOT NULL,
			failed      INTEGER NOT NULL,
			cancelled   INTEGER NOT NULL,
			started_at  TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			elapsed_ns  BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pfp_runs_started ON pfp_runs(started_at)`,
		`CREATE TABLE IF NOT EXISTS pfp_results (
			run_id      TEXT NOT NULL REFERENCES pfp_runs(id) ON DELETE CASCADE,
			seq         INTEGER NOT NULL,
			filename    TEXT NOT NULL,
			status      TEXT NOT NULL,
			size_bytes  BIGINT NOT NULL,
			words       INTEGER NOT NULL,
			lines       INTEGER NOT NULL,
			chars       JSONB NOT NULL,
			errors      JSONB,
			duration_ns BIGINT NOT NULL,
			PRIMARY KEY (run_id, seq)
		)`,
	}
	for _, m := range migrations {
		if _, err := d.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// SaveRun stores a run header and bulk-loads its records with COPY.
func (d *DB) SaveRun(ctx context.Context, run domain.Run, results []domain.FileAnalysis) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO pfp_runs (id, root, workers, total, completed, failed, cancelled, started_at, finished_at, elapsed_ns)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.Root, run.Workers, run.Total, run.Completed, run.Failed, run.Cancelled,
		run.StartedAt.UTC(), run.FinishedAt.UTC(), int64(run.Elapsed))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%s: %w", run.ID, ErrDuplicateRun)
		}
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("pfp_results",
		"run_id", "seq", "filename", "status", "size_bytes", "words", "lines", "chars", "errors", "duration_ns"))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}

	for i, a := range results {
		row, err := store.EncodeResult(a)
		if err != nil {
			stmt.Close()
			return err
		}
		var errs any
		if row.Errors != "" {
			errs = row.Errors
		}
		if _, err := stmt.ExecContext(ctx, run.ID, i, row.Filename, row.Status, row.SizeBytes,
			row.Words, row.Lines, row.Chars, errs, int64(row.Duration)); err != nil {
			stmt.Close()
			return fmt.Errorf("copy result %s: %w", a.Filename, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close copy: %w", err)
	}

	return tx.Commit()
}

const runColumns = `id, root, workers, total, completed, failed, cancelled, started_at, finished_at, elapsed_ns`

// GetRun returns a single run by ID.
func (d *DB) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM pfp_runs WHERE id = $1`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first. limit <= 0 means all.
func (d *DB) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM pfp_runs ORDER BY started_at DESC LIMIT $1`, lim)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// RunResults returns the records of a run in saved order.
func (d *DB) RunResults(ctx context.Context, id string) ([]domain.FileAnalysis, error) {
	if _, err := d.GetRun(ctx, id); err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT filename, status, size_bytes, words, lines, chars::text, errors::text, duration_ns
		 FROM pfp_results WHERE run_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []domain.FileAnalysis
	for rows.Next() {
		var (
			row      store.ResultRow
			errs     sql.NullString
			duration int64
		)
		if err := rows.Scan(&row.Filename, &row.Status, &row.SizeBytes, &row.Words, &row.Lines,
			&row.Chars, &errs, &duration); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		row.Errors = errs.String
		row.Duration = time.Duration(duration)

		a, err := row.Decode()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*domain.Run, error) {
	var (
		r       domain.Run
		elapsed int64
	)
	if err := s.Scan(&r.ID, &r.Root, &r.Workers, &r.Total, &r.Completed, &r.Failed, &r.Cancelled,
		&r.StartedAt, &r.FinishedAt, &elapsed); err != nil {
		return nil, err
	}
	r.Elapsed = time.Duration(elapsed)
	return &r, nil
}
