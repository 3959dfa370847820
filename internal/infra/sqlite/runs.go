package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tutu-network/pfp/internal/domain"
	"github.com/tutu-network/pfp/internal/infra/store"
)

// ─── Run History ────────────────────────────────────────────────────────────

// SaveRun stores a run and all its records in one transaction.
func (d *DB) SaveRun(ctx context.Context, run domain.Run, results []domain.FileAnalysis) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, root, workers, total, completed, failed, cancelled, started_at, finished_at, elapsed_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Root, run.Workers, run.Total, run.Completed, run.Failed, run.Cancelled,
		run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(), int64(run.Elapsed),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO results (run_id, seq, filename, status, size_bytes, words, lines, chars, errors, duration_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare result insert: %w", err)
	}
	defer stmt.Close()

	for i, a := range results {
		row, err := store.EncodeResult(a)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx, run.ID, i, a.Filename, a.Status.String(),
			a.Stats.SizeBytes, a.Stats.WordCount, a.Stats.LineCount,
			row.Chars, nullStr(row.Errors), int64(a.ProcessingTime))
		if err != nil {
			return fmt.Errorf("insert result %s: %w", a.Filename, err)
		}
	}

	return tx.Commit()
}

// GetRun returns a single run by ID.
func (d *DB) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, root, workers, total, completed, failed, cancelled, started_at, finished_at, elapsed_ns
		 FROM runs WHERE id = ?`, id)
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
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, root, workers, total, completed, failed, cancelled, started_at, finished_at, elapsed_ns
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
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

// RunResults returns the records of a run in the order they were saved.
func (d *DB) RunResults(ctx context.Context, id string) ([]domain.FileAnalysis, error) {
	if _, err := d.GetRun(ctx, id); err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT filename, status, size_bytes, words, lines, chars, errors, duration_ns
		 FROM results WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []domain.FileAnalysis
	for rows.Next() {
		var (
			row      store.ResultRow
			status   string
			errs     sql.NullString
			duration int64
		)
		if err := rows.Scan(&row.Filename, &status, &row.SizeBytes, &row.Words, &row.Lines,
			&row.Chars, &errs, &duration); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		row.Status = status
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
		r                 domain.Run
		started, finished int64
		elapsed           int64
	)
	if err := s.Scan(&r.ID, &r.Root, &r.Workers, &r.Total, &r.Completed, &r.Failed, &r.Cancelled,
		&started, &finished, &elapsed); err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(0, started)
	r.FinishedAt = time.Unix(0, finished)
	r.Elapsed = time.Duration(elapsed)
	return &r, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
