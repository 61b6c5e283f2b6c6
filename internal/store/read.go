package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned by ReadRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

const runColumns = `id, timestamp, listed, fetched, failed, arrivals, departures,
	modifications, diff_failures, snapshot_hash, cold_start, started_at, finished_at`

// ListRuns returns up to limit runs, most recent first.
// A limit <= 0 returns every run.
//
// Returns an empty slice (not nil) if the ledger is empty.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns a single run by id.
// Returns ErrRunNotFound if it does not exist.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ReadFetchFailures returns the failures recorded for a run ordered by slug.
func (s *Store) ReadFetchFailures(ctx context.Context, runID string) ([]FetchFailure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, slug, tramite_id, nombre, error
		FROM fetch_failures
		WHERE run_id = ?
		ORDER BY slug COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query fetch failures: %w", err)
	}
	defer rows.Close()

	failures := []FetchFailure{}
	for rows.Next() {
		var f FetchFailure
		if err := rows.Scan(&f.RunID, &f.Slug, &f.TramiteID, &f.Nombre, &f.Error); err != nil {
			return nil, fmt.Errorf("scan fetch failure: %w", err)
		}
		failures = append(failures, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fetch failures: %w", err)
	}
	return failures, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run                   Run
		coldStart             int
		startedAt, finishedAt string
	)
	err := sc.Scan(
		&run.ID,
		&run.Timestamp,
		&run.Listed,
		&run.Fetched,
		&run.Failed,
		&run.Arrivals,
		&run.Departures,
		&run.Modifications,
		&run.DiffFailures,
		&run.SnapshotHash,
		&coldStart,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	run.ColdStart = coldStart != 0
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return Run{}, fmt.Errorf("scan run %s: started_at: %w", run.ID, err)
	}
	if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
		return Run{}, fmt.Errorf("scan run %s: finished_at: %w", run.ID, err)
	}
	return run, nil
}
