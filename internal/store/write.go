package store

import (
	"context"
	"fmt"
	"time"
)

// WriteRun inserts a run into the ledger.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - a run written twice
// keeps its first row.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("write run: empty id")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, timestamp, listed, fetched, failed, arrivals, departures,
		 modifications, diff_failures, snapshot_hash, cold_start, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Timestamp,
		run.Listed,
		run.Fetched,
		run.Failed,
		run.Arrivals,
		run.Departures,
		run.Modifications,
		run.DiffFailures,
		run.SnapshotHash,
		boolToInt(run.ColdStart),
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteFetchFailures records the failures of one run in a single
// transaction. The run must already exist (foreign key constraint).
func (s *Store) WriteFetchFailures(ctx context.Context, runID string, failures []FetchFailure) error {
	if len(failures) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write fetch failures: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fetch_failures (run_id, slug, tramite_id, nombre, error)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, slug) DO UPDATE SET
			tramite_id = excluded.tramite_id,
			nombre = excluded.nombre,
			error = excluded.error
	`)
	if err != nil {
		return fmt.Errorf("write fetch failures: prepare: %w", err)
	}
	defer stmt.Close()

	for _, f := range failures {
		if _, err := stmt.ExecContext(ctx, runID, f.Slug, f.TramiteID, f.Nombre, f.Error); err != nil {
			return fmt.Errorf("write fetch failure %q: %w", f.Slug, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write fetch failures: commit: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
