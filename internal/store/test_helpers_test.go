package store

import (
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a run with minimal required fields.
func createTestRun(id, timestamp string) Run {
	started := time.Date(2024, 5, 1, 14, 5, 0, 0, time.UTC)
	return Run{
		ID:         id,
		Timestamp:  timestamp,
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
	}
}
