// Package snapshot persists the raw catalog dataset between runs as JSON
// Lines: one record per line, sorted by id.
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/roach88/tramites/internal/atomicfile"
	"github.com/roach88/tramites/internal/tramite"
	"github.com/roach88/tramites/internal/value"
)

// Default file names inside the data directory.
const (
	RecordsFile  = "tramites.jsonl"
	FailuresFile = "errores.jsonl"
)

// ErrNotFound is returned when no previous snapshot exists (cold start).
var ErrNotFound = errors.New("snapshot not found")

// maxLineSize bounds a single JSONL record.
const maxLineSize = 16 << 20

// ReadObjects reads every line of a JSONL file as an object.
// Blank lines are ignored.
func ReadObjects(path string) ([]value.Object, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineSize)

	var out []value.Object
	for line := 1; sc.Scan(); line++ {
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		obj, err := value.DecodeObject(raw)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, obj)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

// Load reads a JSONL file into a snapshot. Lines without an id are
// reported as an error: a persisted snapshot is expected to be clean.
func Load(path string) (*tramite.Snapshot, error) {
	objs, err := ReadObjects(path)
	if err != nil {
		return nil, err
	}
	snap, rejected := tramite.FromObjects(objs)
	if len(rejected) > 0 {
		return nil, fmt.Errorf("%s: %d record(s) without id: %w", path, len(rejected), tramite.ErrMissingID)
	}
	return snap, nil
}

// WriteRecords writes records sorted by id, one JSON object per line with
// sorted keys. Strings and number literals are written as fetched so a
// reloaded snapshot compares equal to the source. Nothing is written when
// records is empty.
func WriteRecords(path string, records []tramite.Record) error {
	if len(records) == 0 {
		return nil
	}
	sorted := tramite.NewSnapshot(records).Records()

	return atomicfile.WriteFile(path, func(w io.Writer) error {
		for _, r := range sorted {
			line, err := value.Marshal(r.Fields)
			if err != nil {
				return fmt.Errorf("record %s: %w", r.ID, err)
			}
			if _, err := w.Write(append(line, '\n')); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteJSONL writes items as JSON Lines in the given order. Nothing is
// written when items is empty.
func WriteJSONL[T any](path string, items []T) error {
	if len(items) == 0 {
		return nil
	}

	return atomicfile.WriteFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for i, item := range items {
			if err := enc.Encode(item); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
		return nil
	})
}
