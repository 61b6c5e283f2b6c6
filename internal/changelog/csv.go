package changelog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/roach88/tramites/internal/atomicfile"
)

// ErrHeaderMismatch is returned when an existing log does not have exactly
// the table's columns. Rewriting such a file would lose data.
var ErrHeaderMismatch = errors.New("log header does not match table columns")

// Stats summarizes one Append call.
type Stats struct {
	Existing int  `json:"existing" yaml:"existing"` // rows already in the file
	Added    int  `json:"added" yaml:"added"`       // new rows written
	Skipped  int  `json:"skipped" yaml:"skipped"`   // new rows identical to an existing row
	Written  bool `json:"written" yaml:"written"`   // whether the file was rewritten
}

// Total returns the number of rows in the file after the call.
func (s Stats) Total() int {
	return s.Existing + s.Added
}

// Read loads all rows of a log. A missing or empty file yields no rows.
func Read(path string, t Table) ([]Row, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return decode(f, t, path)
}

func decode(r io.Reader, t Table, path string) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	header[0] = trimBOM(header[0])

	if err := checkHeader(header, t); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if len(rec) != len(header) {
			return nil, fmt.Errorf("%s:%d: expected %d fields, got %d", path, line, len(header), len(rec))
		}
		row := make(Row, len(header))
		for i, col := range header {
			row[col] = rec[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func checkHeader(header []string, t Table) error {
	if len(header) != len(t.Columns) {
		return fmt.Errorf("%w: got %v, want %v", ErrHeaderMismatch, header, t.Columns)
	}
	want := map[string]bool{}
	for _, c := range t.Columns {
		want[c] = true
	}
	for _, c := range header {
		if !want[c] {
			return fmt.Errorf("%w: unexpected column %q", ErrHeaderMismatch, c)
		}
		delete(want, c)
	}
	if len(want) > 0 {
		return fmt.Errorf("%w: got %v, want %v", ErrHeaderMismatch, header, t.Columns)
	}
	return nil
}

func trimBOM(s string) string {
	const bom = "\ufeff"
	if len(s) >= len(bom) && s[:len(bom)] == bom {
		return s[len(bom):]
	}
	return s
}

// Merge appends incoming rows to existing rows and sorts the result.
// An incoming row identical to a row already present is skipped, so
// applying the same batch twice is a no-op. Existing rows are kept as is,
// duplicates among them included.
func Merge(existing, incoming []Row, t Table) (merged []Row, added, skipped int) {
	seen := make(map[string]bool, len(existing))
	for _, r := range existing {
		seen[t.key(r)] = true
	}

	merged = make([]Row, 0, len(existing)+len(incoming))
	merged = append(merged, existing...)
	for _, r := range incoming {
		k := t.key(r)
		if seen[k] {
			skipped++
			continue
		}
		seen[k] = true
		merged = append(merged, r)
		added++
	}

	t.Sort(merged)
	return merged, added, skipped
}

// Write replaces the log at path with rows, header first.
func Write(path string, t Table, rows []Row) error {
	return atomicfile.WriteFile(path, func(w io.Writer) error {
		return encode(w, t, rows)
	})
}

func encode(w io.Writer, t Table, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(t.values(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Append merges rows into the log at path.
//
// An empty batch returns immediately: the file is neither created nor
// rewritten. A batch made only of rows already present leaves the file
// untouched as well.
func Append(path string, t Table, rows []Row) (Stats, error) {
	if len(rows) == 0 {
		return Stats{}, nil
	}

	existing, err := Read(path, t)
	if err != nil {
		return Stats{}, err
	}

	merged, added, skipped := Merge(existing, rows, t)
	stats := Stats{Existing: len(existing), Added: added, Skipped: skipped}
	if added == 0 {
		return stats, nil
	}

	if err := Write(path, t, merged); err != nil {
		return stats, fmt.Errorf("write %s: %w", path, err)
	}
	stats.Written = true
	return stats, nil
}
