package diff

import (
	"sort"
	"strings"
	"time"

	"github.com/roach88/tramites/internal/tramite"
	"github.com/roach88/tramites/internal/value"
)

// Tipo is the kind of an arrival/departure event.
type Tipo string

const (
	// Aparece marks an id present only in the current snapshot.
	Aparece Tipo = "aparece"
	// Desaparece marks an id present only in the previous snapshot.
	Desaparece Tipo = "desaparece"
)

// Event is an entity that appeared or disappeared between two runs.
type Event struct {
	Timestamp string     `json:"timestamp"`
	Tipo      Tipo       `json:"tipo"`
	ID        tramite.ID `json:"id"`
	Entidad   string     `json:"entidad"`
	Nombre    string     `json:"nombre"`
}

// Modification is one field, or one leaf inside a composite field, whose
// value changed for an entity present in both snapshots.
type Modification struct {
	Timestamp string      `json:"timestamp"`
	ID        tramite.ID  `json:"id"`
	Entidad   string      `json:"entidad"`
	Nombre    string      `json:"nombre"`
	Campo     string      `json:"campo"`
	Viejo     value.Value `json:"viejo"`
	Nuevo     value.Value `json:"nuevo"`
}

// Failure records a comparison that could not be completed.
type Failure struct {
	ID    tramite.ID `json:"id"`
	Field string     `json:"field"`
	Err   string     `json:"error"`
}

// Result is the outcome of one Detect call.
type Result struct {
	Timestamp     string
	Alignment     Alignment
	Events        []Event
	Modifications []Modification
	Failures      []Failure

	// Compared lists the fields that were compared, sorted.
	Compared []string

	// StructuralOnly counts composite fields whose values differed only by
	// added or removed elements. Those differences produce no record unless
	// Options.Structural is set.
	StructuralOnly int
}

// Empty reports whether the run detected nothing at all.
func (r *Result) Empty() bool {
	return len(r.Events) == 0 && len(r.Modifications) == 0
}

// Count returns the number of events of the given tipo.
func (r *Result) Count(tipo Tipo) int {
	n := 0
	for _, e := range r.Events {
		if e.Tipo == tipo {
			n++
		}
	}
	return n
}

// SortEvents orders events by (timestamp, id, tipo).
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if c := strings.Compare(a.Timestamp, b.Timestamp); c != 0 {
			return c < 0
		}
		if c := tramite.CompareIDs(a.ID, b.ID); c != 0 {
			return c < 0
		}
		return a.Tipo < b.Tipo
	})
}

// SortModifications orders modifications by (timestamp, id, campo).
func SortModifications(mods []Modification) {
	sort.SliceStable(mods, func(i, j int) bool {
		a, b := mods[i], mods[j]
		if c := strings.Compare(a.Timestamp, b.Timestamp); c != 0 {
			return c < 0
		}
		if c := tramite.CompareIDs(a.ID, b.ID); c != 0 {
			return c < 0
		}
		return a.Campo < b.Campo
	})
}

// TimestampLayout is ISO-8601 with minute precision and an explicit offset,
// e.g. 2025-03-01T14:05+00:00.
const TimestampLayout = "2006-01-02T15:04-07:00"

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
