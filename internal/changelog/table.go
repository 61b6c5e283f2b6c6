package changelog

import (
	"sort"
	"strings"

	"github.com/roach88/tramites/internal/diff"
	"github.com/roach88/tramites/internal/tramite"
	"github.com/roach88/tramites/internal/value"
)

// Column names shared by both logs.
const (
	ColTimestamp = "timestamp"
	ColTipo      = "tipo"
	ColID        = "id"
	ColEntidad   = "entidad"
	ColNombre    = "nombre"
	ColCampo     = "campo"
	ColViejo     = "viejo"
	ColNuevo     = "nuevo"
)

// Table describes the layout of one log file.
type Table struct {
	Name    string
	Columns []string
	// SortBy lists the sort-key columns. The id column compares with
	// tramite.CompareIDs, every other column as plain text.
	SortBy []string
}

// Modifications is the field-level modification log.
var Modifications = Table{
	Name:    "modificaciones",
	Columns: []string{ColTimestamp, ColID, ColEntidad, ColNombre, ColCampo, ColViejo, ColNuevo},
	SortBy:  []string{ColTimestamp, ColID, ColCampo},
}

// Events is the arrival/departure log.
var Events = Table{
	Name:    "adiciones",
	Columns: []string{ColTimestamp, ColTipo, ColID, ColEntidad, ColNombre},
	SortBy:  []string{ColTimestamp, ColID, ColTipo},
}

// FileName returns the conventional file name of the table.
func (t Table) FileName() string {
	return t.Name + ".csv"
}

// Row is one log line keyed by column name.
type Row map[string]string

// values returns the row's cells in column order.
func (t Table) values(r Row) []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = r[c]
	}
	return out
}

// key identifies a row by all of its cells.
func (t Table) key(r Row) string {
	return strings.Join(t.values(r), "\x1f")
}

// Sort stably orders rows by the table's sort keys.
func (t Table) Sort(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return t.compare(rows[i], rows[j]) < 0
	})
}

func (t Table) compare(a, b Row) int {
	for _, col := range t.SortBy {
		var c int
		if col == ColID {
			c = tramite.CompareIDs(tramite.ID(a[col]), tramite.ID(b[col]))
		} else {
			c = strings.Compare(a[col], b[col])
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// EventRows converts engine events into log rows.
func EventRows(events []diff.Event) []Row {
	rows := make([]Row, len(events))
	for i, e := range events {
		rows[i] = Row{
			ColTimestamp: e.Timestamp,
			ColTipo:      string(e.Tipo),
			ColID:        string(e.ID),
			ColEntidad:   e.Entidad,
			ColNombre:    e.Nombre,
		}
	}
	return rows
}

// ModificationRows converts engine modifications into log rows.
// Old and new values are rendered with value.Text.
func ModificationRows(mods []diff.Modification) []Row {
	rows := make([]Row, len(mods))
	for i, m := range mods {
		rows[i] = Row{
			ColTimestamp: m.Timestamp,
			ColID:        string(m.ID),
			ColEntidad:   m.Entidad,
			ColNombre:    m.Nombre,
			ColCampo:     m.Campo,
			ColViejo:     value.Text(m.Viejo),
			ColNuevo:     value.Text(m.Nuevo),
		}
	}
	return rows
}
