package diff

import (
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/roach88/tramites/internal/schema"
	"github.com/roach88/tramites/internal/tramite"
	"github.com/roach88/tramites/internal/value"
)

// compare is the composite comparator used by Detect. Tests replace it.
var compare = Compare

// Engine compares snapshots using a field-type declaration.
type Engine struct {
	decl   schema.Declaration
	opts   Options
	logger logrus.FieldLogger
}

// NewEngine creates an engine. A nil logger discards output.
func NewEngine(decl schema.Declaration, opts Options, logger logrus.FieldLogger) *Engine {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Engine{decl: decl, opts: opts, logger: logger}
}

// Detect compares prev against curr and stamps every record with timestamp.
//
// Only fields present in both snapshots (in at least one record each) are
// compared; id is never compared. Events and modifications come back
// sorted by (timestamp, id, tipo) and (timestamp, id, campo).
func (e *Engine) Detect(prev, curr *tramite.Snapshot, timestamp string) *Result {
	res := &Result{
		Timestamp: timestamp,
		Alignment: Align(prev, curr),
	}

	for _, id := range res.Alignment.Arrived {
		r, _ := curr.Get(id)
		res.Events = append(res.Events, newEvent(timestamp, Aparece, r))
	}
	for _, id := range res.Alignment.Departed {
		r, _ := prev.Get(id)
		res.Events = append(res.Events, newEvent(timestamp, Desaparece, r))
	}

	res.Compared = sharedColumns(prev, curr)
	for _, field := range res.Compared {
		kind := e.decl.Kind(field)
		for _, id := range res.Alignment.Common {
			old, _ := prev.Get(id)
			cur, _ := curr.Get(id)
			e.compareField(res, field, kind, old, cur)
		}
	}

	SortEvents(res.Events)
	SortModifications(res.Modifications)

	e.logger.WithFields(logrus.Fields{
		"timestamp":     timestamp,
		"arrived":       len(res.Alignment.Arrived),
		"departed":      len(res.Alignment.Departed),
		"common":        len(res.Alignment.Common),
		"fields":        len(res.Compared),
		"modifications": len(res.Modifications),
		"failures":      len(res.Failures),
	}).Info("change detection finished")

	return res
}

// compareField compares one field of one common record. A panic inside the
// comparison is converted into a Failure so the rest of the run proceeds.
func (e *Engine) compareField(res *Result, field string, kind schema.Kind, old, cur tramite.Record) {
	before, after := old.Get(field), cur.Get(field)
	if value.Equal(before, after) {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			res.Failures = append(res.Failures, Failure{
				ID:    old.ID,
				Field: field,
				Err:   fmt.Sprintf("%v", r),
			})
			e.logger.WithFields(logrus.Fields{
				"id":    old.ID,
				"field": field,
			}).Errorf("comparison failed: %v", r)
		}
	}()

	base := Modification{
		Timestamp: res.Timestamp,
		ID:        old.ID,
		Entidad:   old.Entidad(),
		Nombre:    old.Nombre(),
	}

	if kind == schema.Scalar {
		m := base
		m.Campo = field
		m.Viejo, m.Nuevo = before, after
		res.Modifications = append(res.Modifications, m)
		return
	}

	changes := compare(before, after, e.opts)
	if len(changes) == 0 {
		res.StructuralOnly++
		e.logger.WithFields(logrus.Fields{
			"id":    old.ID,
			"field": field,
		}).Debug("composite field changed shape only")
		return
	}
	for _, c := range changes {
		m := base
		m.Campo = field + c.Path
		m.Viejo, m.Nuevo = c.Old, c.New
		res.Modifications = append(res.Modifications, m)
	}
}

func newEvent(timestamp string, tipo Tipo, r tramite.Record) Event {
	return Event{
		Timestamp: timestamp,
		Tipo:      tipo,
		ID:        r.ID,
		Entidad:   r.Entidad(),
		Nombre:    r.Nombre(),
	}
}

// sharedColumns returns the fields present in both snapshots, minus id.
func sharedColumns(prev, curr *tramite.Snapshot) []string {
	inCurr := map[string]bool{}
	for _, c := range curr.Columns() {
		inCurr[c] = true
	}

	var cols []string
	for _, c := range prev.Columns() {
		if c != tramite.FieldID && inCurr[c] {
			cols = append(cols, c)
		}
	}
	sort.Strings(cols)
	return cols
}
