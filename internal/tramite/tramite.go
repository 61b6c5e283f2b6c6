// Package tramite defines the catalog entity record and the snapshot
// collection the change-detection engine compares.
package tramite

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/roach88/tramites/internal/value"
)

// Well-known field names of a catalog record.
const (
	FieldID      = "id"
	FieldNombre  = "nombre"
	FieldEntidad = "entidad"
	FieldSlug    = "slug"
)

// ErrMissingID is returned when a record has no usable id.
var ErrMissingID = errors.New("record has no id")

// ID is the canonical text form of a record id. The portal uses integers,
// but string ids are accepted.
type ID string

// IDOf converts an id value to its canonical text.
func IDOf(v value.Value) (ID, error) {
	switch val := v.(type) {
	case value.Number:
		return ID(val.Decimal().String()), nil
	case value.String:
		if val == "" {
			return "", ErrMissingID
		}
		return ID(val), nil
	case nil, value.Null:
		return "", ErrMissingID
	default:
		return "", fmt.Errorf("unsupported id type %s", value.KindOf(v))
	}
}

// CompareIDs orders ids numerically when both are integers and
// lexicographically otherwise. Numeric ids sort before non-numeric ones.
func CompareIDs(a, b ID) int {
	ai, aErr := strconv.ParseInt(string(a), 10, 64)
	bi, bErr := strconv.ParseInt(string(b), 10, 64)

	switch {
	case aErr == nil && bErr == nil:
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	}

	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Record is one administrative procedure as published by the portal.
type Record struct {
	ID     ID
	Fields value.Object
}

// NewRecord wraps a decoded object. The object must carry an id.
func NewRecord(fields value.Object) (Record, error) {
	id, err := IDOf(fields.Get(FieldID))
	if err != nil {
		return Record{}, err
	}
	return Record{ID: id, Fields: fields}, nil
}

// Get returns a field value, nil when absent.
func (r Record) Get(field string) value.Value {
	return r.Fields.Get(field)
}

// Nombre returns the display name, empty when absent or not a string.
func (r Record) Nombre() string {
	return stringOf(r.Fields.Get(FieldNombre))
}

// Entidad returns the owning organization name (entidad.nombre).
func (r Record) Entidad() string {
	ent, ok := r.Fields.Get(FieldEntidad).(value.Object)
	if !ok {
		return ""
	}
	return stringOf(ent.Get(FieldNombre))
}

func stringOf(v value.Value) string {
	if value.IsNull(v) {
		return ""
	}
	return value.Text(v)
}

// SortIDs sorts ids in place with CompareIDs.
func SortIDs(ids []ID) {
	sort.SliceStable(ids, func(i, j int) bool {
		return CompareIDs(ids[i], ids[j]) < 0
	})
}
