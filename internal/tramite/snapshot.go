package tramite

import (
	"sort"

	"github.com/roach88/tramites/internal/value"
)

// Snapshot is the full catalog state observed by one run, indexed by id.
//
// Ids are expected to be unique. When they are not, the last record with a
// given id wins and the collision is counted in Duplicates.
type Snapshot struct {
	byID       map[ID]Record
	duplicates int
}

// NewSnapshot indexes records by id.
func NewSnapshot(records []Record) *Snapshot {
	s := &Snapshot{byID: make(map[ID]Record, len(records))}
	for _, r := range records {
		if _, exists := s.byID[r.ID]; exists {
			s.duplicates++
		}
		s.byID[r.ID] = r
	}
	return s
}

// FromObjects builds a snapshot from decoded objects. Objects without an id
// are returned separately rather than failing the whole snapshot.
func FromObjects(objs []value.Object) (*Snapshot, []value.Object) {
	records := make([]Record, 0, len(objs))
	var rejected []value.Object
	for _, obj := range objs {
		r, err := NewRecord(obj)
		if err != nil {
			rejected = append(rejected, obj)
			continue
		}
		records = append(records, r)
	}
	return NewSnapshot(records), rejected
}

// Len returns the number of distinct ids.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byID)
}

// Duplicates returns how many records were overwritten by a later record
// with the same id.
func (s *Snapshot) Duplicates() int {
	if s == nil {
		return 0
	}
	return s.duplicates
}

// Get returns the record with the given id.
func (s *Snapshot) Get(id ID) (Record, bool) {
	if s == nil {
		return Record{}, false
	}
	r, ok := s.byID[id]
	return r, ok
}

// Has reports whether the id is present.
func (s *Snapshot) Has(id ID) bool {
	_, ok := s.Get(id)
	return ok
}

// IDs returns all ids sorted with CompareIDs.
func (s *Snapshot) IDs() []ID {
	if s == nil {
		return nil
	}
	ids := make([]ID, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	SortIDs(ids)
	return ids
}

// Records returns all records sorted by id.
func (s *Snapshot) Records() []Record {
	ids := s.IDs()
	out := make([]Record, len(ids))
	for i, id := range ids {
		out[i] = s.byID[id]
	}
	return out
}

// Columns returns the sorted union of field names across all records.
func (s *Snapshot) Columns() []string {
	if s == nil {
		return nil
	}
	seen := map[string]bool{}
	for _, r := range s.byID {
		for k := range r.Fields {
			seen[k] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Digest returns a content hash over all records in id order.
func (s *Snapshot) Digest() (string, error) {
	records := s.Records()
	arr := make(value.Array, len(records))
	for i, r := range records {
		arr[i] = r.Fields
	}
	return value.Hash(value.DomainSnapshot, arr)
}
