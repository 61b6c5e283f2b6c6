package diff

import "github.com/roach88/tramites/internal/tramite"

// Alignment partitions ids of two snapshots into three disjoint sets.
// Each set is sorted with tramite.CompareIDs.
type Alignment struct {
	Arrived  []tramite.ID // in current only
	Departed []tramite.ID // in previous only
	Common   []tramite.ID // in both
}

// Align partitions the ids of prev and curr. A nil snapshot is empty.
func Align(prev, curr *tramite.Snapshot) Alignment {
	var a Alignment

	for _, id := range curr.IDs() {
		if prev.Has(id) {
			a.Common = append(a.Common, id)
		} else {
			a.Arrived = append(a.Arrived, id)
		}
	}
	for _, id := range prev.IDs() {
		if !curr.Has(id) {
			a.Departed = append(a.Departed, id)
		}
	}

	return a
}
