package harvest

import (
	"time"

	"github.com/roach88/tramites/internal/changelog"
	"github.com/roach88/tramites/internal/diff"
)

// Report summarizes one run.
type Report struct {
	RunID        string    `json:"run_id" yaml:"run_id"`
	Timestamp    string    `json:"timestamp" yaml:"timestamp"`
	Listed       int       `json:"listed" yaml:"listed"`
	Fetched      int       `json:"fetched" yaml:"fetched"`
	Failed       int       `json:"failed" yaml:"failed"`
	Rejected     int       `json:"rejected" yaml:"rejected"`
	Records      int       `json:"records" yaml:"records"`
	Duplicates   int       `json:"duplicates" yaml:"duplicates"`
	ColdStart    bool      `json:"cold_start" yaml:"cold_start"`
	SnapshotHash string    `json:"snapshot_hash" yaml:"snapshot_hash"`
	StartedAt    time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt   time.Time `json:"finished_at" yaml:"finished_at"`

	Changes *Changes `json:"changes,omitempty" yaml:"changes,omitempty"`
}

// Changes is the comparison part of a report. Absent on a cold start.
type Changes struct {
	Arrivals       int `json:"arrivals" yaml:"arrivals"`
	Departures     int `json:"departures" yaml:"departures"`
	Modifications  int `json:"modifications" yaml:"modifications"`
	Failures       int `json:"failures" yaml:"failures"`
	StructuralOnly int `json:"structural_only" yaml:"structural_only"`

	ModificationsLog changelog.Stats `json:"modifications_log" yaml:"modifications_log"`
	EventsLog        changelog.Stats `json:"events_log" yaml:"events_log"`

	Result *diff.Result `json:"-" yaml:"-"`
}

func newChanges(res *diff.Result, mods, events changelog.Stats) *Changes {
	return &Changes{
		Arrivals:         res.Count(diff.Aparece),
		Departures:       res.Count(diff.Desaparece),
		Modifications:    len(res.Modifications),
		Failures:         len(res.Failures),
		StructuralOnly:   res.StructuralOnly,
		ModificationsLog: mods,
		EventsLog:        events,
		Result:           res,
	}
}
