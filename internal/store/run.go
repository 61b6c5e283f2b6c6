package store

import "time"

// Run is one batch run as recorded in the ledger.
type Run struct {
	ID            string    `json:"id" yaml:"id"`
	Timestamp     string    `json:"timestamp" yaml:"timestamp"`
	Listed        int       `json:"listed" yaml:"listed"`
	Fetched       int       `json:"fetched" yaml:"fetched"`
	Failed        int       `json:"failed" yaml:"failed"`
	Arrivals      int       `json:"arrivals" yaml:"arrivals"`
	Departures    int       `json:"departures" yaml:"departures"`
	Modifications int       `json:"modifications" yaml:"modifications"`
	DiffFailures  int       `json:"diff_failures" yaml:"diff_failures"`
	SnapshotHash  string    `json:"snapshot_hash" yaml:"snapshot_hash"`
	ColdStart     bool      `json:"cold_start" yaml:"cold_start"`
	StartedAt     time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt    time.Time `json:"finished_at" yaml:"finished_at"`
}

// FetchFailure is a catalog entry whose detail could not be fetched.
type FetchFailure struct {
	RunID     string `json:"run_id" yaml:"run_id"`
	Slug      string `json:"slug" yaml:"slug"`
	TramiteID string `json:"tramite_id" yaml:"tramite_id"`
	Nombre    string `json:"nombre" yaml:"nombre"`
	Error     string `json:"error" yaml:"error"`
}
