// Package store provides the SQLite run ledger for tramites harvests.
//
// Every batch run leaves one row in runs with its counts (listed, fetched,
// failed, arrivals, departures, modifications, diff failures), the digest
// of the snapshot it produced and whether it was a cold start. Details that
// could not be fetched are kept in fetch_failures keyed by (run_id, slug).
//
// The ledger is observational only. The change logs remain the CSV files
// written by package changelog; nothing here is read back by the engine.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Listings are ordered deterministically: ORDER BY timestamp DESC, id DESC.
package store
