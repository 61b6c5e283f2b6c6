// Package harvest runs one batch: fetch the catalog, compare it with the
// previous snapshot, extend the change logs and persist the new snapshot.
//
// A run proceeds in this order:
//
//  1. timestamp and run id from the injected Clock and IDGenerator
//  2. list the catalog (fatal on failure), fetch every detail
//  3. load the previous tramites.jsonl; when absent the run is a cold start
//     and no comparison happens
//  4. detect changes and append them to modificaciones.csv and adiciones.csv
//  5. overwrite tramites.jsonl and errores.jsonl with this run's data
//  6. ledger row, change notification and metrics textfile
//
// Steps 4 and 5 are ordered so that a crash between them leaves the old
// snapshot in place; re-running then re-detects the same changes and the
// idempotent log merge drops the duplicates.
package harvest
