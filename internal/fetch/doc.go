// Package fetch harvests the procedure catalog from the portal API.
//
// Harvesting happens in two stages:
//
//  1. List pages through the catalog index and collects (id, nombre, slug)
//     entries, deduplicated by slug.
//  2. FetchAll downloads the detail document of every entry with a bounded
//     number of requests in flight.
//
// Transient failures (timeouts, connection errors and the statuses in
// TransientStatuses) are retried with exponential backoff. Any other
// failure is final for that entry. FetchAll never aborts because of a
// single entry: successes and failures are both collected and returned
// once every entry is resolved.
package fetch
