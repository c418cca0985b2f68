// Package journal persists catalog events so an ingestion run can be
// interrupted and resumed.
//
// One logical record per event, keyed by canonical name, plus an alias index
// so events that are not in memory can still be found by any of their names.
//
// Backends:
//   - "file":   one JSON document per event + alias snapshot/journal files
//   - "sqlite": events and aliases tables (modernc.org/sqlite, WAL)
//   - "pebble": event|/alias| key spaces in a Pebble LSM
package journal
