// Package catalog holds the in-memory, deduplicated collection of events that
// every import task mutates.
//
// Each real-world object is represented by exactly one Event, reachable by its
// canonical name or any registered alias. Sources are deduplicated per event,
// quantity values merge their source lists, and photometry/spectra are
// append-only.
//
// A Catalog is not safe for concurrent use. The scheduler hands it to one task
// at a time through Grant; a view whose grant was revoked rejects mutations
// with ErrRevoked.
//
// Events that have been written to the journal are collapsed back to their
// identity (name + aliases) so memory stays bounded; a Loader rehydrates them
// the next time they are touched.
package catalog
