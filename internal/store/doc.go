// Package store persists JSON documents in the SQLite kv_store table.
//
// The bridge keeps its node snapshot (names, device IDs, triggers and event
// bindings) under a single key. Writes requested through DebouncedSave are
// coalesced: a burst of requests within the save delay produces one write of
// the latest data.
package store
