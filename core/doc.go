// Package core defines the canonical telemetry event model and the bounded
// in-memory event store shared by the ingestion and distribution paths.
//
// Events are immutable once constructed; the store is the single shared
// mutable structure in the system and serializes all mutations and snapshot
// reads behind one lock. Snapshots hand out copies, never live references
// into store internals.
package core
