// Package cache provides the unified caching subsystem for kongmint: a
// local in-memory backend, a shared Redis backend, a backend-agnostic
// reconnection coordinator, and the Manager that selects between them.
//
// # Design
//
// Both backends implement the same [Backend] contract and keep a secondary
// "stale" namespace with an extended TTL, so a value remains recoverable
// after its primary entry expires or is cleared. The [Manager] selects a
// strategy from configuration, initializes it lazily and exactly once, and
// transparently falls back to local memory when the shared backend cannot
// be reached.
//
// # Architecture boundaries
//
// This package owns backend selection, entry lifecycle, and connection
// recovery. It does NOT decide what to cache, wrap admin-API calls, or
// apply circuit-breaker fallback policies — those belong to the breaker
// package and the kongmint service layer.
//
// # What this package must NOT do
//
//   - Import kongmint or any sibling package.
//   - Surface transport or decode errors from data-plane operations;
//     reads degrade to misses and writes to no-ops.
//   - Share an [Entry] between backend instances.
package cache
