// Package breaker wraps calls to the Kong admin API with a named,
// per-operation circuit breaker and a process-local stale store of
// last-known-good results.
//
// Each operation name gets its own breaker, created lazily on first use
// with the registry defaults or a configured override, and kept for the
// process lifetime. While a breaker is open the operation's fallback
// policy decides the outcome: deny, or serve from the stale store when
// the entry is young enough.
//
// # Architecture boundaries
//
// The registry does not know what an operation does: callers hand it a
// closure and a name. It does not import the cache package; its stale
// store is its own, fed only by successful consumer operations.
//
// # What this package must NOT do
//
//   - It must not retry a failed operation; retry policy belongs to the
//     reconnect layer or the caller.
//   - It must not share breaker state across processes.
//   - It must not surface gobreaker's internal errors to callers; open
//     and half-open rejections map to [ErrCircuitOpen].
package breaker
