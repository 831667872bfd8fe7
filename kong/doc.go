// Package kong is the thin client for the Kong admin API: fetching and
// provisioning per-consumer JWT credentials and probing gateway health.
//
// The package performs single requests only. Retry, timeout orchestration,
// and failure classification around these calls belong to the breaker
// registry; callers are expected to reach Kong through it, never directly.
//
// # What this package must NOT do
//
//   - It must not cache responses; caching is the cache package's job.
//   - It must not retry; a failed request is reported once.
//   - It must not interpret an absent credential as an error: a consumer
//     without a JWT credential yields a nil secret.
package kong
