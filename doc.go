// Package kongmint provides resilient JWT-credential issuance for consumers of
// a Kong API gateway, with tiered credential caching, per-operation circuit
// breaking, and stale-data fallback during gateway outages.
//
// The package is designed for concurrent server workloads: Service methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// kongmint is the public surface. It exposes [Service], [Builder], [Config],
// and value types (IssuedToken, HealthReport, MetricsSnapshot, etc.). The
// caching tiers, breaker registry, gateway client, and token codec live in the
// cache, breaker, kong, and jwt sub-packages and never import this package.
//
// # What this package must NOT do
//
//   - Expose Redis clients, breaker internals, or cache encoding details in
//     its public API.
//   - Return transport errors from credential reads. A gateway or cache
//     outage degrades to absence (nil credential, nil error); only misuse
//     (closed service, blank consumer ID) produces an error.
//   - Perform I/O outside of Service methods (construction via Builder is
//     allocation-only until first use).
//
// # Degradation contract
//
// GetConsumerSecret is the hot path. A cache hit completes without a gateway
// round-trip. When the gateway is unreachable the breaker opens after the
// configured failure volume and subsequent reads are answered from the stale
// store (policy "stale_cache") or denied as absent (policy "deny") without
// waiting on the network.
package kongmint
