// Package middleware exposes an HTTP middleware adapter that enforces
// consumer-token authorization on top of kongmint.Service validation.
//
// [Guard] reads the Authorization header, resolves the acting consumer via a
// [ConsumerResolver], calls [kongmint.Service.ValidateToken], and injects the
// validated claims into the request context for handlers to read through
// [ClaimsFromContext].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Service calls. It does NOT
// implement token logic itself — verification is delegated to ValidateToken,
// which in turn resolves the consumer's credential through the cache and
// breaker path.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to the Service).
//   - Call the Kong admin API (the Service handles I/O).
//   - Make authorization decisions beyond pass/reject from ValidateToken.
package middleware
