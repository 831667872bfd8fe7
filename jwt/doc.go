// Package jwt issues and verifies per-consumer access tokens signed with the
// consumer's gateway credential, using strict validation semantics suitable
// for low-latency authentication paths.
package jwt
