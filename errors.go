package kongmint

import "errors"

var (
	// ErrServiceNotReady is an exported constant or variable used by the token service.
	ErrServiceNotReady = errors.New("service not initialized")
	// ErrServiceClosed is an exported constant or variable used by the token service.
	ErrServiceClosed = errors.New("service shut down")
	// ErrConsumerInvalid is an exported constant or variable used by the token service.
	ErrConsumerInvalid = errors.New("invalid consumer id")
	// ErrCredentialUnavailable is returned when no signing credential could be
	// produced for a consumer through any path: cache, gateway, or stale fallback.
	ErrCredentialUnavailable = errors.New("consumer credential unavailable")
	// ErrTokenIssueFailed is an exported constant or variable used by the token service.
	ErrTokenIssueFailed = errors.New("token issuance failed")
)
