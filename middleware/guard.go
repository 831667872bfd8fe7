package middleware

import (
	"context"
	"net/http"
	"strings"

	kongmint "github.com/minterlabs/kongmint"
	"github.com/minterlabs/kongmint/jwt"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the validated claims injected by [Guard].
func ClaimsFromContext(ctx context.Context) (*jwt.ConsumerClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*jwt.ConsumerClaims)
	return claims, ok
}

// ConsumerResolver extracts the consumer ID a request claims to act as.
type ConsumerResolver func(*http.Request) string

// ConsumerFromHeader resolves the consumer ID from the X-Consumer-ID header,
// the header Kong sets on authenticated upstream requests.
func ConsumerFromHeader(r *http.Request) string {
	return r.Header.Get("X-Consumer-ID")
}

// ConsumerFromPath resolves the consumer ID from the named route pattern
// wildcard.
func ConsumerFromPath(name string) ConsumerResolver {
	return func(r *http.Request) string {
		return r.PathValue(name)
	}
}

// Guard returns middleware that validates the request's bearer token against
// the resolved consumer's signing credential and injects the claims into the
// request context.
func Guard(service *kongmint.Service, resolve ConsumerResolver) func(http.Handler) http.Handler {
	if resolve == nil {
		resolve = ConsumerFromHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if service == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			consumerID := resolve(r)
			if consumerID == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := service.ValidateToken(r.Context(), consumerID, token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
