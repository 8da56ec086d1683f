package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type clientKeyKey struct{}

// ClientKeyMiddleware extracts the credential the client presented, from
// either x-api-key (anthropic style) or Authorization: Bearer (openai
// style), and stores it in the context for passthrough providers.
func ClientKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("x-api-key")
		if key == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		ctx := context.WithValue(r.Context(), clientKeyKey{}, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientKey returns the credential the client presented, or "".
func ClientKey(ctx context.Context) string {
	if key, ok := ctx.Value(clientKeyKey{}).(string); ok {
		return key
	}
	return ""
}

// SharedSecretMiddleware rejects requests whose client credential does not
// match the gateway's shared secret. With an empty secret the gateway is
// open, which is the common mode behind a trusted network boundary.
func SharedSecretMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := ClientKey(r.Context())
			if subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":{"type":"authentication_error","message":"invalid or missing API key"}}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
