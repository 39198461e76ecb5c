// Package worker provides the HTTP service for kinship.
package worker

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// requestIDKey is the context key for request IDs.
type requestIDKey struct{}

// scopeKey is the context key for the authenticated scope (user id).
type scopeKey struct{}

// SecurityHeaders middleware adds essential security headers to all responses.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// MaxBodySize middleware limits the size of incoming request bodies.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// TokenAuth enforces bearer-token authentication and resolves the caller's
// scope. Kinship is single-user: a valid token maps to the configured user
// id. Authentication itself is an external concern; this is the narrow
// boundary the embedding endpoints sit behind.
type TokenAuth struct {
	ExemptPaths map[string]bool
	token       string
	userID      string
	enabled     bool
}

// NewTokenAuth creates a TokenAuth for the given token and user id.
// An empty token disables authentication (development mode).
func NewTokenAuth(token, userID string) *TokenAuth {
	return &TokenAuth{
		ExemptPaths: map[string]bool{
			"/health":    true,
			"/api/ready": true,
		},
		token:   token,
		userID:  userID,
		enabled: token != "",
	}
}

// IsEnabled returns whether token authentication is enabled.
func (ta *TokenAuth) IsEnabled() bool { return ta.enabled }

// Middleware returns HTTP middleware that enforces token authentication
// and stores the resolved scope in the request context.
func (ta *TokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ta.enabled || ta.ExemptPaths[r.URL.Path] {
			next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), ta.userID)))
			return
		}

		providedToken := r.Header.Get("X-Auth-Token")
		if providedToken == "" {
			auth := r.Header.Get("Authorization")
			if bearer, found := strings.CutPrefix(auth, "Bearer "); found {
				providedToken = bearer
			}
		}

		if subtle.ConstantTimeCompare([]byte(providedToken), []byte(ta.token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), ta.userID)))
	})
}

// WithScope returns a context carrying the authenticated scope.
func WithScope(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, scopeKey{}, userID)
}

// ScopeFromContext retrieves the authenticated scope from the context.
func ScopeFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(scopeKey{}).(string); ok {
		return s
	}
	return ""
}

// RequestID middleware adds a unique request ID to each request.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			idBytes := make([]byte, 8)
			if _, err := rand.Read(idBytes); err == nil {
				requestID = hex.EncodeToString(idBytes)
			} else {
				requestID = fmt.Sprintf("%d", time.Now().UnixNano())
			}
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// RequireJSONContentType middleware validates that POST/PUT/PATCH requests
// have application/json Content-Type header.
func RequireJSONContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" || r.Method == "PUT" || r.Method == "PATCH" {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
