// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ugoite/ugoite/internal/auth"
)

// identityKey is the context key for the authenticated identity.
type identityKey struct{}

// SetIdentity stores the authenticated identity in the context.
func SetIdentity(ctx context.Context, identity *auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// GetIdentity retrieves the authenticated identity from context.
// Returns nil if the request was not authenticated.
func GetIdentity(ctx context.Context) *auth.Identity {
	if identity, ok := ctx.Value(identityKey{}).(*auth.Identity); ok {
		return identity
	}
	return nil
}

// authFailure mirrors the authenticate result envelope for 401 responses.
// Defined here rather than in the api package to keep middleware free of
// handler imports.
type authFailure struct {
	OK    bool        `json:"ok"`
	Error *auth.Error `json:"error"`
}

// Authenticate resolves request credentials through the engine and rejects
// unauthenticated requests with a 401 envelope. On success the identity and
// actor user id are stored in the request context.
func Authenticate(engine *auth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, authErr := engine.Authenticate(
				r.Header.Get("Authorization"),
				r.Header.Get("X-API-Key"),
			)
			if authErr != nil {
				// Tag the context for the logging middleware.
				ctx := SetErrorCode(r.Context(), authErr.Code)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(authErr.StatusCode)
				if err := json.NewEncoder(w).Encode(authFailure{OK: false, Error: authErr}); err != nil {
					slog.ErrorContext(ctx, "failed to write auth failure response", "error", err)
				}
				return
			}

			ctx := SetIdentity(r.Context(), identity)
			ctx = SetActorUserID(ctx, identity.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
