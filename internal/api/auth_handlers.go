// Package api provides HTTP API handlers for the Ugoite trust core.
package api

import (
	"net/http"

	"github.com/ugoite/ugoite/internal/auth"
	"github.com/ugoite/ugoite/internal/middleware"
)

// AuthHandlers holds dependencies for authentication HTTP handlers.
type AuthHandlers struct {
	cfg auth.Config
}

// NewAuthHandlers creates a new AuthHandlers instance.
func NewAuthHandlers(cfg auth.Config) *AuthHandlers {
	return &AuthHandlers{cfg: cfg}
}

// whoAmIResponse mirrors the authenticate success envelope.
type whoAmIResponse struct {
	OK       bool           `json:"ok"`
	Identity *auth.Identity `json:"identity"`
}

// WhoAmI handles GET /v1/auth/whoami. The auth middleware has already
// resolved the identity; this just echoes it back.
func (h *AuthHandlers) WhoAmI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		// Reachable only if the route is misregistered without auth middleware.
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "No identity in request context")
		return
	}

	writeJSON(w, http.StatusOK, whoAmIResponse{OK: true, Identity: identity})
}

// Capabilities handles GET /v1/auth/capabilities: a read-only diagnostic
// summary of the configured credential stores. Counts and key ids only,
// never secret values.
func (h *AuthHandlers) Capabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, auth.CapabilitiesSnapshot(h.cfg))
}
