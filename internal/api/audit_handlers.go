// Package api provides HTTP API handlers for the Ugoite trust core.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ugoite/ugoite/internal/audit"
	"github.com/ugoite/ugoite/internal/middleware"
)

// AppendEventRequest represents the request body for appending an audit event.
// action is required; actor_user_id defaults to the authenticated identity.
type AppendEventRequest struct {
	Action         string         `json:"action"`
	ActorUserID    string         `json:"actor_user_id,omitempty"`
	Outcome        string         `json:"outcome,omitempty"`
	TargetType     *string        `json:"target_type,omitempty"`
	TargetID       *string        `json:"target_id,omitempty"`
	RequestMethod  *string        `json:"request_method,omitempty"`
	RequestPath    *string        `json:"request_path,omitempty"`
	RequestID      *string        `json:"request_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	RetentionLimit *int           `json:"retention_limit,omitempty"`
}

// AuditHandlers holds dependencies for audit ledger HTTP handlers.
type AuditHandlers struct {
	ledger *audit.Ledger
}

// NewAuditHandlers creates a new AuditHandlers instance.
func NewAuditHandlers(ledger *audit.Ledger) *AuditHandlers {
	return &AuditHandlers{ledger: ledger}
}

// HandleSpaces routes /v1/spaces/{space_id}/audit/... requests.
// Registered on the mux as the /v1/spaces/ prefix handler.
func (h *AuditHandlers) HandleSpaces(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	// ["v1", "spaces", "<space_id>", "audit", "<op>"]
	if len(parts) != 5 || parts[3] != "audit" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Not found")
		return
	}
	spaceID := parts[2]

	switch parts[4] {
	case "events":
		switch r.Method {
		case http.MethodPost:
			h.appendEvent(w, r, spaceID)
		case http.MethodGet:
			h.listEvents(w, r, spaceID)
		default:
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		}
	case "export":
		if r.Method != http.MethodGet {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
			return
		}
		h.exportEvents(w, r, spaceID)
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Not found")
	}
}

// appendEvent handles POST /v1/spaces/{space_id}/audit/events.
func (h *AuditHandlers) appendEvent(w http.ResponseWriter, r *http.Request, spaceID string) {
	var req AppendEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	// The authenticated principal is the default actor; request metadata is
	// filled from the request itself unless the caller supplied values.
	if strings.TrimSpace(req.ActorUserID) == "" {
		req.ActorUserID = middleware.GetActorUserID(r.Context())
	}
	if req.RequestMethod == nil {
		method := r.Method
		req.RequestMethod = &method
	}
	if req.RequestPath == nil {
		path := r.URL.Path
		req.RequestPath = &path
	}
	if req.RequestID == nil {
		if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
			req.RequestID = &requestID
		}
	}

	event, err := h.ledger.Append(r.Context(), spaceID, audit.EventInput{
		Action:        req.Action,
		ActorUserID:   req.ActorUserID,
		Outcome:       req.Outcome,
		TargetType:    req.TargetType,
		TargetID:      req.TargetID,
		RequestMethod: req.RequestMethod,
		RequestPath:   req.RequestPath,
		RequestID:     req.RequestID,
		Metadata:      req.Metadata,
	}, req.RetentionLimit)
	if err != nil {
		status, code := auditErrorMapping(err)
		ctx := middleware.SetErrorCode(r.Context(), code)
		WriteError(w, ctx, status, code, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// listEvents handles GET /v1/spaces/{space_id}/audit/events.
func (h *AuditHandlers) listEvents(w http.ResponseWriter, r *http.Request, spaceID string) {
	opts, errMsg := listOptionsFromQuery(r)
	if errMsg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, errMsg)
		return
	}

	page, err := h.ledger.List(r.Context(), spaceID, opts)
	if err != nil {
		status, code := auditErrorMapping(err)
		ctx := middleware.SetErrorCode(r.Context(), code)
		WriteError(w, ctx, status, code, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// exportEvents handles GET /v1/spaces/{space_id}/audit/export.
func (h *AuditHandlers) exportEvents(w http.ResponseWriter, r *http.Request, spaceID string) {
	format, err := audit.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	opts, errMsg := listOptionsFromQuery(r)
	if errMsg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, errMsg)
		return
	}

	data, err := h.ledger.Export(r.Context(), spaceID, opts, format)
	if err != nil {
		status, code := auditErrorMapping(err)
		ctx := middleware.SetErrorCode(r.Context(), code)
		WriteError(w, ctx, status, code, err.Error())
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// listOptionsFromQuery parses filter and pagination query parameters.
// Returns an error message for non-integer offset/limit values.
func listOptionsFromQuery(r *http.Request) (audit.ListOptions, string) {
	query := r.URL.Query()
	opts := audit.ListOptions{
		Action:      query.Get("action"),
		ActorUserID: query.Get("actor_user_id"),
		Outcome:     query.Get("outcome"),
	}

	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			return opts, "offset must be an integer"
		}
		opts.Offset = offset
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return opts, "limit must be an integer"
		}
		opts.Limit = limit
	}
	return opts, ""
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
