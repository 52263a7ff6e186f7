// Package admin provides the back-office REST endpoints. Every route is
// guarded by the administrative credential resolver.
package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/txn2/realty-platform/pkg/audit"
	"github.com/txn2/realty-platform/pkg/middleware"
	"github.com/txn2/realty-platform/pkg/realty"
)

const (
	pathParamID     = "id"
	defaultPerPage  = 50
	maxPerPage      = 200
	maxRequestBytes = 1 << 20
)

// Deps holds the admin handler's collaborators. Audit may be nil, in which
// case the audit routes are not registered.
type Deps struct {
	Store    realty.Store
	Audit    audit.Logger
	Resolver middleware.Resolver
}

// Handler provides admin REST API endpoints.
type Handler struct {
	deps Deps
}

// NewHandler creates a new admin API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

// Register adds the admin routes to mux, each behind RequireAdmin.
func (h *Handler) Register(mux *http.ServeMux) {
	guard := middleware.RequireAdmin(h.deps.Resolver)
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, guard(fn))
	}

	handle("GET /api/admin/properties", h.listProperties)
	handle("POST /api/admin/properties", h.createProperty)
	handle("GET /api/admin/properties/{id}", h.getProperty)
	handle("PUT /api/admin/properties/{id}", h.updateProperty)
	handle("DELETE /api/admin/properties/{id}", h.deleteProperty)

	handle("GET /api/admin/agents", h.listAgents)
	handle("POST /api/admin/agents", h.createAgent)
	handle("PUT /api/admin/agents/{id}", h.updateAgent)
	handle("DELETE /api/admin/agents/{id}", h.deleteAgent)

	handle("GET /api/admin/messages", h.listMessages)
	handle("PUT /api/admin/messages/{id}/read", h.markMessageRead)
	handle("DELETE /api/admin/messages/{id}", h.deleteMessage)

	handle("GET /api/admin/users", h.listUsers)
	handle("POST /api/admin/users", h.createUser)

	if h.deps.Audit != nil {
		handle("GET /api/admin/audit", h.listAuditEvents)
		handle("GET /api/admin/audit/stats", h.getAuditStats)
		handle("GET /api/admin/audit/breakdown", h.getAuditBreakdown)
	}
}

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Message string `json:"message"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Message: msg})
}

// writeStoreError maps a store error to a response.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	var verr *realty.ValidationError
	switch {
	case errors.Is(err, realty.ErrNotFound):
		writeError(w, http.StatusNotFound, notFound)
	case errors.Is(err, realty.ErrConflict):
		writeError(w, http.StatusConflict, "Record already exists")
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	default:
		slog.Error("admin: store failure", "error", err, "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.RequestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// parseTimeParam parses an RFC3339 time from a query parameter.
func parseTimeParam(q url.Values, key string) *time.Time {
	v := q.Get(key)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}

// parseLimit parses per_page, falling back to the default and capping at
// maxPerPage.
func parseLimit(q url.Values) int {
	if v := q.Get("per_page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return min(n, maxPerPage)
		}
	}
	return defaultPerPage
}

// parsePageOffset parses the page query parameter and computes offset using the given effective limit.
func parsePageOffset(q url.Values, effectiveLimit int) int {
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return (n - 1) * effectiveLimit
		}
	}
	return 0
}

// parseBoolParam returns nil when key is absent or not a boolean.
func parseBoolParam(q url.Values, key string) *bool {
	v := q.Get(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}
