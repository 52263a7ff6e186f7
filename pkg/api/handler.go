// Package api provides the public, session and role-scoped REST endpoints of
// the listings site.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/txn2/realty-platform/pkg/auth"
	"github.com/txn2/realty-platform/pkg/middleware"
	"github.com/txn2/realty-platform/pkg/realty"
	"github.com/txn2/realty-platform/pkg/recommend"
	"github.com/txn2/realty-platform/pkg/session"
)

const (
	pathParamID     = "id"
	defaultPerPage  = 20
	maxPerPage      = 100
	maxRequestBytes = 1 << 20
)

// Sessions is the subset of *session.Manager the login handlers use.
type Sessions interface {
	Renew(w http.ResponseWriter, r *http.Request, s *session.Session) (*session.Session, error)
	Destroy(w http.ResponseWriter, r *http.Request, s *session.Session) error
}

// LoginObserver counts login attempts.
type LoginObserver interface {
	ObserveLogin(method string, ok bool)
}

// Deps holds the handler's collaborators.
type Deps struct {
	Store       realty.Store
	Sessions    Sessions
	Resolver    *auth.Resolver
	Tokens      *auth.AdminTokens
	Recommender *recommend.Recommender
	Logins      LoginObserver
}

// Handler serves the /api endpoints outside the admin back office.
type Handler struct {
	deps Deps
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	if deps.Recommender == nil && deps.Store != nil {
		deps.Recommender = recommend.New(deps.Store)
	}
	return &Handler{deps: deps}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	requireAuth := middleware.RequireAuth(h.deps.Resolver)
	requireAdmin := middleware.RequireAdmin(h.deps.Resolver)
	requireAgent := middleware.RequireRole(h.deps.Resolver, string(realty.RoleAgent))
	requireClient := middleware.RequireRole(h.deps.Resolver, string(realty.RoleClient), string(realty.RoleAdmin))

	mux.HandleFunc("GET /api/properties", h.listProperties)
	mux.HandleFunc("GET /api/properties/{id}", h.getProperty)
	mux.HandleFunc("GET /api/agents", h.listAgents)
	mux.HandleFunc("GET /api/agents/{id}", h.getAgent)
	mux.HandleFunc("POST /api/messages", h.createMessage)
	mux.HandleFunc("POST /api/recommendations", h.recommend)

	mux.HandleFunc("POST /api/traditional-login", h.login)
	mux.HandleFunc("POST /api/logout", h.logout)
	mux.HandleFunc("GET /api/logout", h.logoutRedirect)
	mux.Handle("GET /api/auth/user", requireAuth(http.HandlerFunc(h.currentUser)))
	mux.HandleFunc("GET /api/auth/check-admin", h.checkAdmin)
	mux.Handle("POST /api/auth/admin-token", requireAdmin(http.HandlerFunc(h.issueAdminToken)))

	mux.Handle("GET /api/agent/properties", requireAgent(http.HandlerFunc(h.agentProperties)))
	mux.Handle("GET /api/agent/messages", requireAgent(http.HandlerFunc(h.agentMessages)))
	mux.Handle("GET /api/client/messages", requireClient(http.HandlerFunc(h.clientMessages)))
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
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	default:
		slog.Error("api: store failure", "error", err, "path", r.URL.Path,
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

// parsePage reads page and per_page into a limit and offset.
func parsePage(q url.Values) (limit, offset int) {
	limit = defaultPerPage
	if v, err := strconv.Atoi(q.Get("per_page")); err == nil && v > 0 {
		limit = min(v, maxPerPage)
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 1 {
		offset = (v - 1) * limit
	}
	return limit, offset
}
