package admin

import (
	"log/slog"
	"net/http"

	"github.com/txn2/realty-platform/pkg/realty"
)

// listProperties handles GET /api/admin/properties.
//
// @Summary      List all properties
// @Description  Returns every listing regardless of status, with optional exact-match filters.
// @Tags         Admin
// @Produce      json
// @Param        status    query  string   false  "Listing status"
// @Param        agent_id  query  string   false  "Listing agent"
// @Param        page      query  integer  false  "Page number, 1-based (default: 1)"
// @Param        per_page  query  integer  false  "Results per page (default: 50)"
// @Success      200  {array}   realty.Property
// @Failure      403  {object}  errorResponse
// @Router       /admin/properties [get]
func (h *Handler) listProperties(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := realty.PropertyFilter{
		Type:     q.Get("type"),
		Status:   q.Get("status"),
		City:     q.Get("city"),
		AgentID:  q.Get("agent_id"),
		Featured: parseBoolParam(q, "featured"),
		Limit:    parseLimit(q),
	}
	filter.Offset = parsePageOffset(q, filter.Limit)

	props, err := h.deps.Store.ListProperties(r.Context(), filter)
	if err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	if props == nil {
		props = []realty.Property{}
	}
	writeJSON(w, http.StatusOK, props)
}

// getProperty handles GET /api/admin/properties/{id}.
//
// @Summary      Get property
// @Tags         Admin
// @Produce      json
// @Param        id  path  string  true  "Property ID"
// @Success      200  {object}  realty.Property
// @Failure      404  {object}  errorResponse
// @Router       /admin/properties/{id} [get]
func (h *Handler) getProperty(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Store.GetProperty(r.Context(), r.PathValue(pathParamID))
	if err != nil {
		writeStoreError(w, r, err, "Property not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// createProperty handles POST /api/admin/properties.
//
// @Summary      Create property
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        body  body  realty.Property  true  "Listing"
// @Success      201  {object}  realty.Property
// @Failure      400  {object}  errorResponse
// @Router       /admin/properties [post]
func (h *Handler) createProperty(w http.ResponseWriter, r *http.Request) {
	var p realty.Property
	if !decodeBody(w, r, &p) {
		return
	}
	p.ID = ""
	if err := p.Validate(); err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	if err := h.deps.Store.CreateProperty(r.Context(), &p); err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	slog.Info("admin: property created", "property_id", p.ID)
	writeJSON(w, http.StatusCreated, p)
}

// updateProperty handles PUT /api/admin/properties/{id}.
//
// @Summary      Update property
// @Description  Replaces the listing. The path ID wins over any ID in the body.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        id    path  string           true  "Property ID"
// @Param        body  body  realty.Property  true  "Listing"
// @Success      200  {object}  realty.Property
// @Failure      400  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /admin/properties/{id} [put]
func (h *Handler) updateProperty(w http.ResponseWriter, r *http.Request) {
	var p realty.Property
	if !decodeBody(w, r, &p) {
		return
	}
	p.ID = r.PathValue(pathParamID)
	if err := p.Validate(); err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	if err := h.deps.Store.UpdateProperty(r.Context(), &p); err != nil {
		writeStoreError(w, r, err, "Property not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// deleteProperty handles DELETE /api/admin/properties/{id}.
//
// @Summary      Delete property
// @Tags         Admin
// @Param        id  path  string  true  "Property ID"
// @Success      204
// @Failure      404  {object}  errorResponse
// @Router       /admin/properties/{id} [delete]
func (h *Handler) deleteProperty(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue(pathParamID)
	if err := h.deps.Store.DeleteProperty(r.Context(), id); err != nil {
		writeStoreError(w, r, err, "Property not found")
		return
	}
	slog.Info("admin: property deleted", "property_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// listAgents handles GET /api/admin/agents.
//
// @Summary      List agents
// @Tags         Admin
// @Produce      json
// @Success      200  {array}   realty.Agent
// @Router       /admin/agents [get]
func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.deps.Store.ListAgents(r.Context())
	if err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	if agents == nil {
		agents = []realty.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

// createAgent handles POST /api/admin/agents.
//
// @Summary      Create agent
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        body  body  realty.Agent  true  "Agent"
// @Success      201  {object}  realty.Agent
// @Failure      400  {object}  errorResponse
// @Router       /admin/agents [post]
func (h *Handler) createAgent(w http.ResponseWriter, r *http.Request) {
	var a realty.Agent
	if !decodeBody(w, r, &a) {
		return
	}
	a.ID = ""
	if err := a.Validate(); err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	if a.UserID != "" {
		if _, err := h.deps.Store.GetUser(r.Context(), a.UserID); err != nil {
			writeStoreError(w, r, err, "User not found")
			return
		}
	}
	if err := h.deps.Store.CreateAgent(r.Context(), &a); err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	slog.Info("admin: agent created", "agent_id", a.ID)
	writeJSON(w, http.StatusCreated, a)
}

// updateAgent handles PUT /api/admin/agents/{id}.
//
// @Summary      Update agent
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        id    path  string        true  "Agent ID"
// @Param        body  body  realty.Agent  true  "Agent"
// @Success      200  {object}  realty.Agent
// @Failure      404  {object}  errorResponse
// @Router       /admin/agents/{id} [put]
func (h *Handler) updateAgent(w http.ResponseWriter, r *http.Request) {
	var a realty.Agent
	if !decodeBody(w, r, &a) {
		return
	}
	a.ID = r.PathValue(pathParamID)
	if err := a.Validate(); err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	if err := h.deps.Store.UpdateAgent(r.Context(), &a); err != nil {
		writeStoreError(w, r, err, "Agent not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// deleteAgent handles DELETE /api/admin/agents/{id}.
//
// @Summary      Delete agent
// @Tags         Admin
// @Param        id  path  string  true  "Agent ID"
// @Success      204
// @Failure      404  {object}  errorResponse
// @Router       /admin/agents/{id} [delete]
func (h *Handler) deleteAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue(pathParamID)
	if err := h.deps.Store.DeleteAgent(r.Context(), id); err != nil {
		writeStoreError(w, r, err, "Agent not found")
		return
	}
	slog.Info("admin: agent deleted", "agent_id", id)
	w.WriteHeader(http.StatusNoContent)
}
