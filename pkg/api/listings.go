package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/txn2/realty-platform/pkg/realty"
	"github.com/txn2/realty-platform/pkg/recommend"
	"github.com/txn2/realty-platform/pkg/session"
)

// listProperties handles GET /api/properties.
//
// @Summary      List properties
// @Description  Returns listings matching exact-match filters, newest first.
// @Tags         Listings
// @Produce      json
// @Param        type      query  string   false  "Property type"
// @Param        status    query  string   false  "Listing status"
// @Param        city      query  string   false  "City"
// @Param        featured  query  boolean  false  "Featured listings only"
// @Param        page      query  integer  false  "Page number, 1-based (default: 1)"
// @Param        per_page  query  integer  false  "Results per page (default: 20)"
// @Success      200  {array}   realty.Property
// @Failure      500  {object}  errorResponse
// @Router       /properties [get]
func (h *Handler) listProperties(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := realty.PropertyFilter{
		Type:   q.Get("type"),
		Status: q.Get("status"),
		City:   q.Get("city"),
	}
	if v := q.Get("featured"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			filter.Featured = &b
		}
	}
	filter.Limit, filter.Offset = parsePage(q)

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

// getProperty handles GET /api/properties/{id}.
//
// @Summary      Get property
// @Tags         Listings
// @Produce      json
// @Param        id  path  string  true  "Property ID"
// @Success      200  {object}  realty.Property
// @Failure      404  {object}  errorResponse
// @Router       /properties/{id} [get]
func (h *Handler) getProperty(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Store.GetProperty(r.Context(), r.PathValue(pathParamID))
	if err != nil {
		writeStoreError(w, r, err, "Property not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// listAgents handles GET /api/agents.
//
// @Summary      List agents
// @Tags         Agents
// @Produce      json
// @Success      200  {array}   realty.Agent
// @Failure      500  {object}  errorResponse
// @Router       /agents [get]
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

// getAgent handles GET /api/agents/{id}.
//
// @Summary      Get agent
// @Tags         Agents
// @Produce      json
// @Param        id  path  string  true  "Agent ID"
// @Success      200  {object}  realty.Agent
// @Failure      404  {object}  errorResponse
// @Router       /agents/{id} [get]
func (h *Handler) getAgent(w http.ResponseWriter, r *http.Request) {
	a, err := h.deps.Store.GetAgent(r.Context(), r.PathValue(pathParamID))
	if err != nil {
		writeStoreError(w, r, err, "Agent not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// inquiryRequest is the body of POST /api/messages.
type inquiryRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Subject    string `json:"subject"`
	Message    string `json:"message"`
	PropertyID string `json:"property_id"`
	AgentID    string `json:"agent_id"`
}

// createMessage handles POST /api/messages.
//
// @Summary      Submit an inquiry
// @Description  Captures a contact-form or listing inquiry. Signed-in senders are linked to their account.
// @Tags         Messages
// @Accept       json
// @Produce      json
// @Param        body  body  inquiryRequest  true  "Inquiry"
// @Success      201  {object}  realty.Message
// @Failure      400  {object}  errorResponse
// @Router       /messages [post]
func (h *Handler) createMessage(w http.ResponseWriter, r *http.Request) {
	var req inquiryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	msg := realty.Message{
		Name:       req.Name,
		Email:      strings.TrimSpace(req.Email),
		Phone:      req.Phone,
		Subject:    req.Subject,
		Body:       req.Message,
		PropertyID: req.PropertyID,
		AgentID:    req.AgentID,
	}
	if sess := session.FromContext(r.Context()); sess != nil && sess.IsAuthenticated {
		msg.SenderID = sess.UserID()
	}
	if msg.AgentID == "" && msg.PropertyID != "" {
		if p, err := h.deps.Store.GetProperty(r.Context(), msg.PropertyID); err == nil {
			msg.AgentID = p.AgentID
		}
	}
	if err := msg.Validate(); err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	if err := h.deps.Store.CreateMessage(r.Context(), &msg); err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// recommend handles POST /api/recommendations.
//
// @Summary      Recommend properties
// @Description  Ranks available listings against the submitted preferences. No match returns an empty list.
// @Tags         Listings
// @Accept       json
// @Produce      json
// @Param        body  body  recommend.Preferences  true  "Preferences"
// @Success      200  {array}   recommend.Recommendation
// @Failure      400  {object}  errorResponse
// @Router       /recommendations [post]
func (h *Handler) recommend(w http.ResponseWriter, r *http.Request) {
	var prefs recommend.Preferences
	if !decodeBody(w, r, &prefs) {
		return
	}
	recs, err := h.deps.Recommender.Recommend(r.Context(), prefs)
	if err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, recs)
}
