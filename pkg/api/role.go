package api

import (
	"net/http"

	"github.com/txn2/realty-platform/pkg/realty"
	"github.com/txn2/realty-platform/pkg/session"
)

// currentAgent returns the agent profile linked to the signed-in user.
func (h *Handler) currentAgent(w http.ResponseWriter, r *http.Request) (*realty.Agent, bool) {
	userID := session.FromContext(r.Context()).UserID()
	if userID == "" {
		writeError(w, http.StatusForbidden, "No user for this session")
		return nil, false
	}
	agent, err := h.deps.Store.GetAgentByUserID(r.Context(), userID)
	if err != nil {
		writeStoreError(w, r, err, "No agent profile for this account")
		return nil, false
	}
	return agent, true
}

// agentProperties handles GET /api/agent/properties.
//
// @Summary      My listings
// @Description  Returns the listings of the signed-in agent.
// @Tags         Agent
// @Produce      json
// @Success      200  {array}   realty.Property
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /agent/properties [get]
func (h *Handler) agentProperties(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.currentAgent(w, r)
	if !ok {
		return
	}
	filter := realty.PropertyFilter{AgentID: agent.ID}
	filter.Limit, filter.Offset = parsePage(r.URL.Query())

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

// agentMessages handles GET /api/agent/messages.
//
// @Summary      My inquiries
// @Description  Returns inquiries addressed to the signed-in agent.
// @Tags         Agent
// @Produce      json
// @Success      200  {array}   realty.Message
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Router       /agent/messages [get]
func (h *Handler) agentMessages(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.currentAgent(w, r)
	if !ok {
		return
	}
	h.writeMessages(w, r, realty.MessageFilter{AgentID: agent.ID})
}

// clientMessages handles GET /api/client/messages.
//
// @Summary      My sent inquiries
// @Description  Returns inquiries the signed-in client has sent.
// @Tags         Client
// @Produce      json
// @Success      200  {array}   realty.Message
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Router       /client/messages [get]
func (h *Handler) clientMessages(w http.ResponseWriter, r *http.Request) {
	userID := session.FromContext(r.Context()).UserID()
	if userID == "" {
		writeError(w, http.StatusForbidden, "No user for this session")
		return
	}
	h.writeMessages(w, r, realty.MessageFilter{SenderID: userID})
}

func (h *Handler) writeMessages(w http.ResponseWriter, r *http.Request, filter realty.MessageFilter) {
	filter.Limit, filter.Offset = parsePage(r.URL.Query())
	msgs, err := h.deps.Store.ListMessages(r.Context(), filter)
	if err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	if msgs == nil {
		msgs = []realty.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}
