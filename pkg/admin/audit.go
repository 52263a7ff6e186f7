package admin

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/txn2/realty-platform/pkg/audit"
	"github.com/txn2/realty-platform/pkg/auth"
)

// auditEventResponse wraps a paginated list of audit events.
type auditEventResponse struct {
	Data    []audit.Event `json:"data"`
	Total   int           `json:"total"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
}

// auditStatsResponse holds aggregate decision counts.
type auditStatsResponse struct {
	Total   int `json:"total"`
	Allowed int `json:"allowed"`
	Denied  int `json:"denied"`
}

// parseAuditFilter reads the shared audit query parameters.
func parseAuditFilter(r *http.Request) audit.QueryFilter {
	q := r.URL.Query()
	return audit.QueryFilter{
		UserID:    q.Get("user_id"),
		SessionID: q.Get("session_id"),
		Kind:      auth.Kind(q.Get("kind")),
		Allowed:   parseBoolParam(q, "allowed"),
		StartTime: parseTimeParam(q, "start_time"),
		EndTime:   parseTimeParam(q, "end_time"),
	}
}

// listAuditEvents handles GET /api/admin/audit.
//
// @Summary      List authorization decisions
// @Description  Returns paginated authorization decisions, newest first.
// @Tags         Audit
// @Produce      json
// @Param        user_id     query  string  false  "Filter by user ID"
// @Param        session_id  query  string  false  "Filter by session ID"
// @Param        kind        query  string  false  "Decision kind: admin, authenticated"
// @Param        allowed     query  boolean false  "Filter by outcome"
// @Param        start_time  query  string  false  "Events after this time (RFC 3339)"
// @Param        end_time    query  string  false  "Events before this time (RFC 3339)"
// @Param        page        query  integer false  "Page number, 1-based (default: 1)"
// @Param        per_page    query  integer false  "Results per page (default: 50)"
// @Success      200  {object}  auditEventResponse
// @Failure      500  {object}  errorResponse
// @Router       /admin/audit [get]
func (h *Handler) listAuditEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := parseAuditFilter(r)
	filter.Limit = parseLimit(q)
	filter.Offset = parsePageOffset(q, filter.Limit)

	events, err := h.deps.Audit.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query audit events")
		return
	}

	countFilter := filter
	countFilter.Limit = 0
	countFilter.Offset = 0
	total, err := h.deps.Audit.Count(r.Context(), countFilter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count audit events")
		return
	}

	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, auditEventResponse{
		Data:    events,
		Total:   total,
		Page:    filter.Offset/filter.Limit + 1,
		PerPage: filter.Limit,
	})
}

// getAuditStats handles GET /api/admin/audit/stats.
//
// @Summary      Authorization decision stats
// @Description  Returns total, allowed and denied counts for the filtered window.
// @Tags         Audit
// @Produce      json
// @Param        user_id     query  string  false  "Filter by user ID"
// @Param        kind        query  string  false  "Decision kind"
// @Param        start_time  query  string  false  "Events after this time (RFC 3339)"
// @Param        end_time    query  string  false  "Events before this time (RFC 3339)"
// @Success      200  {object}  auditStatsResponse
// @Failure      500  {object}  errorResponse
// @Router       /admin/audit/stats [get]
func (h *Handler) getAuditStats(w http.ResponseWriter, r *http.Request) {
	base := parseAuditFilter(r)
	base.Allowed = nil

	total, err := h.deps.Audit.Count(r.Context(), base)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count audit events")
		return
	}

	allowedVal := true
	allowedFilter := base
	allowedFilter.Allowed = &allowedVal
	allowed, err := h.deps.Audit.Count(r.Context(), allowedFilter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count allowed events")
		return
	}

	writeJSON(w, http.StatusOK, auditStatsResponse{
		Total:   total,
		Allowed: allowed,
		Denied:  total - allowed,
	})
}

// getAuditBreakdown handles GET /api/admin/audit/breakdown.
//
// @Summary      Authorization decision breakdown
// @Description  Groups decisions by one dimension: decided_by, user_id, path or kind.
// @Tags         Audit
// @Produce      json
// @Param        group_by    query  string   true   "Dimension"
// @Param        limit       query  integer  false  "Maximum entries (default: 10)"
// @Param        start_time  query  string   false  "Events after this time (RFC 3339)"
// @Param        end_time    query  string   false  "Events before this time (RFC 3339)"
// @Success      200  {array}   audit.BreakdownEntry
// @Failure      400  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /admin/audit/breakdown [get]
func (h *Handler) getAuditBreakdown(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.BreakdownFilter{
		GroupBy:   audit.BreakdownDimension(q.Get("group_by")),
		StartTime: parseTimeParam(q, "start_time"),
		EndTime:   parseTimeParam(q, "end_time"),
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = n
	}
	filter.Limit = audit.ClampBreakdownLimit(filter.Limit)

	entries, err := h.deps.Audit.Breakdown(r.Context(), filter)
	if errors.Is(err, audit.ErrInvalidDimension) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute breakdown")
		return
	}
	if entries == nil {
		entries = []audit.BreakdownEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
