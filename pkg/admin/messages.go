package admin

import (
	"log/slog"
	"net/http"

	"github.com/txn2/realty-platform/pkg/auth"
	"github.com/txn2/realty-platform/pkg/realty"
)

// readRequest is the body of PUT /api/admin/messages/{id}/read.
type readRequest struct {
	Read *bool `json:"read"`
}

// createUserRequest is the body of POST /api/admin/users.
type createUserRequest struct {
	Username string      `json:"username"`
	Password string      `json:"password"`
	FullName string      `json:"full_name"`
	Email    string      `json:"email"`
	Role     realty.Role `json:"role"`
	IsAdmin  bool        `json:"is_admin"`
}

// listMessages handles GET /api/admin/messages.
//
// @Summary      List inquiries
// @Tags         Admin
// @Produce      json
// @Param        unread    query  boolean  false  "Only unread messages"
// @Param        agent_id  query  string   false  "Addressed agent"
// @Param        page      query  integer  false  "Page number, 1-based (default: 1)"
// @Param        per_page  query  integer  false  "Results per page (default: 50)"
// @Success      200  {array}   realty.Message
// @Router       /admin/messages [get]
func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := realty.MessageFilter{
		AgentID: q.Get("agent_id"),
		Limit:   parseLimit(q),
	}
	if b := parseBoolParam(q, "unread"); b != nil {
		filter.Unread = *b
	}
	filter.Offset = parsePageOffset(q, filter.Limit)

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

// markMessageRead handles PUT /api/admin/messages/{id}/read.
//
// @Summary      Mark inquiry read
// @Description  Sets the read flag. An empty body marks the message read.
// @Tags         Admin
// @Accept       json
// @Param        id    path  string       true   "Message ID"
// @Param        body  body  readRequest  false  "Read flag"
// @Success      204
// @Failure      404  {object}  errorResponse
// @Router       /admin/messages/{id}/read [put]
func (h *Handler) markMessageRead(w http.ResponseWriter, r *http.Request) {
	read := true
	if r.ContentLength > 0 {
		var req readRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Read != nil {
			read = *req.Read
		}
	}
	if err := h.deps.Store.MarkMessageRead(r.Context(), r.PathValue(pathParamID), read); err != nil {
		writeStoreError(w, r, err, "Message not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deleteMessage handles DELETE /api/admin/messages/{id}.
//
// @Summary      Delete inquiry
// @Tags         Admin
// @Param        id  path  string  true  "Message ID"
// @Success      204
// @Failure      404  {object}  errorResponse
// @Router       /admin/messages/{id} [delete]
func (h *Handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Store.DeleteMessage(r.Context(), r.PathValue(pathParamID)); err != nil {
		writeStoreError(w, r, err, "Message not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listUsers handles GET /api/admin/users.
//
// @Summary      List users
// @Tags         Admin
// @Produce      json
// @Success      200  {array}   realty.User
// @Router       /admin/users [get]
func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.deps.Store.ListUsers(r.Context())
	if err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	if users == nil {
		users = []realty.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// createUser handles POST /api/admin/users.
//
// @Summary      Create user
// @Description  Creates a password account. Usernames are unique.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        body  body  createUserRequest  true  "Account"
// @Success      201  {object}  realty.User
// @Failure      400  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Router       /admin/users [post]
func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	u := realty.User{
		Username: req.Username,
		FullName: req.FullName,
		Email:    req.Email,
		Role:     req.Role,
		IsAdmin:  req.IsAdmin,
	}
	if err := u.Validate(); err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "password: is required")
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	u.PasswordHash = hash
	if err := h.deps.Store.CreateUser(r.Context(), &u); err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	slog.Info("admin: user created", "user_id", u.ID, "role", u.Role)
	writeJSON(w, http.StatusCreated, u)
}
