package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/txn2/realty-platform/pkg/auth"
	"github.com/txn2/realty-platform/pkg/realty"
	"github.com/txn2/realty-platform/pkg/session"
)

const loginMethodPassword = "password"

// loginRequest is the body of POST /api/traditional-login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	UserType string `json:"userType,omitempty"`
}

// logoutResponse is returned by POST /api/logout.
type logoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// checkAdminResponse is returned by GET /api/auth/check-admin.
type checkAdminResponse struct {
	IsAdmin bool `json:"isAdmin"`
}

// adminTokenResponse is returned by POST /api/auth/admin-token.
type adminTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Header    string    `json:"header"`
}

func (h *Handler) observeLogin(ok bool) {
	if h.deps.Logins != nil {
		h.deps.Logins.ObserveLogin(loginMethodPassword, ok)
	}
}

// lookupUser finds a user by username, falling back to email.
func (h *Handler) lookupUser(r *http.Request, name string) (*realty.User, error) {
	u, err := h.deps.Store.GetUserByUsername(r.Context(), name)
	if errors.Is(err, realty.ErrNotFound) && strings.Contains(name, "@") {
		return h.deps.Store.GetUserByEmail(r.Context(), name)
	}
	return u, err
}

// login handles POST /api/traditional-login.
//
// @Summary      Log in with username and password
// @Description  Authenticates the session and returns the user. userType, when given, must match the account's role.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body  loginRequest  true  "Credentials"
// @Success      200  {object}  session.UserSnapshot
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Router       /traditional-login [post]
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := h.lookupUser(r, req.Username)
	if err != nil && !errors.Is(err, realty.ErrNotFound) {
		writeStoreError(w, r, err, "")
		return
	}
	if user == nil || auth.CheckPassword(user.PasswordHash, req.Password) != nil {
		h.observeLogin(false)
		slog.Info("api: login failed", "username", req.Username)
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	snap := auth.SnapshotUser(user)
	if req.UserType != "" && req.UserType != snap.Role && !snap.IsAdmin {
		h.observeLogin(false)
		writeError(w, http.StatusForbidden, "This account is not a "+req.UserType+" account")
		return
	}

	sess := session.FromContext(r.Context())
	if sess == nil {
		sess = &session.Session{}
	}
	sess = sess.Clone()
	sess.IsAuthenticated = true
	sess.IsAdmin = snap.IsAdmin
	sess.User = snap

	if _, err := h.deps.Sessions.Renew(w, r, sess); err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	h.observeLogin(true)
	slog.Info("api: login", "user_id", snap.ID, "role", snap.Role)
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) destroySession(w http.ResponseWriter, r *http.Request) error {
	sess := session.FromContext(r.Context())
	if err := h.deps.Sessions.Destroy(w, r, sess); err != nil {
		return err
	}
	if sess != nil && sess.IsAuthenticated {
		slog.Info("api: logout", "user_id", sess.UserID())
	}
	return nil
}

// logout handles POST /api/logout.
//
// @Summary      Log out
// @Description  Clears the session. Safe to call without a session.
// @Tags         Auth
// @Produce      json
// @Success      200  {object}  logoutResponse
// @Router       /logout [post]
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.destroySession(w, r); err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, logoutResponse{Success: true, Message: "Logged out successfully"})
}

// logoutRedirect handles GET /api/logout for full-page navigation.
func (h *Handler) logoutRedirect(w http.ResponseWriter, r *http.Request) {
	if err := h.destroySession(w, r); err != nil {
		slog.Warn("api: logout failed", "error", err)
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// currentUser handles GET /api/auth/user.
//
// @Summary      Current user
// @Description  Returns the signed-in user, or 401 when the session is not authenticated.
// @Tags         Auth
// @Produce      json
// @Success      200  {object}  session.UserSnapshot
// @Failure      401  {object}  errorResponse
// @Router       /auth/user [get]
func (*Handler) currentUser(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess == nil || sess.User == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, sess.User)
}

// checkAdmin handles GET /api/auth/check-admin.
//
// @Summary      Check admin privilege
// @Description  Reports whether the caller holds administrative privilege.
// @Tags         Auth
// @Produce      json
// @Success      200  {object}  checkAdminResponse
// @Router       /auth/check-admin [get]
func (h *Handler) checkAdmin(w http.ResponseWriter, r *http.Request) {
	d := h.deps.Resolver.ResolveAdmin(r)
	writeJSON(w, http.StatusOK, checkAdminResponse{IsAdmin: d.Allowed})
}

// issueAdminToken handles POST /api/auth/admin-token.
//
// @Summary      Issue an admin token
// @Description  Issues a short-lived signed token to present in the X-Admin-Token header.
// @Tags         Auth
// @Produce      json
// @Success      200  {object}  adminTokenResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /auth/admin-token [post]
func (h *Handler) issueAdminToken(w http.ResponseWriter, r *http.Request) {
	if h.deps.Tokens == nil {
		writeError(w, http.StatusNotFound, "Admin tokens are not enabled")
		return
	}
	sess := session.FromContext(r.Context())
	if sess == nil || sess.User == nil || !sess.IsAuthenticated {
		writeError(w, http.StatusForbidden, "Admin tokens require a signed-in user")
		return
	}
	token, exp, err := h.deps.Tokens.Issue(sess)
	if err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	slog.Info("api: admin token issued", "user_id", sess.UserID(), "expires_at", exp)
	writeJSON(w, http.StatusOK, adminTokenResponse{Token: token, ExpiresAt: exp, Header: auth.AdminTokenHeader})
}
