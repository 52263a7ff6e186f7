// Package oauth implements federated login against an OpenID Connect
// identity provider. A successful callback attaches a verified identity to
// the caller's session.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/txn2/realty-platform/pkg/auth"
	"github.com/txn2/realty-platform/pkg/realty"
	"github.com/txn2/realty-platform/pkg/session"
)

const (
	loginMethodOIDC = "oidc"
	defaultStateTTL = 10 * time.Minute
	defaultReturnTo = "/"
)

// Config configures the OIDC login flow.
type Config struct {
	// Issuer is the identity provider's issuer URL.
	Issuer string

	// ClientID and ClientSecret identify this site to the provider.
	ClientID     string
	ClientSecret string

	// RedirectURL is the absolute URL of GET /api/callback.
	RedirectURL string

	// Scopes are requested in addition to openid.
	Scopes []string

	// Claims maps ID token claims to a profile. Nil uses the defaults.
	Claims *auth.ClaimsExtractor

	// AutoProvision creates a local client account for identities that
	// match no existing user. A username or email already taken leaves the
	// identity unlinked.
	AutoProvision bool

	// LinkByEmail lets a first login claim the existing account whose email
	// matches a verified email claim. Accounts already linked to another
	// subject at this issuer are never claimed.
	LinkByEmail bool

	// AdminRole is the provider role that marks provisioned users as
	// administrators. Empty never grants admin from roles.
	AdminRole string

	// StateTTL bounds how long a login may take. Defaults to 10 minutes.
	StateTTL time.Duration
}

// Sessions is the subset of *session.Manager the callback uses.
type Sessions interface {
	Renew(w http.ResponseWriter, r *http.Request, s *session.Session) (*session.Session, error)
}

// LoginObserver counts login attempts.
type LoginObserver interface {
	ObserveLogin(method string, ok bool)
}

// Deps holds the handler's collaborators.
type Deps struct {
	Users    realty.UserStore
	Sessions Sessions
	States   StateStore
	Logins   LoginObserver
}

// Handler serves GET /api/login and GET /api/callback.
type Handler struct {
	cfg      Config
	oauth2   *oauth2.Config
	verifier *oidc.IDTokenVerifier
	claims   *auth.ClaimsExtractor
	deps     Deps
}

// NewHandler discovers the provider at cfg.Issuer and builds the handler.
func NewHandler(ctx context.Context, cfg Config, deps Deps) (*Handler, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("discovering oidc provider: %w", err)
	}
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       append([]string{oidc.ScopeOpenID, "profile", "email"}, cfg.Scopes...),
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return newHandler(cfg, oc, verifier, deps), nil
}

func newHandler(cfg Config, oc *oauth2.Config, verifier *oidc.IDTokenVerifier, deps Deps) *Handler {
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = defaultStateTTL
	}
	claims := cfg.Claims
	if claims == nil {
		claims = auth.DefaultClaimsExtractor()
	}
	if deps.States == nil {
		deps.States = NewMemoryStateStore()
	}
	return &Handler{cfg: cfg, oauth2: oc, verifier: verifier, claims: claims, deps: deps}
}

// Register adds the login routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/login", h.login)
	mux.HandleFunc("GET /api/callback", h.callback)
}

// StartCleanupRoutine periodically drops abandoned login states.
func (h *Handler) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := h.deps.States.Cleanup(h.cfg.StateTTL); err != nil {
					slog.Warn("oauth: state cleanup failed", "error", err)
				}
			}
		}
	}()
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}

func randomString() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random value: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// safeReturnTo accepts only local absolute paths.
func safeReturnTo(v string) string {
	if !strings.HasPrefix(v, "/") || strings.HasPrefix(v, "//") || strings.Contains(v, `\`) {
		return defaultReturnTo
	}
	return v
}

// login handles GET /api/login.
//
// @Summary      Start federated login
// @Description  Redirects to the identity provider. return_to must be a local path.
// @Tags         Auth
// @Param        return_to  query  string  false  "Local path to return to"
// @Success      302
// @Router       /login [get]
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		writeError(w, http.StatusInternalServerError, "Session unavailable")
		return
	}

	state, err := randomString()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	nonce, err := randomString()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	verifier := oauth2.GenerateVerifier()

	if err := h.deps.States.Save(state, &LoginState{
		SessionID:    sess.ID,
		Nonce:        nonce,
		CodeVerifier: verifier,
		ReturnTo:     safeReturnTo(r.URL.Query().Get("return_to")),
		CreatedAt:    time.Now(),
	}); err != nil {
		slog.Error("oauth: saving login state", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	target := h.oauth2.AuthCodeURL(state,
		oidc.Nonce(nonce),
		oauth2.S256ChallengeOption(verifier),
	)
	http.Redirect(w, r, target, http.StatusFound)
}

// callback handles GET /api/callback.
//
// @Summary      Complete federated login
// @Description  Verifies the provider's ID token, links or provisions the local user and renews the session.
// @Tags         Auth
// @Param        state  query  string  true  "Login state"
// @Param        code   query  string  true  "Authorization code"
// @Success      302
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /callback [get]
func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		h.observe(false)
		slog.Info("oauth: provider refused login", "error", e, "description", q.Get("error_description"))
		writeError(w, http.StatusUnauthorized, "Login was refused by the identity provider")
		return
	}

	st, err := h.deps.States.Consume(q.Get("state"))
	sess := session.FromContext(ctx)
	if err != nil || sess == nil || st.SessionID != sess.ID || time.Since(st.CreatedAt) > h.cfg.StateTTL {
		h.observe(false)
		writeError(w, http.StatusBadRequest, "Invalid or expired login state")
		return
	}

	token, err := h.oauth2.Exchange(ctx, q.Get("code"), oauth2.VerifierOption(st.CodeVerifier))
	if err != nil {
		h.observe(false)
		slog.Warn("oauth: code exchange failed", "error", err)
		writeError(w, http.StatusBadGateway, "Identity provider exchange failed")
		return
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		h.observe(false)
		writeError(w, http.StatusBadGateway, "Identity provider returned no ID token")
		return
	}

	profile, claims, err := h.verify(ctx, rawIDToken, st.Nonce)
	if err != nil {
		h.observe(false)
		slog.Warn("oauth: id token rejected", "error", err)
		writeError(w, http.StatusUnauthorized, "Identity could not be verified")
		return
	}

	user, err := h.linkUser(ctx, profile, claims)
	if err != nil {
		h.observe(false)
		slog.Error("oauth: linking user", "error", err, "subject", profile.Subject)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	next := sess.Clone()
	next.IsAuthenticated = true
	next.Identity = &session.Identity{
		Provider: h.cfg.Issuer,
		Subject:  profile.Subject,
		Claims:   claims,
	}
	if user != nil {
		snap := auth.SnapshotUser(user)
		next.User = snap
		next.IsAdmin = snap.IsAdmin
		dbUser := *snap
		next.Identity.DBUser = &dbUser
	} else {
		// Unlinked identities carry no local username so the provider
		// cannot pick one that matches a local account.
		next.User = &session.UserSnapshot{
			FullName: profile.Name,
			Email:    profile.Email,
			Role:     string(realty.RoleClient),
		}
		next.IsAdmin = false
	}

	if _, err := h.deps.Sessions.Renew(w, r, next); err != nil {
		h.observe(false)
		slog.Error("oauth: renewing session", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.observe(true)
	slog.Info("oauth: login", "subject", profile.Subject, "user_id", next.UserID())
	http.Redirect(w, r, st.ReturnTo, http.StatusFound)
}

func (h *Handler) observe(ok bool) {
	if h.deps.Logins != nil {
		h.deps.Logins.ObserveLogin(loginMethodOIDC, ok)
	}
}

// verify checks the ID token signature, audience, expiry and nonce.
func (h *Handler) verify(ctx context.Context, raw, nonce string) (*auth.Profile, map[string]any, error) {
	idToken, err := h.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("verifying id token: %w", err)
	}
	if idToken.Nonce != nonce {
		return nil, nil, errors.New("nonce mismatch")
	}
	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, nil, fmt.Errorf("decoding claims: %w", err)
	}
	profile, err := h.claims.Extract(claims)
	if err != nil {
		return nil, nil, err
	}
	if verified, ok := claims["email_verified"].(bool); ok && !verified {
		profile.Email = ""
	}
	return profile, claims, nil
}

// linkUser finds the local account linked to the verified identity,
// provisioning one when enabled. Identities link by issuer and subject only.
// A verified email may claim an existing account when LinkByEmail is set and
// that account has no other subject at this issuer. The username claim never
// selects an account. It returns nil, nil for an unlinked identity.
func (h *Handler) linkUser(ctx context.Context, profile *auth.Profile, claims map[string]any) (*realty.User, error) {
	u, err := h.deps.Users.GetUserByIdentity(ctx, h.cfg.Issuer, profile.Subject)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, realty.ErrNotFound) {
		return nil, fmt.Errorf("looking up identity: %w", err)
	}

	if h.cfg.LinkByEmail && profile.Email != "" && emailVerified(claims) {
		u, err := h.deps.Users.GetUserByEmail(ctx, profile.Email)
		switch {
		case err == nil:
			return h.link(ctx, u, profile)
		case !errors.Is(err, realty.ErrNotFound):
			return nil, fmt.Errorf("looking up email: %w", err)
		}
	}
	if !h.cfg.AutoProvision {
		return nil, nil //nolint:nilnil // unlinked identity
	}
	return h.provision(ctx, profile)
}

// link records profile's identity on u. It returns nil, nil when u already
// belongs to another subject at this issuer.
func (h *Handler) link(ctx context.Context, u *realty.User, profile *auth.Profile) (*realty.User, error) {
	err := h.deps.Users.LinkIdentity(ctx, u.ID, h.cfg.Issuer, profile.Subject)
	switch {
	case err == nil:
		slog.Info("oauth: linked identity", "user_id", u.ID, "subject", profile.Subject)
		return u, nil
	case errors.Is(err, realty.ErrConflict):
		slog.Warn("oauth: account already linked to another subject", "user_id", u.ID, "subject", profile.Subject)
		return nil, nil //nolint:nilnil // unlinked identity
	default:
		return nil, fmt.Errorf("linking identity: %w", err)
	}
}

func (h *Handler) provision(ctx context.Context, profile *auth.Profile) (*realty.User, error) {
	username := profile.Username
	if username == "" {
		username = profile.Subject
	}
	u := &realty.User{
		Username: username,
		FullName: profile.Name,
		Email:    profile.Email,
		Role:     realty.RoleClient,
	}
	switch {
	case h.cfg.AdminRole != "" && profile.HasRole(h.cfg.AdminRole):
		u.Role = realty.RoleAdmin
		u.IsAdmin = true
	case profile.HasRole(string(realty.RoleAgent)):
		u.Role = realty.RoleAgent
	}
	err := h.deps.Users.CreateUser(ctx, u)
	switch {
	case errors.Is(err, realty.ErrConflict):
		slog.Warn("oauth: not provisioning, username or email taken", "username", username, "subject", profile.Subject)
		return nil, nil //nolint:nilnil // unlinked identity
	case err != nil:
		return nil, fmt.Errorf("provisioning user: %w", err)
	}
	slog.Info("oauth: provisioned user", "user_id", u.ID, "role", u.Role)
	return h.link(ctx, u, profile)
}

// emailVerified reports whether the provider asserted the email claim.
func emailVerified(claims map[string]any) bool {
	v, ok := claims["email_verified"].(bool)
	return ok && v
}
