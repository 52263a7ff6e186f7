package session

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultCookieName is the session cookie name used when none is configured.
	DefaultCookieName = "realty_sid"

	// sessionIDBytes is the number of random bytes for session ID generation.
	sessionIDBytes = 16

	// slogKeyError is the slog attribute key for error values.
	slogKeyError = "error"

	slogKeySessionID = "session_id"
)

// ErrInvalidCookie is returned when a session cookie is malformed or its
// signature does not verify.
var ErrInvalidCookie = errors.New("invalid session cookie")

type contextKey struct{}

// WithSession returns a context carrying the session.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the request's session, or nil if the Manager did not run.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}

// HandlerConfig configures a Manager.
type HandlerConfig struct {
	Store      Store
	TTL        time.Duration
	CookieName string
	Secret     []byte
	Secure     bool
}

// Manager loads the caller's session from a signed cookie, creating a new
// anonymous session for requests that carry no valid cookie.
type Manager struct {
	store  Store
	ttl    time.Duration
	cookie string
	secret []byte
	secure bool
}

// NewManager creates a cookie session manager.
func NewManager(cfg HandlerConfig) *Manager {
	name := cfg.CookieName
	if name == "" {
		name = DefaultCookieName
	}
	return &Manager{
		store:  cfg.Store,
		ttl:    cfg.TTL,
		cookie: name,
		secret: cfg.Secret,
		secure: cfg.Secure,
	}
}

// Middleware attaches the caller's session to the request context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, issued, err := m.load(r)
		if err != nil {
			slog.Error("session: store error", slogKeyError, err)
			writeInternalError(w)
			return
		}
		if sess == nil {
			sess, err = m.create(r.Context())
			if err != nil {
				slog.Error("session: failed to create", slogKeyError, err)
				writeInternalError(w)
				return
			}
			m.setCookie(w, sess)
			slog.Debug("session: created", slogKeySessionID, sess.ID)
		} else {
			m.touch(w, r, sess, issued)
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

// load returns the stored session named by the request cookie and the time
// the cookie was issued. The session is nil when the cookie is missing,
// forged, or refers to an expired session.
func (m *Manager) load(r *http.Request) (*Session, time.Time, error) {
	c, err := r.Cookie(m.cookie)
	if err != nil {
		return nil, time.Time{}, nil
	}
	id, issued, err := m.verify(c.Value)
	if err != nil {
		slog.Debug("session: rejected cookie", slogKeyError, err)
		return nil, time.Time{}, nil
	}
	sess, err := m.store.Get(r.Context(), id)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("loading session: %w", err)
	}
	return sess, issued, nil
}

// touch slides the session's expiry and, once more than half the TTL has
// passed since the cookie was issued, reissues the cookie so the browser
// keeps it as long as the server keeps the session.
func (m *Manager) touch(w http.ResponseWriter, r *http.Request, sess *Session, issued time.Time) {
	if err := m.store.Touch(r.Context(), sess.ID); err != nil {
		slog.Debug("session: touch failed", slogKeySessionID, sess.ID, slogKeyError, err)
		return
	}
	now := time.Now()
	sess.LastActiveAt = now
	sess.ExpiresAt = now.Add(m.ttl)
	if now.Sub(issued) > m.ttl/2 {
		m.setCookie(w, sess)
		slog.Debug("session: cookie refreshed", slogKeySessionID, sess.ID)
	}
}

func (m *Manager) create(ctx context.Context) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	sess := &Session{
		ID:           id,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(m.ttl),
	}
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return sess, nil
}

// Save persists changes a handler made to the session.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	if err := m.store.Save(ctx, s); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Renew moves the session's state to a freshly generated ID and reissues the
// cookie. Login handlers call it so a pre-login session ID never becomes
// authenticated.
func (m *Manager) Renew(w http.ResponseWriter, r *http.Request, s *Session) (*Session, error) {
	ctx := r.Context()
	next, err := m.create(ctx)
	if err != nil {
		return nil, err
	}
	next.IsAuthenticated = s.IsAuthenticated
	next.IsAdmin = s.IsAdmin
	next.User = s.User
	next.Identity = s.Identity
	if err := m.store.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("saving renewed session: %w", err)
	}
	if s.ID != "" {
		if err := m.store.Delete(ctx, s.ID); err != nil {
			slog.Debug("session: delete failed", slogKeySessionID, s.ID, slogKeyError, err)
		}
	}
	m.setCookie(w, next)
	slog.Debug("session: renewed", slogKeySessionID, next.ID)
	return next, nil
}

// Destroy deletes the session and expires the cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request, s *Session) error {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	if s == nil {
		return nil
	}
	if err := m.store.Delete(r.Context(), s.ID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func (m *Manager) setCookie(w http.ResponseWriter, s *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie,
		Value:    m.sign(s.ID, time.Now()),
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// sign returns "<id>.<issued>.<mac>" where issued is Unix seconds and mac is
// the base64url HMAC-SHA256 of "<id>.<issued>".
func (m *Manager) sign(id string, issued time.Time) string {
	payload := id + "." + strconv.FormatInt(issued.Unix(), 10)
	return payload + "." + base64.RawURLEncoding.EncodeToString(m.mac(payload))
}

func (m *Manager) verify(value string) (string, time.Time, error) {
	i := strings.LastIndexByte(value, '.')
	if i < 0 {
		return "", time.Time{}, ErrInvalidCookie
	}
	payload, sig := value[:i], value[i+1:]
	id, ts, ok := strings.Cut(payload, ".")
	if !ok || id == "" {
		return "", time.Time{}, ErrInvalidCookie
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil || !hmac.Equal(got, m.mac(payload)) {
		return "", time.Time{}, ErrInvalidCookie
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", time.Time{}, ErrInvalidCookie
	}
	return id, time.Unix(unix, 0), nil
}

func (m *Manager) mac(payload string) []byte {
	h := hmac.New(sha256.New, m.secret)
	h.Write([]byte(payload))
	return h.Sum(nil)
}

func writeInternalError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(`{"message":"internal server error"}`))
}

// generateSessionID creates a cryptographically random session ID.
func generateSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
