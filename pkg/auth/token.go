package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/txn2/realty-platform/pkg/session"
)

const (
	// DefaultAdminTokenTTL is the admin token lifetime when none is configured.
	DefaultAdminTokenTTL = 15 * time.Minute

	adminTokenIssuer = "realty-platform"
	adminRole        = "admin"
	minSigningKeyLen = 32
)

// AdminClaims are the claims of a signed admin token.
type AdminClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	// Session is a digest of the issuing session's ID.
	Session string `json:"sid"`
	jwt.RegisteredClaims
}

// ErrTokenSessionMismatch is returned when an admin token is presented
// outside the signed-in session it was issued to.
var ErrTokenSessionMismatch = errors.New("admin token does not belong to this session")

// AdminTokenConfig configures admin token issuance.
type AdminTokenConfig struct {
	// SigningKey is the HMAC key used to sign and verify tokens.
	SigningKey []byte

	// TTL is the token lifetime.
	TTL time.Duration
}

// AdminTokens issues and validates short-lived HS256 admin tokens. A token
// is handed to an already-authorized admin and presented back in the
// X-Admin-Token header; the server validates it on every call.
//
// Tokens are bound to the session that requested them. ValidateFor accepts
// a token only alongside that session, still signed in as the same user, so
// logging out or rotating the session revokes its tokens before they expire.
type AdminTokens struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewAdminTokens creates an admin token issuer.
func NewAdminTokens(cfg AdminTokenConfig) (*AdminTokens, error) {
	if len(cfg.SigningKey) < minSigningKeyLen {
		return nil, fmt.Errorf("admin token signing key must be at least %d bytes", minSigningKeyLen)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultAdminTokenTTL
	}
	return &AdminTokens{key: cfg.SigningKey, ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for the session's user.
func (t *AdminTokens) Issue(sess *session.Session) (string, time.Time, error) {
	if sess == nil || sess.ID == "" || sess.User == nil || sess.User.ID == "" {
		return "", time.Time{}, errors.New("admin token requires a signed-in user")
	}
	now := t.now()
	exp := now.Add(t.ttl)
	claims := AdminClaims{
		Username: sess.User.Username,
		Role:     adminRole,
		Session:  sessionDigest(sess.ID),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    adminTokenIssuer,
			Subject:   sess.User.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing admin token: %w", err)
	}
	return signed, exp, nil
}

// ValidateFor validates raw and checks that it was issued to sess, which
// must still be signed in as the token's subject.
func (t *AdminTokens) ValidateFor(raw string, sess *session.Session) (*AdminClaims, error) {
	claims, err := t.Validate(raw)
	if err != nil {
		return nil, err
	}
	if sess == nil || !sess.IsAuthenticated || sess.UserID() != claims.Subject ||
		subtle.ConstantTimeCompare([]byte(claims.Session), []byte(sessionDigest(sess.ID))) != 1 {
		return nil, ErrTokenSessionMismatch
	}
	return claims, nil
}

// sessionDigest keeps the raw session ID out of the token, whose claims are
// readable by anyone holding it.
func sessionDigest(id string) string {
	sum := sha256.Sum256([]byte(id))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Validate verifies signature, issuer, expiry and role.
func (t *AdminTokens) Validate(raw string) (*AdminClaims, error) {
	var claims AdminClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(adminTokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("parsing admin token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid admin token")
	}
	if claims.Role != adminRole {
		return nil, fmt.Errorf("admin token has role %q", claims.Role)
	}
	return &claims, nil
}
