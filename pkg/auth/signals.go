package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/txn2/realty-platform/pkg/session"
)

// Signal names.
const (
	SignalSessionAdmin          = "session_admin"
	SignalIdentityDBUser        = "identity_db_user"
	SignalUserAdmin             = "user_admin"
	SignalReservedUsername      = "reserved_username"
	SignalFederatedIdentity     = "federated_identity"
	SignalFederatedAdminSubject = "federated_admin_subject"
	SignalAdminBearer           = "admin_bearer"
	SignalSignedAdminToken      = "signed_admin_token"

	SignalSessionAuthenticated = "session_authenticated"
)

// AdminTokenHeader carries a server-issued admin token.
const AdminTokenHeader = "X-Admin-Token"

// DefaultSignalOrder is the admin signal evaluation order.
var DefaultSignalOrder = []string{
	SignalSessionAdmin,
	SignalIdentityDBUser,
	SignalUserAdmin,
	SignalReservedUsername,
	SignalFederatedIdentity,
	SignalFederatedAdminSubject,
	SignalAdminBearer,
	SignalSignedAdminToken,
}

// Input is the read-only view of a request that signals inspect.
type Input struct {
	Session *session.Session
	Header  http.Header
}

// InputFromRequest builds the signal input from the request's session and headers.
func InputFromRequest(r *http.Request) Input {
	return Input{
		Session: session.FromContext(r.Context()),
		Header:  r.Header,
	}
}

// Signal is a named admin check. Check reports whether the signal's data was
// present on the request and whether it grants admin.
type Signal struct {
	Name  string
	Check func(in Input) (available, passed bool)
}

// KnownSignal reports whether name is a recognized admin signal.
func KnownSignal(name string) bool {
	for _, n := range DefaultSignalOrder {
		if n == name {
			return true
		}
	}
	return false
}

func buildSignals(names []string, cfg Config) ([]Signal, error) {
	seen := make(map[string]bool, len(names))
	out := make([]Signal, 0, len(names))
	for _, name := range names {
		if seen[name] {
			return nil, fmt.Errorf("admin signal %q listed twice", name)
		}
		seen[name] = true

		check, err := signalCheck(name, cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, Signal{Name: name, Check: check})
	}
	return out, nil
}

func signalCheck(name string, cfg Config) (func(Input) (bool, bool), error) {
	switch name {
	case SignalSessionAdmin:
		return sessionAdmin, nil
	case SignalIdentityDBUser:
		return identityDBUser, nil
	case SignalUserAdmin:
		return userAdmin, nil
	case SignalReservedUsername:
		return reservedUsername(cfg.ReservedUsername), nil
	case SignalFederatedIdentity:
		return federatedIdentity, nil
	case SignalFederatedAdminSubject:
		return federatedAdminSubject(cfg.ReservedAdminSubject), nil
	case SignalAdminBearer:
		return adminBearer(cfg.AdminSecret), nil
	case SignalSignedAdminToken:
		return signedAdminToken(cfg.Tokens), nil
	default:
		return nil, fmt.Errorf("unknown admin signal %q", name)
	}
}

func sessionAdmin(in Input) (bool, bool) {
	if in.Session == nil {
		return false, false
	}
	return true, in.Session.IsAdmin
}

func identityDBUser(in Input) (bool, bool) {
	s := in.Session
	if s == nil || s.Identity == nil || s.Identity.DBUser == nil {
		return false, false
	}
	return true, s.IsAuthenticated && s.Identity.DBUser.IsAdmin
}

func userAdmin(in Input) (bool, bool) {
	if in.Session == nil || in.Session.User == nil {
		return false, false
	}
	return true, in.Session.User.IsAdmin
}

func reservedUsername(reserved string) func(Input) (bool, bool) {
	return func(in Input) (bool, bool) {
		if reserved == "" || in.Session == nil || in.Session.User == nil {
			return false, false
		}
		return true, in.Session.User.Username == reserved
	}
}

// federatedIdentity passes on the mere presence of a federated identity. The
// OIDC callback only attaches identities whose ID token verified.
func federatedIdentity(in Input) (bool, bool) {
	if in.Session == nil || in.Session.Identity == nil {
		return false, false
	}
	return true, in.Session.Identity.Subject != ""
}

func federatedAdminSubject(subject string) func(Input) (bool, bool) {
	return func(in Input) (bool, bool) {
		if subject == "" || in.Session == nil || in.Session.Identity == nil {
			return false, false
		}
		return true, in.Session.Identity.Subject == subject
	}
}

func adminBearer(secret string) func(Input) (bool, bool) {
	want := []byte("Bearer " + secret)
	return func(in Input) (bool, bool) {
		got := in.Header.Get("Authorization")
		if got == "" {
			return false, false
		}
		if secret == "" {
			return true, false
		}
		return true, subtle.ConstantTimeCompare([]byte(got), want) == 1
	}
}

func signedAdminToken(tokens *AdminTokens) func(Input) (bool, bool) {
	return func(in Input) (bool, bool) {
		raw := in.Header.Get(AdminTokenHeader)
		if raw == "" || tokens == nil {
			return false, false
		}
		_, err := tokens.ValidateFor(raw, in.Session)
		return true, err == nil
	}
}
