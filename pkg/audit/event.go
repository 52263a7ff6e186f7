package audit

import (
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/txn2/realty-platform/pkg/auth"
	"github.com/txn2/realty-platform/pkg/middleware"
	"github.com/txn2/realty-platform/pkg/session"
)

// NewEvent creates an audit event for a decision.
func NewEvent(kind auth.Kind, d auth.Decision) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Allowed:   d.Allowed,
		DecidedBy: d.Signal,
		Checks:    slices.Clone(d.Checks),
	}
}

// WithRequest adds the request line and the request ID, if any.
func (e *Event) WithRequest(r *http.Request) *Event {
	e.Method = r.Method
	e.Path = r.URL.Path
	e.RequestID = middleware.RequestIDFromContext(r.Context())
	return e
}

// WithSession adds the session and its user, if any.
func (e *Event) WithSession(s *session.Session) *Event {
	if s == nil {
		return e
	}
	e.SessionID = s.ID
	e.UserID = s.UserID()
	return e
}
