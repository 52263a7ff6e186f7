package audit

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/txn2/realty-platform/pkg/auth"
	"github.com/txn2/realty-platform/pkg/session"
)

// Recorder writes every authorization decision to a Logger. Writes happen
// in the background so a slow store never delays the response.
type Recorder struct {
	logger Logger
	// allowedToo records allowed decisions as well as denials.
	allowedToo bool
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// DenialsOnly limits recording to refused decisions.
func DenialsOnly() RecorderOption {
	return func(r *Recorder) { r.allowedToo = false }
}

// NewRecorder creates a Recorder writing to logger.
func NewRecorder(logger Logger, opts ...RecorderOption) *Recorder {
	r := &Recorder{logger: logger, allowedToo: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ObserveDecision implements auth.Observer.
func (rec *Recorder) ObserveDecision(r *http.Request, kind auth.Kind, d auth.Decision) {
	if d.Allowed && !rec.allowedToo {
		return
	}
	event := NewEvent(kind, d).
		WithRequest(r).
		WithSession(session.FromContext(r.Context()))

	go func() {
		if err := rec.logger.Log(context.Background(), *event); err != nil {
			slog.Warn("audit: failed to record decision", "error", err, "event_id", event.ID)
		}
	}()
}

// Verify interface compliance.
var _ auth.Observer = (*Recorder)(nil)
