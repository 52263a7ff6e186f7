// Package audit records authorization decisions so administrators can review
// who was allowed or refused, and which signal decided it.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/txn2/realty-platform/pkg/auth"
)

// Logger defines the interface for audit logging.
type Logger interface {
	// Log records an audit event.
	Log(ctx context.Context, event Event) error

	// Query retrieves audit events matching the filter, newest first.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	// Count returns the number of events matching the filter, ignoring
	// Limit and Offset.
	Count(ctx context.Context, filter QueryFilter) (int, error)

	// Breakdown aggregates events by a single dimension.
	Breakdown(ctx context.Context, filter BreakdownFilter) ([]BreakdownEntry, error)

	// Close releases resources.
	Close() error
}

// Event is the record of one authorization decision.
type Event struct {
	ID        string              `json:"id"`
	Timestamp time.Time           `json:"timestamp"`
	RequestID string              `json:"request_id,omitempty"`
	SessionID string              `json:"session_id,omitempty"`
	UserID    string              `json:"user_id,omitempty"`
	Method    string              `json:"method"`
	Path      string              `json:"path"`
	Kind      auth.Kind           `json:"kind"`
	Allowed   bool                `json:"allowed"`
	DecidedBy string              `json:"decided_by,omitempty"`
	Checks    []auth.SignalResult `json:"checks"`
}

// QueryFilter defines criteria for querying audit events.
type QueryFilter struct {
	StartTime *time.Time
	EndTime   *time.Time
	UserID    string
	SessionID string
	Kind      auth.Kind
	Allowed   *bool
	Limit     int
	Offset    int
}

// BreakdownDimension names a column events can be grouped by.
type BreakdownDimension string

// Supported breakdown dimensions.
const (
	BreakdownByDecidedBy BreakdownDimension = "decided_by"
	BreakdownByUserID    BreakdownDimension = "user_id"
	BreakdownByPath      BreakdownDimension = "path"
	BreakdownByKind      BreakdownDimension = "kind"
)

// ValidBreakdownDimensions is the set of allowed group-by values.
var ValidBreakdownDimensions = map[BreakdownDimension]bool{
	BreakdownByDecidedBy: true,
	BreakdownByUserID:    true,
	BreakdownByPath:      true,
	BreakdownByKind:      true,
}

// ErrInvalidDimension is returned for an unknown breakdown dimension.
var ErrInvalidDimension = errors.New("invalid breakdown dimension")

func errInvalidDimension(d BreakdownDimension) error {
	return fmt.Errorf("%w: %q", ErrInvalidDimension, d)
}

// BreakdownFilter controls breakdown queries.
type BreakdownFilter struct {
	GroupBy   BreakdownDimension
	Limit     int
	StartTime *time.Time
	EndTime   *time.Time
}

// BreakdownEntry holds aggregated counts for one dimension value.
type BreakdownEntry struct {
	Dimension string  `json:"dimension"`
	Count     int     `json:"count"`
	Allowed   int     `json:"allowed"`
	AllowRate float64 `json:"allow_rate"`
}

// Config configures audit logging.
type Config struct {
	Enabled       bool
	RetentionDays int
}

// DefaultBreakdownLimit caps breakdown results when no limit is given.
const DefaultBreakdownLimit = 10

// MaxBreakdownLimit is the largest accepted breakdown limit.
const MaxBreakdownLimit = 100

// ClampBreakdownLimit returns a limit within [1, MaxBreakdownLimit].
func ClampBreakdownLimit(limit int) int {
	if limit <= 0 {
		return DefaultBreakdownLimit
	}
	if limit > MaxBreakdownLimit {
		return MaxBreakdownLimit
	}
	return limit
}

func allowRate(allowed, count int) float64 {
	if count == 0 {
		return 0
	}
	return float64(allowed) / float64(count)
}
