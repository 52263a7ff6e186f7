package audit

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// DefaultMemoryCapacity is the number of events a MemoryLogger keeps.
const DefaultMemoryCapacity = 10000

// MemoryLogger keeps the most recent events in memory. It backs the audit
// log when no database is configured.
type MemoryLogger struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
}

// NewMemoryLogger creates a MemoryLogger holding at most capacity events.
func NewMemoryLogger(capacity int) *MemoryLogger {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryLogger{capacity: capacity}
}

// Log records an audit event, evicting the oldest when full.
func (m *MemoryLogger) Log(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	event.Checks = slices.Clone(event.Checks)
	if len(m.events) >= m.capacity {
		m.events = slices.Delete(m.events, 0, len(m.events)-m.capacity+1)
	}
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryLogger) matching(filter QueryFilter) []Event {
	var out []Event
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if filter.StartTime != nil && e.Timestamp.Before(*filter.StartTime) {
			continue
		}
		if filter.EndTime != nil && e.Timestamp.After(*filter.EndTime) {
			continue
		}
		if filter.UserID != "" && e.UserID != filter.UserID {
			continue
		}
		if filter.SessionID != "" && e.SessionID != filter.SessionID {
			continue
		}
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		if filter.Allowed != nil && e.Allowed != *filter.Allowed {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Query retrieves audit events matching the filter, newest first.
func (m *MemoryLogger) Query(_ context.Context, filter QueryFilter) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := m.matching(filter)
	if filter.Offset > 0 {
		if filter.Offset >= len(events) {
			return []Event{}, nil
		}
		events = events[filter.Offset:]
	}
	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[:filter.Limit]
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

// Count returns the number of events matching the filter.
func (m *MemoryLogger) Count(_ context.Context, filter QueryFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.matching(filter)), nil
}

// Breakdown aggregates events by filter.GroupBy, largest groups first.
func (m *MemoryLogger) Breakdown(_ context.Context, filter BreakdownFilter) ([]BreakdownEntry, error) {
	if !ValidBreakdownDimensions[filter.GroupBy] {
		return nil, errInvalidDimension(filter.GroupBy)
	}

	m.mu.RLock()
	events := m.matching(QueryFilter{StartTime: filter.StartTime, EndTime: filter.EndTime})
	m.mu.RUnlock()

	index := make(map[string]int)
	var entries []BreakdownEntry
	for _, e := range events {
		key := dimensionValue(e, filter.GroupBy)
		i, ok := index[key]
		if !ok {
			i = len(entries)
			index[key] = i
			entries = append(entries, BreakdownEntry{Dimension: key})
		}
		entries[i].Count++
		if e.Allowed {
			entries[i].Allowed++
		}
	}
	slices.SortStableFunc(entries, func(a, b BreakdownEntry) int {
		return cmp.Compare(b.Count, a.Count)
	})

	limit := ClampBreakdownLimit(filter.Limit)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].AllowRate = allowRate(entries[i].Allowed, entries[i].Count)
	}
	if entries == nil {
		entries = []BreakdownEntry{}
	}
	return entries, nil
}

func dimensionValue(e Event, d BreakdownDimension) string {
	switch d {
	case BreakdownByUserID:
		return e.UserID
	case BreakdownByPath:
		return e.Path
	case BreakdownByKind:
		return string(e.Kind)
	default:
		return e.DecidedBy
	}
}

// Len returns the number of stored events.
func (m *MemoryLogger) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// Close is a no-op.
func (*MemoryLogger) Close() error {
	return nil
}

// Verify interface compliance.
var _ Logger = (*MemoryLogger)(nil)
