package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// hook is a named start/stop pair. Either function may be nil.
type hook struct {
	name  string
	start func(context.Context) error
	stop  func(context.Context) error
}

// Lifecycle starts platform components in registration order and stops
// them in reverse. A failed start stops the components already started.
type Lifecycle struct {
	mu      sync.Mutex
	hooks   []hook
	started int // number of hooks whose start has run
	running bool
	stopped bool
}

// NewLifecycle creates an empty lifecycle.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{}
}

// Add registers a component under name.
func (l *Lifecycle) Add(name string, start, stop func(context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, hook{name: name, start: start, stop: stop})
}

// AddCloser registers c to be closed on Stop.
func (l *Lifecycle) AddCloser(name string, c interface{ Close() error }) {
	l.Add(name, nil, func(context.Context) error { return c.Close() })
}

// Start runs every start function.
func (l *Lifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return errors.New("lifecycle already started")
	}
	for i, h := range l.hooks {
		if h.start != nil {
			if err := h.start(ctx); err != nil {
				l.started = i
				if stopErr := l.stopStarted(ctx); stopErr != nil {
					slog.Warn("platform: rollback after failed start", "error", stopErr)
				}
				return fmt.Errorf("starting %s: %w", h.name, err)
			}
		}
		slog.Debug("platform: started", "component", h.name)
	}
	l.started = len(l.hooks)
	l.running = true
	l.stopped = false
	return nil
}

// Stop runs stop functions in reverse order. Stopping a lifecycle that was
// never started still stops every registered component so that resources
// acquired during construction are released.
func (l *Lifecycle) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running {
		if l.stopped {
			return nil
		}
		l.started = len(l.hooks)
	}
	l.running = false
	l.stopped = true
	return l.stopStarted(ctx)
}

// Running reports whether Start has succeeded and Stop has not run.
func (l *Lifecycle) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Lifecycle) stopStarted(ctx context.Context) error {
	var errs []error
	for i := l.started - 1; i >= 0; i-- {
		h := l.hooks[i]
		if h.stop == nil {
			continue
		}
		if err := h.stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping %s: %w", h.name, err))
		}
	}
	l.started = 0
	return errors.Join(errs...)
}
