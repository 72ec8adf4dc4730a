package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// hook is a named pair of start and stop callbacks. Either may be nil.
type hook struct {
	name  string
	start func(context.Context) error
	stop  func(context.Context) error
}

// Lifecycle starts platform components in registration order and stops them
// in reverse.
type Lifecycle struct {
	mu      sync.Mutex
	hooks   []hook
	started bool
}

// NewLifecycle creates a new lifecycle manager.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{}
}

// Add registers a named component.
func (l *Lifecycle) Add(name string, start, stop func(context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, hook{name: name, start: start, stop: stop})
}

// Closer is something that can be closed.
type Closer interface {
	Close() error
}

// AddCloser registers a closer to be closed on shutdown.
func (l *Lifecycle) AddCloser(name string, c Closer) {
	l.Add(name, nil, func(context.Context) error { return c.Close() })
}

// Start runs all start callbacks. If one fails, the components already
// started are stopped again.
func (l *Lifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return errors.New("lifecycle already started")
	}

	for i, h := range l.hooks {
		if h.start == nil {
			continue
		}
		if err := h.start(ctx); err != nil {
			l.rollback(ctx, i)
			return fmt.Errorf("starting %s: %w", h.name, err)
		}
		slog.Debug("component started", "component", h.name)
	}

	l.started = true
	return nil
}

// rollback stops the components registered before index failedAt.
func (l *Lifecycle) rollback(ctx context.Context, failedAt int) {
	for j := failedAt - 1; j >= 0; j-- {
		h := l.hooks[j]
		if h.stop == nil {
			continue
		}
		if err := h.stop(ctx); err != nil {
			slog.Warn("lifecycle rollback: stop callback failed",
				"component", h.name, "error", err)
		}
	}
}

// Stop runs all stop callbacks in reverse order.
func (l *Lifecycle) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started {
		return nil
	}

	var errs []error
	for i := len(l.hooks) - 1; i >= 0; i-- {
		h := l.hooks[i]
		if h.stop == nil {
			continue
		}
		if err := h.stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping %s: %w", h.name, err))
		}
	}

	l.started = false
	return errors.Join(errs...)
}

// IsStarted returns whether the lifecycle has been started.
func (l *Lifecycle) IsStarted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started
}
