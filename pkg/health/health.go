// Package health provides readiness state tracking, dependency checks and
// HTTP health check handlers.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// State constants for the readiness state machine.
const (
	stateStarting int32 = iota
	stateReady
	stateDraining
)

// DefaultCheckTimeout bounds each dependency check of a readiness probe.
const DefaultCheckTimeout = 2 * time.Second

// CheckFunc reports whether a dependency is usable.
type CheckFunc func(ctx context.Context) error

// Checker tracks the readiness state of the service and the health of its
// dependencies. It is safe for concurrent use.
type Checker struct {
	state   atomic.Int32
	timeout time.Duration

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewChecker creates a Checker in the Starting state.
func NewChecker() *Checker {
	return &Checker{
		timeout: DefaultCheckTimeout,
		checks:  make(map[string]CheckFunc),
	}
}

// AddCheck registers a dependency check consulted by readiness probes.
func (c *Checker) AddCheck(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
}

// SetReady transitions to the Ready state.
func (c *Checker) SetReady() {
	c.state.Store(stateReady)
}

// SetDraining transitions to the Draining state.
func (c *Checker) SetDraining() {
	c.state.Store(stateDraining)
}

// IsReady returns true when the state is Ready.
func (c *Checker) IsReady() bool {
	return c.state.Load() == stateReady
}

// State returns the current state as a human-readable string.
func (c *Checker) State() string {
	switch c.state.Load() {
	case stateReady:
		return "ready"
	case stateDraining:
		return "draining"
	default:
		return "starting"
	}
}

// Check runs every dependency check and returns the failures by name.
func (c *Checker) Check(ctx context.Context) map[string]string {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	slices.Sort(names)
	checks := make([]CheckFunc, len(names))
	for i, name := range names {
		checks[i] = c.checks[name]
	}
	c.mu.RUnlock()

	failures := map[string]string{}
	for i, fn := range checks {
		cctx, cancel := context.WithTimeout(ctx, c.timeout)
		err := fn(cctx)
		cancel()
		if err != nil {
			failures[names[i]] = err.Error()
		}
	}
	return failures
}

// healthResponse is the JSON body returned by health endpoints.
type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LivenessHandler returns an http.HandlerFunc that always responds 200 OK.
// Use this for K8s livenessProbe (/healthz).
func (*Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

// ReadinessHandler returns an http.HandlerFunc that responds 200 when ready
// and every dependency check passes, and 503 otherwise.
// Use this for K8s readinessProbe (/readyz).
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !c.IsReady() {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: c.State()})
			return
		}
		if failures := c.Check(r.Context()); len(failures) > 0 {
			slog.Warn("readiness check failed", "failures", failures)
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Checks: failures})
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: c.State()})
	}
}

func writeJSON(w http.ResponseWriter, code int, v healthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
