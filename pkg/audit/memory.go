package audit

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

const defaultBreakdownLimit = 10

// MemoryLogger keeps events in memory and mirrors them to slog.
type MemoryLogger struct {
	mu     sync.RWMutex
	events []Event
	max    int
}

// NewMemoryLogger creates a logger keeping at most maxEvents events.
// A non-positive maxEvents keeps everything.
func NewMemoryLogger(maxEvents int) *MemoryLogger {
	return &MemoryLogger{max: maxEvents}
}

// Log records an audit event.
func (l *MemoryLogger) Log(_ context.Context, event Event) error {
	slog.Info("configuration event",
		"event_type", event.Type,
		"element", event.ElementName,
		"series", event.Series,
		"revision", event.RevisionID,
		"state", event.State,
		"creator", event.Creator,
		"count", event.Count,
	)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	if l.max > 0 && len(l.events) > l.max {
		l.events = slices.Delete(l.events, 0, len(l.events)-l.max)
	}
	return nil
}

// Query retrieves audit events matching the filter, newest first.
func (l *MemoryLogger) Query(_ context.Context, filter QueryFilter) ([]Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Event
	for i := len(l.events) - 1; i >= 0; i-- {
		if filter.Matches(l.events[i]) {
			out = append(out, l.events[i])
		}
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Breakdown counts events per dimension value, largest first.
func (l *MemoryLogger) Breakdown(_ context.Context, filter BreakdownFilter) ([]BreakdownEntry, error) {
	if !ValidBreakdownDimensions[filter.GroupBy] {
		return nil, fmt.Errorf("invalid breakdown dimension: %q", filter.GroupBy)
	}
	qf := QueryFilter{StartTime: filter.StartTime, EndTime: filter.EndTime}

	l.mu.RLock()
	counts := make(map[string]int)
	for _, e := range l.events {
		if qf.Matches(e) {
			counts[dimensionValue(e, filter.GroupBy)]++
		}
	}
	l.mu.RUnlock()

	entries := make([]BreakdownEntry, 0, len(counts))
	for dim, n := range counts {
		entries = append(entries, BreakdownEntry{Dimension: dim, Count: n})
	}
	slices.SortFunc(entries, func(a, b BreakdownEntry) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Dimension, b.Dimension)
	})
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultBreakdownLimit
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Close releases resources.
func (*MemoryLogger) Close() error { return nil }

// Verify interface compliance.
var _ Logger = (*MemoryLogger)(nil)
