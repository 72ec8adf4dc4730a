// Package audit records configuration change events.
package audit

import (
	"context"
	"time"
)

// Logger defines the interface for audit logging.
type Logger interface {
	// Log records an audit event.
	Log(ctx context.Context, event Event) error

	// Query retrieves audit events matching the filter, newest first.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	// Close releases resources.
	Close() error
}

// Event represents a configuration change.
type Event struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Type        EventType `json:"event_type"`
	ElementID   string    `json:"element_id"`
	ElementName string    `json:"element_name,omitempty"`
	Series      string    `json:"series_name,omitempty"`
	RevisionID  string    `json:"revision_id,omitempty"`
	State       string    `json:"state,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Creator     string    `json:"creator,omitempty"`
	Created     bool      `json:"created,omitempty"`
	Count       int       `json:"count,omitempty"`
}

// QueryFilter defines criteria for querying audit events.
type QueryFilter struct {
	StartTime *time.Time
	EndTime   *time.Time
	ElementID string
	Series    string
	Type      EventType
	Limit     int
	Offset    int
}

// Matches reports whether e satisfies the filter, ignoring paging.
func (f QueryFilter) Matches(e Event) bool {
	switch {
	case f.StartTime != nil && e.Timestamp.Before(*f.StartTime):
		return false
	case f.EndTime != nil && e.Timestamp.After(*f.EndTime):
		return false
	case f.ElementID != "" && e.ElementID != f.ElementID:
		return false
	case f.Series != "" && e.Series != f.Series:
		return false
	case f.Type != "" && e.Type != f.Type:
		return false
	}
	return true
}

// Config configures audit logging.
type Config struct {
	Enabled       bool
	RetentionDays int
}
