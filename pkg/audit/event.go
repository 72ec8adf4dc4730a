package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType categorizes audit events.
type EventType string

const (
	// EventTypeStored is a store that created or updated a revision.
	EventTypeStored EventType = "stored"

	// EventTypeActivated is an explicit activation of a candidate.
	EventTypeActivated EventType = "activated"

	// EventTypeRevisionRemoved is the removal of a single revision.
	EventTypeRevisionRemoved EventType = "revision_removed"

	// EventTypeRevisionsRemoved is the removal of all non-active revisions of a series.
	EventTypeRevisionsRemoved EventType = "revisions_removed"

	// EventTypePurged is a retention purge.
	EventTypePurged EventType = "purged"

	// EventTypeCommentUpdated is a comment change.
	EventTypeCommentUpdated EventType = "comment_updated"

	// EventTypeElementConfigsRemoved is the forced removal of every series of an element.
	EventTypeElementConfigsRemoved EventType = "element_configs_removed"
)

// EventTypes lists every event type.
var EventTypes = []EventType{
	EventTypeStored,
	EventTypeActivated,
	EventTypeRevisionRemoved,
	EventTypeRevisionsRemoved,
	EventTypePurged,
	EventTypeCommentUpdated,
	EventTypeElementConfigsRemoved,
}

// NewEvent creates a new audit event.
func NewEvent(eventType EventType) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
	}
}

// WithElement adds element information to the event.
func (e *Event) WithElement(id, name string) *Event {
	e.ElementID = id
	e.ElementName = name
	return e
}

// WithSeries adds the series name to the event.
func (e *Event) WithSeries(series string) *Event {
	e.Series = series
	return e
}

// WithRevision adds revision information to the event.
func (e *Event) WithRevision(id, state, contentType string) *Event {
	e.RevisionID = id
	e.State = state
	e.ContentType = contentType
	return e
}

// WithCreator adds the acting user to the event.
func (e *Event) WithCreator(creator string) *Event {
	e.Creator = creator
	return e
}

// WithCreated marks whether a store created a new revision.
func (e *Event) WithCreated(created bool) *Event {
	e.Created = created
	return e
}

// WithCount adds the number of affected revisions.
func (e *Event) WithCount(n int) *Event {
	e.Count = n
	return e
}
