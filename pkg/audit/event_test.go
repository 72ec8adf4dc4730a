package audit

import "testing"

const eventTestCount = 3

func TestNewEvent(t *testing.T) {
	event := NewEvent(EventTypeStored)

	if event.Type != EventTypeStored {
		t.Errorf("Type = %q, want %q", event.Type, EventTypeStored)
	}
	if event.ID == "" {
		t.Error("ID should not be empty")
	}
	if event.Timestamp.IsZero() {
		t.Error("Timestamp should not be zero")
	}
	if other := NewEvent(EventTypeStored); other.ID == event.ID {
		t.Error("event IDs should be unique")
	}
}

func TestEvent_Builders(t *testing.T) {
	event := NewEvent(EventTypePurged).
		WithElement("elem-1", "core-router-1").
		WithSeries("startup-config").
		WithRevision("rev-1", "SUPERSEDED", "text/plain").
		WithCreator("alice").
		WithCreated(true).
		WithCount(eventTestCount)

	if event.ElementID != "elem-1" || event.ElementName != "core-router-1" {
		t.Errorf("element = %q/%q", event.ElementID, event.ElementName)
	}
	if event.Series != "startup-config" {
		t.Errorf("Series = %q", event.Series)
	}
	if event.RevisionID != "rev-1" || event.State != "SUPERSEDED" || event.ContentType != "text/plain" {
		t.Errorf("revision = %q %q %q", event.RevisionID, event.State, event.ContentType)
	}
	if event.Creator != "alice" {
		t.Errorf("Creator = %q", event.Creator)
	}
	if !event.Created {
		t.Error("Created should be true")
	}
	if event.Count != eventTestCount {
		t.Errorf("Count = %d, want %d", event.Count, eventTestCount)
	}
}

func TestEventTypes_Unique(t *testing.T) {
	seen := map[EventType]bool{}
	for _, et := range EventTypes {
		if seen[et] {
			t.Errorf("duplicate event type %q", et)
		}
		seen[et] = true
	}
}
