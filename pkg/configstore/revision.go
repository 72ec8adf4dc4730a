package configstore

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContentTypeJSON is the content type rendered as embedded JSON by the API.
const ContentTypeJSON = "application/json"

// Revision is one stored configuration payload of a series.
type Revision struct {
	ID          RevisionID `json:"revision_id"`
	ElementID   uuid.UUID  `json:"element_id"`
	Series      SeriesName `json:"series_name"`
	State       State      `json:"state"`
	ContentType string     `json:"content_type"`
	ContentHash string     `json:"content_hash"`
	Content     []byte     `json:"-"`
	Comment     string     `json:"comment,omitempty"`
	Creator     string     `json:"creator,omitempty"`
	ModifiedAt  time.Time  `json:"modified_at"`

	// Sequence orders revisions within their series, higher is more recent.
	Sequence int64 `json:"-"`
}

// IsActive reports whether the revision is the deployed one.
func (r Revision) IsActive() bool { return r.State == StateActive }

// IsCandidate reports whether the revision awaits activation.
func (r Revision) IsCandidate() bool { return r.State == StateCandidate }

// IsJSON reports whether the content type denotes JSON content.
func (r Revision) IsJSON() bool {
	ct, _, _ := strings.Cut(r.ContentType, ";")
	return strings.EqualFold(strings.TrimSpace(ct), ContentTypeJSON)
}

// Key returns the series key of the revision.
func (r Revision) Key() SeriesKey {
	return SeriesKey{ElementID: r.ElementID, Name: r.Series}
}

// clone returns a copy that does not share the content buffer.
func (r Revision) clone() Revision {
	if r.Content != nil {
		r.Content = append([]byte(nil), r.Content...)
	}
	return r
}

// StoreResult is the outcome of a store or restore.
type StoreResult struct {
	Revision Revision `json:"revision"`

	// Created is false when an existing revision was updated in place.
	Created bool `json:"created"`
}
