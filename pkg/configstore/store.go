// Package configstore keeps the configuration revisions of network elements.
//
// Each element holds named configuration series. A series is an ordered
// history of revisions, at most one of which is ACTIVE and at most one of
// which is a live CANDIDATE. Older revisions are SUPERSEDED and remain
// available for restore until they are removed or purged.
package configstore

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists revisions. Every mutation of a series runs inside
// UpdateSeries, which is atomic and serialized per series key.
type Repository interface {
	// Series loads the current history of key. A missing series is empty.
	Series(ctx context.Context, key SeriesKey) (*Series, error)

	// UpdateSeries loads key, calls fn and persists the changes fn made.
	// Nothing is written when fn fails. A lost race is reported as
	// ErrConcurrentModification.
	UpdateSeries(ctx context.Context, key SeriesKey, fn func(*Series) error) error

	// Revision returns a revision of the element by id.
	Revision(ctx context.Context, elementID uuid.UUID, id RevisionID) (Revision, error)

	// LatestRevisions returns the most recent revision of every series of
	// the element, ordered by series name.
	LatestRevisions(ctx context.Context, elementID uuid.UUID) ([]Revision, error)

	// SeriesNames lists the series of the element in name order.
	SeriesNames(ctx context.Context, elementID uuid.UUID) ([]SeriesName, error)
}
