package configstore

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

const maxSeriesNameLength = 128

var seriesNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)

// RevisionID identifies a revision. It is assigned once and never changes.
type RevisionID string

// NewRevisionID returns a random revision identifier.
func NewRevisionID() RevisionID {
	return RevisionID(uuid.NewString())
}

// ParseRevisionID validates s as a revision identifier.
func ParseRevisionID(s string) (RevisionID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: invalid revision id %q", ErrInvalidArgument, s)
	}
	return RevisionID(id.String()), nil
}

func (id RevisionID) String() string {
	return string(id)
}

// SeriesName names a configuration series of an element, e.g. "startup-config".
type SeriesName string

// ParseSeriesName validates s as a series name.
func ParseSeriesName(s string) (SeriesName, error) {
	switch {
	case s == "":
		return "", fmt.Errorf("%w: series name is required", ErrInvalidArgument)
	case len(s) > maxSeriesNameLength:
		return "", fmt.Errorf("%w: series name exceeds %d characters", ErrInvalidArgument, maxSeriesNameLength)
	case !seriesNamePattern.MatchString(s):
		return "", fmt.Errorf("%w: invalid series name %q", ErrInvalidArgument, s)
	}
	return SeriesName(s), nil
}

func (n SeriesName) String() string {
	return string(n)
}

// SeriesKey is the unit of mutual exclusion: one series of one element.
type SeriesKey struct {
	ElementID uuid.UUID
	Name      SeriesName
}

func (k SeriesKey) String() string {
	return k.ElementID.String() + "/" + string(k.Name)
}
