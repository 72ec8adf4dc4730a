package configstore

import (
	"cmp"
	"fmt"
	"slices"
)

// HistoryLimits supplies the history size limit of a series name.
type HistoryLimits interface {
	HistoryLimit(name SeriesName) int
}

// RetentionPolicy is a static HistoryLimits with per-series overrides.
type RetentionPolicy struct {
	Default int
	Series  map[SeriesName]int
}

// HistoryLimit returns the override for name, or the default.
func (p RetentionPolicy) HistoryLimit(name SeriesName) int {
	if n, ok := p.Series[name]; ok {
		return n
	}
	return p.Default
}

// Outdated returns the revisions a purge with limit would remove. Revisions
// are ranked most recent first with the ACTIVE revision always ranked first;
// every non-ACTIVE revision ranked at limit or beyond is outdated. Revisions
// listed in keep are never outdated.
func (s *Series) Outdated(limit int, keep ...RevisionID) ([]Revision, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: history limit must be positive, got %d", ErrInvalidArgument, limit)
	}
	ranked := s.Revisions()
	slices.SortStableFunc(ranked, func(a, b Revision) int {
		if a.IsActive() != b.IsActive() {
			if a.IsActive() {
				return -1
			}
			return 1
		}
		return cmp.Compare(b.Sequence, a.Sequence)
	})
	var out []Revision
	for i, r := range ranked {
		if i >= limit && !r.IsActive() && !slices.Contains(keep, r.ID) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Purge removes the outdated revisions and returns how many were removed.
func (s *Series) Purge(limit int, keep ...RevisionID) (int, error) {
	outdated, err := s.Outdated(limit, keep...)
	if err != nil {
		return 0, err
	}
	for _, r := range outdated {
		s.delete(r.ID)
	}
	return len(outdated), nil
}
