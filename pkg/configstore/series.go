package configstore

import (
	"cmp"
	"slices"
	"time"
)

// Series is the ordered revision history of one (element, name) pair.
//
// A Series is loaded by a Repository inside the atomic unit of its key,
// mutated through the lifecycle methods and written back from Changes.
// It is not safe for concurrent use.
type Series struct {
	key  SeriesKey
	revs []Revision // Sequence descending
	now  func() time.Time

	loaded  map[RevisionID]bool
	dirty   map[RevisionID]bool
	deleted []RevisionID
}

// Changes lists the writes needed to persist a mutated series.
type Changes struct {
	Deleted  []RevisionID
	Updated  []Revision
	Inserted []Revision
}

// Empty reports whether there is nothing to write.
func (c Changes) Empty() bool {
	return len(c.Deleted) == 0 && len(c.Updated) == 0 && len(c.Inserted) == 0
}

// NewSeries builds a series view over the stored revisions of key.
func NewSeries(key SeriesKey, revs []Revision) *Series {
	s := &Series{
		key:    key,
		revs:   make([]Revision, 0, len(revs)),
		now:    time.Now,
		loaded: make(map[RevisionID]bool, len(revs)),
		dirty:  make(map[RevisionID]bool),
	}
	for _, r := range revs {
		s.revs = append(s.revs, r.clone())
		s.loaded[r.ID] = true
	}
	s.sort()
	return s
}

// Key returns the series key.
func (s *Series) Key() SeriesKey { return s.key }

// Len returns the number of revisions.
func (s *Series) Len() int { return len(s.revs) }

// Revisions returns the history, most recent first.
func (s *Series) Revisions() []Revision {
	out := make([]Revision, len(s.revs))
	for i, r := range s.revs {
		out[i] = r.clone()
	}
	return out
}

// Latest returns the most recently modified revision regardless of state.
func (s *Series) Latest() (Revision, bool) {
	if len(s.revs) == 0 {
		return Revision{}, false
	}
	return s.revs[0].clone(), true
}

// Active returns the ACTIVE revision, if any.
func (s *Series) Active() (Revision, bool) {
	return s.first(StateActive)
}

// Candidate returns the live CANDIDATE revision, if any.
func (s *Series) Candidate() (Revision, bool) {
	return s.first(StateCandidate)
}

// Find returns the revision with the given id.
func (s *Series) Find(id RevisionID) (Revision, bool) {
	i := s.index(id)
	if i < 0 {
		return Revision{}, false
	}
	return s.revs[i].clone(), true
}

// Changes returns the writes accumulated since the series was loaded.
func (s *Series) Changes() Changes {
	var c Changes
	c.Deleted = append(c.Deleted, s.deleted...)
	for _, r := range s.revs {
		switch {
		case !s.loaded[r.ID]:
			c.Inserted = append(c.Inserted, r.clone())
		case s.dirty[r.ID]:
			c.Updated = append(c.Updated, r.clone())
		}
	}
	// Oldest first, so inserts and updates replay in the order they happened.
	slices.Reverse(c.Inserted)
	slices.SortStableFunc(c.Updated, func(a, b Revision) int {
		return cmp.Compare(updateRank(a.State), updateRank(b.State))
	})
	return c
}

// updateRank orders updates so that revisions leaving a live state are
// written before revisions entering it.
func updateRank(st State) int {
	switch st {
	case StateSuperseded:
		return 0
	case StateCandidate:
		return 1
	default:
		return 2
	}
}

func (s *Series) first(st State) (Revision, bool) {
	for _, r := range s.revs {
		if r.State == st {
			return r.clone(), true
		}
	}
	return Revision{}, false
}

func (s *Series) index(id RevisionID) int {
	return slices.IndexFunc(s.revs, func(r Revision) bool { return r.ID == id })
}

func (s *Series) indexOf(st State) int {
	return slices.IndexFunc(s.revs, func(r Revision) bool { return r.State == st })
}

func (s *Series) nextSequence() int64 {
	var maxSeq int64
	for _, r := range s.revs {
		maxSeq = max(maxSeq, r.Sequence)
	}
	return maxSeq + 1
}

// touch makes the revision with id the most recent one.
func (s *Series) touch(id RevisionID) {
	i := s.index(id)
	if i < 0 {
		return
	}
	s.revs[i].Sequence = s.nextSequence()
	s.revs[i].ModifiedAt = s.now().UTC()
	s.markDirty(id)
	s.sort()
}

func (s *Series) markDirty(id RevisionID) {
	if s.loaded[id] {
		s.dirty[id] = true
	}
}

func (s *Series) insert(r Revision) {
	r.Sequence = s.nextSequence()
	r.ModifiedAt = s.now().UTC()
	s.revs = append(s.revs, r)
	s.sort()
}

func (s *Series) delete(id RevisionID) {
	i := s.index(id)
	if i < 0 {
		return
	}
	s.revs = slices.Delete(s.revs, i, i+1)
	if s.loaded[id] {
		s.deleted = append(s.deleted, id)
		delete(s.dirty, id)
	}
}

func (s *Series) sort() {
	slices.SortStableFunc(s.revs, func(a, b Revision) int {
		return cmp.Compare(b.Sequence, a.Sequence)
	})
}
