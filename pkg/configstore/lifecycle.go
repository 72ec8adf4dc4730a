package configstore

import (
	"fmt"
	"slices"
)

// transitions lists the legal target states of each state. A restore does not
// move a SUPERSEDED revision; it copies its content into a new CANDIDATE.
var transitions = map[State][]State{
	StateCandidate:  {StateActive, StateSuperseded},
	StateActive:     {StateSuperseded},
	StateSuperseded: nil,
}

// ValidateTransition checks that revision id may move from one state to another.
func ValidateTransition(id RevisionID, from, to State) error {
	if slices.Contains(transitions[from], to) {
		return nil
	}
	te := &TransitionError{Revision: id, From: from, To: to}
	switch {
	case from == to:
		te.Message = "revision is already " + string(to)
	case to == StateActive:
		te.Message = "only CANDIDATE revisions can be activated"
	}
	return te
}

// StoreInput carries the payload and metadata of a store.
type StoreInput struct {
	ContentType string
	Content     []byte
	Comment     string
	Creator     string
}

// transition moves a revision to a new state and makes it the most recent one.
func (s *Series) transition(id RevisionID, to State) error {
	i := s.index(id)
	if i < 0 {
		return s.notFound(id)
	}
	if err := ValidateTransition(id, s.revs[i].State, to); err != nil {
		return err
	}
	s.revs[i].State = to
	s.touch(id)
	return nil
}

func (s *Series) notFound(id RevisionID) error {
	return fmt.Errorf("%w: revision %s in series %s", ErrNotFound, id, s.key)
}

// supersede moves the revision holding st, if any, to SUPERSEDED.
func (s *Series) supersede(st State) error {
	i := s.indexOf(st)
	if i < 0 {
		return nil
	}
	return s.transition(s.revs[i].ID, StateSuperseded)
}

// Activate makes the CANDIDATE revision id the ACTIVE one. The previous ACTIVE
// revision, if any, becomes SUPERSEDED.
func (s *Series) Activate(id RevisionID) (Revision, error) {
	i := s.index(id)
	if i < 0 {
		return Revision{}, s.notFound(id)
	}
	if err := ValidateTransition(id, s.revs[i].State, StateActive); err != nil {
		return Revision{}, err
	}
	if err := s.supersede(StateActive); err != nil {
		return Revision{}, err
	}
	if err := s.transition(id, StateActive); err != nil {
		return Revision{}, err
	}
	r, _ := s.Find(id)
	return r, nil
}

// SupersedeCandidate retires the live CANDIDATE, if any, and returns its id.
func (s *Series) SupersedeCandidate() (RevisionID, bool, error) {
	i := s.indexOf(StateCandidate)
	if i < 0 {
		return "", false, nil
	}
	id := s.revs[i].ID
	if err := s.transition(id, StateSuperseded); err != nil {
		return "", false, err
	}
	return id, true, nil
}

// Remove deletes a non-ACTIVE revision.
func (s *Series) Remove(id RevisionID) (Revision, error) {
	i := s.index(id)
	if i < 0 {
		return Revision{}, s.notFound(id)
	}
	r := s.revs[i]
	if r.IsActive() {
		return Revision{}, fmt.Errorf("%w: revision %s is ACTIVE and cannot be removed", ErrConflict, id)
	}
	s.delete(id)
	return r, nil
}

// RemoveRevisions deletes every non-ACTIVE revision and returns how many were removed.
func (s *Series) RemoveRevisions() int {
	var ids []RevisionID
	for _, r := range s.revs {
		if !r.IsActive() {
			ids = append(ids, r.ID)
		}
	}
	for _, id := range ids {
		s.delete(id)
	}
	return len(ids)
}

// ForceRemove deletes every revision including the ACTIVE one.
// It is reserved for element deletion.
func (s *Series) ForceRemove() int {
	n := len(s.revs)
	for len(s.revs) > 0 {
		s.delete(s.revs[0].ID)
	}
	return n
}

// SetComment replaces the comment of a revision in any state. History order
// and the modification timestamp are left unchanged.
func (s *Series) SetComment(id RevisionID, comment string) (Revision, error) {
	i := s.index(id)
	if i < 0 {
		return Revision{}, s.notFound(id)
	}
	s.revs[i].Comment = comment
	s.markDirty(id)
	return s.revs[i].clone(), nil
}

// Store records content in the target state, which must be CANDIDATE or ACTIVE.
//
// Content identical to the revision already holding the target state updates
// that revision in place. Storing the content of the live CANDIDATE as ACTIVE
// promotes the candidate. In both cases Created is false. Otherwise the revision
// holding the target state is superseded and a new revision is created.
func (s *Series) Store(target State, in StoreInput) (StoreResult, error) {
	if target != StateActive && target != StateCandidate {
		return StoreResult{}, fmt.Errorf("%w: cannot store a revision as %s", ErrInvalidArgument, target)
	}
	hash := HashContent(in.Content)

	if i := s.indexOf(target); i >= 0 && s.revs[i].ContentHash == hash {
		id := s.revs[i].ID
		s.applyMetadata(i, target, in)
		s.touch(id)
		r, _ := s.Find(id)
		return StoreResult{Revision: r}, nil
	}

	if target == StateActive {
		if i := s.indexOf(StateCandidate); i >= 0 && s.revs[i].ContentHash == hash {
			id := s.revs[i].ID
			s.applyMetadata(i, target, in)
			r, err := s.Activate(id)
			if err != nil {
				return StoreResult{}, err
			}
			return StoreResult{Revision: r}, nil
		}
	}

	if err := s.supersede(target); err != nil {
		return StoreResult{}, err
	}
	r := Revision{
		ID:          NewRevisionID(),
		ElementID:   s.key.ElementID,
		Series:      s.key.Name,
		State:       target,
		ContentType: in.ContentType,
		ContentHash: hash,
		Content:     append([]byte(nil), in.Content...),
		Comment:     in.Comment,
		Creator:     in.Creator,
	}
	s.insert(r)
	stored, _ := s.Find(r.ID)
	return StoreResult{Revision: stored, Created: true}, nil
}

// applyMetadata refreshes an existing revision on a content-identical store.
// Activation confirmations usually carry no comment, so an empty comment keeps
// the existing one unless the target is CANDIDATE. The creator stays the user
// who first stored the content.
func (s *Series) applyMetadata(i int, target State, in StoreInput) {
	r := &s.revs[i]
	if in.Comment != "" || target == StateCandidate {
		r.Comment = in.Comment
	}
	if in.ContentType != "" {
		r.ContentType = in.ContentType
	}
	s.markDirty(r.ID)
}

// Restore copies the content of revision id into a new CANDIDATE. Restoring
// the ACTIVE content is rejected; restoring the live CANDIDATE content updates
// the candidate in place.
func (s *Series) Restore(id RevisionID, comment, creator string) (StoreResult, error) {
	src, ok := s.Find(id)
	if !ok {
		return StoreResult{}, s.notFound(id)
	}
	if active, ok := s.Active(); ok && active.ContentHash == src.ContentHash {
		return StoreResult{}, fmt.Errorf("%w: content of revision %s is already ACTIVE as %s",
			ErrInvalidState, id, active.ID)
	}
	return s.Store(StateCandidate, StoreInput{
		ContentType: src.ContentType,
		Content:     src.Content,
		Comment:     comment,
		Creator:     creator,
	})
}
