package configstore

import (
	"errors"
	"fmt"

	"github.com/txn2/mcp-element-config/pkg/element"
)

var (
	// ErrElementNotFound is returned when the referenced element does not exist.
	ErrElementNotFound = element.ErrNotFound

	// ErrNotFound is returned when a series or revision does not exist.
	ErrNotFound = errors.New("configuration not found")

	// ErrInvalidState is returned when the current state of a revision forbids the operation.
	ErrInvalidState = errors.New("invalid configuration state")

	// ErrConflict is returned when an operation would break a series invariant.
	ErrConflict = errors.New("configuration conflict")

	// ErrInvalidArgument is returned for malformed input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConcurrentModification is returned when the atomic unit of a series
	// lost a race at the persistence boundary. The whole operation may be retried.
	ErrConcurrentModification = errors.New("concurrent configuration modification")
)

// TransitionError describes an illegal lifecycle transition.
type TransitionError struct {
	Revision RevisionID
	From     State
	To       State
	Message  string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("cannot transition revision %s from %s to %s", e.Revision, e.From, e.To)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Is makes errors.Is(err, ErrInvalidState) hold for transition errors.
func (*TransitionError) Is(target error) bool {
	return target == ErrInvalidState
}

// IsRetryable reports whether err signals a lost race that the caller may retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
