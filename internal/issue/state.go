// Package issue implements the issue lifecycle state machine described
// in spec §3: a single validator that every transition must go
// through, plus the cumulative-counter bookkeeping that rides along
// with it.
package issue

import (
	"fmt"

	"github.com/vx-daniel/barf/pkg/types"
)

// InvalidTransitionError is returned when a transition is rejected by
// the state machine. It is fatal to the current operation and is never
// retried automatically (spec §7).
type InvalidTransitionError struct {
	From, To types.IssueState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("issue: invalid transition %s -> %s", e.From, e.To)
}

// Validate checks a proposed transition against the lifecycle state
// machine. Every IssueStore.Transition implementation must call this
// before writing new state; direct writes that bypass it are forbidden
// (spec §3 invariant).
func Validate(from, to types.IssueState) error {
	if !types.IsValidTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// Apply returns the issue's next state after a validated transition.
// It never mutates the caller's copy; callers persist the result
// themselves through IssueStore.
func Apply(current types.Issue, to types.IssueState) (types.Issue, error) {
	if err := Validate(current.State, to); err != nil {
		return current, err
	}
	next := current
	next.State = to
	return next, nil
}
