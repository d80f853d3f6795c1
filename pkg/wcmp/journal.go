package wcmp

import (
	"context"
	"fmt"

	"github.com/newtron-network/wcmpd/pkg/util"
)

// step is one applied forward action and the action that reverts it.
type step struct {
	what string
	undo func(ctx context.Context) error
}

// journal records the applied steps of one protocol run.
type journal struct {
	steps []step
}

func (j *journal) record(what string, undo func(ctx context.Context) error) {
	j.steps = append(j.steps, step{what: what, undo: undo})
}

func (j *journal) len() int {
	return len(j.steps)
}

// unwind runs every inverse, newest first. A failed inverse does not stop
// the unwinding; all failures are returned in the order they happened.
func (j *journal) unwind(ctx context.Context) []error {
	var failures []error
	for i := len(j.steps) - 1; i >= 0; i-- {
		s := j.steps[i]
		if err := s.undo(ctx); err != nil {
			failures = append(failures, fmt.Errorf("reverting %s: %w", s.what, err))
		}
	}
	j.steps = nil
	return failures
}

// rollback unwinds j after cause made the protocol for groupID fail. Every
// failed inverse is raised as a critical event. The returned error always
// unwraps to cause.
func (mgr *Manager) rollback(ctx context.Context, groupID string, j *journal, cause error) error {
	n := j.len()
	failures := j.unwind(ctx)
	if len(failures) == 0 {
		if n > 0 {
			util.WithGroup(groupID).Debugf("reverted %d applied steps", n)
		}
		return cause
	}
	for _, f := range failures {
		mgr.raiseCritical(CriticalEvent{GroupID: groupID, Err: f})
	}
	return &util.CriticalError{
		Resource: fmt.Sprintf("next hop group %s", groupID),
		Failures: failures,
		Cause:    cause,
	}
}
