package workflows

import (
	"fmt"

	"go.temporal.io/sdk/workflow"
)

type RunState string

const (
	StateAdmitted     RunState = "admitted"
	StateQuotaChecked RunState = "quota_checked"
	StateFetched      RunState = "fetched"
	StateHashed       RunState = "hashed"
	StateDiffed       RunState = "diffed"
	StateEmbedded     RunState = "embedded"
	StatePersisted    RunState = "persisted"
	StateLinked       RunState = "linked"
	StateComplete     RunState = "complete"
	StateFailed       RunState = "failed"
)

var nextState = map[RunState]RunState{
	StateAdmitted:     StateQuotaChecked,
	StateQuotaChecked: StateFetched,
	StateFetched:      StateHashed,
	StateHashed:       StateDiffed,
	StateDiffed:       StateEmbedded,
	StateEmbedded:     StatePersisted,
	StatePersisted:    StateLinked,
	StateLinked:       StateComplete,
}

func (s RunState) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// CanTransition allows only the next step in order, or failure from any
// non-terminal state.
func CanTransition(from, to RunState) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	return nextState[from] == to
}

type runTracker struct {
	status RunStatus
}

func newRunTracker(ctx workflow.Context) *runTracker {
	t := &runTracker{status: RunStatus{State: StateAdmitted, LastSucceeded: StateAdmitted}}
	t.status.Transitions = []Transition{{To: StateAdmitted, At: workflow.Now(ctx)}}
	return t
}

func (t *runTracker) advance(ctx workflow.Context, to RunState, note string) error {
	from := t.status.State
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid run transition %s -> %s", from, to)
	}
	t.status.Transitions = append(t.status.Transitions, Transition{From: from, To: to, At: workflow.Now(ctx), Note: note})
	t.status.State = to
	if to != StateFailed {
		t.status.LastSucceeded = to
	}
	return nil
}

func (t *runTracker) fail(ctx workflow.Context, kind, msg string) {
	t.status.ErrorKind = kind
	t.status.Error = msg
	_ = t.advance(ctx, StateFailed, msg)
}
