package taskrunner

import (
	"context"

	"github.com/agent-forge/agent-forge/models"
)

// Scripted is a deterministic test double: it replays a fixed sequence of
// progress events then returns a fixed terminal status, for use in
// property and scenario tests where a real Runner is out of scope.
type Scripted struct {
	Progress []ProgressEvent
	Terminal TerminalStatus
	Err      error
	// RespectCancellation, if set, checks ctx before each progress event and
	// returns TaskCancelled once ctx is done; nothing is slept.
	RespectCancellation bool
}

func (s Scripted) Execute(ctx context.Context, work models.WorkItem, decision models.RoutingDecision,
	progress chan<- ProgressEvent) (TerminalStatus, error) {
	for _, evt := range s.Progress {
		if s.RespectCancellation {
			select {
			case <-ctx.Done():
				return TerminalStatus{Status: models.TaskCancelled}, ctx.Err()
			default:
			}
		}
		select {
		case progress <- evt:
		case <-ctx.Done():
			return TerminalStatus{Status: models.TaskCancelled}, ctx.Err()
		}
	}
	if s.Err != nil {
		return TerminalStatus{}, s.Err
	}
	return s.Terminal, nil
}
