package taskrunner

import (
	"context"

	"github.com/agent-forge/agent-forge/models"
)

// Noop immediately reports Succeeded without doing any work. Useful as a
// placeholder Runner when no production agent implementation is wired.
type Noop struct{}

func (Noop) Execute(ctx context.Context, work models.WorkItem, decision models.RoutingDecision,
	progress chan<- ProgressEvent) (TerminalStatus, error) {
	select {
	case progress <- ProgressEvent{Message: "noop runner: nothing to do"}:
	default:
	}
	return TerminalStatus{Status: models.TaskSucceeded}, nil
}
