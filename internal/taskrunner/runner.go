// Package taskrunner defines the opaque "agent task" boundary spec.md §1
// declares out of scope. The Dispatcher only ever calls Execute and
// watches the progress channel and returned TerminalStatus; the actual
// code-generation/test/git-editing work a production Runner performs is
// not implemented here.
package taskrunner

import (
	"context"

	"github.com/agent-forge/agent-forge/models"
)

// TerminalStatus is the final outcome of a task's Execute call.
type TerminalStatus struct {
	Status models.TaskStatus
	Reason string // populated for Failed
}

// ProgressEvent is relayed onto the Event Bus (topic task.progress) while a
// task runs (spec.md §4.8 step 5).
type ProgressEvent struct {
	Message string
	Detail  map[string]any
}

// Runner is the opaque agent task boundary.
type Runner interface {
	Execute(ctx context.Context, work models.WorkItem, decision models.RoutingDecision,
		progress chan<- ProgressEvent) (TerminalStatus, error)
}
