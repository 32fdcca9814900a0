package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/agent-forge/agent-forge/internal/bus"
	"github.com/agent-forge/agent-forge/internal/claim"
	"github.com/agent-forge/agent-forge/internal/gateway"
	"github.com/agent-forge/agent-forge/internal/ghclient"
	"github.com/agent-forge/agent-forge/internal/registry"
	"github.com/agent-forge/agent-forge/internal/taskrunner"
	"github.com/agent-forge/agent-forge/models"
	"github.com/google/uuid"
)

// EscalationRequested is published when a task's TerminalStatus is
// Escalated (spec.md §4.8 step 6).
type EscalationRequested struct {
	Work          models.WorkItem
	PriorAttempts int
}

// TaskFailedEvent is published (topic task.failed) whenever a dispatched
// task's TerminalStatus is Failed, for the notify bridge to pick up
// (spec.md §4.10's notification event vocabulary).
type TaskFailedEvent struct {
	Work    models.WorkItem
	AgentID string
	Reason  string
}

// Dispatcher consumes IssueAcquired events and binds work to agents
// (spec.md §4.8).
type Dispatcher struct {
	client   ghclient.Client
	registry *registry.Registry
	gateway  *gateway.Gateway
	runner   taskrunner.Runner
	bus      *bus.Bus

	globalSem chan struct{}
	repoSems  map[string]chan struct{}
	mu        sync.Mutex

	attempts map[string]int // fingerprint -> prior failed attempt count
}

// NewDispatcher constructs a Dispatcher. globalCap bounds total concurrent
// tasks across all repositories (spec.md §4.8 step 7).
func NewDispatcher(client ghclient.Client, reg *registry.Registry, gw *gateway.Gateway, runner taskrunner.Runner, b *bus.Bus, globalCap int) *Dispatcher {
	if globalCap <= 0 {
		globalCap = 16
	}
	return &Dispatcher{
		client:    client,
		registry:  reg,
		gateway:   gw,
		runner:    runner,
		bus:       b,
		globalSem: make(chan struct{}, globalCap),
		repoSems:  make(map[string]chan struct{}),
		attempts:  make(map[string]int),
	}
}

func (d *Dispatcher) repoSem(repoKey string, cap int) chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	sem, ok := d.repoSems[repoKey]
	if !ok {
		if cap <= 0 {
			cap = 4
		}
		sem = make(chan struct{}, cap)
		d.repoSems[repoKey] = sem
	}
	return sem
}

// Run consumes IssueAcquired events from the bus until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, repoMaxConcurrent map[string]int) {
	events, unsubscribe := d.bus.Subscribe([]string{"polling.tick"})
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			acquired, ok := evt.Payload.(IssueAcquired)
			if !ok {
				continue
			}
			repoKey := acquired.Work.Owner + "/" + acquired.Work.Name
			go d.handle(ctx, acquired.Work, d.repoSem(repoKey, repoMaxConcurrent[repoKey]))
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, work models.WorkItem, repoSem chan struct{}) {
	select {
	case d.globalSem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-d.globalSem }()

	select {
	case repoSem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-repoSem }()

	d.dispatchOne(ctx, work)
}

func (d *Dispatcher) dispatchOne(ctx context.Context, work models.WorkItem) {
	fp := work.Fingerprint()
	d.mu.Lock()
	priorAttempts := d.attempts[fp]
	d.mu.Unlock()

	decision, err := d.gateway.Classify(ctx, work, priorAttempts)
	if err != nil {
		slog.Warn("orchestrator: gateway classification failed", "issue", work.Number, "error", err)
		return
	}

	role := decision.AssignedRoleHint
	var exclude []string // PR-review events would exclude the PR author here; polling-sourced work has none.

	agent, ok := d.registry.Pick(role, nil, exclude)
	if !ok {
		_ = claim.Release(ctx, d.client, work, "no-agent-available")
		if _, err := d.client.CreateComment(ctx, work.Owner, work.Name, work.Number, "no agent available, releasing"); err != nil {
			slog.Warn("orchestrator: failed to post no-agent-available comment", "issue", work.Number, "error", err)
		}
		return
	}

	taskID := uuid.NewString()
	d.registry.MarkWorking(agent.ID, taskID)

	progress := make(chan taskrunner.ProgressEvent, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range progress {
			if d.bus != nil {
				d.bus.Publish("task.progress", map[string]any{"task_id": taskID, "agent_id": agent.ID, "message": evt.Message})
			}
		}
	}()

	terminal, execErr := d.runner.Execute(ctx, work, decision, progress)
	close(progress)
	<-done

	d.finish(ctx, work, *agent, taskID, decision, terminal, execErr)
}

func (d *Dispatcher) finish(ctx context.Context, work models.WorkItem, agent models.Agent, taskID string,
	decision models.RoutingDecision, terminal taskrunner.TerminalStatus, execErr error) {

	switch terminal.Status {
	case models.TaskSucceeded:
		if _, err := d.client.CreateComment(ctx, work.Owner, work.Name, work.Number, "task completed successfully"); err != nil {
			slog.Warn("orchestrator: close-out comment failed", "issue", work.Number, "error", err)
		}
		d.registry.MarkIdle(agent.ID)

	case models.TaskFailed:
		reason := terminal.Reason
		if reason == "" && execErr != nil {
			reason = execErr.Error()
		}
		slog.Warn("orchestrator: task failed", "issue", work.Number, "agent", agent.ID, "reason", reason)
		if _, err := d.client.CreateComment(ctx, work.Owner, work.Name, work.Number,
			fmt.Sprintf("task failed: %s", classifyFailureReason(reason))); err != nil {
			slog.Warn("orchestrator: failure comment failed", "issue", work.Number, "error", err)
		}
		d.mu.Lock()
		d.attempts[work.Fingerprint()]++
		d.mu.Unlock()
		d.registry.MarkIdle(agent.ID)
		if d.bus != nil {
			d.bus.Publish("task.failed", TaskFailedEvent{Work: work, AgentID: agent.ID, Reason: classifyFailureReason(reason)})
		}

	case models.TaskCancelled:
		d.registry.MarkIdle(agent.ID)

	case models.TaskEscalated:
		d.mu.Lock()
		d.attempts[work.Fingerprint()]++
		attempts := d.attempts[work.Fingerprint()]
		d.mu.Unlock()
		d.registry.MarkIdle(agent.ID)
		if d.bus != nil {
			d.bus.Publish("gateway.decision", EscalationRequested{Work: work, PriorAttempts: attempts})
		}
		if _, err := d.gateway.Classify(ctx, work, attempts); err != nil {
			slog.Warn("orchestrator: re-classification after escalation failed", "issue", work.Number, "error", err)
		}

	default:
		d.registry.MarkIdle(agent.ID)
	}
}

// classifyFailureReason returns a short failure class rather than a full
// stack trace, per spec.md §7's "not full stack traces" instruction.
func classifyFailureReason(reason string) string {
	if reason == "" {
		return "unknown failure"
	}
	if len(reason) > 200 {
		return reason[:200] + "..."
	}
	return reason
}
