package orchestrator

import (
	"context"
	"strconv"

	"github.com/agent-forge/agent-forge/internal/bus"
	"github.com/agent-forge/agent-forge/internal/notify"
)

// NotifyBridge subscribes to the Bus and translates a subset of published
// events into notify.Event, handing them to a Dispatcher (spec.md §4.10).
// It is purely a translation layer — all filtering (event type, severity)
// happens inside the Dispatcher itself.
type NotifyBridge struct {
	bus  *bus.Bus
	disp *notify.Dispatcher
}

// NewNotifyBridge constructs a NotifyBridge.
func NewNotifyBridge(b *bus.Bus, disp *notify.Dispatcher) *NotifyBridge {
	return &NotifyBridge{bus: b, disp: disp}
}

// Run subscribes to every Bus topic relevant to notifications and forwards
// translated events to the Dispatcher until ctx is cancelled.
func (nb *NotifyBridge) Run(ctx context.Context) {
	if !nb.disp.IsAnyConfigured() {
		return
	}
	events, unsubscribe := nb.bus.Subscribe([]string{"claim.lost", "pr.event", "task.failed", "polling.tick", "gateway.decision"})
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if translated, ok := translate(evt); ok {
				nb.disp.Notify(ctx, translated)
			}
		}
	}
}

// translate maps a bus.Event payload to a notify.Event. Payloads this
// bridge doesn't recognize are dropped (ok=false) rather than forwarded
// as an empty event.
func translate(evt bus.Event) (notify.Event, bool) {
	switch p := evt.Payload.(type) {
	case ClaimLostEvent:
		return notify.Event{
			Type:     "claim.lost",
			Title:    "claim lost",
			Body:     "lost the claim race on issue #" + strconv.Itoa(p.Work.Number) + " to " + p.Winner,
			RepoKey:  p.Work.Owner + "/" + p.Work.Name,
			Severity: "low",
		}, true

	case TaskFailedEvent:
		return notify.Event{
			Type:     "task.failed",
			Title:    "task failed",
			Body:     p.Reason,
			RepoKey:  p.Work.Owner + "/" + p.Work.Name,
			Severity: "medium",
			Metadata: map[string]any{"agent_id": p.AgentID, "issue": p.Work.Number},
		}, true

	case EscalationRequested:
		return notify.Event{
			Type:     "escalation.requested",
			Title:    "task escalated",
			Body:     "issue #" + strconv.Itoa(p.Work.Number) + " escalated after " + strconv.Itoa(p.PriorAttempts) + " prior attempt(s)",
			RepoKey:  p.Work.Owner + "/" + p.Work.Name,
			Severity: "high",
		}, true

	case map[string]any:
		if action, _ := p["action"].(string); action == string(ActionMarkDraft) || action == string(ActionCloseAndReopen) {
			owner, _ := p["owner"].(string)
			repo, _ := p["repo"].(string)
			return notify.Event{
				Type:     "pr.conflict",
				Title:    "PR conflict detected",
				Body:     "conflict action: " + action,
				RepoKey:  owner + "/" + repo,
				Severity: "medium",
				Metadata: p,
			}, true
		}
		if event, _ := p["event"].(string); event == "sweep_completed" {
			repo, _ := p["repo"].(string)
			return notify.Event{
				Type:     "sweep.completed",
				Title:    "sweep completed",
				RepoKey:  repo,
				Severity: "low",
				Metadata: p,
			}, true
		}
		return notify.Event{}, false

	default:
		return notify.Event{}, false
	}
}

