package notify

import "context"

// Event represents a notification event from the orchestrator (spec.md
// §4.10's notification event vocabulary).
type Event struct {
	Type     string         // "claim.lost" | "pr.conflict" | "task.failed" | "sweep.completed" | "escalation.requested" | "agent.error"
	Title    string
	Body     string
	URL      string         // optional deep link (e.g. PR URL, issue URL)
	Severity string         // "critical" | "high" | "medium" | "low" | ""
	RepoKey  string         // "owner/repo"
	Metadata map[string]any // extra structured data
}

// Channel is implemented by each notification provider.
type Channel interface {
	Name() string
	IsConfigured() bool
	Send(ctx context.Context, evt Event) error
}
