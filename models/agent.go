package models

import "time"

// Role is the kind of work an Agent is configured to perform.
type Role string

const (
	RoleCoordinator Role = "coordinator"
	RoleDeveloper   Role = "developer"
	RoleBot         Role = "bot"
	RoleReviewer    Role = "reviewer"
	RoleTester      Role = "tester"
	RoleDocumenter  Role = "documenter"
	RoleResearcher  Role = "researcher"
)

// Lifecycle controls whether an Agent is kept running or started on demand.
type Lifecycle string

const (
	LifecycleAlwaysOn Lifecycle = "always_on"
	LifecycleOnDemand Lifecycle = "on_demand"
)

// Capability is a permission an Agent holds over GitHub-shaped actions.
type Capability string

const (
	CanCommit       Capability = "can_commit"
	CanReview       Capability = "can_review"
	CanApprove      Capability = "can_approve"
	CanMerge        Capability = "can_merge"
	CanCreateRepo   Capability = "can_create_repo"
	CanComment      Capability = "can_comment"
	CanExecuteShell Capability = "can_execute_shell"
)

// RuntimeState is the in-memory lifecycle phase of one Agent.
type RuntimeState string

const (
	StateRegistered RuntimeState = "registered"
	StateStarting   RuntimeState = "starting"
	StateIdle       RuntimeState = "idle"
	StateWorking    RuntimeState = "working"
	StateError      RuntimeState = "error"
	StateStopping   RuntimeState = "stopping"
	StateStopped    RuntimeState = "stopped"
)

// LLMBinding is the opaque handle to an inference provider + model name.
// The orchestrator never inspects provider identity beyond timing out a call.
type LLMBinding struct {
	Provider    string  `yaml:"provider"    json:"provider"`
	Model       string  `yaml:"model"       json:"model"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"  json:"max_tokens"`
}

// Agent is a declarative identity and runtime slot (spec.md §3).
type Agent struct {
	ID             string       `yaml:"id"              json:"id"`
	Role           Role         `yaml:"role"             json:"role"`
	Lifecycle      Lifecycle    `yaml:"lifecycle"        json:"lifecycle"`
	Capabilities   []Capability `yaml:"capabilities"     json:"capabilities"`
	Priority       int          `yaml:"priority"         json:"priority"`
	LLM            LLMBinding   `yaml:"llm"              json:"llm"`
	CredentialRef  string       `yaml:"credential_ref"   json:"credential_ref"`
	Enabled        bool         `yaml:"enabled"          json:"enabled"`
	IdleKeepalives int          `yaml:"idle_keepalive_s" json:"idle_keepalive_s"`

	// RuntimeState fields below are held in memory only; rebuilt on startup
	// from config. They are never serialised back to the YAML declaration.
	RuntimeState   RuntimeState `yaml:"-" json:"runtime_state"`
	WorkingTaskID  string       `yaml:"-" json:"working_task_id,omitempty"`
	ErrorReason    string       `yaml:"-" json:"error_reason,omitempty"`
	LastHealthyAt  time.Time    `yaml:"-" json:"last_healthy_at,omitempty"`
	RestartBackoff int          `yaml:"-" json:"restart_backoff,omitempty"` // index into the 5s/15s/60s schedule
}

// HasCapability reports whether the agent holds cap.
func (a *Agent) HasCapability(cap Capability) bool {
	for _, c := range a.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// HasAllCapabilities reports whether the agent holds every capability in caps.
func (a *Agent) HasAllCapabilities(caps []Capability) bool {
	for _, c := range caps {
		if !a.HasCapability(c) {
			return false
		}
	}
	return true
}

// restartBackoffSchedule is the recovery delay ladder from spec.md §4.4.
var restartBackoffSchedule = []time.Duration{5 * time.Second, 15 * time.Second, 60 * time.Second}

// NextRestartDelay returns how long to wait before the next restart attempt,
// and whether a restart should still be attempted automatically (false once
// the ladder is exhausted — manual intervention required).
func (a *Agent) NextRestartDelay() (time.Duration, bool) {
	if a.RestartBackoff >= len(restartBackoffSchedule) {
		return 0, false
	}
	return restartBackoffSchedule[a.RestartBackoff], true
}
