package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agent-forge/agent-forge/internal/bus"
	"github.com/agent-forge/agent-forge/models"
)

func writeAgentYAML(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "agent.yaml"), []byte(body), 0o600); err != nil {
		t.Fatalf("writing agent fixture: %v", err)
	}
}

func TestLoadDirSkipsDisabledAgents(t *testing.T) {
	dir := t.TempDir()
	writeAgentYAML(t, dir, `
id: disabled-one
role: developer
lifecycle: on_demand
capabilities: [can_commit]
priority: 1
enabled: false
credential_ref: test
`)

	reg := New(nil)
	if err := reg.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if _, ok := reg.Get("disabled-one"); ok {
		t.Fatalf("disabled agent should not be registered")
	}
}

func TestLoadDirMissingDirIsNotAnError(t *testing.T) {
	reg := New(nil)
	if err := reg.LoadDir(filepath.Join(t.TempDir(), "does-not-exist")); err != nil {
		t.Fatalf("LoadDir on a missing directory should be a no-op, got: %v", err)
	}
}

func newTwoDeveloperRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	writeFixture := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("writing fixture %s: %v", name, err)
		}
	}
	writeFixture("low-priority.yaml", `
id: dev-low
role: developer
lifecycle: always_on
capabilities: [can_commit]
priority: 5
enabled: true
credential_ref: test
`)
	writeFixture("high-priority.yaml", `
id: dev-high
role: developer
lifecycle: always_on
capabilities: [can_commit]
priority: 1
enabled: true
credential_ref: test
`)

	reg := New(nil)
	if err := reg.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	reg.StartAlwaysOn(context.Background(), nil)
	return reg
}

// TestPickPrefersLowerPriority exercises spec.md §4.4's selection step that
// breaks ties on priority before the most-recently-healthy tiebreak.
func TestPickPrefersLowerPriority(t *testing.T) {
	reg := newTwoDeveloperRegistry(t)

	agent, ok := reg.Pick(models.RoleDeveloper, []models.Capability{models.CanCommit}, nil)
	if !ok {
		t.Fatalf("expected a candidate")
	}
	if agent.ID != "dev-high" {
		t.Fatalf("expected the lower-priority-number agent dev-high, got %s", agent.ID)
	}
}

func TestPickExcludesListedIDs(t *testing.T) {
	reg := newTwoDeveloperRegistry(t)

	agent, ok := reg.Pick(models.RoleDeveloper, []models.Capability{models.CanCommit}, []string{"dev-high"})
	if !ok {
		t.Fatalf("expected a fallback candidate")
	}
	if agent.ID != "dev-low" {
		t.Fatalf("expected dev-low once dev-high is excluded, got %s", agent.ID)
	}
}

func TestPickRequiresAllPreferredCapabilities(t *testing.T) {
	reg := newTwoDeveloperRegistry(t)

	if _, ok := reg.Pick(models.RoleDeveloper, []models.Capability{models.CanApprove}, nil); ok {
		t.Fatalf("expected no candidate: neither test agent holds can_approve")
	}
}

func TestPickActivatesOnDemandAgentSynchronously(t *testing.T) {
	dir := t.TempDir()
	writeAgentYAML(t, dir, `
id: reviewer-ondemand
role: reviewer
lifecycle: on_demand
capabilities: [can_review]
priority: 1
enabled: true
credential_ref: test
`)
	b := bus.New()
	reg := New(b)
	if err := reg.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	// on_demand agents are never started by StartAlwaysOn, so Pick must be
	// able to choose one straight out of StateRegistered.
	agent, ok := reg.Pick(models.RoleReviewer, []models.Capability{models.CanReview}, nil)
	if !ok {
		t.Fatalf("expected the on_demand agent to be pickable while Registered")
	}
	if agent.RuntimeState != models.StateStarting {
		t.Fatalf("expected Pick to transition the chosen on_demand agent to Starting, got %s", agent.RuntimeState)
	}
}

func TestMarkWorkingIdleErrorTransitions(t *testing.T) {
	dir := t.TempDir()
	writeAgentYAML(t, dir, `
id: worker
role: developer
lifecycle: always_on
capabilities: [can_commit]
priority: 1
enabled: true
credential_ref: test
`)
	reg := New(nil)
	if err := reg.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	reg.StartAlwaysOn(context.Background(), nil)

	reg.MarkWorking("worker", "task-1")
	if _, state, _ := reg.Health("worker"); state != models.StateWorking {
		t.Fatalf("expected Working, got %s", state)
	}

	reg.MarkIdle("worker")
	healthy, state, _ := reg.Health("worker")
	if !healthy || state != models.StateIdle {
		t.Fatalf("expected healthy Idle, got healthy=%v state=%s", healthy, state)
	}

	reg.MarkError("worker", "boom")
	if _, state, _ := reg.Health("worker"); state != models.StateError {
		t.Fatalf("expected Error, got %s", state)
	}
}

// TestRestartBackoffLadder exercises spec.md §4.4's 5s/15s/60s-then-manual
// recovery schedule without sleeping for real durations.
func TestRestartBackoffLadder(t *testing.T) {
	dir := t.TempDir()
	writeAgentYAML(t, dir, `
id: flaky
role: developer
lifecycle: always_on
capabilities: [can_commit]
priority: 1
enabled: true
credential_ref: test
`)
	reg := New(nil)
	if err := reg.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	reg.MarkError("flaky", "first failure")

	agent, _ := reg.Get("flaky")
	if agent.RestartBackoff != 0 {
		t.Fatalf("expected fresh agent to start at backoff index 0, got %d", agent.RestartBackoff)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	failingHealthCheck := func(ctx context.Context, a *models.Agent) error {
		return context.DeadlineExceeded
	}
	if err := reg.Restart(ctx, "flaky", failingHealthCheck); err == nil {
		t.Fatalf("expected the failing health check to keep the agent in Error")
	}
	agent, _ = reg.Get("flaky")
	if agent.RuntimeState != models.StateError {
		t.Fatalf("expected Error after a failed restart attempt, got %s", agent.RuntimeState)
	}
	if agent.RestartBackoff != 1 {
		t.Fatalf("expected backoff to advance to index 1, got %d", agent.RestartBackoff)
	}
}

func TestRestartRejectsNonErrorAgent(t *testing.T) {
	dir := t.TempDir()
	writeAgentYAML(t, dir, `
id: idle-agent
role: developer
lifecycle: always_on
capabilities: [can_commit]
priority: 1
enabled: true
credential_ref: test
`)
	reg := New(nil)
	if err := reg.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	reg.StartAlwaysOn(context.Background(), nil)

	if err := reg.Restart(context.Background(), "idle-agent", nil); err == nil {
		t.Fatalf("expected Restart to refuse a non-Error agent")
	}
}

func TestAllAlwaysOnIdle(t *testing.T) {
	dir := t.TempDir()
	writeAgentYAML(t, dir, `
id: always-on
role: developer
lifecycle: always_on
capabilities: [can_commit]
priority: 1
enabled: true
credential_ref: test
`)
	reg := New(nil)
	if err := reg.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if reg.AllAlwaysOnIdle() {
		t.Fatalf("expected false before StartAlwaysOn runs")
	}
	reg.StartAlwaysOn(context.Background(), nil)
	if !reg.AllAlwaysOnIdle() {
		t.Fatalf("expected true once StartAlwaysOn completes with no health check")
	}
}
