package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agent-forge/agent-forge/internal/bus"
	"github.com/agent-forge/agent-forge/internal/claim"
	"github.com/agent-forge/agent-forge/internal/gateway"
	"github.com/agent-forge/agent-forge/internal/ghclient"
	"github.com/agent-forge/agent-forge/internal/rategovernor"
	"github.com/agent-forge/agent-forge/internal/registry"
	"github.com/agent-forge/agent-forge/models"
)

const agentYAMLTemplate = `
id: %s
role: %s
lifecycle: always_on
capabilities: [%s]
priority: %d
enabled: true
credential_ref: test
`

func writeAgent(t *testing.T, dir, id, role string, caps string, priority int) {
	t.Helper()
	body := fmt.Sprintf(agentYAMLTemplate, id, role, caps, priority)
	if err := os.WriteFile(filepath.Join(dir, id+".yaml"), []byte(body), 0o600); err != nil {
		t.Fatalf("writing agent fixture: %v", err)
	}
}

func newTestRegistry(t *testing.T, b *bus.Bus, agents map[string]struct {
	role     string
	caps     string
	priority int
}) *registry.Registry {
	t.Helper()
	dir := t.TempDir()
	for id, a := range agents {
		writeAgent(t, dir, id, a.role, a.caps, a.priority)
	}
	reg := registry.New(b)
	if err := reg.LoadDir(dir); err != nil {
		t.Fatalf("loading agents: %v", err)
	}
	reg.StartAlwaysOn(context.Background(), nil)
	return reg
}

// S1 — happy path, simple task.
func TestScenarioS1HappyPathSimpleTask(t *testing.T) {
	b := bus.New()
	client := newFakeClient("bot-account")
	client.addIssue(ghclient.Issue{
		Owner: "ex", Repo: "r", Number: 42, Title: "Add helper.py",
		Body:   "Create `utils/helper.py` with `def foo(): ...`",
		Labels: []string{"agent-ready"}, State: "open", CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})

	reg := newTestRegistry(t, b, map[string]struct {
		role     string
		caps     string
		priority int
	}{
		"dev-A": {role: "developer", caps: "can_commit", priority: 1},
		"rev-X": {role: "reviewer", caps: "can_review", priority: 1},
	})

	gw := gateway.New(client, nil, time.Second)

	work := models.WorkItem{Owner: "ex", Name: "r", Number: 42, Title: "Add helper.py",
		Body: "Create `utils/helper.py` with `def foo(): ...`", Labels: []string{"agent-ready"}, Source: models.SourcePoll}

	claimant := models.Agent{ID: "dev-A"}
	result, err := claim.TryClaim(context.Background(), client, work, claimant, time.Hour)
	if err != nil {
		t.Fatalf("try_claim: %v", err)
	}
	if result.Kind != claim.Owned {
		t.Fatalf("expected Owned, got %v", result.Kind)
	}

	comments, _ := client.ListComments(context.Background(), "ex", "r", 42)
	if len(comments) != 1 {
		t.Fatalf("expected exactly one claim comment, got %d", len(comments))
	}

	decision, err := gw.Classify(context.Background(), work, 0)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if decision.Class != models.ClassSimple {
		t.Fatalf("expected simple classification, got %s", decision.Class)
	}

	iss, _ := client.GetIssue(context.Background(), "ex", "r", 42)
	if !iss.HasLabel("coordinator-approved-simple") {
		t.Fatalf("expected coordinator-approved-simple label, got %v", iss.Labels)
	}

	agent, ok := reg.Pick(models.RoleDeveloper, nil, nil)
	if !ok || agent.ID != "dev-A" {
		t.Fatalf("expected dev-A to be pickable, got %+v ok=%v", agent, ok)
	}
	reg.MarkWorking(agent.ID, "task-1")
	reg.MarkIdle(agent.ID)
	if healthy, state, ok := reg.Health("dev-A"); !ok || !healthy || state != models.StateIdle {
		t.Fatalf("expected dev-A idle and healthy, got healthy=%v state=%v ok=%v", healthy, state, ok)
	}
}

// S2 — two pollers race for the same issue; exactly one retains ownership
// and the loser posts a retraction.
func TestScenarioS2TwoPollersRace(t *testing.T) {
	client := newFakeClient("bot-account")
	work := models.WorkItem{Owner: "ex", Name: "r", Number: 7}
	client.addIssue(ghclient.Issue{Owner: "ex", Repo: "r", Number: 7, State: "open"})

	agentA := models.Agent{ID: "dev-A"}
	agentB := models.Agent{ID: "dev-B"}

	resultA, err := claim.TryClaim(context.Background(), client, work, agentA, time.Hour)
	if err != nil {
		t.Fatalf("claim A: %v", err)
	}
	resultB, err := claim.TryClaim(context.Background(), client, work, agentB, time.Hour)
	if err != nil {
		t.Fatalf("claim B: %v", err)
	}

	if resultA.Kind != claim.Owned {
		t.Fatalf("expected A to own the claim first, got %v", resultA.Kind)
	}
	if resultB.Kind != claim.Taken || resultB.Winner != "dev-A" {
		t.Fatalf("expected B to observe A as the live claim, got %+v", resultB)
	}

	if err := claim.Release(context.Background(), client, work, resultB.Winner); err != nil {
		t.Fatalf("release: %v", err)
	}

	comments, _ := client.ListComments(context.Background(), "ex", "r", 7)
	live := 0
	for _, c := range comments {
		if _, _, ok := claim.ParseClaim(c.Body); ok {
			live++
		}
	}
	if live != 1 {
		t.Fatalf("expected exactly one live claim comment after the race, got %d", live)
	}
}

// S3 — rate-limit defer: a 3/min ceiling permits 3 of 4 rapid attempts,
// the 4th is deferred, and no two permits violate the class cooldown.
func TestScenarioS3RateLimitDefer(t *testing.T) {
	policies := rategovernor.DefaultPolicies()
	policies[rategovernor.ClassIssueComment] = rategovernor.Policy{
		PerMinute: 3, PerHour: 100, PerDay: 1000, Burst: 3, Cooldown: 0,
	}
	gov := rategovernor.New(policies)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	gov.SetClock(func() time.Time { return now })

	permits := 0
	var deferredAt int
	for i := 0; i < 4; i++ {
		res := gov.Acquire("bot-account", rategovernor.ClassIssueComment, "issue", "", false)
		if res.Kind == rategovernor.Permitted {
			permits++
		} else if res.Kind == rategovernor.Deferred {
			deferredAt = i
		}
		now = now.Add(2 * time.Second)
		gov.SetClock(func() time.Time { return now })
	}

	if permits != 3 {
		t.Fatalf("expected 3 permits within the ceiling, got %d", permits)
	}
	if deferredAt != 3 {
		t.Fatalf("expected the 4th attempt to be deferred, deferred index was %d", deferredAt)
	}
}

// S4 — complex classification triggers Coordinator routing rather than
// Developer.
func TestScenarioS4ComplexClassificationRoutesToCoordinator(t *testing.T) {
	client := newFakeClient("bot-account")
	body := "refactor architecture\n" + strings.Repeat("x", 4000) +
		"\n- [ ] one\n- [ ] two\n- [ ] three\n- [ ] four\n- [ ] five\n- [ ] six\n- [ ] seven"
	client.addIssue(ghclient.Issue{Owner: "ex", Repo: "r", Number: 99, Title: "Refactor core",
		Body: body, Labels: []string{"agent-ready", "epic"}, State: "open"})

	gw := gateway.New(client, nil, time.Second)
	work := models.WorkItem{Owner: "ex", Name: "r", Number: 99, Title: "Refactor core",
		Body: body, Labels: []string{"agent-ready", "epic"}, Source: models.SourcePoll}

	decision, err := gw.Classify(context.Background(), work, 0)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if decision.Class != models.ClassComplex {
		t.Fatalf("expected complex classification, got %s (score %d)", decision.Class, decision.Score)
	}
	if decision.AssignedRoleHint != models.RoleCoordinator {
		t.Fatalf("expected coordinator role hint, got %s", decision.AssignedRoleHint)
	}
}

// S5 — draft-PR recovery flips a recovered PR back to ready and queues a
// non-self review.
func TestScenarioS5DraftPRRecovery(t *testing.T) {
	b := bus.New()
	client := newFakeClient("bot-account")
	mergeable := true
	client.addPull(ghclient.PullRequest{
		Owner: "ex", Repo: "r", Number: 11, Author: "dev-A", Draft: true, State: "open",
		Labels: []string{"has-conflicts"}, Mergeable: &mergeable, MergeableState: "clean",
	})

	reg := newTestRegistry(t, b, map[string]struct {
		role     string
		caps     string
		priority int
	}{
		"dev-A": {role: "developer", caps: "can_commit", priority: 1},
		"rev-X": {role: "reviewer", caps: "can_review", priority: 1},
	})

	watch := NewWatcher(client, reg, b)
	watch.DraftRecoveryTick(context.Background(), "ex", "r")

	pr, err := client.GetPull(context.Background(), "ex", "r", 11)
	if err != nil {
		t.Fatalf("get pull: %v", err)
	}
	if pr.Draft {
		t.Fatalf("expected PR to be flipped to ready, still draft")
	}

	reviewer, ok := watch.PickReviewer("dev-A")
	if !ok {
		t.Fatalf("expected a reviewer to be pickable")
	}
	if reviewer.ID == "dev-A" {
		t.Fatalf("self-review guard failed: picked the PR author as reviewer")
	}
	if reviewer.ID != "rev-X" {
		t.Fatalf("expected rev-X to be picked, got %s", reviewer.ID)
	}
}

// S6 — restart safety: re-reading an unexpired claim comment recovers
// ownership without posting a duplicate, and an existing
// coordinator-approved-* label is not reapplied.
func TestScenarioS6RestartSafety(t *testing.T) {
	client := newFakeClient("bot-account")
	client.addIssue(ghclient.Issue{Owner: "ex", Repo: "r", Number: 13, State: "open",
		Labels: []string{"agent-ready", "coordinator-approved-uncertain"}})

	agent := models.Agent{ID: "dev-A"}
	work := models.WorkItem{Owner: "ex", Name: "r", Number: 13, Labels: []string{"agent-ready", "coordinator-approved-uncertain"}}

	first, err := claim.TryClaim(context.Background(), client, work, agent, time.Hour)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if first.Kind != claim.Owned {
		t.Fatalf("expected Owned on first claim, got %v", first.Kind)
	}

	// Simulate a process restart: TryClaim is invoked again for the same
	// (work, agent) before the claim has expired.
	second, err := claim.TryClaim(context.Background(), client, work, agent, time.Hour)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second.Kind != claim.AlreadyOwned {
		t.Fatalf("expected AlreadyOwned on restart re-claim, got %v", second.Kind)
	}

	comments, _ := client.ListComments(context.Background(), "ex", "r", 13)
	if len(comments) != 1 {
		t.Fatalf("expected no duplicate claim comment after restart, got %d comments", len(comments))
	}

	gw := gateway.New(client, nil, time.Second)
	decision, err := gw.Classify(context.Background(), work, 0)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if decision.Class != models.ClassUncertain || decision.Rationale != "(recovered from label)" {
		t.Fatalf("expected idempotent recovery from the existing label, got %+v", decision)
	}

	iss, _ := client.GetIssue(context.Background(), "ex", "r", 13)
	count := 0
	for _, l := range iss.Labels {
		if strings.HasPrefix(l, "coordinator-approved-") {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one coordinator-approved-* label, got %d", count)
	}
}
