package rategovernor

import (
	"testing"
	"time"
)

func TestAcquireCooldownDominatesWindows(t *testing.T) {
	g := New(map[OperationClass]Policy{
		ClassIssueComment: {PerMinute: 100, PerHour: 1000, PerDay: 10000, Burst: 100, Cooldown: 20 * time.Second},
	})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g.SetClock(func() time.Time { return now })

	r1 := g.Acquire("bot", ClassIssueComment, "owner/repo#1", "", false)
	if !r1.Permitted() {
		t.Fatalf("expected first acquire permitted, got %+v", r1)
	}

	r2 := g.Acquire("bot", ClassIssueComment, "owner/repo#1", "", false)
	if !r2.Deferred() {
		t.Fatalf("expected second acquire deferred by cooldown, got %+v", r2)
	}
	if r2.RetryAfter <= 0 || r2.RetryAfter > 20*time.Second {
		t.Fatalf("unexpected retry-after: %s", r2.RetryAfter)
	}

	now = now.Add(21 * time.Second)
	r3 := g.Acquire("bot", ClassIssueComment, "owner/repo#1", "", false)
	if !r3.Permitted() {
		t.Fatalf("expected acquire after cooldown elapsed permitted, got %+v", r3)
	}
}

func TestAcquireDuplicateSuppression(t *testing.T) {
	g := New(map[OperationClass]Policy{
		ClassIssueComment: {PerMinute: 100, PerHour: 1000, PerDay: 10000, Burst: 100, Cooldown: 0},
	})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g.SetClock(func() time.Time { return now })

	fp := Fingerprint("hello world")
	r1 := g.Acquire("bot", ClassIssueComment, "owner/repo#1", fp, false)
	if !r1.Permitted() {
		t.Fatalf("expected first acquire permitted, got %+v", r1)
	}

	r2 := g.Acquire("bot", ClassIssueComment, "owner/repo#1", fp, false)
	if !r2.Rejected() {
		t.Fatalf("expected duplicate rejected, got %+v", r2)
	}

	now = now.Add(DuplicateWindow + time.Second)
	r3 := g.Acquire("bot", ClassIssueComment, "owner/repo#1", fp, false)
	if !r3.Permitted() {
		t.Fatalf("expected acquire permitted after duplicate window elapsed, got %+v", r3)
	}
}

func TestAcquireBypassStillCounts(t *testing.T) {
	g := New(map[OperationClass]Policy{
		ClassAPIRead: {PerMinute: 1, PerHour: 1, PerDay: 1, Burst: 1, Cooldown: 0},
	})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g.SetClock(func() time.Time { return now })

	r1 := g.Acquire("bot", ClassAPIRead, "owner/repo", "", true)
	if !r1.Permitted() {
		t.Fatalf("expected bypass acquire permitted, got %+v", r1)
	}
	r2 := g.Acquire("bot", ClassAPIRead, "owner/repo", "", true)
	if !r2.Permitted() {
		t.Fatalf("expected bypass acquire to skip throttling entirely, got %+v", r2)
	}
}

func TestAcquireIndependentAccountsDoNotShareLedger(t *testing.T) {
	g := New(map[OperationClass]Policy{
		ClassIssueComment: {PerMinute: 1, PerHour: 100, PerDay: 100, Burst: 1, Cooldown: 0},
	})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g.SetClock(func() time.Time { return now })

	if r := g.Acquire("bot-a", ClassIssueComment, "t", "", false); !r.Permitted() {
		t.Fatalf("bot-a first acquire should be permitted: %+v", r)
	}
	if r := g.Acquire("bot-b", ClassIssueComment, "t", "", false); !r.Permitted() {
		t.Fatalf("bot-b should have its own ledger and be permitted: %+v", r)
	}
}
