// Package rategovernor protects a cooperating bot account from being
// flagged as abusive, independent of GitHub's own 5000/hour API quota
// (spec.md §4.2). It is consulted by every mutating ghclient call.
package rategovernor

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// OperationClass buckets operations that share a policy.
type OperationClass string

const (
	ClassAPIRead      OperationClass = "ApiRead"
	ClassIssueComment OperationClass = "IssueComment"
	ClassIssueCreate  OperationClass = "IssueCreate"
	ClassPRCreate     OperationClass = "PrCreate"
	ClassReview       OperationClass = "Review"
	ClassLabel        OperationClass = "Label"
)

// Policy is the per-class rate policy (spec.md §4.2 defaults table).
type Policy struct {
	PerMinute int
	PerHour   int
	PerDay    int
	Burst     int
	Cooldown  time.Duration
}

// DefaultPolicies mirrors spec.md §4.2's example defaults.
func DefaultPolicies() map[OperationClass]Policy {
	return map[OperationClass]Policy{
		ClassAPIRead:      {PerMinute: 120, PerHour: 3000, PerDay: 20000, Burst: 30, Cooldown: 0},
		ClassIssueComment: {PerMinute: 3, PerHour: 30, PerDay: 200, Burst: 3, Cooldown: 20 * time.Second},
		ClassIssueCreate:  {PerMinute: 2, PerHour: 10, PerDay: 100, Burst: 2, Cooldown: 60 * time.Second},
		ClassPRCreate:     {PerMinute: 1, PerHour: 5, PerDay: 20, Burst: 1, Cooldown: 60 * time.Second},
		ClassReview:       {PerMinute: 2, PerHour: 10, PerDay: 50, Burst: 2, Cooldown: 30 * time.Second},
		ClassLabel:        {PerMinute: 10, PerHour: 100, PerDay: 500, Burst: 10, Cooldown: 0},
	}
}

// DuplicateWindow is how long a content fingerprint is remembered per
// (account, target) before it may be repeated (spec.md §4.2: 10 minutes).
const DuplicateWindow = 10 * time.Minute

type ledger struct {
	mu sync.Mutex

	minute *rate.Limiter
	hour   *rate.Limiter
	day    *rate.Limiter
	burst  *rate.Limiter

	lastOp time.Time
	cool   time.Duration

	// seen maps (target, fingerprint) -> last-seen time, for duplicate
	// suppression.
	seen map[string]time.Time
}

func newLedger(p Policy) *ledger {
	l := &ledger{
		minute: rate.NewLimiter(rate.Every(time.Minute/time.Duration(max1(p.PerMinute))), p.PerMinute),
		hour:   rate.NewLimiter(rate.Every(time.Hour/time.Duration(max1(p.PerHour))), p.PerHour),
		day:    rate.NewLimiter(rate.Every(24*time.Hour/time.Duration(max1(p.PerDay))), p.PerDay),
		burst:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(max1(p.Burst))), p.Burst),
		cool:   p.Cooldown,
		seen:   make(map[string]time.Time),
	}
	return l
}

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// Governor enforces per-(account,class) rate policy.
type Governor struct {
	mu       sync.Mutex
	policies map[OperationClass]Policy
	ledgers  map[string]*ledger // key: account + "|" + class
	now      func() time.Time
}

// New constructs a Governor. now defaults to time.Now; tests may override it.
func New(policies map[OperationClass]Policy) *Governor {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &Governor{
		policies: policies,
		ledgers:  make(map[string]*ledger),
		now:      time.Now,
	}
}

// SetClock overrides the time source, for deterministic tests.
func (g *Governor) SetClock(now func() time.Time) { g.now = now }

func (g *Governor) ledgerFor(account string, class OperationClass) *ledger {
	key := account + "|" + string(class)
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.ledgers[key]
	if !ok {
		policy, ok := g.policies[class]
		if !ok {
			policy = Policy{PerMinute: 60, PerHour: 600, PerDay: 6000, Burst: 10}
		}
		l = newLedger(policy)
		g.ledgers[key] = l
	}
	return l
}

// Fingerprint hashes body for duplicate-suppression purposes.
func Fingerprint(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])[:16]
}

// Acquire evaluates cooldown -> windows -> burst -> duplicate set, in that
// order (spec.md §4.2: "the first failing gate yields either Deferred or
// Rejected"). target scopes duplicate suppression (e.g. "owner/repo#123").
// bypass marks internal read-only calls as countable-but-not-throttled.
func (g *Governor) Acquire(account string, class OperationClass, target, fingerprint string, bypass bool) Result {
	l := g.ledgerFor(account, class)
	now := g.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if !bypass && l.cool > 0 && !l.lastOp.IsZero() {
		elapsed := now.Sub(l.lastOp)
		if elapsed < l.cool {
			return Result{Kind: Deferred, RetryAfter: l.cool - elapsed}
		}
	}

	if bypass {
		for _, lim := range []*rate.Limiter{l.minute, l.hour, l.day, l.burst} {
			lim.ReserveN(now, 1)
		}
	} else {
		for _, lim := range []*rate.Limiter{l.minute, l.hour, l.day, l.burst} {
			r := lim.ReserveN(now, 1)
			if !r.OK() {
				return Result{Kind: Rejected, Reason: "window exhausted"}
			}
			if d := r.DelayFrom(now); d > 0 {
				r.CancelAt(now)
				return Result{Kind: Deferred, RetryAfter: d}
			}
		}
	}

	if fingerprint != "" {
		key := target + "|" + fingerprint
		if last, ok := l.seen[key]; ok && now.Sub(last) < DuplicateWindow {
			return Result{Kind: Rejected, Reason: "duplicate"}
		}
		l.seen[key] = now
		pruneSeen(l.seen, now)
	}

	l.lastOp = now
	return Result{Kind: Permitted}
}

func pruneSeen(seen map[string]time.Time, now time.Time) {
	if len(seen) < 1024 {
		return
	}
	for k, t := range seen {
		if now.Sub(t) >= DuplicateWindow {
			delete(seen, k)
		}
	}
}
