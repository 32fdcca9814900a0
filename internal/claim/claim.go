// Package claim implements the distributed claim protocol (spec.md §4.5):
// at-most-one worker per WorkItem across a fleet of cooperating agents,
// using only GitHub issue comments as shared state.
package claim

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/agent-forge/agent-forge/internal/ghclient"
	"github.com/agent-forge/agent-forge/internal/rategovernor"
	"github.com/agent-forge/agent-forge/models"
)

// claimPattern matches the canonical claim comment format (spec.md §4.5):
// "🤖 Agent <agent_id> started working on this issue at <RFC3339 UTC timestamp>".
var claimPattern = regexp.MustCompile(`^🤖 Agent (\S+) started working on this issue at (\S+)$`)

// FormatClaim renders the canonical claim comment body.
func FormatClaim(agentID string, ts time.Time) string {
	return fmt.Sprintf("🤖 Agent %s started working on this issue at %s", agentID, ts.UTC().Format(time.RFC3339))
}

// ParseClaim extracts (agentID, timestamp) from a single comment body. Any
// content that doesn't match the canonical pattern is ignored (ok=false).
func ParseClaim(body string) (agentID string, ts time.Time, ok bool) {
	m := claimPattern.FindStringSubmatch(body)
	if m == nil {
		return "", time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, m[2])
	if err != nil {
		return "", time.Time{}, false
	}
	return m[1], parsed, true
}

// FormatRetraction renders the retraction comment posted by a claim race's
// loser.
func FormatRetraction(winner string) string {
	return fmt.Sprintf("releasing — superseded by %s", winner)
}

// ResultKind is the outcome of TryClaim.
type ResultKind int

const (
	Owned ResultKind = iota
	AlreadyOwned
	Taken
	CannotClaimNow
)

// Result is returned by TryClaim.
type Result struct {
	Kind       ResultKind
	ExpiresAt  time.Time
	Winner     string
	RetryAfter time.Duration
}

// findLiveClaim scans comments newest-to-oldest for the first canonical
// claim comment whose timestamp has not expired (spec.md §4.5 step 1-2).
func findLiveClaim(comments []ghclient.Comment, timeout time.Duration, now time.Time) (agentID string, ts time.Time, found bool) {
	for i := len(comments) - 1; i >= 0; i-- {
		aid, cts, ok := ParseClaim(comments[i].Body)
		if !ok {
			continue
		}
		if now.Sub(cts) < timeout {
			return aid, cts, true
		}
		return "", time.Time{}, false
	}
	return "", time.Time{}, false
}

// TryClaim implements spec.md §4.5's two-phase read-write-read protocol.
func TryClaim(ctx context.Context, client ghclient.Client, work models.WorkItem, agent models.Agent, timeout time.Duration) (Result, error) {
	now := time.Now()

	comments, err := client.ListComments(ctx, work.Owner, work.Name, work.Number)
	if err != nil {
		return Result{}, fmt.Errorf("claim: listing comments: %w", err)
	}

	if aid, cts, found := findLiveClaim(comments, timeout, now); found {
		if aid == agent.ID {
			return Result{Kind: AlreadyOwned, ExpiresAt: cts.Add(timeout)}, nil
		}
		return Result{Kind: Taken, Winner: aid, ExpiresAt: cts.Add(timeout)}, nil
	}

	body := FormatClaim(agent.ID, now)
	_, err = client.CreateComment(ctx, work.Owner, work.Name, work.Number, body)
	if err != nil {
		if deferred, ok := asRateLimited(err); ok {
			return Result{Kind: CannotClaimNow, RetryAfter: deferred}, nil
		}
		return Result{}, fmt.Errorf("claim: posting claim comment: %w", err)
	}

	comments, err = client.ListComments(ctx, work.Owner, work.Name, work.Number)
	if err != nil {
		return Result{}, fmt.Errorf("claim: re-listing comments: %w", err)
	}
	aid, cts, found := findLiveClaim(comments, timeout, time.Now())
	if found && aid == agent.ID && cts.Equal(now.UTC().Truncate(time.Second)) {
		return Result{Kind: Owned, ExpiresAt: cts.Add(timeout)}, nil
	}
	if found {
		return Result{Kind: Taken, Winner: aid, ExpiresAt: cts.Add(timeout)}, nil
	}
	return Result{Kind: CannotClaimNow, RetryAfter: time.Second}, nil
}

// Release posts the retraction comment required of a claim race's loser
// (spec.md §4.5: "the loser MUST post a short retraction comment"). The
// GitHub client fingerprints the comment body per issue, so the Rate
// Governor's duplicate suppression rejects a repeat of the same retraction
// on the same issue, which prevents retraction spam.
func Release(ctx context.Context, client ghclient.Client, work models.WorkItem, winner string) error {
	body := FormatRetraction(winner)
	_, err := client.CreateComment(ctx, work.Owner, work.Name, work.Number, body)
	if err != nil {
		if _, ok := asRateLimited(err); ok {
			return nil
		}
		return fmt.Errorf("claim: posting retraction: %w", err)
	}
	return nil
}

func asRateLimited(err error) (time.Duration, bool) {
	var rl *ghclient.ErrRateLimited
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	if d, ok := rategovernor.AsDeferred(err); ok {
		return d.RetryAfter, true
	}
	return 0, false
}
