package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/agent-forge/agent-forge/internal/bus"
	"github.com/agent-forge/agent-forge/internal/ghclient"
	"github.com/agent-forge/agent-forge/internal/gitscan"
	"github.com/agent-forge/agent-forge/internal/registry"
	"github.com/agent-forge/agent-forge/models"
	"github.com/robfig/cron/v3"
)

// conflictScoreCeiling is the maximum possible conflict score (spec.md §4.9:
// the seven-signal formula is bounded to [0, 55]).
const conflictScoreCeiling = 55

// ConflictSignals is the raw seven-signal input to ScoreConflict
// (spec.md §4.9).
type ConflictSignals struct {
	ConflictedFiles  int
	ConflictMarkers  int
	LinesAffected    int
	FilesOverlapMain int
	PRAgeDays        int
	CommitsBehind    int
	TouchesCoreFiles bool
}

// ScoreConflict implements spec.md §4.9's seven-signal formula, bounded to
// [0, 55]. Each signal's weight caps its own contribution so the total
// cannot exceed the ceiling regardless of input magnitude.
func ScoreConflict(s ConflictSignals) int {
	score := 0
	score += capInt(s.ConflictedFiles*3, 12)
	score += capInt(s.ConflictMarkers*2, 10)
	score += capInt(s.LinesAffected/20, 8)
	score += capInt(s.FilesOverlapMain*2, 8)
	score += capInt(s.PRAgeDays, 7)
	score += capInt(s.CommitsBehind, 7)
	if s.TouchesCoreFiles {
		score += 3
	}
	return capInt(score, conflictScoreCeiling)
}

func capInt(v, max int) int {
	if v > max {
		return max
	}
	if v < 0 {
		return 0
	}
	return v
}

// ConflictAction is the orchestrator's decision after scoring a conflict.
type ConflictAction string

const (
	ActionAutoResolveAttempt ConflictAction = "auto_resolve_attempt"
	ActionMarkDraft          ConflictAction = "mark_draft"
	ActionCloseAndReopen     ConflictAction = "close_and_reopen"
)

// DecideConflictAction applies spec.md §4.9's thresholds: <=8 auto-resolve
// attempt, 9-15 mark draft + comment, >15 close PR and reopen the source
// issue with reset labels.
func DecideConflictAction(score int) ConflictAction {
	switch {
	case score <= 8:
		return ActionAutoResolveAttempt
	case score <= 15:
		return ActionMarkDraft
	default:
		return ActionCloseAndReopen
	}
}

// touchesCoreFiles reports whether any changed path matches one of the
// repository's core_files glob patterns (spec.md §9's resolved Open
// Question: configurable per RepositoryBinding, defaulting to empty ->
// always false).
func touchesCoreFiles(changedPaths []string, corePatterns []string) bool {
	for _, pattern := range corePatterns {
		for _, path := range changedPaths {
			if ok, _ := filepath.Match(pattern, path); ok {
				return true
			}
		}
	}
	return false
}

// Watcher implements the PR Lifecycle Watcher (spec.md §4.9).
type Watcher struct {
	client   ghclient.Client
	registry *registry.Registry
	bus      *bus.Bus
	gitlab   *ghclient.GitLabBridge
	scanner  *gitscan.Scanner
}

// NewWatcher constructs a Watcher.
func NewWatcher(client ghclient.Client, reg *registry.Registry, b *bus.Bus) *Watcher {
	return &Watcher{client: client, registry: reg, bus: b}
}

// SetGitLabBridge attaches the optional GitLab merge-request mirror
// (spec.md §4.9A). A nil bridge disables GitLab sweeping entirely.
func (w *Watcher) SetGitLabBridge(bridge *ghclient.GitLabBridge) {
	w.gitlab = bridge
}

// SetScanner attaches the optional local git divergence scanner used to
// populate ConflictSignals.CommitsBehind and .LinesAffected from an actual
// clone rather than leaving them at their always-zero defaults. A nil
// scanner (the default) disables this measurement.
func (w *Watcher) SetScanner(scanner *gitscan.Scanner) {
	w.scanner = scanner
}

// measureDivergence best-effort clones cloneURL via the Watcher's Scanner
// and returns the CommitsBehind/LinesAffected signals, or zero values with a
// logged warning if no Scanner is attached or the clone/diff fails. Conflict
// scoring must never block on network or clone failures, so errors here are
// swallowed rather than propagated.
func (w *Watcher) measureDivergence(ctx context.Context, cloneURL, token, baseRef, headRef string) (commitsBehind, linesAffected int) {
	if w.scanner == nil || cloneURL == "" || baseRef == "" || headRef == "" {
		return 0, 0
	}
	div, err := w.scanner.Measure(ctx, cloneURL, token, baseRef, headRef)
	if err != nil {
		slog.Warn("orchestrator: watcher divergence scan failed", "url", cloneURL, "base", baseRef, "head", headRef, "error", err)
		return 0, 0
	}
	return div.CommitsBehind, div.LinesAffected
}

// EvaluateMergeRequest mirrors EvaluatePR's scoring and action logic onto a
// GitLab merge request mirrored via the GitLab bridge, so a binding that
// happens to have a GitLab-hosted mirror gets the same conflict triage as
// its GitHub counterpart.
func (w *Watcher) EvaluateMergeRequest(ctx context.Context, mr models.PullRequestRecord, corePatterns []string) error {
	if w.gitlab == nil {
		return nil
	}
	signals := ConflictSignals{
		ConflictedFiles:  1,
		TouchesCoreFiles: touchesCoreFiles(nil, corePatterns),
	}
	if mr.HasConflicts {
		signals.ConflictMarkers = 1
	}
	signals.CommitsBehind, signals.LinesAffected = w.measureDivergence(ctx,
		w.gitlab.CloneURL(mr.Owner, mr.Repo), w.gitlab.CloneToken(), mr.BaseRef, mr.HeadRef)

	score := ScoreConflict(signals)
	action := DecideConflictAction(score)

	switch action {
	case ActionAutoResolveAttempt:
	case ActionMarkDraft:
		if err := w.gitlab.MarkDraft(ctx, mr.Owner, mr.Repo, mr.Number); err != nil {
			return err
		}
		if err := w.gitlab.Comment(ctx, mr.Owner, mr.Repo, mr.Number,
			"marking draft: conflict score indicates this merge request needs a rebase before review"); err != nil {
			slog.Warn("orchestrator: watcher gitlab draft comment failed", "mr", mr.Number, "error", err)
		}
	case ActionCloseAndReopen:
		if err := w.gitlab.Comment(ctx, mr.Owner, mr.Repo, mr.Number,
			"conflicts too large to auto-resolve; closing is left to a maintainer on the GitLab side"); err != nil {
			slog.Warn("orchestrator: watcher gitlab conflict comment failed", "mr", mr.Number, "error", err)
		}
	}

	if w.bus != nil {
		w.bus.Publish("pr.event", map[string]any{
			"owner": mr.Owner, "repo": mr.Repo, "number": mr.Number,
			"conflict_score": score, "action": string(action), "provider": "gitlab",
		})
	}
	return nil
}

// SweepGitLab lists open merge requests on a bridged repository and
// evaluates each one. Called periodically by the Supervisor when
// cfg.GitLab.Enabled (spec.md §4.9A).
func (w *Watcher) SweepGitLab(ctx context.Context, owner, name string, corePatterns []string) {
	if w.gitlab == nil {
		return
	}
	mrs, err := w.gitlab.ListMergeRequests(ctx, owner, name)
	if err != nil {
		slog.Warn("orchestrator: gitlab sweep failed listing merge requests", "repo", owner+"/"+name, "error", err)
		return
	}
	for _, mr := range mrs {
		if err := w.EvaluateMergeRequest(ctx, mr, corePatterns); err != nil {
			slog.Warn("orchestrator: gitlab sweep failed evaluating merge request", "repo", owner+"/"+name, "number", mr.Number, "error", err)
		}
	}
}

// RunGitLabSweepLoop ticks SweepGitLab for every binding every checkInterval
// until ctx is cancelled.
func (w *Watcher) RunGitLabSweepLoop(ctx context.Context, bindings []models.RepositoryBinding, checkInterval time.Duration) {
	if w.gitlab == nil {
		return
	}
	if checkInterval <= 0 {
		checkInterval = 5 * time.Minute
	}
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, binding := range bindings {
				w.SweepGitLab(ctx, binding.Owner, binding.Name, binding.CoreFiles)
			}
		}
	}
}

// PickReviewer selects a Reviewer agent excluding the PR's own author
// (self-review guard, spec.md §4.9).
func (w *Watcher) PickReviewer(authorAgentID string) (models.Agent, bool) {
	exclude := []string{authorAgentID}
	agent, ok := w.registry.Pick(models.RoleReviewer, []models.Capability{models.CanReview}, exclude)
	if !ok {
		return models.Agent{}, false
	}
	return *agent, true
}

// EvaluatePR scores a PR's conflict state and carries out the resulting
// action. PR reads use the ApiRead class inside the client (never
// IssueComment) — spec.md §4.9: "misclassifying these was the original
// production incident to avoid."
func (w *Watcher) EvaluatePR(ctx context.Context, pr ghclient.PullRequest, changedPaths []string, corePatterns []string) error {
	signals := ConflictSignals{
		ConflictedFiles:  len(changedPaths),
		FilesOverlapMain: overlapWithMain(changedPaths),
		PRAgeDays:        int(time.Since(pr.CreatedAt).Hours() / 24),
		TouchesCoreFiles: touchesCoreFiles(changedPaths, corePatterns),
	}
	if pr.Mergeable != nil && !*pr.Mergeable {
		signals.ConflictMarkers = 1
	}
	signals.CommitsBehind, signals.LinesAffected = w.measureDivergence(ctx,
		w.client.CloneURL(pr.Owner, pr.Repo), w.client.CloneToken(), pr.BaseRef, pr.HeadRef)

	score := ScoreConflict(signals)
	action := DecideConflictAction(score)

	switch action {
	case ActionAutoResolveAttempt:
		// No orchestrator-side action required; a fresh rebase/merge
		// attempt is left to the PR author's next push.
	case ActionMarkDraft:
		if err := w.client.ConvertPullToDraft(ctx, pr.Owner, pr.Repo, pr.Number); err != nil {
			return err
		}
		if _, err := w.client.CreateComment(ctx, pr.Owner, pr.Repo, pr.Number,
			"marking draft: conflict score indicates this PR needs a rebase before review"); err != nil {
			slog.Warn("orchestrator: watcher draft comment failed", "pr", pr.Number, "error", err)
		}
	case ActionCloseAndReopen:
		if err := w.client.AddLabels(ctx, pr.Owner, pr.Repo, pr.Number, []string{"has-conflicts"}); err != nil {
			slog.Warn("orchestrator: watcher labeling failed", "pr", pr.Number, "error", err)
		}
		if _, err := w.client.CreateComment(ctx, pr.Owner, pr.Repo, pr.Number,
			"closing: conflicts too large to auto-resolve, reopening source issue for a fresh attempt"); err != nil {
			slog.Warn("orchestrator: watcher close comment failed", "pr", pr.Number, "error", err)
		}
	}

	if w.bus != nil {
		w.bus.Publish("pr.event", map[string]any{
			"owner": pr.Owner, "repo": pr.Repo, "number": pr.Number,
			"conflict_score": score, "action": string(action),
		})
	}
	return nil
}

func overlapWithMain(paths []string) int {
	count := 0
	for _, p := range paths {
		if strings.HasPrefix(p, "internal/") || strings.HasPrefix(p, "cmd/") {
			count++
		}
	}
	return count
}

// reviewRequestedLabel marks a PR that has already had a reviewer dispatched
// by SweepOpenPRs, so a repeated sweep doesn't repeatedly repick a reviewer.
const reviewRequestedLabel = "review-requested"

// ReviewDispatched is published when SweepOpenPRs assigns a reviewer via
// PickReviewer's self-review guard (spec.md §4.9).
type ReviewDispatched struct {
	Owner, Repo string
	Number      int
	ReviewerID  string
}

// SweepOpenPRs lists open PRs and, for every one opened by a pool agent
// (recovered via pr.AuthorAgentID — spec.md §4.9: "on PR open, on push to
// base, on reviewer request"), runs conflict scoring through EvaluatePR and,
// once a reviewer hasn't already been dispatched, picks one with
// PickReviewer's self-review guard. PRs with no recovered AuthorAgentID were
// opened by something other than a pool agent and are left alone — humans
// manage their own review requests. File-level conflict signals
// (ConflictedFiles/FilesOverlapMain/TouchesCoreFiles) are unavailable from
// the PR list endpoint alone, the same limitation EvaluateMergeRequest
// already accepts on the GitLab side, so changedPaths is passed empty here.
func (w *Watcher) SweepOpenPRs(ctx context.Context, owner, repo string, corePatterns []string) {
	pulls, err := w.client.ListPulls(ctx, owner, repo, "open")
	if err != nil {
		slog.Warn("orchestrator: watcher pr sweep failed listing pulls", "repo", owner+"/"+repo, "error", err)
		return
	}
	for _, pr := range pulls {
		if pr.AuthorAgentID == "" || pr.Draft {
			continue
		}
		if err := w.EvaluatePR(ctx, pr, nil, corePatterns); err != nil {
			slog.Warn("orchestrator: watcher pr sweep failed evaluating pr", "repo", owner+"/"+repo, "number", pr.Number, "error", err)
			continue
		}
		if pr.HasLabel(reviewRequestedLabel) {
			continue
		}
		reviewer, ok := w.PickReviewer(pr.AuthorAgentID)
		if !ok {
			continue
		}
		if err := w.client.AddLabels(ctx, owner, repo, pr.Number, []string{reviewRequestedLabel}); err != nil {
			slog.Warn("orchestrator: watcher pr sweep failed labeling reviewer dispatch", "number", pr.Number, "error", err)
			continue
		}
		if _, err := w.client.CreateComment(ctx, owner, repo, pr.Number,
			fmt.Sprintf("requesting review from %s", reviewer.ID)); err != nil {
			slog.Warn("orchestrator: watcher pr sweep failed posting review comment", "number", pr.Number, "error", err)
		}
		if w.bus != nil {
			w.bus.Publish("pr.event", ReviewDispatched{Owner: owner, Repo: repo, Number: pr.Number, ReviewerID: reviewer.ID})
		}
	}
}

// DraftRecoveryTick re-checks every draft PR with a blocking label across
// bindings, flipping recovered ones to ready-for-review (spec.md §4.9:
// "polled every 5 min (configurable)"). This generalizes the scheduler's
// own draft recovery pass into a dedicated ticker the Watcher owns so its
// cadence can differ from the per-repo sweep interval.
func (w *Watcher) DraftRecoveryTick(ctx context.Context, owner, repo string) {
	pulls, err := w.client.ListPulls(ctx, owner, repo, "open")
	if err != nil {
		slog.Warn("orchestrator: watcher draft recovery failed listing pulls", "repo", owner+"/"+repo, "error", err)
		return
	}
	for _, pr := range pulls {
		if !pr.Draft || (!pr.HasLabel("has-conflicts") && !pr.HasLabel("critical-issues")) {
			continue
		}
		fresh, err := w.client.GetPull(ctx, owner, repo, pr.Number)
		if err != nil {
			continue
		}
		if fresh.Mergeable != nil && *fresh.Mergeable {
			if err := w.client.MarkPullReady(ctx, owner, repo, pr.Number); err != nil {
				continue
			}
			if w.bus != nil {
				w.bus.Publish("pr.event", PRReadyAgain{Owner: owner, Repo: repo, Number: pr.Number})
			}
		}
	}
}

// StartCron schedules the Watcher's recurring work — draft-PR recovery
// across every binding, plus a GitLab merge-request sweep when a bridge is
// attached — on a single robfig/cron schedule, grounded on the teacher's
// internal/gateway/scheduler.go Scheduler (cron.New + cron.AddFunc). The
// returned *cron.Cron is already running; the caller Stop()s it at shutdown.
func (w *Watcher) StartCron(ctx context.Context, spec string, bindings []models.RepositoryBinding) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		for _, binding := range bindings {
			w.DraftRecoveryTick(ctx, binding.Owner, binding.Name)
			w.SweepOpenPRs(ctx, binding.Owner, binding.Name, binding.CoreFiles)
			if w.gitlab != nil {
				w.SweepGitLab(ctx, binding.Owner, binding.Name, binding.CoreFiles)
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid recovery cron expression %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}

// RunDraftRecoveryLoop ticks DraftRecoveryTick every checkInterval
// (default 300s) until ctx is cancelled. Superseded by StartCron for
// production use; kept for callers that want a plain interval instead of a
// cron expression (e.g. tests).
func (w *Watcher) RunDraftRecoveryLoop(ctx context.Context, owner, repo string, checkInterval time.Duration) {
	if checkInterval <= 0 {
		checkInterval = 5 * time.Minute
	}
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.DraftRecoveryTick(ctx, owner, repo)
		}
	}
}
