// Package orchestrator hosts the Polling Scheduler (C7), Task Dispatcher
// (C8), PR Lifecycle Watcher (C9), and Supervisor (C11) — the components
// that drive a sweep from "open issue" through "claimed, classified, and
// dispatched work" (spec.md §4.7-§4.11).
//
// Generalizes the teacher's Orchestrator.runSweep fan-out (discovery ->
// scanner workers -> fixer, three goroutine stages joined by channels)
// into per-repository independent tickers so a slow response on one
// repository never delays another.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agent-forge/agent-forge/internal/bus"
	"github.com/agent-forge/agent-forge/internal/claim"
	"github.com/agent-forge/agent-forge/internal/ghclient"
	"github.com/agent-forge/agent-forge/models"
)

// IssueAcquired is published on the Bus (topic polling.tick) when a sweep
// wins a live claim on a WorkItem (spec.md §4.7 step 3).
type IssueAcquired struct {
	Work models.WorkItem
}

// PRReadyAgain is published when the draft-PR recovery pass flips a
// previously blocked PR back to ready-for-review (spec.md §4.7 step 4).
type PRReadyAgain struct {
	Owner, Repo string
	Number      int
}

// ClaimLostEvent is published (topic claim.lost) when this instance's
// sweep finds a WorkItem already claimed by a different agent, for the
// notify bridge (spec.md §4.10's notification event vocabulary).
type ClaimLostEvent struct {
	Work   models.WorkItem
	Winner string
}

// Scheduler runs one independent ticker per RepositoryBinding.
type Scheduler struct {
	client      ghclient.Client
	bus         *bus.Bus
	parallelism int

	mu    sync.Mutex
	repos map[string]*repoLoop
}

type repoLoop struct {
	binding  models.RepositoryBinding
	cancel   context.CancelFunc
	sweeping atomic.Bool
}

// NewScheduler constructs a Scheduler. parallelism caps concurrent sweeps
// across all repositories (spec.md §4.7: default 4).
func NewScheduler(client ghclient.Client, b *bus.Bus, parallelism int) *Scheduler {
	if parallelism <= 0 {
		parallelism = 4
	}
	return &Scheduler{client: client, bus: b, parallelism: parallelism, repos: make(map[string]*repoLoop)}
}

// Start launches an independent ticker goroutine per binding. The semaphore
// channel caps concurrently-running sweeps, mirroring the teacher's
// chan-struct{}-as-semaphore idiom for worker pool sizing.
func (s *Scheduler) Start(ctx context.Context, bindings []models.RepositoryBinding, claimant models.Agent) {
	sem := make(chan struct{}, s.parallelism)

	for _, binding := range bindings {
		repoCtx, cancel := context.WithCancel(ctx)
		loop := &repoLoop{binding: binding, cancel: cancel}

		s.mu.Lock()
		s.repos[binding.FullName()] = loop
		s.mu.Unlock()

		go s.runRepoLoop(repoCtx, loop, sem, claimant)
	}
}

func (s *Scheduler) runRepoLoop(ctx context.Context, loop *repoLoop, sem chan struct{}, claimant models.Agent) {
	interval := loop.binding.PollInterval
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Tick coalescing: if the previous sweep of this repo hasn't
			// finished, skip this tick rather than overlapping it
			// (spec.md §4.7: "if it would not [complete before the next
			// tick], the next tick is coalesced").
			if !loop.sweeping.CompareAndSwap(false, true) {
				continue
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				loop.sweeping.Store(false)
				return
			}
			sweepCtx, sweepCancel := context.WithCancel(ctx)
			s.sweep(sweepCtx, loop.binding, claimant)
			sweepCancel()
			<-sem
			loop.sweeping.Store(false)
		}
	}
}

// sweep implements spec.md §4.7's five steps for one repository tick.
func (s *Scheduler) sweep(ctx context.Context, binding models.RepositoryBinding, claimant models.Agent) {
	issues, err := s.client.ListIssuesByLabelSet(ctx, binding.Owner, binding.Name, binding.WatchLabels)
	if err != nil {
		slog.Warn("orchestrator: sweep failed listing issues", "repo", binding.FullName(), "error", err)
		return
	}

	surviving := make([]ghclient.Issue, 0, len(issues))
	for _, iss := range issues {
		if iss.HasAnyLabel(binding.SkipLabels) {
			continue
		}
		surviving = append(surviving, iss)
	}

	acquired := 0
	for _, iss := range surviving {
		if ctx.Err() != nil {
			break
		}
		work := models.WorkItem{
			Owner: iss.Owner, Name: iss.Repo, Number: iss.Number,
			Title: iss.Title, Body: iss.Body, Labels: iss.Labels,
			Author: iss.Author, CreatedAt: iss.CreatedAt, UpdatedAt: iss.UpdatedAt,
			State: models.IssueOpen, Source: models.SourcePoll,
		}

		timeout := binding.ClaimTimeout
		if timeout <= 0 {
			timeout = 60 * time.Minute
		}
		result, err := claim.TryClaim(ctx, s.client, work, claimant, timeout)
		if err != nil {
			slog.Warn("orchestrator: try_claim failed", "repo", binding.FullName(), "issue", iss.Number, "error", err)
			continue
		}
		switch result.Kind {
		case claim.Owned:
			acquired++
			if s.bus != nil {
				s.bus.Publish("polling.tick", IssueAcquired{Work: work})
			}
		case claim.Taken:
			if result.Winner != claimant.ID {
				_ = claim.Release(ctx, s.client, work, result.Winner)
				if s.bus != nil {
					s.bus.Publish("claim.lost", ClaimLostEvent{Work: work, Winner: result.Winner})
				}
			}
		case claim.AlreadyOwned, claim.CannotClaimNow:
			// nothing to do this tick
		}
	}

	s.draftRecoveryPass(ctx, binding)

	if s.bus != nil {
		s.bus.Publish("polling.tick", map[string]any{
			"event": "sweep_completed",
			"repo":  binding.FullName(),
			"seen":  len(surviving),
			"acquired": acquired,
		})
	}
}

// draftRecoveryPass implements spec.md §4.7 step 4: for each open PR
// authored by a pool account with label has-conflicts or critical-issues,
// re-check mergeability and flip to ready-for-review if recovered.
func (s *Scheduler) draftRecoveryPass(ctx context.Context, binding models.RepositoryBinding) {
	pulls, err := s.client.ListPulls(ctx, binding.Owner, binding.Name, "open")
	if err != nil {
		slog.Warn("orchestrator: draft recovery pass failed listing pulls", "repo", binding.FullName(), "error", err)
		return
	}
	for _, pr := range pulls {
		if !pr.Draft {
			continue
		}
		if !pr.HasLabel("has-conflicts") && !pr.HasLabel("critical-issues") {
			continue
		}
		fresh, err := s.client.GetPull(ctx, binding.Owner, binding.Name, pr.Number)
		if err != nil {
			continue
		}
		if fresh.Mergeable != nil && *fresh.Mergeable && fresh.MergeableState == "clean" {
			if err := s.client.MarkPullReady(ctx, binding.Owner, binding.Name, pr.Number); err != nil {
				slog.Warn("orchestrator: failed to mark PR ready", "repo", binding.FullName(), "pr", pr.Number, "error", err)
				continue
			}
			if s.bus != nil {
				s.bus.Publish("pr.event", PRReadyAgain{Owner: binding.Owner, Repo: binding.Name, Number: pr.Number})
			}
		}
	}
}

// Stop cancels every repository's loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, loop := range s.repos {
		loop.cancel()
	}
}
