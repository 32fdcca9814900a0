// Package gitscan computes local, best-effort divergence signals for the PR
// Lifecycle Watcher's conflict-scoring formula (spec.md §4.9, CommitsBehind
// and LinesAffected) by cloning a repository with go-git rather than trusting
// the forge API's own (often stale or rate-limited) mergeability fields. It
// is optional: a Watcher with no Scanner attached simply leaves both signals
// at zero, same as before this package existed.
package gitscan

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// Divergence is the pair of signals EvaluatePR/EvaluateMergeRequest fold
// into ConflictSignals.CommitsBehind and ConflictSignals.LinesAffected.
type Divergence struct {
	CommitsBehind int
	LinesAffected int
}

// Scanner clones repositories into scratch temp directories to measure how
// far a PR branch has drifted from its base.
type Scanner struct {
	// maxLog bounds how many base commits Measure walks before giving up on
	// finding the branch point, so a history rewrite or an unrelated-history
	// PR can't turn a conflict-score pass into an unbounded git walk.
	maxLog int
}

// NewScanner constructs a Scanner with sane walk bounds.
func NewScanner() *Scanner {
	return &Scanner{maxLog: 500}
}

// Measure clones repoURL, resolves baseRef and headRef, and returns how many
// commits baseRef has gained since it diverged from headRef along with the
// total inserted+deleted line count between the two tips. token authenticates
// over HTTPS when non-empty; either ref may be a branch name or a raw commit
// SHA. The clone is always removed before Measure returns.
func (s *Scanner) Measure(ctx context.Context, repoURL, token, baseRef, headRef string) (Divergence, error) {
	tmpDir, err := os.MkdirTemp("", "agent-forge-gitscan-*")
	if err != nil {
		return Divergence{}, fmt.Errorf("creating scratch directory: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			slog.Warn("gitscan: failed to clean up scratch clone", "path", tmpDir, "error", rmErr)
		}
	}()

	var auth transport.AuthMethod
	if token != "" {
		auth = &githttp.BasicAuth{Username: "agent-forge", Password: token}
	}

	slog.Debug("gitscan: cloning for divergence measurement", "url", repoURL, "base", baseRef, "head", headRef)

	repo, err := gogit.PlainCloneContext(ctx, tmpDir, false, &gogit.CloneOptions{
		URL:  repoURL,
		Auth: auth,
	})
	if err != nil {
		return Divergence{}, fmt.Errorf("cloning %s: %w", repoURL, err)
	}

	fetchRef(ctx, repo, auth, baseRef)
	fetchRef(ctx, repo, auth, headRef)

	baseHash, err := resolveRef(repo, baseRef)
	if err != nil {
		return Divergence{}, fmt.Errorf("resolving base ref %q: %w", baseRef, err)
	}
	headHash, err := resolveRef(repo, headRef)
	if err != nil {
		return Divergence{}, fmt.Errorf("resolving head ref %q: %w", headRef, err)
	}

	behind, err := s.commitsBehind(repo, baseHash, headHash)
	if err != nil {
		return Divergence{}, err
	}

	lines, err := linesAffected(repo, baseHash, headHash)
	if err != nil {
		return Divergence{}, err
	}

	return Divergence{CommitsBehind: behind, LinesAffected: lines}, nil
}

// fetchRef pulls an additional ref into the clone's local refs so PRs from
// forks, or branches the initial clone didn't check out, can still be
// resolved by name. Fetch failures are logged and swallowed: the caller
// falls back to whatever refs the initial clone already carries.
func fetchRef(ctx context.Context, repo *gogit.Repository, auth transport.AuthMethod, ref string) {
	remote, err := repo.Remote("origin")
	if err != nil {
		slog.Debug("gitscan: no origin remote to fetch from", "error", err)
		return
	}
	spec := config.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", ref, ref))
	err = remote.FetchContext(ctx, &gogit.FetchOptions{
		Auth:     auth,
		RefSpecs: []config.RefSpec{spec},
	})
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		slog.Debug("gitscan: ref fetch failed, falling back to already-cloned refs", "ref", ref, "error", err)
	}
}

// resolveRef resolves a branch name (local, or fetched under
// refs/remotes/origin/) or a raw commit SHA to a hash.
func resolveRef(repo *gogit.Repository, ref string) (plumbing.Hash, error) {
	candidates := []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(ref),
		plumbing.NewRemoteReferenceName("origin", ref),
	}
	for _, name := range candidates {
		if r, err := repo.Reference(name, true); err == nil {
			return r.Hash(), nil
		}
	}
	if h, err := repo.ResolveRevision(plumbing.Revision(ref)); err == nil {
		return *h, nil
	}
	return plumbing.ZeroHash, fmt.Errorf("ref %q not found in clone", ref)
}

// commitsBehind walks base's history counting commits until it reaches a
// commit also reachable from head, approximating the merge base under the
// (usual, PR-branch) assumption that history is linear enough for the first
// shared ancestor encountered to be it.
func (s *Scanner) commitsBehind(repo *gogit.Repository, base, head plumbing.Hash) (int, error) {
	if base == head {
		return 0, nil
	}

	headAncestors := map[plumbing.Hash]bool{head: true}
	if headIter, err := repo.Log(&gogit.LogOptions{From: head}); err == nil {
		_ = headIter.ForEach(func(c *object.Commit) error {
			headAncestors[c.Hash] = true
			return nil
		})
		headIter.Close()
	}

	baseIter, err := repo.Log(&gogit.LogOptions{From: base})
	if err != nil {
		return 0, fmt.Errorf("walking base history: %w", err)
	}
	defer baseIter.Close()

	count := 0
	stop := fmt.Errorf("gitscan: walk stopped")
	err = baseIter.ForEach(func(c *object.Commit) error {
		if headAncestors[c.Hash] {
			return stop
		}
		count++
		if count >= s.maxLog {
			return stop
		}
		return nil
	})
	if err != nil && err != stop {
		return 0, fmt.Errorf("walking base history: %w", err)
	}
	return count, nil
}

// linesAffected returns the total inserted+deleted line count between the
// base and head tree snapshots.
func linesAffected(repo *gogit.Repository, base, head plumbing.Hash) (int, error) {
	baseCommit, err := repo.CommitObject(base)
	if err != nil {
		return 0, fmt.Errorf("loading base commit: %w", err)
	}
	headCommit, err := repo.CommitObject(head)
	if err != nil {
		return 0, fmt.Errorf("loading head commit: %w", err)
	}

	patch, err := baseCommit.Patch(headCommit)
	if err != nil {
		return 0, fmt.Errorf("diffing base..head: %w", err)
	}

	total := 0
	for _, stat := range patch.Stats() {
		total += stat.Addition + stat.Deletion
	}
	return total, nil
}
