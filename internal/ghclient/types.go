package ghclient

import "time"

// Issue is the subset of a GitHub issue the orchestrator needs.
type Issue struct {
	Owner     string
	Repo      string
	Number    int
	Title     string
	Body      string
	Labels    []string
	Author    string
	State     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasLabel reports whether name is present among i.Labels.
func (i Issue) HasLabel(name string) bool {
	for _, l := range i.Labels {
		if l == name {
			return true
		}
	}
	return false
}

// HasAnyLabel reports whether any of names is present among i.Labels.
func (i Issue) HasAnyLabel(names []string) bool {
	for _, n := range names {
		if i.HasLabel(n) {
			return true
		}
	}
	return false
}

// Comment is a single issue/PR comment.
type Comment struct {
	ID        int64
	Body      string
	Author    string
	CreatedAt time.Time
}

// PullRequest is the subset of a GitHub pull request the PR Lifecycle
// Watcher needs.
type PullRequest struct {
	Owner          string
	Repo           string
	Number         int
	Title          string
	Body           string
	HeadRef        string
	BaseRef        string
	Author         string
	Draft          bool
	State          string
	Labels         []string
	Mergeable      *bool
	MergeableState string
	ChangedFiles   int
	CommitsBehind  int
	CreatedAt      time.Time

	// AuthorAgentID is the pool agent that opened this PR, recovered from an
	// "Agent-ID: <id>" trailer line in the PR body (the same X-Agent-ID
	// attribution convention the pool's coding tasks use elsewhere). Empty
	// when the PR was opened by something other than a pool agent.
	AuthorAgentID string
}

// HasLabel reports whether name is present among p.Labels.
func (p PullRequest) HasLabel(name string) bool {
	for _, l := range p.Labels {
		if l == name {
			return true
		}
	}
	return false
}

// IssueIterator follows GitHub's Link: rel=next pagination lazily
// (spec.md §4.3). Next returns (issue, true, nil) while items remain,
// (zero, false, nil) at exhaustion, or (zero, false, err) on failure.
type IssueIterator interface {
	Next() (Issue, bool, error)
}
