package ghclient

import "context"

// Client is the typed, thin wrapper over the GitHub REST surface used by
// the orchestrator (spec.md §4.3). Both the real GitHub-backed
// implementation and test fakes satisfy this interface.
type Client interface {
	// Account is the authenticated bot account login, used to key the
	// Rate Governor's per-account ledgers.
	Account() string

	ListIssues(ctx context.Context, owner, repo string, labels []string, since *string) (IssueIterator, error)
	// ListIssuesByLabelSet issues one query per label and de-dupes by
	// issue id preserving first-seen order, implementing the OR-over-AND
	// trick spec.md §4.3 requires since GitHub's own label filter is AND.
	ListIssuesByLabelSet(ctx context.Context, owner, repo string, labels []string) ([]Issue, error)
	GetIssue(ctx context.Context, owner, repo string, number int) (Issue, error)
	ListComments(ctx context.Context, owner, repo string, number int) ([]Comment, error)
	CreateComment(ctx context.Context, owner, repo string, number int, body string) (Comment, error)
	CreateIssue(ctx context.Context, owner, repo, title, body string, labels []string) (Issue, error)
	AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error
	RemoveLabels(ctx context.Context, owner, repo string, number int, labels []string) error

	ListPulls(ctx context.Context, owner, repo, state string) ([]PullRequest, error)
	GetPull(ctx context.Context, owner, repo string, number int) (PullRequest, error)
	ConvertPullToDraft(ctx context.Context, owner, repo string, number int) error
	MarkPullReady(ctx context.Context, owner, repo string, number int) error
	MergePull(ctx context.Context, owner, repo string, number int) error

	AuthenticatedUser(ctx context.Context) (string, error)

	// CloneURL returns the HTTPS clone URL for owner/repo, used by the PR
	// Lifecycle Watcher's optional gitscan divergence measurement.
	CloneURL(owner, repo string) string
	// CloneToken returns the credential gitscan should authenticate the
	// clone with; empty for a public/unauthenticated clone.
	CloneToken() string
}
