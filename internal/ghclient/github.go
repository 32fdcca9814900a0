package ghclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agent-forge/agent-forge/internal/rategovernor"
	gogithub "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// GitHubClient implements Client against GitHub (or GitHub Enterprise) over
// go-github, grounded on the teacher's internal/repository/github.go
// (same oauth2.StaticTokenSource + WithEnterpriseURLs construction),
// generalized from repo-listing-for-scanning to the issue/PR/comment
// surface spec.md §4.3 names.
type GitHubClient struct {
	raw      *gogithub.Client
	governor *rategovernor.Governor
	account  string
	host     string
	token    string
}

// NewGitHubClient builds a GitHubClient. token is the bot account's PAT
// (resolved by the caller through the Secret Store); host is empty for
// github.com or a GHE hostname.
func NewGitHubClient(ctx context.Context, token, host string, governor *rategovernor.Governor) (*GitHubClient, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	client := gogithub.NewClient(tc)

	if host != "" && host != "github.com" {
		base := fmt.Sprintf("https://%s/api/v3/", host)
		upload := fmt.Sprintf("https://%s/api/uploads/", host)
		var err error
		client, err = client.WithEnterpriseURLs(base, upload)
		if err != nil {
			return nil, fmt.Errorf("configuring GitHub enterprise URLs: %w", err)
		}
	}

	gc := &GitHubClient{raw: client, governor: governor, host: host, token: token}

	user, _, err := client.Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("authenticating to GitHub: %w", normalizeError(err, 1))
	}
	gc.account = user.GetLogin()
	return gc, nil
}

func (g *GitHubClient) Account() string { return g.account }

// CloneURL returns the HTTPS clone URL for owner/repo against this client's
// configured host (github.com or a GHE hostname).
func (g *GitHubClient) CloneURL(owner, repo string) string {
	host := g.host
	if host == "" {
		host = "github.com"
	}
	return fmt.Sprintf("https://%s/%s/%s.git", host, owner, repo)
}

// CloneToken returns the bot account token used to authenticate the clone
// gitscan performs when measuring PR divergence.
func (g *GitHubClient) CloneToken() string { return g.token }

// acquire consults the Rate Governor before a mutating call. On Deferred it
// returns ErrRateLimited immediately rather than sleeping inline, per
// spec.md §4.3's "MUST NOT block a goroutine the ticker depends on".
func (g *GitHubClient) acquire(class rategovernor.OperationClass, target, body string) error {
	fp := ""
	if body != "" {
		fp = rategovernor.Fingerprint(body)
	}
	bypass := class == rategovernor.ClassAPIRead
	result := g.governor.Acquire(g.account, class, target, fp, bypass)
	if result.Permitted() {
		return nil
	}
	if result.Deferred() {
		return &ErrRateLimited{RetryAfter: result.RetryAfter}
	}
	return result.ToError()
}

func issueTarget(owner, repo string, number int) string {
	return fmt.Sprintf("%s/%s#%d", owner, repo, number)
}

func (g *GitHubClient) ListIssues(ctx context.Context, owner, repo string, labels []string, since *string) (IssueIterator, error) {
	if err := g.acquire(rategovernor.ClassAPIRead, owner+"/"+repo, ""); err != nil {
		return nil, err
	}
	opts := &gogithub.IssueListByRepoOptions{
		Labels:      labels,
		State:       "open",
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}
	if since != nil {
		if t, err := time.Parse(time.RFC3339, *since); err == nil {
			opts.Since = t
		}
	}
	return &issuePager{ctx: ctx, client: g, owner: owner, repo: repo, opts: opts}, nil
}

func (g *GitHubClient) ListIssuesByLabelSet(ctx context.Context, owner, repo string, labels []string) ([]Issue, error) {
	seen := make(map[int]struct{})
	var ordered []Issue
	for _, label := range labels {
		it, err := g.ListIssues(ctx, owner, repo, []string{label}, nil)
		if err != nil {
			return nil, err
		}
		for {
			issue, ok, err := it.Next()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			if _, dup := seen[issue.Number]; dup {
				continue
			}
			seen[issue.Number] = struct{}{}
			ordered = append(ordered, issue)
		}
	}
	return ordered, nil
}

func (g *GitHubClient) GetIssue(ctx context.Context, owner, repo string, number int) (Issue, error) {
	if err := g.acquire(rategovernor.ClassAPIRead, issueTarget(owner, repo, number), ""); err != nil {
		return Issue{}, err
	}
	iss, resp, err := g.raw.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return Issue{}, normalizeErrorWithResp(err, resp, 1)
	}
	return convertIssue(owner, repo, iss), nil
}

func (g *GitHubClient) ListComments(ctx context.Context, owner, repo string, number int) ([]Comment, error) {
	if err := g.acquire(rategovernor.ClassAPIRead, issueTarget(owner, repo, number), ""); err != nil {
		return nil, err
	}
	var out []Comment
	opts := &gogithub.IssueListCommentsOptions{ListOptions: gogithub.ListOptions{PerPage: 100}}
	for {
		comments, resp, err := g.raw.Issues.ListComments(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, normalizeErrorWithResp(err, resp, 1)
		}
		for _, c := range comments {
			out = append(out, Comment{
				ID:        c.GetID(),
				Body:      c.GetBody(),
				Author:    c.GetUser().GetLogin(),
				CreatedAt: c.GetCreatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func (g *GitHubClient) CreateComment(ctx context.Context, owner, repo string, number int, body string) (Comment, error) {
	if err := g.acquire(rategovernor.ClassIssueComment, issueTarget(owner, repo, number), body); err != nil {
		return Comment{}, err
	}
	c, resp, err := g.raw.Issues.CreateComment(ctx, owner, repo, number, &gogithub.IssueComment{Body: &body})
	if err != nil {
		return Comment{}, normalizeErrorWithResp(err, resp, 1)
	}
	return Comment{ID: c.GetID(), Body: c.GetBody(), Author: c.GetUser().GetLogin(), CreatedAt: c.GetCreatedAt().Time}, nil
}

func (g *GitHubClient) CreateIssue(ctx context.Context, owner, repo, title, body string, labels []string) (Issue, error) {
	if err := g.acquire(rategovernor.ClassIssueCreate, owner+"/"+repo, title+body); err != nil {
		return Issue{}, err
	}
	iss, resp, err := g.raw.Issues.Create(ctx, owner, repo, &gogithub.IssueRequest{
		Title:  &title,
		Body:   &body,
		Labels: &labels,
	})
	if err != nil {
		return Issue{}, normalizeErrorWithResp(err, resp, 1)
	}
	return convertIssue(owner, repo, iss), nil
}

func (g *GitHubClient) AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error {
	if err := g.acquire(rategovernor.ClassLabel, issueTarget(owner, repo, number), ""); err != nil {
		return err
	}
	_, resp, err := g.raw.Issues.AddLabelsToIssue(ctx, owner, repo, number, labels)
	if err != nil {
		return normalizeErrorWithResp(err, resp, 1)
	}
	return nil
}

func (g *GitHubClient) RemoveLabels(ctx context.Context, owner, repo string, number int, labels []string) error {
	if err := g.acquire(rategovernor.ClassLabel, issueTarget(owner, repo, number), ""); err != nil {
		return err
	}
	for _, label := range labels {
		resp, err := g.raw.Issues.RemoveLabelForIssue(ctx, owner, repo, number, label)
		if err != nil {
			return normalizeErrorWithResp(err, resp, 1)
		}
	}
	return nil
}

func (g *GitHubClient) ListPulls(ctx context.Context, owner, repo, state string) ([]PullRequest, error) {
	if err := g.acquire(rategovernor.ClassAPIRead, owner+"/"+repo, ""); err != nil {
		return nil, err
	}
	var out []PullRequest
	opts := &gogithub.PullRequestListOptions{State: state, ListOptions: gogithub.ListOptions{PerPage: 100}}
	for {
		pulls, resp, err := g.raw.PullRequests.List(ctx, owner, repo, opts)
		if err != nil {
			return nil, normalizeErrorWithResp(err, resp, 1)
		}
		for _, p := range pulls {
			out = append(out, convertPull(owner, repo, p))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func (g *GitHubClient) GetPull(ctx context.Context, owner, repo string, number int) (PullRequest, error) {
	if err := g.acquire(rategovernor.ClassAPIRead, issueTarget(owner, repo, number), ""); err != nil {
		return PullRequest{}, err
	}
	p, resp, err := g.raw.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return PullRequest{}, normalizeErrorWithResp(err, resp, 1)
	}
	return convertPull(owner, repo, p), nil
}

func (g *GitHubClient) ConvertPullToDraft(ctx context.Context, owner, repo string, number int) error {
	if err := g.acquire(rategovernor.ClassPRCreate, issueTarget(owner, repo, number), ""); err != nil {
		return err
	}
	draft := true
	_, resp, err := g.raw.PullRequests.Edit(ctx, owner, repo, number, &gogithub.PullRequest{Draft: &draft})
	if err != nil {
		return normalizeErrorWithResp(err, resp, 1)
	}
	return nil
}

func (g *GitHubClient) MarkPullReady(ctx context.Context, owner, repo string, number int) error {
	if err := g.acquire(rategovernor.ClassPRCreate, issueTarget(owner, repo, number), ""); err != nil {
		return err
	}
	draft := false
	_, resp, err := g.raw.PullRequests.Edit(ctx, owner, repo, number, &gogithub.PullRequest{Draft: &draft})
	if err != nil {
		return normalizeErrorWithResp(err, resp, 1)
	}
	return nil
}

func (g *GitHubClient) MergePull(ctx context.Context, owner, repo string, number int) error {
	if err := g.acquire(rategovernor.ClassReview, issueTarget(owner, repo, number), ""); err != nil {
		return err
	}
	_, resp, err := g.raw.PullRequests.Merge(ctx, owner, repo, number, "", nil)
	if err != nil {
		return normalizeErrorWithResp(err, resp, 1)
	}
	return nil
}

func (g *GitHubClient) AuthenticatedUser(ctx context.Context) (string, error) {
	if g.account != "" {
		return g.account, nil
	}
	user, resp, err := g.raw.Users.Get(ctx, "")
	if err != nil {
		return "", normalizeErrorWithResp(err, resp, 1)
	}
	return user.GetLogin(), nil
}

func convertIssue(owner, repo string, iss *gogithub.Issue) Issue {
	labels := make([]string, 0, len(iss.Labels))
	for _, l := range iss.Labels {
		labels = append(labels, l.GetName())
	}
	return Issue{
		Owner:     owner,
		Repo:      repo,
		Number:    iss.GetNumber(),
		Title:     iss.GetTitle(),
		Body:      iss.GetBody(),
		Labels:    labels,
		Author:    iss.GetUser().GetLogin(),
		State:     iss.GetState(),
		CreatedAt: iss.GetCreatedAt().Time,
		UpdatedAt: iss.GetUpdatedAt().Time,
	}
}

func convertPull(owner, repo string, p *gogithub.PullRequest) PullRequest {
	labels := make([]string, 0, len(p.Labels))
	for _, l := range p.Labels {
		labels = append(labels, l.GetName())
	}
	var mergeable *bool
	if p.Mergeable != nil {
		v := *p.Mergeable
		mergeable = &v
	}
	return PullRequest{
		Owner:          owner,
		Repo:           repo,
		Number:         p.GetNumber(),
		Title:          p.GetTitle(),
		Body:           p.GetBody(),
		HeadRef:        p.GetHead().GetRef(),
		BaseRef:        p.GetBase().GetRef(),
		Author:         p.GetUser().GetLogin(),
		Draft:          p.GetDraft(),
		State:          p.GetState(),
		Labels:         labels,
		Mergeable:      mergeable,
		MergeableState: p.GetMergeableState(),
		ChangedFiles:   p.GetChangedFiles(),
		CreatedAt:      p.GetCreatedAt().Time,
		AuthorAgentID:  agentIDTrailer(p.GetBody()),
	}
}

// agentIDTrailer recovers the "Agent-ID: <id>" trailer line a pool agent
// leaves in a PR body, mirroring the X-Agent-ID header convention used
// elsewhere to attribute pool work. Returns "" when no such trailer exists.
func agentIDTrailer(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		const prefix = "Agent-ID:"
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return ""
}

// issuePager implements IssueIterator, following resp.NextPage exactly
// like go-github's documented pagination pattern (spec.md §4.3).
type issuePager struct {
	ctx    context.Context
	client *GitHubClient
	owner  string
	repo   string
	opts   *gogithub.IssueListByRepoOptions

	buf  []Issue
	idx  int
	done bool
}

func (p *issuePager) Next() (Issue, bool, error) {
	for p.idx >= len(p.buf) {
		if p.done {
			return Issue{}, false, nil
		}
		issues, resp, err := p.client.raw.Issues.ListByRepo(p.ctx, p.owner, p.repo, p.opts)
		if err != nil {
			return Issue{}, false, normalizeErrorWithResp(err, resp, 1)
		}
		p.buf = p.buf[:0]
		for _, iss := range issues {
			if iss.IsPullRequest() {
				continue
			}
			p.buf = append(p.buf, convertIssue(p.owner, p.repo, iss))
		}
		p.idx = 0
		if resp.NextPage == 0 {
			p.done = true
		} else {
			p.opts.Page = resp.NextPage
		}
		if len(p.buf) == 0 && !p.done {
			continue
		}
		if len(p.buf) == 0 {
			return Issue{}, false, nil
		}
	}
	issue := p.buf[p.idx]
	p.idx++
	return issue, true, nil
}

func normalizeErrorWithResp(err error, resp *gogithub.Response, attempt int) error {
	return normalizeError(err, attempt)
}
