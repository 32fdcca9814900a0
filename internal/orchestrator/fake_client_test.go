package orchestrator

import (
	"context"
	"sync"

	"github.com/agent-forge/agent-forge/internal/ghclient"
)

// fakeClient is an in-memory ghclient.Client double for scenario tests
// (spec.md §8). It stores issues, comments, and pulls keyed by number and
// never talks to the network.
type fakeClient struct {
	mu       sync.Mutex
	account  string
	issues   map[int]ghclient.Issue
	comments map[int][]ghclient.Comment
	pulls    map[int]ghclient.PullRequest
	nextID   int64
}

func newFakeClient(account string) *fakeClient {
	return &fakeClient{
		account:  account,
		issues:   make(map[int]ghclient.Issue),
		comments: make(map[int][]ghclient.Comment),
		pulls:    make(map[int]ghclient.PullRequest),
	}
}

func (f *fakeClient) Account() string { return f.account }

func (f *fakeClient) addIssue(iss ghclient.Issue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues[iss.Number] = iss
}

func (f *fakeClient) addPull(pr ghclient.PullRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls[pr.Number] = pr
}

type fakeIterator struct {
	items []ghclient.Issue
	pos   int
}

func (it *fakeIterator) Next() (ghclient.Issue, bool, error) {
	if it.pos >= len(it.items) {
		return ghclient.Issue{}, false, nil
	}
	item := it.items[it.pos]
	it.pos++
	return item, true, nil
}

func (f *fakeClient) ListIssues(ctx context.Context, owner, repo string, labels []string, since *string) (ghclient.IssueIterator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []ghclient.Issue
	for _, iss := range f.issues {
		if len(labels) == 0 {
			matched = append(matched, iss)
			continue
		}
		for _, l := range labels {
			if iss.HasLabel(l) {
				matched = append(matched, iss)
				break
			}
		}
	}
	return &fakeIterator{items: matched}, nil
}

func (f *fakeClient) ListIssuesByLabelSet(ctx context.Context, owner, repo string, labels []string) ([]ghclient.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[int]struct{})
	var out []ghclient.Issue
	for _, l := range labels {
		for _, iss := range f.issues {
			if _, ok := seen[iss.Number]; ok {
				continue
			}
			if iss.HasLabel(l) {
				seen[iss.Number] = struct{}{}
				out = append(out, iss)
			}
		}
	}
	return out, nil
}

func (f *fakeClient) GetIssue(ctx context.Context, owner, repo string, number int) (ghclient.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	iss, ok := f.issues[number]
	if !ok {
		return ghclient.Issue{}, ghclient.ErrNotFound
	}
	return iss, nil
}

func (f *fakeClient) ListComments(ctx context.Context, owner, repo string, number int) ([]ghclient.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ghclient.Comment, len(f.comments[number]))
	copy(out, f.comments[number])
	return out, nil
}

func (f *fakeClient) CreateComment(ctx context.Context, owner, repo string, number int, body string) (ghclient.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c := ghclient.Comment{ID: f.nextID, Body: body, Author: f.account}
	f.comments[number] = append(f.comments[number], c)
	return c, nil
}

func (f *fakeClient) CreateIssue(ctx context.Context, owner, repo, title, body string, labels []string) (ghclient.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	number := len(f.issues) + 1
	iss := ghclient.Issue{Owner: owner, Repo: repo, Number: number, Title: title, Body: body, Labels: labels, State: "open"}
	f.issues[number] = iss
	return iss, nil
}

func (f *fakeClient) AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	iss, ok := f.issues[number]
	if !ok {
		return ghclient.ErrNotFound
	}
	iss.Labels = append(iss.Labels, labels...)
	f.issues[number] = iss
	return nil
}

func (f *fakeClient) RemoveLabels(ctx context.Context, owner, repo string, number int, labels []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	iss, ok := f.issues[number]
	if !ok {
		return ghclient.ErrNotFound
	}
	remove := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		remove[l] = struct{}{}
	}
	var kept []string
	for _, l := range iss.Labels {
		if _, skip := remove[l]; !skip {
			kept = append(kept, l)
		}
	}
	iss.Labels = kept
	f.issues[number] = iss
	return nil
}

func (f *fakeClient) ListPulls(ctx context.Context, owner, repo, state string) ([]ghclient.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ghclient.PullRequest
	for _, pr := range f.pulls {
		if state == "" || pr.State == state {
			out = append(out, pr)
		}
	}
	return out, nil
}

func (f *fakeClient) GetPull(ctx context.Context, owner, repo string, number int) (ghclient.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pr, ok := f.pulls[number]
	if !ok {
		return ghclient.PullRequest{}, ghclient.ErrNotFound
	}
	return pr, nil
}

func (f *fakeClient) ConvertPullToDraft(ctx context.Context, owner, repo string, number int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pr, ok := f.pulls[number]
	if !ok {
		return ghclient.ErrNotFound
	}
	pr.Draft = true
	f.pulls[number] = pr
	return nil
}

func (f *fakeClient) MarkPullReady(ctx context.Context, owner, repo string, number int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pr, ok := f.pulls[number]
	if !ok {
		return ghclient.ErrNotFound
	}
	pr.Draft = false
	f.pulls[number] = pr
	return nil
}

func (f *fakeClient) MergePull(ctx context.Context, owner, repo string, number int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pr, ok := f.pulls[number]
	if !ok {
		return ghclient.ErrNotFound
	}
	pr.State = "closed"
	f.pulls[number] = pr
	return nil
}

func (f *fakeClient) AuthenticatedUser(ctx context.Context) (string, error) {
	return f.account, nil
}

func (f *fakeClient) CloneURL(owner, repo string) string {
	return "https://example.invalid/" + owner + "/" + repo + ".git"
}

func (f *fakeClient) CloneToken() string { return "" }
