package gateway

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/agent-forge/agent-forge/internal/ghclient"
	"github.com/agent-forge/agent-forge/models"
)

// fakeIssueClient is a minimal ghclient.Client double scoped to exercising
// Classify's label bookkeeping — the surface Gateway actually calls.
type fakeIssueClient struct {
	labels   []string
	comments int
}

func (f *fakeIssueClient) Account() string { return "bot" }
func (f *fakeIssueClient) ListIssues(ctx context.Context, owner, repo string, labels []string, since *string) (ghclient.IssueIterator, error) {
	return nil, nil
}
func (f *fakeIssueClient) ListIssuesByLabelSet(ctx context.Context, owner, repo string, labels []string) ([]ghclient.Issue, error) {
	return nil, nil
}
func (f *fakeIssueClient) GetIssue(ctx context.Context, owner, repo string, number int) (ghclient.Issue, error) {
	return ghclient.Issue{}, nil
}
func (f *fakeIssueClient) ListComments(ctx context.Context, owner, repo string, number int) ([]ghclient.Comment, error) {
	return nil, nil
}
func (f *fakeIssueClient) CreateComment(ctx context.Context, owner, repo string, number int, body string) (ghclient.Comment, error) {
	f.comments++
	return ghclient.Comment{}, nil
}
func (f *fakeIssueClient) CreateIssue(ctx context.Context, owner, repo, title, body string, labels []string) (ghclient.Issue, error) {
	return ghclient.Issue{}, nil
}
func (f *fakeIssueClient) AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error {
	f.labels = append(f.labels, labels...)
	return nil
}
func (f *fakeIssueClient) RemoveLabels(ctx context.Context, owner, repo string, number int, labels []string) error {
	remove := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		remove[l] = struct{}{}
	}
	var kept []string
	found := false
	for _, l := range f.labels {
		if _, skip := remove[l]; skip {
			found = true
			continue
		}
		kept = append(kept, l)
	}
	f.labels = kept
	if !found {
		return ghclient.ErrNotFound
	}
	return nil
}
func (f *fakeIssueClient) ListPulls(ctx context.Context, owner, repo, state string) ([]ghclient.PullRequest, error) {
	return nil, nil
}
func (f *fakeIssueClient) GetPull(ctx context.Context, owner, repo string, number int) (ghclient.PullRequest, error) {
	return ghclient.PullRequest{}, nil
}
func (f *fakeIssueClient) ConvertPullToDraft(ctx context.Context, owner, repo string, number int) error {
	return nil
}
func (f *fakeIssueClient) MarkPullReady(ctx context.Context, owner, repo string, number int) error {
	return nil
}
func (f *fakeIssueClient) MergePull(ctx context.Context, owner, repo string, number int) error {
	return nil
}
func (f *fakeIssueClient) AuthenticatedUser(ctx context.Context) (string, error) { return "bot", nil }
func (f *fakeIssueClient) CloneURL(owner, repo string) string                   { return "" }
func (f *fakeIssueClient) CloneToken() string                                   { return "" }

func (f *fakeIssueClient) classCount() int {
	n := 0
	for _, l := range f.labels {
		if strings.HasPrefix(l, "coordinator-approved-") {
			n++
		}
	}
	return n
}

// escalationWorkItem scores Uncertain at 0 prior attempts and Complex once
// enough prior attempts accrue, mirroring how Dispatcher.finish's
// TaskEscalated branch re-invokes Classify with a higher priorAttempts count.
func escalationWorkItem() models.WorkItem {
	body := strings.Repeat("padding text to push description length past the longest bucket. ", 30) +
		"\n- [ ] one\n- [ ] two\n- [ ] three\n" +
		"touches `pkg1/file1.go` and `pkg2/file2.go`"
	return models.WorkItem{Owner: "ex", Name: "r", Number: 1, Title: "do the thing", Body: body}
}

func TestClassifyStripsStaleClassLabelOnEscalationReclassify(t *testing.T) {
	client := &fakeIssueClient{}
	gw := New(client, nil, time.Second)
	work := escalationWorkItem()

	first, err := gw.Classify(context.Background(), work, 0)
	if err != nil {
		t.Fatalf("first classify: %v", err)
	}
	if first.Class != models.ClassUncertain {
		t.Fatalf("expected the first pass to score Uncertain, got %s (score %d)", first.Class, first.Score)
	}

	// Dispatcher.finish's TaskEscalated branch re-calls Classify with the
	// same (stale) work.Labels snapshot — it never refreshed it with the
	// coordinator-approved-uncertain label CreateComment/AddLabels just
	// applied above.
	second, err := gw.Classify(context.Background(), work, 5)
	if err != nil {
		t.Fatalf("second classify: %v", err)
	}
	if second.Class != models.ClassComplex {
		t.Fatalf("expected escalation to score Complex, got %s (score %d)", second.Class, second.Score)
	}

	if got := client.classCount(); got != 1 {
		t.Fatalf("expected exactly one coordinator-approved-* label after re-classification, got %d (%v)", got, client.labels)
	}
	if !contains(client.labels, "coordinator-approved-complex") {
		t.Fatalf("expected coordinator-approved-complex to be the surviving label, got %v", client.labels)
	}
}

func contains(list []string, want string) bool {
	for _, l := range list {
		if l == want {
			return true
		}
	}
	return false
}
