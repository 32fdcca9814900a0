package ghclient

import (
	"context"
	"fmt"
	"time"

	"github.com/agent-forge/agent-forge/models"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// GitLabBridge mirrors GitLab merge requests into models.PullRequestRecord
// for the PR Lifecycle Watcher (spec.md §4.9A, an additive generalization
// — spec.md's core is GitHub-shaped, this only lets a GitHub-issue shop
// with a GitLab-hosted mirror repo track merge requests there too).
// Scope is intentionally narrow: read, mark draft, comment.
type GitLabBridge struct {
	client *gitlab.Client
	host   string
	token  string
}

// NewGitLabBridge builds a GitLabBridge, grounded on the teacher's
// internal/repository/gitlab.go NewGitLab constructor.
func NewGitLabBridge(token, host string) (*GitLabBridge, error) {
	opts := []gitlab.ClientOptionFunc{}
	if host != "" && host != "gitlab.com" {
		opts = append(opts, gitlab.WithBaseURL(fmt.Sprintf("https://%s/api/v4/", host)))
	}
	client, err := gitlab.NewClient(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GitLab bridge client: %w", err)
	}
	return &GitLabBridge{client: client, host: host, token: token}, nil
}

// CloneURL returns the HTTPS clone URL for owner/name against this bridge's
// configured GitLab host, for gitscan's divergence measurement.
func (b *GitLabBridge) CloneURL(owner, name string) string {
	host := b.host
	if host == "" {
		host = "gitlab.com"
	}
	return fmt.Sprintf("https://%s/%s/%s.git", host, owner, name)
}

// CloneToken returns the access token gitscan should authenticate with.
func (b *GitLabBridge) CloneToken() string { return b.token }

// ListMergeRequests mirrors open merge requests on project (owner/name)
// into PullRequestRecords so the Watcher's conflict-scoring logic can treat
// them uniformly with GitHub PRs.
func (b *GitLabBridge) ListMergeRequests(ctx context.Context, owner, name string) ([]models.PullRequestRecord, error) {
	nameWithNS := owner + "/" + name
	opened := "opened"
	mrs, _, err := b.client.MergeRequests.ListProjectMergeRequests(nameWithNS, &gitlab.ListProjectMergeRequestsOptions{
		State:       &opened,
		ListOptions: gitlab.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, fmt.Errorf("listing GitLab merge requests for %s: %w", nameWithNS, err)
	}

	out := make([]models.PullRequestRecord, 0, len(mrs))
	for _, mr := range mrs {
		out = append(out, models.PullRequestRecord{
			Owner:        owner,
			Repo:         name,
			Number:       mr.IID,
			HeadRef:      mr.SourceBranch,
			BaseRef:      mr.TargetBranch,
			IsDraft:      mr.Draft,
			HasConflicts: mr.HasConflicts,
			Labels:       mr.Labels,
			LastSeenAt:   timeOrZero(mr.UpdatedAt),
		})
	}
	return out, nil
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// MarkDraft converts a merge request to draft by prefixing its title,
// mirroring GitLab's draft-by-title-prefix convention.
func (b *GitLabBridge) MarkDraft(ctx context.Context, owner, name string, number int) error {
	nameWithNS := owner + "/" + name
	mr, _, err := b.client.MergeRequests.GetMergeRequest(nameWithNS, number, nil)
	if err != nil {
		return fmt.Errorf("reading GitLab MR %s!%d: %w", nameWithNS, number, err)
	}
	if mr.Draft {
		return nil
	}
	title := "Draft: " + mr.Title
	_, _, err = b.client.MergeRequests.UpdateMergeRequest(nameWithNS, number, &gitlab.UpdateMergeRequestOptions{
		Title: &title,
	})
	if err != nil {
		return fmt.Errorf("marking GitLab MR %s!%d draft: %w", nameWithNS, number, err)
	}
	return nil
}

// Comment posts a note onto the merge request.
func (b *GitLabBridge) Comment(ctx context.Context, owner, name string, number int, body string) error {
	nameWithNS := owner + "/" + name
	_, _, err := b.client.Notes.CreateMergeRequestNote(nameWithNS, number, &gitlab.CreateMergeRequestNoteOptions{
		Body: &body,
	})
	if err != nil {
		return fmt.Errorf("commenting on GitLab MR %s!%d: %w", nameWithNS, number, err)
	}
	return nil
}
