package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// IssueState mirrors GitHub's open/closed state for an issue.
type IssueState string

const (
	IssueOpen   IssueState = "open"
	IssueClosed IssueState = "closed"
)

// WorkSource distinguishes how a WorkItem entered the pipeline.
type WorkSource string

const (
	SourcePoll               WorkSource = "poll"
	SourcePRWatchRecovery     WorkSource = "pr_watch_recovery"
)

// WorkItem is a canonicalized view of a GitHub issue (spec.md §3).
type WorkItem struct {
	Owner     string
	Name      string
	Number    int
	Title     string
	Body      string
	Labels    []string
	Author    string
	CreatedAt time.Time
	UpdatedAt time.Time
	State     IssueState
	Source    WorkSource
}

// Fingerprint is a stable hash of (owner, name, number), used everywhere as
// the work key.
func (w WorkItem) Fingerprint() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s/%s#%d", w.Owner, w.Name, w.Number)))
	return hex.EncodeToString(sum[:])[:16]
}

// HasLabel reports whether name is present among w.Labels.
func (w WorkItem) HasLabel(name string) bool {
	for _, l := range w.Labels {
		if l == name {
			return true
		}
	}
	return false
}

// HasAnyLabel reports whether any of names is present among w.Labels.
func (w WorkItem) HasAnyLabel(names []string) bool {
	for _, n := range names {
		if w.HasLabel(n) {
			return true
		}
	}
	return false
}
