package models

import "time"

// Claim is the in-memory record of "this process is working on this
// WorkItem" (spec.md §3). It is backed by a claim comment on the GitHub
// issue, which is the authoritative source of truth across restarts.
type Claim struct {
	WorkFingerprint string
	ClaimingAgentID string
	ClaimedAt       time.Time
	ExpiresAt       time.Time
}

// Expired reports whether the claim is dead as of now.
func (c Claim) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
