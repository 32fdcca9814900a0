package ghclient

import "testing"

func TestAgentIDTrailerRecognizesConventionalLine(t *testing.T) {
	body := "Implements the widget endpoint.\n\nAgent-ID: dev-A\n"
	if got := agentIDTrailer(body); got != "dev-A" {
		t.Fatalf("expected trailer dev-A, got %q", got)
	}
}

func TestAgentIDTrailerIgnoresLeadingAndTrailingSpace(t *testing.T) {
	body := "body text\n  Agent-ID:   dev-B  \nmore text"
	if got := agentIDTrailer(body); got != "dev-B" {
		t.Fatalf("expected trailer dev-B, got %q", got)
	}
}

func TestAgentIDTrailerReturnsEmptyWhenAbsent(t *testing.T) {
	if got := agentIDTrailer("just a normal PR description"); got != "" {
		t.Fatalf("expected empty string for a PR with no trailer, got %q", got)
	}
}
