package ghclient

import "testing"

func TestGitHubClientCloneURLDefaultsToDotCom(t *testing.T) {
	g := &GitHubClient{token: "ghp_abc123"}
	if got, want := g.CloneURL("acme", "widgets"), "https://github.com/acme/widgets.git"; got != want {
		t.Fatalf("CloneURL: got %s, want %s", got, want)
	}
	if got := g.CloneToken(); got != "ghp_abc123" {
		t.Fatalf("CloneToken: got %s", got)
	}
}

func TestGitHubClientCloneURLUsesEnterpriseHost(t *testing.T) {
	g := &GitHubClient{host: "github.acme.internal"}
	want := "https://github.acme.internal/acme/widgets.git"
	if got := g.CloneURL("acme", "widgets"); got != want {
		t.Fatalf("CloneURL: got %s, want %s", got, want)
	}
}

func TestGitLabBridgeCloneURLDefaultsToDotCom(t *testing.T) {
	b := &GitLabBridge{token: "glpat-xyz"}
	if got, want := b.CloneURL("acme", "widgets"), "https://gitlab.com/acme/widgets.git"; got != want {
		t.Fatalf("CloneURL: got %s, want %s", got, want)
	}
	if got := b.CloneToken(); got != "glpat-xyz" {
		t.Fatalf("CloneToken: got %s", got)
	}
}

func TestGitLabBridgeCloneURLUsesSelfHostedInstance(t *testing.T) {
	b := &GitLabBridge{host: "gitlab.acme.internal"}
	want := "https://gitlab.acme.internal/acme/widgets.git"
	if got := b.CloneURL("acme", "widgets"); got != want {
		t.Fatalf("CloneURL: got %s, want %s", got, want)
	}
}
