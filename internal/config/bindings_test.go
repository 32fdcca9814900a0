package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadRepositoryBindingsDirOverridesInlineEntry(t *testing.T) {
	dir := t.TempDir()
	body := `
owner: acme
name: widgets
poll_interval: 5m
watch_labels: [ready-for-agent]
`
	if err := os.WriteFile(filepath.Join(dir, "acme_widgets.yaml"), []byte(body), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg := &Config{
		RepositoriesDir: dir,
		Repositories: []RepositoryEntry{
			{Owner: "acme", Name: "widgets", PollInterval: "1m"},
		},
	}

	bindings, err := LoadRepositoryBindings(cfg)
	if err != nil {
		t.Fatalf("LoadRepositoryBindings: %v", err)
	}
	if len(bindings) != 1 {
		t.Fatalf("expected the directory entry to replace, not duplicate, the inline entry; got %d bindings", len(bindings))
	}
	if bindings[0].PollInterval != 5*time.Minute {
		t.Fatalf("expected the directory entry's poll_interval (5m) to win, got %s", bindings[0].PollInterval)
	}
}

func TestLoadRepositoryBindingsMergesDistinctRepos(t *testing.T) {
	dir := t.TempDir()
	body := `
owner: acme
name: gizmos
`
	if err := os.WriteFile(filepath.Join(dir, "acme_gizmos.yaml"), []byte(body), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg := &Config{
		RepositoriesDir: dir,
		Repositories: []RepositoryEntry{
			{Owner: "acme", Name: "widgets"},
		},
	}

	bindings, err := LoadRepositoryBindings(cfg)
	if err != nil {
		t.Fatalf("LoadRepositoryBindings: %v", err)
	}
	if len(bindings) != 2 {
		t.Fatalf("expected both the inline and directory repos to appear, got %d", len(bindings))
	}
}

func TestLoadRepositoryBindingsDefaults(t *testing.T) {
	cfg := &Config{Repositories: []RepositoryEntry{{Owner: "acme", Name: "widgets"}}}

	bindings, err := LoadRepositoryBindings(cfg)
	if err != nil {
		t.Fatalf("LoadRepositoryBindings: %v", err)
	}
	if len(bindings) != 1 {
		t.Fatalf("expected 1 binding, got %d", len(bindings))
	}
	b := bindings[0]
	if b.PollInterval != 2*time.Minute {
		t.Fatalf("expected default poll_interval 2m, got %s", b.PollInterval)
	}
	if b.ClaimTimeout != 60*time.Minute {
		t.Fatalf("expected default claim_timeout 60m, got %s", b.ClaimTimeout)
	}
	if b.MaxConcurrentTask != 4 {
		t.Fatalf("expected default max_concurrent_tasks 4, got %d", b.MaxConcurrentTask)
	}
}

func TestLoadRepositoryBindingsMissingDirIsNotAnError(t *testing.T) {
	cfg := &Config{
		RepositoriesDir: filepath.Join(t.TempDir(), "nope"),
		Repositories:    []RepositoryEntry{{Owner: "acme", Name: "widgets"}},
	}
	bindings, err := LoadRepositoryBindings(cfg)
	if err != nil {
		t.Fatalf("expected a missing repositories_dir to be tolerated, got: %v", err)
	}
	if len(bindings) != 1 {
		t.Fatalf("expected the inline entry to still load, got %d bindings", len(bindings))
	}
}

func TestLoadRepositoryBindingsRejectsBadDuration(t *testing.T) {
	cfg := &Config{Repositories: []RepositoryEntry{{Owner: "acme", Name: "widgets", PollInterval: "not-a-duration"}}}
	if _, err := LoadRepositoryBindings(cfg); err == nil {
		t.Fatalf("expected an invalid poll_interval to error")
	}
}
