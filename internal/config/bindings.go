package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agent-forge/agent-forge/models"
	"gopkg.in/yaml.v3"
)

// LoadRepositoryBindings merges cfg.Repositories with any per-repository
// YAML files under cfg.RepositoriesDir into the RepositoryBinding list the
// Scheduler consumes (spec.md §3: "each entry may also be supplied as its
// own YAML file... both are merged, with RepositoriesDir entries taking
// precedence on conflict").
func LoadRepositoryBindings(cfg *Config) ([]models.RepositoryBinding, error) {
	merged := make(map[string]RepositoryEntry, len(cfg.Repositories))
	for _, entry := range cfg.Repositories {
		merged[entry.Owner+"/"+entry.Name] = entry
	}

	if cfg.RepositoriesDir != "" {
		entries, err := os.ReadDir(cfg.RepositoriesDir)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading repositories directory %s: %w", cfg.RepositoriesDir, err)
			}
		} else {
			for _, e := range entries {
				if e.IsDir() || !isYAMLFile(e.Name()) {
					continue
				}
				path := filepath.Join(cfg.RepositoriesDir, e.Name())
				data, err := os.ReadFile(path)
				if err != nil {
					return nil, fmt.Errorf("reading repository file %s: %w", path, err)
				}
				var re RepositoryEntry
				if err := yaml.Unmarshal(data, &re); err != nil {
					return nil, fmt.Errorf("parsing repository file %s: %w", path, err)
				}
				merged[re.Owner+"/"+re.Name] = re
			}
		}
	}

	bindings := make([]models.RepositoryBinding, 0, len(merged))
	for _, entry := range merged {
		binding, err := entry.toBinding()
		if err != nil {
			return nil, fmt.Errorf("repository %s/%s: %w", entry.Owner, entry.Name, err)
		}
		bindings = append(bindings, binding)
	}
	return bindings, nil
}

func (e RepositoryEntry) toBinding() (models.RepositoryBinding, error) {
	poll, err := parseDurationOrDefault(e.PollInterval, 2*time.Minute)
	if err != nil {
		return models.RepositoryBinding{}, fmt.Errorf("poll_interval: %w", err)
	}
	claimTimeout, err := parseDurationOrDefault(e.ClaimTimeout, 60*time.Minute)
	if err != nil {
		return models.RepositoryBinding{}, fmt.Errorf("claim_timeout: %w", err)
	}
	maxConcurrent := e.MaxConcurrentTask
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return models.RepositoryBinding{
		Owner:             e.Owner,
		Name:              e.Name,
		PollInterval:      poll,
		WatchLabels:       e.WatchLabels,
		SkipLabels:        e.SkipLabels,
		MaxConcurrentTask: maxConcurrent,
		ClaimTimeout:      claimTimeout,
		EnvironmentTag:    models.EnvironmentTag(e.EnvironmentTag),
		CoreFiles:         e.CoreFiles,
	}, nil
}

func parseDurationOrDefault(raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	return time.ParseDuration(raw)
}

func isYAMLFile(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
