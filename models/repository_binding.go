package models

import "time"

// EnvironmentTag selects deployment-wide defaults (spec.md §4.11).
type EnvironmentTag string

const (
	EnvDev  EnvironmentTag = "dev"
	EnvTest EnvironmentTag = "test"
	EnvProd EnvironmentTag = "prod"
)

// RepositoryBinding is a statically configured repository plus its
// scheduling parameters (spec.md §3).
type RepositoryBinding struct {
	Owner             string        `yaml:"owner"               json:"owner"`
	Name              string        `yaml:"name"                json:"name"`
	PollInterval      time.Duration `yaml:"poll_interval"       json:"poll_interval"`
	WatchLabels       []string      `yaml:"watch_labels"        json:"watch_labels"`
	SkipLabels        []string      `yaml:"skip_labels"         json:"skip_labels"`
	MaxConcurrentTask int           `yaml:"max_concurrent_tasks" json:"max_concurrent_tasks"`
	ClaimTimeout      time.Duration `yaml:"claim_timeout"       json:"claim_timeout"`
	EnvironmentTag    EnvironmentTag `yaml:"environment_tag"    json:"environment_tag"`
	// CoreFiles is an optional glob list used by the PR Lifecycle Watcher's
	// conflict-score signal #7 ("whether core files are touched"). Left
	// empty by default per spec.md §9's Open Question — no default is
	// prescribed, so an empty list simply contributes zero to that signal.
	CoreFiles []string `yaml:"core_files" json:"core_files"`
}

// FullName returns "owner/name".
func (r RepositoryBinding) FullName() string {
	return r.Owner + "/" + r.Name
}
