package config

import "time"

// Config is the root service configuration for the orchestrator
// (spec.md §2, §4.11). It is loaded once at startup and is not reloaded
// while the process runs.
type Config struct {
	Environment  string             `mapstructure:"environment"  json:"environment"`
	Audit        AuditConfig        `mapstructure:"audit"        json:"audit"`
	LLM          LLMConfig          `mapstructure:"llm"          json:"llm"`
	GitHub       GitHubConfig       `mapstructure:"github"       json:"github"`
	GitLab       GitLabConfig       `mapstructure:"gitlab"       json:"gitlab"`
	Polling      PollingConfig      `mapstructure:"polling"      json:"polling"`
	RateLimits   RateLimitConfig    `mapstructure:"rate_limits"  json:"rate_limits"`
	Monitor      MonitorConfig      `mapstructure:"monitor"      json:"monitor"`
	ControlPlane ControlPlaneConfig `mapstructure:"controlplane" json:"controlplane"`
	Notify       NotifyConfig       `mapstructure:"notify"       json:"notify"`
	AgentsDir    string             `mapstructure:"agents_dir"   json:"agents_dir"`
	SecretsDir   string             `mapstructure:"secrets_dir"  json:"secrets_dir"`

	// Repositories is the statically bound repository list. Each entry may
	// also be supplied as its own YAML file under RepositoriesDir; both are
	// merged, with RepositoriesDir entries taking precedence on conflict.
	Repositories    []RepositoryEntry `mapstructure:"repositories"    json:"repositories"`
	RepositoriesDir string            `mapstructure:"repositories_dir" json:"repositories_dir"`
}

// RepositoryEntry is the YAML/JSON-serialisable form of models.RepositoryBinding.
type RepositoryEntry struct {
	Owner             string   `mapstructure:"owner"                json:"owner"`
	Name              string   `mapstructure:"name"                 json:"name"`
	PollInterval      string   `mapstructure:"poll_interval"         json:"poll_interval"`
	WatchLabels       []string `mapstructure:"watch_labels"          json:"watch_labels"`
	SkipLabels        []string `mapstructure:"skip_labels"           json:"skip_labels"`
	MaxConcurrentTask int      `mapstructure:"max_concurrent_tasks"  json:"max_concurrent_tasks"`
	ClaimTimeout      string   `mapstructure:"claim_timeout"         json:"claim_timeout"`
	EnvironmentTag    string   `mapstructure:"environment_tag"       json:"environment_tag"`
	CoreFiles         []string `mapstructure:"core_files"            json:"core_files"`
}

// AuditConfig controls the best-effort local mirror of bus events
// (spec.md §4.10). It is never the system of record — GitHub is.
type AuditConfig struct {
	// Driver is "sqlite" (default) or "mysql".
	Driver string `mapstructure:"driver" json:"driver"`
	Path   string `mapstructure:"path"   json:"path"`
	DSN    string `mapstructure:"dsn"    json:"dsn"`
}

// LLMConfig controls the Gateway's optional LLM sanity-check backend
// (spec.md §4.6).
type LLMConfig struct {
	// Provider is "" (disabled, default) or "genai".
	Provider string        `mapstructure:"provider" json:"provider"`
	Model    string        `mapstructure:"model"    json:"model"`
	APIKey   string        `mapstructure:"api_key"  json:"api_key"` // #nosec G101 -- config field, not a literal credential
	Timeout  time.Duration `mapstructure:"timeout"  json:"timeout"`
}

// GitHubConfig holds the default GitHub connection. Per-repository
// credential_ref values in agent YAML resolve through the Secret Store, not
// through this struct — this is only the default host/API base.
type GitHubConfig struct {
	// Host allows GitHub Enterprise (e.g. github.mycompany.com).
	Host string `mapstructure:"host" json:"host"`
	// BotAgentID names the registered agent (AgentsDir) whose credential
	// the Polling Scheduler uses as the claimant identity.
	BotAgentID string `mapstructure:"bot_agent_id" json:"bot_agent_id"`
	// EnableDivergenceScan turns on the PR Lifecycle Watcher's local git
	// clone-based CommitsBehind/LinesAffected measurement (internal/gitscan).
	// Off by default: it costs a clone per evaluated PR.
	EnableDivergenceScan bool `mapstructure:"enable_divergence_scan" json:"enable_divergence_scan"`
}

// GitLabConfig controls the optional merge-request bridging feature on the
// PR Lifecycle Watcher (spec.md §4.9A, a generalisation supplementing the
// distilled spec).
type GitLabConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Host    string `mapstructure:"host"    json:"host"`
	// CredentialRef names the Secret Store entry holding the GitLab access
	// token used by the merge-request bridge.
	CredentialRef string        `mapstructure:"credential_ref" json:"credential_ref"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" json:"sweep_interval"`
}

// PollingConfig controls the Polling Scheduler's default cadence (spec.md
// §4.7); individual RepositoryBinding.PollInterval values override this.
type PollingConfig struct {
	DefaultInterval time.Duration `mapstructure:"default_interval" json:"default_interval"`
	JitterFraction  float64       `mapstructure:"jitter_fraction"  json:"jitter_fraction"`
	// RecoveryCronExpr schedules the PR Lifecycle Watcher's draft-recovery
	// and (when GitLab bridging is on) merge-request sweep passes, in
	// robfig/cron syntax (standard five-field or an "@every" descriptor).
	RecoveryCronExpr string `mapstructure:"recovery_cron" json:"recovery_cron"`
}

// RateLimitConfig configures the Rate Governor's token-bucket windows,
// burst ceiling, and cooldown (spec.md §4.2).
type RateLimitConfig struct {
	PerMinute      int           `mapstructure:"per_minute"      json:"per_minute"`
	PerHour        int           `mapstructure:"per_hour"        json:"per_hour"`
	PerDay         int           `mapstructure:"per_day"         json:"per_day"`
	Burst          int           `mapstructure:"burst"           json:"burst"`
	Cooldown       time.Duration `mapstructure:"cooldown"        json:"cooldown"`
	DuplicateWindow time.Duration `mapstructure:"duplicate_window" json:"duplicate_window"`
}

// MonitorConfig controls the Event Bus's websocket/HTTP control surface
// (spec.md §4.10, §6).
type MonitorConfig struct {
	Addr string `mapstructure:"addr" json:"addr"`
}

// ControlPlaneConfig holds optional, opt-in signed-heartbeat settings
// (spec.md §9's resolved Open Question on external reporting).
type ControlPlaneConfig struct {
	Enabled     bool          `mapstructure:"enabled"      json:"enabled"`
	URL         string        `mapstructure:"url"          json:"url"`
	SigningKey  string        `mapstructure:"signing_key"  json:"signing_key"` // #nosec G101 -- config field, not a literal credential
	Interval    time.Duration `mapstructure:"interval"     json:"interval"`
	DisplayName string        `mapstructure:"display_name" json:"display_name"`
}

// NotifyConfig controls outbound notifications for orchestration events
// (claim lost, PR conflict, task failed, sweep completed).
type NotifyConfig struct {
	Slack    SlackNotifyConfig    `mapstructure:"slack"    json:"slack"`
	Telegram TelegramNotifyConfig `mapstructure:"telegram" json:"telegram"`
	Email    EmailNotifyConfig    `mapstructure:"email"    json:"email"`
	Webhook  WebhookNotifyConfig  `mapstructure:"webhook"  json:"webhook"`
	// Events is the explicit list of event types to notify on. Empty means
	// the dispatcher's built-in defaults (claim.lost, pr.conflict, task.failed).
	Events []string `mapstructure:"events" json:"events"`
	// MinSeverity filters events carrying a Severity field (empty = no filter).
	MinSeverity string `mapstructure:"min_severity" json:"min_severity"`
}

type SlackNotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url" json:"webhook_url"`
}

type TelegramNotifyConfig struct {
	BotToken string `mapstructure:"bot_token" json:"bot_token"`
	ChatID   string `mapstructure:"chat_id"   json:"chat_id"`
}

type EmailNotifyConfig struct {
	SMTPHost string `mapstructure:"smtp_host" json:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port" json:"smtp_port"`
	Username string `mapstructure:"username"  json:"username"`
	Password string `mapstructure:"password"  json:"password"` // #nosec G101 -- config field, not a literal credential
	From     string `mapstructure:"from"      json:"from"`
	To       string `mapstructure:"to"        json:"to"`
	UseTLS   bool   `mapstructure:"use_tls"   json:"use_tls"`
}

type WebhookNotifyConfig struct {
	URL    string `mapstructure:"url"    json:"url"`
	Secret string `mapstructure:"secret" json:"secret"` // #nosec G101 -- config field, not a literal credential
}
