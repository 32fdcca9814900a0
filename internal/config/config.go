package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultConfigDir  = ".agent-forge"
	DefaultConfigFile = "config.json"
	DefaultAuditFile  = ".agent-forge/audit.db"
	DefaultAgentsDir  = ".agent-forge/agents"
	DefaultSecretsDir = ".agent-forge/secrets"
	DefaultReposDir   = ".agent-forge/repositories"
)

// Load reads the service config file (falling back to defaults, without
// writing a file, when it is absent) and returns a populated Config. configPath overrides the default
// location when non-empty.
func Load(configPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("AGENT_FORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(home, DefaultConfigDir))
	}

	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !isNotExist(err) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	expandPaths(&cfg, home)
	return &cfg, nil
}

// Save writes cfg to disk as JSON.
func Save(cfg *Config, configPath string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("cannot determine home directory: %w", err)
	}

	if configPath == "" {
		configPath = filepath.Join(home, DefaultConfigDir, DefaultConfigFile)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("serialising config: %w", err)
	}

	return os.WriteFile(configPath, data, 0o600)
}

// ConfigPath returns the effective config file path.
func ConfigPath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultConfigDir, DefaultConfigFile), nil
}

// EnsureDir creates the service's home directory tree if absent.
func EnsureDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	dirs := []string{
		filepath.Join(home, DefaultConfigDir),
		filepath.Join(home, DefaultAgentsDir),
		filepath.Join(home, DefaultSecretsDir),
		filepath.Join(home, DefaultReposDir),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("environment", "dev")

	v.SetDefault("audit.driver", "sqlite")
	v.SetDefault("audit.path", filepath.Join(home, DefaultAuditFile))
	v.SetDefault("audit.dsn", "")

	v.SetDefault("llm.provider", "")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.timeout", "10s")

	v.SetDefault("github.host", "")
	v.SetDefault("github.bot_agent_id", "")
	v.SetDefault("github.enable_divergence_scan", false)
	v.SetDefault("gitlab.enabled", false)
	v.SetDefault("gitlab.sweep_interval", "5m")

	v.SetDefault("polling.default_interval", "2m")
	v.SetDefault("polling.jitter_fraction", 0.1)
	v.SetDefault("polling.recovery_cron", "@every 5m")

	v.SetDefault("rate_limits.per_minute", 30)
	v.SetDefault("rate_limits.per_hour", 500)
	v.SetDefault("rate_limits.per_day", 5000)
	v.SetDefault("rate_limits.burst", 10)
	v.SetDefault("rate_limits.cooldown", "30s")
	v.SetDefault("rate_limits.duplicate_window", "5m")

	v.SetDefault("monitor.addr", "127.0.0.1:7080")

	v.SetDefault("agents_dir", filepath.Join(home, DefaultAgentsDir))
	v.SetDefault("secrets_dir", filepath.Join(home, DefaultSecretsDir))
	v.SetDefault("repositories_dir", filepath.Join(home, DefaultReposDir))
}

func expandPaths(cfg *Config, home string) {
	cfg.Audit.Path = expandHome(cfg.Audit.Path, home)
	cfg.AgentsDir = expandHome(cfg.AgentsDir, home)
	cfg.SecretsDir = expandHome(cfg.SecretsDir, home)
	cfg.RepositoriesDir = expandHome(cfg.RepositoriesDir, home)
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file")
}
