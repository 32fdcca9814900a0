package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/agent-forge/agent-forge/internal/config"
	"github.com/agent-forge/agent-forge/models"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactive setup wizard for agent-forge",
	Long: `Walks you through a first orchestrator configuration:
  - GitHub credentials and the bot agent that claims and comments on issues
  - One repository binding to poll
  - Optional LLM sanity-check backend (Gemini via google/genai)

Re-run 'agent-forge init' any time to add another repository or agent.`,
	RunE: runInit,
}

var (
	wizardHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).MarginBottom(1)
	wizardOKStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	wizardDimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

func runInit(cmd *cobra.Command, args []string) error {
	fmt.Println()
	fmt.Println(wizardHeaderStyle.Render("  agent-forge — autonomous GitHub issue router"))
	fmt.Println(wizardDimStyle.Render("  Sets up the orchestrator's agent registry, secrets, and repository bindings.\n"))

	cfg, err := config.Load(cfgFile)
	if err != nil {
		cfg = &config.Config{}
	}
	if err := config.EnsureDir(); err != nil {
		return fmt.Errorf("creating agent-forge directories: %w", err)
	}
	if err := os.MkdirAll(cfg.AgentsDir, 0o700); err != nil {
		return fmt.Errorf("creating agents dir: %w", err)
	}
	if err := os.MkdirAll(cfg.SecretsDir, 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	if err := os.MkdirAll(cfg.RepositoriesDir, 0o700); err != nil {
		return fmt.Errorf("creating repositories dir: %w", err)
	}

	// --- Step 1: GitHub bot agent ---
	fmt.Println(wizardHeaderStyle.Render("  Step 1/3 · GitHub Bot Agent"))

	var (
		githubToken string
		githubHost  = "github.com"
		botAgentID  = "bot"
		environment = "dev"
	)
	if cfg.GitHub.Host != "" {
		githubHost = cfg.GitHub.Host
	}
	if cfg.GitHub.BotAgentID != "" {
		botAgentID = cfg.GitHub.BotAgentID
	}
	if cfg.Environment != "" {
		environment = cfg.Environment
	}

	ghForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("GitHub Personal Access Token").
				Description("Needs repo read + issue comment write access. Stored under the secrets directory, not in config.json.").
				Placeholder("ghp_...").
				EchoMode(huh.EchoModePassword).
				Value(&githubToken),
			huh.NewInput().
				Title("GitHub host").
				Description("Use 'github.com' for public GitHub or your Enterprise hostname.").
				Value(&githubHost),
			huh.NewInput().
				Title("Bot agent ID").
				Description("The registry entry this orchestrator claims issues and posts comments as.").
				Value(&botAgentID),
			huh.NewSelect[string]().
				Title("Environment").
				Options(
					huh.NewOption("dev", "dev"),
					huh.NewOption("test", "test"),
					huh.NewOption("prod", "prod"),
				).
				Value(&environment),
		),
	)
	if err := ghForm.Run(); err != nil {
		return err
	}

	cfg.GitHub.Host = strings.TrimSpace(githubHost)
	cfg.GitHub.BotAgentID = strings.TrimSpace(botAgentID)
	cfg.Environment = environment

	credentialRef := cfg.GitHub.BotAgentID + ".token"
	if strings.TrimSpace(githubToken) != "" {
		credPath := filepath.Join(cfg.SecretsDir, credentialRef)
		if err := os.WriteFile(credPath, []byte(strings.TrimSpace(githubToken)), 0o600); err != nil {
			return fmt.Errorf("writing credential file: %w", err)
		}
	}

	agent := models.Agent{
		ID:           cfg.GitHub.BotAgentID,
		Role:         models.RoleBot,
		Lifecycle:    models.LifecycleOnDemand,
		Capabilities: []models.Capability{models.CanComment, models.CanCreateRepo},
		Priority:     0,
		CredentialRef: credentialRef,
		Enabled:      true,
	}
	agentData, err := yaml.Marshal(&agent)
	if err != nil {
		return fmt.Errorf("encoding agent declaration: %w", err)
	}
	agentPath := filepath.Join(cfg.AgentsDir, cfg.GitHub.BotAgentID+".yaml")
	if err := os.WriteFile(agentPath, agentData, 0o600); err != nil {
		return fmt.Errorf("writing agent declaration: %w", err)
	}
	fmt.Println(wizardOKStyle.Render("  Agent written to " + agentPath))
	fmt.Println()

	// --- Step 2: Repository binding ---
	fmt.Println(wizardHeaderStyle.Render("  Step 2/3 · Repository Binding"))

	var (
		repoOwner       string
		repoName        string
		watchLabelsStr  = "agent-ready"
		maxConcurrent   = "4"
		claimTimeoutStr = "60m"
	)

	repoForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Repository owner").Placeholder("my-org").Value(&repoOwner),
			huh.NewInput().Title("Repository name").Placeholder("my-service").Value(&repoName),
			huh.NewInput().
				Title("Watch labels (comma-separated)").
				Description("Only issues carrying at least one of these labels are considered actionable.").
				Value(&watchLabelsStr),
			huh.NewInput().Title("Max concurrent tasks").Value(&maxConcurrent),
			huh.NewInput().Title("Claim timeout").Description("Go duration, e.g. 60m").Value(&claimTimeoutStr),
		),
	)
	if err := repoForm.Run(); err != nil {
		return err
	}

	if strings.TrimSpace(repoOwner) != "" && strings.TrimSpace(repoName) != "" {
		maxConcurrentTasks, _ := strconv.Atoi(strings.TrimSpace(maxConcurrent))
		entry := config.RepositoryEntry{
			Owner:             strings.TrimSpace(repoOwner),
			Name:              strings.TrimSpace(repoName),
			WatchLabels:       splitTrimmed(watchLabelsStr),
			MaxConcurrentTask: maxConcurrentTasks,
			ClaimTimeout:      strings.TrimSpace(claimTimeoutStr),
			EnvironmentTag:    environment,
		}
		entryData, err := yaml.Marshal(&entry)
		if err != nil {
			return fmt.Errorf("encoding repository binding: %w", err)
		}
		entryPath := filepath.Join(cfg.RepositoriesDir, entry.Owner+"_"+entry.Name+".yaml")
		if err := os.WriteFile(entryPath, entryData, 0o600); err != nil {
			return fmt.Errorf("writing repository binding: %w", err)
		}
		fmt.Println(wizardOKStyle.Render("  Repository binding written to " + entryPath))
	}
	fmt.Println()

	// --- Step 3: Optional LLM sanity check ---
	fmt.Println(wizardHeaderStyle.Render("  Step 3/3 · LLM Sanity Check (optional)"))
	fmt.Println(wizardDimStyle.Render("  The numeric routing scorer always has the final say; an LLM can only refine borderline cases.\n"))

	var enableLLM bool
	var geminiKey string
	enableForm := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().Title("Enable Gemini-backed sanity check?").Value(&enableLLM),
		),
	)
	if err := enableForm.Run(); err != nil {
		return err
	}
	if enableLLM {
		keyForm := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Gemini API key").EchoMode(huh.EchoModePassword).Value(&geminiKey),
		))
		if err := keyForm.Run(); err != nil {
			return err
		}
		cfg.LLM.Provider = "genai"
		cfg.LLM.APIKey = strings.TrimSpace(geminiKey)
		if cfg.LLM.Model == "" {
			cfg.LLM.Model = "gemini-2.5-flash"
		}
	}

	cfgPath, _ := config.ConfigPath(cfgFile)
	if err := config.Save(cfg, cfgPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Println(wizardHeaderStyle.Render("  Setup complete!"))
	fmt.Printf("  Config saved to: %s\n\n", wizardDimStyle.Render(cfgPath))
	fmt.Println(wizardDimStyle.Render("  Next steps:"))
	fmt.Println(wizardDimStyle.Render("    agent-forge serve   — start the orchestrator"))
	fmt.Println(wizardDimStyle.Render("    agent-forge agents list — inspect the registry once it's running"))
	fmt.Println(wizardDimStyle.Render("    agent-forge monitor — watch the live event stream"))
	fmt.Println()

	return nil
}

func splitTrimmed(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
