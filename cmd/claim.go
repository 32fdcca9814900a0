package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agent-forge/agent-forge/internal/claim"
	"github.com/agent-forge/agent-forge/internal/config"
	"github.com/agent-forge/agent-forge/internal/ghclient"
	"github.com/agent-forge/agent-forge/internal/rategovernor"
	"github.com/agent-forge/agent-forge/internal/registry"
	"github.com/agent-forge/agent-forge/internal/secretstore"
	"github.com/agent-forge/agent-forge/models"
	"github.com/spf13/cobra"
)

var claimTimeout time.Duration

var claimCmd = &cobra.Command{
	Use:   "claim <owner/repo> <issue-number>",
	Short: "Inspect claim state for a single issue",
	Long:  `Fetches comments on the given issue and reports whether it is currently claimed, by which agent, and when the claim expires, without taking or releasing the claim itself.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runClaim,
}

func init() {
	claimCmd.Flags().DurationVar(&claimTimeout, "timeout", 60*time.Minute,
		"claim timeout to evaluate expiry against (should match the repository binding's claim_timeout)")
}

func runClaim(cmd *cobra.Command, args []string) error {
	ownerRepo := args[0]
	parts := strings.SplitN(ownerRepo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("repo must be owner/name, got %q", ownerRepo)
	}
	owner, repo := parts[0], parts[1]

	number, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("issue number must be an integer: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client, err := dialGitHubAsClaimant(ctx, cfg)
	if err != nil {
		return err
	}

	comments, err := client.ListComments(ctx, owner, repo, number)
	if err != nil {
		return fmt.Errorf("listing comments on %s/%s#%d: %w", owner, repo, number, err)
	}

	fmt.Printf("%s/%s#%d — %d comment(s)\n", owner, repo, number, len(comments))

	now := time.Now()
	found := false
	for i := len(comments) - 1; i >= 0; i-- {
		agentID, ts, ok := claim.ParseClaim(comments[i].Body)
		if !ok {
			continue
		}
		found = true
		expiresAt := ts.Add(claimTimeout)
		if now.Sub(ts) < claimTimeout {
			fmt.Printf("  claimed by %s at %s (expires %s, live)\n", agentID, ts.Format(time.RFC3339), expiresAt.Format(time.RFC3339))
		} else {
			fmt.Printf("  last claim by %s at %s expired at %s — issue is free\n", agentID, ts.Format(time.RFC3339), expiresAt.Format(time.RFC3339))
		}
		break
	}
	if !found {
		fmt.Println("  no claim comment found — issue is free")
	}
	return nil
}

// dialGitHubAsClaimant builds a GitHub client using the configured bot
// agent's credential, mirroring the Supervisor's own bootstrap path
// (internal/orchestrator.NewSupervisor) without starting any long-running
// service — this command is read-only diagnostics.
func dialGitHubAsClaimant(ctx context.Context, cfg *config.Config) (ghclient.Client, error) {
	if cfg.GitHub.BotAgentID == "" {
		return nil, fmt.Errorf("github.bot_agent_id must name a registered agent")
	}

	reg := registry.New(nil)
	if err := reg.LoadDir(cfg.AgentsDir); err != nil {
		return nil, fmt.Errorf("loading agents: %w", err)
	}
	claimant, ok := reg.Get(cfg.GitHub.BotAgentID)
	if !ok {
		return nil, fmt.Errorf("claimant agent %q not found in %s", cfg.GitHub.BotAgentID, cfg.AgentsDir)
	}

	store, err := secretstore.New(cfg.SecretsDir, models.EnvironmentTag(cfg.Environment))
	if err != nil {
		return nil, fmt.Errorf("secret store: %w", err)
	}
	cred, err := store.Get(claimant.CredentialRef)
	if err != nil {
		return nil, fmt.Errorf("resolving claimant credential: %w", err)
	}

	gov := rategovernor.New(rategovernor.DefaultPolicies())
	client, err := ghclient.NewGitHubClient(ctx, cred.Reveal(), cfg.GitHub.Host, gov)
	if err != nil {
		return nil, fmt.Errorf("github client: %w", err)
	}
	return client, nil
}
