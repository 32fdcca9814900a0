// Package cmd implements the agent-forge CLI: the cobra command tree that
// starts the orchestrator daemon, inspects the agent registry, and walks a
// first-time operator through initial setup.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "agent-forge",
	Short: "Autonomous multi-agent GitHub issue router and task orchestrator",
	Long: `agent-forge polls GitHub repositories for actionable issues, routes each
one to the right kind of coding agent, dispatches the work, and watches the
resulting pull request through to merge or conflict — all driven by a
declarative agent registry and a small set of always-running services.

Get started:
  agent-forge init     Interactive setup wizard
  agent-forge serve    Start the orchestrator daemon
  agent-forge agents   Inspect and control the agent registry
  agent-forge claim    Inspect claim state for a repository/issue
  agent-forge monitor  Launch the terminal event-stream dashboard`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ~/.agent-forge/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose/debug output")

	rootCmd.Version = Version
	rootCmd.AddCommand(
		initCmd,
		serveCmd,
		agentsCmd,
		claimCmd,
		monitorCmd,
	)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		slog.Debug("verbose logging enabled")
	}
}
