package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/agent-forge/agent-forge/internal/ai"
	"github.com/agent-forge/agent-forge/internal/config"
	"github.com/agent-forge/agent-forge/internal/orchestrator"
	"github.com/agent-forge/agent-forge/internal/secretstore"
	"github.com/agent-forge/agent-forge/internal/taskrunner"
	"github.com/agent-forge/agent-forge/models"
	"github.com/spf13/cobra"
)

var (
	serveLogDir   string
	serveCronExpr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agent-forge orchestrator daemon",
	Long: `Starts the orchestrator: a long-running daemon that polls every bound
repository for actionable issues, routes each to an agent via the routing
gateway, dispatches the work, and watches pull requests through to merge or
conflict.

The daemon exposes a local HTTP control surface (default:
http://127.0.0.1:7080) so you can:

  GET  /health                          liveness check
  GET  /ready                           readiness check (every always-on agent idle)
  GET  /agents                          list registered agents and state
  POST /agents/{id}/enable              re-enable a disabled agent
  POST /agents/{id}/disable             disable an agent (drains in-flight work)
  POST /reload                          reload credentials and agent registry
  POST /shutdown                        begin graceful shutdown
  GET  /monitor?topics=...              websocket event stream (see 'agent-forge monitor')`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveLogDir, "log-dir", "logs",
		"directory to write orchestrator logs for later inspection")
	serveCmd.Flags().StringVar(&serveCronExpr, "cron", "",
		"robfig/cron expression overriding polling.recovery_cron for the draft-PR recovery and GitLab sweep passes")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println("\nShutting down orchestrator gracefully...")
		cancel()
	}()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: loading config:", err)
		os.Exit(orchestrator.ExitConfigError)
	}

	secrets, err := secretstore.New(cfg.SecretsDir, models.EnvironmentTag(cfg.Environment))
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: loading secret store:", err)
		os.Exit(orchestrator.ExitStartupFailure)
	}

	logFilePath, closeLog, err := setupServeFileLogger(serveLogDir, secrets.Loaded)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: initialising logger:", err)
		os.Exit(orchestrator.ExitStartupFailure)
	}
	defer closeLog()

	if serveCronExpr != "" {
		cfg.Polling.RecoveryCronExpr = serveCronExpr
	}

	if cfg.GitHub.BotAgentID == "" {
		fmt.Fprintln(os.Stderr, "Error: github.bot_agent_id must name a registered agent")
		os.Exit(orchestrator.ExitConfigError)
	}

	bindings, err := config.LoadRepositoryBindings(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: loading repository bindings:", err)
		os.Exit(orchestrator.ExitConfigError)
	}
	if len(bindings) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no repositories bound (set config.repositories or config.repositories_dir)")
		os.Exit(orchestrator.ExitConfigError)
	}

	llm, err := ai.New(ctx, cfg.LLM)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: configuring LLM sanity check:", err)
		os.Exit(orchestrator.ExitStartupFailure)
	}

	runner := taskrunner.Runner(taskrunner.Noop{})

	sup, err := orchestrator.NewSupervisor(ctx, cfg, runner, llm, bindings, cfg.GitHub.BotAgentID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: starting supervisor:", err)
		os.Exit(orchestrator.ExitStartupFailure)
	}

	fmt.Println("agent-forge orchestrator starting")
	fmt.Printf("  Environment : %s\n", cfg.Environment)
	fmt.Printf("  Claimant    : %s\n", cfg.GitHub.BotAgentID)
	fmt.Printf("  Repos bound : %d\n", len(bindings))
	fmt.Printf("  Control API : http://%s\n", cfg.Monitor.Addr)
	fmt.Printf("  Monitor     : ws://%s/monitor\n", cfg.Monitor.Addr)
	fmt.Printf("  Logs        : %s\n\n", logFilePath)
	fmt.Println("Press Ctrl+C to stop gracefully.")
	fmt.Println()

	slog.Info("orchestrator logger initialised", "file", logFilePath)

	// No AlwaysOn agent processes are supervised directly by this binary —
	// the actual agent task execution is the opaque taskrunner.Runner
	// boundary, so there is no process to health-check here.
	if err := sup.Run(ctx, nil); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(orchestrator.ExitRuntimeFailure)
	}
	os.Exit(orchestrator.ExitOK)
	return nil
}

func setupServeFileLogger(logDir string, loadedSecrets func() []string) (string, func(), error) {
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating log dir %s: %w", logDir, err)
	}

	ts := time.Now().UTC().Format("20060102-150405")
	runLogPath := filepath.Join(logDir, fmt.Sprintf("serve-%s.log", ts))
	runFile, err := os.OpenFile(runLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", nil, fmt.Errorf("opening run log file: %w", err)
	}

	latestPath := filepath.Join(logDir, "serve.log")
	latestFile, err := os.OpenFile(latestPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = runFile.Close()
		return "", nil, fmt.Errorf("opening latest log file: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, runFile, latestFile), &slog.HandlerOptions{
		Level:     level,
		AddSource: verbose,
	})
	slog.SetDefault(slog.New(secretstore.NewRedactingHandler(handler, loadedSecrets)))
	slog.SetLogLoggerLevel(level)

	cleanup := func() {
		_ = latestFile.Close()
		_ = runFile.Close()
	}
	return runLogPath, cleanup, nil
}
