package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/agent-forge/agent-forge/internal/audit"
	"github.com/agent-forge/agent-forge/internal/bus"
	"github.com/agent-forge/agent-forge/internal/config"
	"github.com/agent-forge/agent-forge/internal/controlplane"
	"github.com/agent-forge/agent-forge/internal/gateway"
	"github.com/agent-forge/agent-forge/internal/ghclient"
	"github.com/agent-forge/agent-forge/internal/gitscan"
	"github.com/agent-forge/agent-forge/internal/notify"
	"github.com/agent-forge/agent-forge/internal/rategovernor"
	"github.com/agent-forge/agent-forge/internal/registry"
	"github.com/agent-forge/agent-forge/internal/secretstore"
	"github.com/agent-forge/agent-forge/internal/taskrunner"
	"github.com/agent-forge/agent-forge/models"
	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
)

// Exit codes for cmd/serve.go (spec.md §6).
const (
	ExitOK             = 0
	ExitConfigError    = 64
	ExitStartupFailure = 65
	ExitRuntimeFailure = 70
)

// Supervisor owns the startup/teardown order and the HTTP control surface
// for one running orchestrator process (spec.md §4.11).
//
//   Bus -> Secret Store -> Registry (AlwaysOn) -> Rate Governor ->
//   GitHub Client -> Scheduler -> Dispatcher -> Watcher -> Monitor endpoint
//
// Teardown runs in the reverse order.
type Supervisor struct {
	cfg       *config.Config
	secret    *secretstore.Store
	gov       *rategovernor.Governor
	client    ghclient.Client
	reg       *registry.Registry
	bus       *bus.Bus
	sched     *Scheduler
	disp      *Dispatcher
	watch     *Watcher
	watchCron *cron.Cron

	auditDB      audit.DB
	auditMirror  *audit.Mirror
	notifyDisp   *notify.Dispatcher
	notifyBridge *NotifyBridge
	cpReporter   *controlplane.Reporter

	repoCaps map[string]int
	bindings []models.RepositoryBinding
	claimant models.Agent

	httpSrv *http.Server

	mu       sync.Mutex
	shutdown context.CancelFunc
}

// NewSupervisor wires every component per the startup order above. runner
// is the (possibly Noop) taskrunner.Runner bound to the Dispatcher.
// claimantID names the registered agent (cfg.AgentsDir) whose credential
// the Scheduler uses to poll and post claim comments (spec.md §4.5's
// "pool account").
func NewSupervisor(ctx context.Context, cfg *config.Config, runner taskrunner.Runner, llm gateway.LLMSanityCheck, bindings []models.RepositoryBinding, claimantID string) (*Supervisor, error) {
	b := bus.New()

	store, err := secretstore.New(cfg.SecretsDir, models.EnvironmentTag(cfg.Environment))
	if err != nil {
		return nil, fmt.Errorf("supervisor: secret store: %w", err)
	}

	reg := registry.New(b)
	if err := reg.LoadDir(cfg.AgentsDir); err != nil {
		return nil, fmt.Errorf("supervisor: loading agents: %w", err)
	}
	claimant, ok := reg.Get(claimantID)
	if !ok {
		return nil, fmt.Errorf("supervisor: claimant agent %q not found in %s", claimantID, cfg.AgentsDir)
	}

	policies := rategovernor.DefaultPolicies()
	if cfg.RateLimits.PerMinute > 0 {
		overridden := policies[rategovernor.ClassIssueComment]
		overridden.PerMinute = cfg.RateLimits.PerMinute
		overridden.PerHour = cfg.RateLimits.PerHour
		overridden.PerDay = cfg.RateLimits.PerDay
		overridden.Burst = cfg.RateLimits.Burst
		overridden.Cooldown = cfg.RateLimits.Cooldown
		policies[rategovernor.ClassIssueComment] = overridden
	}
	gov := rategovernor.New(policies)

	cred, err := store.Get(claimant.CredentialRef)
	if err != nil {
		return nil, fmt.Errorf("supervisor: resolving claimant credential: %w", err)
	}
	client, err := ghclient.NewGitHubClient(ctx, cred.Reveal(), cfg.GitHub.Host, gov)
	if err != nil {
		return nil, fmt.Errorf("supervisor: github client: %w", err)
	}

	gw := gateway.New(client, llm, cfg.LLM.Timeout)

	parallelism := 4
	sched := NewScheduler(client, b, parallelism)

	globalCap := 16
	repoCaps := make(map[string]int, len(bindings))
	for _, binding := range bindings {
		repoCaps[binding.FullName()] = binding.MaxConcurrentTask
	}
	disp := NewDispatcher(client, reg, gw, runner, b, globalCap)

	watch := NewWatcher(client, reg, b)
	if cfg.GitHub.EnableDivergenceScan {
		watch.SetScanner(gitscan.NewScanner())
	}
	if cfg.GitLab.Enabled {
		cred, err := store.Get(cfg.GitLab.CredentialRef)
		if err != nil {
			return nil, fmt.Errorf("supervisor: resolving gitlab credential: %w", err)
		}
		bridge, err := ghclient.NewGitLabBridge(cred.Reveal(), cfg.GitLab.Host)
		if err != nil {
			return nil, fmt.Errorf("supervisor: gitlab bridge: %w", err)
		}
		watch.SetGitLabBridge(bridge)
	}

	auditDB, err := audit.New(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("supervisor: audit store: %w", err)
	}
	auditMirror, err := audit.NewMirror(ctx, auditDB, b)
	if err != nil {
		return nil, fmt.Errorf("supervisor: audit mirror: %w", err)
	}

	notifyDisp := notify.NewDispatcher(cfg.Notify)
	notifyBridge := NewNotifyBridge(b, notifyDisp)

	var cpReporter *controlplane.Reporter
	if cfg.ControlPlane.Enabled {
		cpReporter = controlplane.New(cfg.ControlPlane)
	}

	s := &Supervisor{
		cfg: cfg, secret: store, gov: gov, client: client,
		reg: reg, bus: b, sched: sched, disp: disp, watch: watch,
		auditDB: auditDB, auditMirror: auditMirror,
		notifyDisp: notifyDisp, notifyBridge: notifyBridge,
		cpReporter: cpReporter,
		repoCaps:   repoCaps, bindings: bindings, claimant: claimant,
	}
	return s, nil
}

// Run starts every component in startup order and blocks serving the HTTP
// control surface until ctx is cancelled, then tears down in reverse order.
func (s *Supervisor) Run(ctx context.Context, healthCheck func(context.Context, *models.Agent) error) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.shutdown = cancel
	s.mu.Unlock()

	s.reg.StartAlwaysOn(runCtx, healthCheck)

	go s.auditMirror.Run(runCtx)
	go s.notifyBridge.Run(runCtx)
	if s.cpReporter != nil {
		go s.cpReporter.Run(runCtx, s.controlPlaneSnapshot)
	}

	s.sched.Start(runCtx, s.bindings, s.claimant)
	go s.disp.Run(runCtx, s.repoCaps)

	recoveryCron := s.cfg.Polling.RecoveryCronExpr
	if recoveryCron == "" {
		recoveryCron = "@every 5m"
	}
	watchCron, err := s.watch.StartCron(runCtx, recoveryCron, s.bindings)
	if err != nil {
		slog.Error("orchestrator: watcher recovery cron disabled, falling back to a 5m ticker per binding", "expr", recoveryCron, "error", err)
		for _, binding := range s.bindings {
			go s.watch.RunDraftRecoveryLoop(runCtx, binding.Owner, binding.Name, 5*time.Minute)
		}
		if s.cfg.GitLab.Enabled {
			go s.watch.RunGitLabSweepLoop(runCtx, s.bindings, s.cfg.GitLab.SweepInterval)
		}
	} else {
		s.watchCron = watchCron
	}

	s.httpSrv = &http.Server{
		Addr:              s.cfg.Monitor.Addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-runCtx.Done():
	case err := <-serveErr:
		if err != nil {
			slog.Error("orchestrator: monitor endpoint failed", "error", err)
		}
	}

	s.teardown()
	return nil
}

// teardown runs in reverse startup order: Monitor -> Watcher -> Dispatcher
// -> Scheduler -> GitHub client (nothing to close) -> Rate Governor
// (nothing to close) -> Registry (nothing to close) -> Secret Store
// (nothing to close) -> Bus. The Notify Bridge and Audit Mirror are
// context-scoped goroutines that exit with runCtx; only the Audit DB
// handle needs an explicit Close.
func (s *Supervisor) teardown() {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("orchestrator: monitor endpoint shutdown error", "error", err)
		}
	}
	if s.watchCron != nil {
		<-s.watchCron.Stop().Done()
	}
	s.sched.Stop()
	if err := s.auditDB.Close(); err != nil {
		slog.Warn("orchestrator: audit store close error", "error", err)
	}
}

// Shutdown requests a graceful stop (POST /shutdown calls this; the
// SIGINT/SIGTERM handler in cmd/serve.go cancels the run context instead).
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown != nil {
		s.shutdown()
	}
}

func (s *Supervisor) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/agents", s.handleListAgents).Methods(http.MethodGet)
	r.HandleFunc("/agents/{id}/enable", s.handleSetAgentEnabled(true)).Methods(http.MethodPost)
	r.HandleFunc("/agents/{id}/disable", s.handleSetAgentEnabled(false)).Methods(http.MethodPost)
	r.HandleFunc("/reload", s.handleReload).Methods(http.MethodPost)
	r.HandleFunc("/shutdown", s.handleShutdown).Methods(http.MethodPost)
	r.HandleFunc("/monitor", s.bus.MonitorHandler())
	return r
}

// controlPlaneSnapshot builds the Status the Control Plane Reporter signs
// and posts each tick.
func (s *Supervisor) controlPlaneSnapshot() controlplane.Status {
	agents := s.reg.List(nil, nil)
	idle := 0
	for _, a := range agents {
		if a.RuntimeState == models.StateIdle {
			idle++
		}
	}
	stats := s.bus.Stats()
	return controlplane.Status{
		DisplayName:    s.cfg.ControlPlane.DisplayName,
		AgentsTotal:    len(agents),
		AgentsIdle:     idle,
		BusSubscribers: stats.Subscribers,
		BusDropped:     stats.DroppedTotal,
	}
}

// handleHealth is a liveness probe: the Bus must be accepting publishes.
func (s *Supervisor) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.bus.Running() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleReady is a readiness probe: every AlwaysOn agent must be Idle.
func (s *Supervisor) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.reg.AllAlwaysOnIdle() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Supervisor) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents := s.reg.List(nil, nil)
	writeJSON(w, http.StatusOK, agents)
}

func (s *Supervisor) handleSetAgentEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		a, ok := s.reg.Get(id)
		if !ok {
			http.Error(w, "unknown agent", http.StatusNotFound)
			return
		}
		if !enabled {
			s.reg.MarkError(id, "disabled via control surface")
		} else if a.RuntimeState == models.StateError {
			s.reg.MarkIdle(id)
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "enabled": enabled})
	}
}

func (s *Supervisor) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.secret.Reload(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.reg.LoadDir(s.cfg.AgentsDir); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Supervisor) handleShutdown(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusAccepted)
	go s.Shutdown()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("orchestrator: writing JSON response failed", "error", err)
	}
}
