// Package registry loads per-agent YAML declarations and tracks each
// agent's runtime state machine (spec.md §4.4).
package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agent-forge/agent-forge/internal/bus"
	"github.com/agent-forge/agent-forge/models"
	"gopkg.in/yaml.v3"
)

// Registry holds every registered Agent and its runtime state.
type Registry struct {
	mu     sync.Mutex
	agents map[string]*models.Agent
	bus    *bus.Bus
	now    func() time.Time
}

// New constructs an empty Registry.
func New(b *bus.Bus) *Registry {
	return &Registry{
		agents: make(map[string]*models.Agent),
		bus:    b,
		now:    time.Now,
	}
}

// LoadDir registers every enabled agent declared under dir (one YAML file
// per agent, spec.md §4.4: "Registers every enabled agent").
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading agents directory %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading agent file %s: %w", path, err)
		}
		var agent models.Agent
		if err := yaml.Unmarshal(data, &agent); err != nil {
			return fmt.Errorf("parsing agent file %s: %w", path, err)
		}
		if !agent.Enabled {
			continue
		}
		agent.RuntimeState = models.StateRegistered
		r.mu.Lock()
		r.agents[agent.ID] = &agent
		r.mu.Unlock()
	}
	return nil
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

// StartAlwaysOn starts every AlwaysOn agent in parallel, recording each
// Starting->Idle/Starting->Error transition on the Bus (spec.md §4.4).
func (r *Registry) StartAlwaysOn(ctx context.Context, healthCheck func(context.Context, *models.Agent) error) {
	r.mu.Lock()
	var toStart []*models.Agent
	for _, a := range r.agents {
		if a.Lifecycle == models.LifecycleAlwaysOn {
			toStart = append(toStart, a)
		}
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, a := range toStart {
		wg.Add(1)
		go func(a *models.Agent) {
			defer wg.Done()
			r.transition(a.ID, models.StateStarting, "")
			if healthCheck != nil {
				if err := healthCheck(ctx, a); err != nil {
					r.transition(a.ID, models.StateError, err.Error())
					return
				}
			}
			r.transition(a.ID, models.StateIdle, "")
		}(a)
	}
	wg.Wait()
}

func (r *Registry) transition(id string, state models.RuntimeState, reason string) {
	r.mu.Lock()
	a, ok := r.agents[id]
	if ok {
		a.RuntimeState = state
		a.ErrorReason = reason
		if state == models.StateIdle {
			a.LastHealthyAt = r.now()
		}
	}
	r.mu.Unlock()
	if ok && r.bus != nil {
		r.bus.Publish("agent.state", map[string]any{"agent_id": id, "state": string(state), "reason": reason})
	}
}

// List returns agents matching the optional role/capability filters.
func (r *Registry) List(role *models.Role, capability *models.Capability) []models.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		if role != nil && a.Role != *role {
			continue
		}
		if capability != nil && !a.HasCapability(*capability) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Pick implements spec.md §4.4's six-step selection: matching role, all
// preferred capabilities present, not excluded, lowest priority, Idle (or
// OnDemand+Registered, activated synchronously), most-recently-healthy
// tiebreak.
func (r *Registry) Pick(role models.Role, preferCaps []models.Capability, excludeIDs []string) (*models.Agent, bool) {
	excluded := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []*models.Agent
	for _, a := range r.agents {
		if a.Role != role {
			continue
		}
		if !a.HasAllCapabilities(preferCaps) {
			continue
		}
		if _, skip := excluded[a.ID]; skip {
			continue
		}
		if a.RuntimeState != models.StateIdle &&
			!(a.RuntimeState == models.StateRegistered && a.Lifecycle == models.LifecycleOnDemand) {
			continue
		}
		candidates = append(candidates, a)
	}
	if len(candidates) == 0 {
		return nil, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].LastHealthyAt.After(candidates[j].LastHealthyAt)
	})

	chosen := candidates[0]
	if chosen.RuntimeState == models.StateRegistered {
		chosen.RuntimeState = models.StateStarting
		if r.bus != nil {
			r.bus.Publish("agent.state", map[string]any{"agent_id": chosen.ID, "state": string(models.StateStarting)})
		}
	}
	result := *chosen
	return &result, true
}

// MarkWorking transitions agent_id -> Working(task_id).
func (r *Registry) MarkWorking(agentID, taskID string) {
	r.mu.Lock()
	if a, ok := r.agents[agentID]; ok {
		a.RuntimeState = models.StateWorking
		a.WorkingTaskID = taskID
	}
	r.mu.Unlock()
	if r.bus != nil {
		r.bus.Publish("agent.state", map[string]any{"agent_id": agentID, "state": string(models.StateWorking), "task_id": taskID})
	}
}

// MarkIdle transitions agent_id -> Idle. Task errors never produce the
// Error state — only agent-level failures do (spec.md §4.8 step 6).
func (r *Registry) MarkIdle(agentID string) {
	r.mu.Lock()
	if a, ok := r.agents[agentID]; ok {
		a.RuntimeState = models.StateIdle
		a.WorkingTaskID = ""
		a.LastHealthyAt = r.now()
	}
	r.mu.Unlock()
	if r.bus != nil {
		r.bus.Publish("agent.state", map[string]any{"agent_id": agentID, "state": string(models.StateIdle)})
	}
}

// MarkError transitions agent_id -> Error(reason).
func (r *Registry) MarkError(agentID, reason string) {
	r.mu.Lock()
	if a, ok := r.agents[agentID]; ok {
		a.RuntimeState = models.StateError
		a.ErrorReason = reason
	}
	r.mu.Unlock()
	if r.bus != nil {
		r.bus.Publish("agent.state", map[string]any{"agent_id": agentID, "state": string(models.StateError), "reason": reason})
	}
}

// Restart attempts to recover an Error agent per its backoff ladder
// (5s/15s/60s, then manual — spec.md §4.4).
func (r *Registry) Restart(ctx context.Context, agentID string, healthCheck func(context.Context, *models.Agent) error) error {
	r.mu.Lock()
	a, ok := r.agents[agentID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("registry: unknown agent %s", agentID)
	}
	if a.RuntimeState != models.StateError {
		r.mu.Unlock()
		return fmt.Errorf("registry: agent %s is not in Error state", agentID)
	}
	delay, ok := a.NextRestartDelay()
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("registry: agent %s has exhausted its restart schedule, manual intervention required", agentID)
	}
	a.RestartBackoff++
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
	}

	r.transition(agentID, models.StateStarting, "")
	if healthCheck != nil {
		if err := healthCheck(ctx, a); err != nil {
			r.transition(agentID, models.StateError, err.Error())
			return err
		}
	}
	r.mu.Lock()
	a.RestartBackoff = 0
	r.mu.Unlock()
	r.transition(agentID, models.StateIdle, "")
	return nil
}

// Health reports whether agent_id is healthy: Idle and its credential still
// validates on the slow health-probe timer (spec.md §4.4; here simplified
// to reporting last-known state since per-query validation is explicitly
// disallowed).
func (r *Registry) Health(agentID string) (healthy bool, state models.RuntimeState, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, exists := r.agents[agentID]
	if !exists {
		return false, "", false
	}
	return a.RuntimeState == models.StateIdle, a.RuntimeState, true
}

// AllAlwaysOnIdle reports whether every AlwaysOn agent is currently Idle,
// used by the Supervisor's readiness probe.
func (r *Registry) AllAlwaysOnIdle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.agents {
		if a.Lifecycle == models.LifecycleAlwaysOn && a.RuntimeState != models.StateIdle {
			return false
		}
	}
	return true
}

// Get returns a copy of the agent's current state.
func (r *Registry) Get(agentID string) (models.Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentID]
	if !ok {
		return models.Agent{}, false
	}
	return *a, true
}
