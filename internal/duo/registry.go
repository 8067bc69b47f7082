package duo

import (
	"fmt"
	"time"

	"github.com/ShayCichocki/duet/pkg/models"
)

// AgentConfig describes one agent of the pair. Immutable once a session
// starts.
type AgentConfig struct {
	// Name is a human-readable agent name.
	Name string
	// Role is the agent's side of the pair.
	Role models.Role
	// Tier is the model capability tier the agent runs on.
	Tier models.Tier
	// CallTimeout bounds each invocation of this agent.
	CallTimeout time.Duration
}

// AgentState holds the mutable per-agent state for one session. It is
// mutated only by the orchestration loop.
type AgentState struct {
	// Config is the agent's immutable configuration.
	Config AgentConfig
	// SessionHandle is the opaque resumption token from the agent's
	// previous invocation, empty before the first call.
	SessionHandle string
	// Active is true while this agent holds control.
	Active bool
	// LastActivity is when the agent last produced output.
	LastActivity time.Time
	// Log is the agent's view of the cross-agent conversation. Messages
	// are shared by reference with the other agent's log and never
	// mutated after creation.
	Log []*AgentMessage
}

// RegistryOptions configures agent construction.
type RegistryOptions struct {
	// ManagerTier overrides the manager's model tier. Default advanced.
	ManagerTier models.Tier
	// WorkerTier overrides the worker's model tier. Default standard.
	WorkerTier models.Tier
	// CallTimeout bounds each agent invocation. Default 20 minutes.
	CallTimeout time.Duration
}

// DefaultCallTimeout is the per-invocation timeout applied when none is
// configured. Agent calls are LLM-backed external processes, so the bound
// is generous.
const DefaultCallTimeout = 20 * time.Minute

// Registry holds the two agent states of a session. The manager starts
// active.
type Registry struct {
	Manager *AgentState
	Worker  *AgentState
}

// NewRegistry constructs the manager and worker agent states. Pure
// construction: no side effects beyond allocation.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	managerTier := opts.ManagerTier
	if managerTier == "" {
		managerTier = models.TierAdvanced
	}
	workerTier := opts.WorkerTier
	if workerTier == "" {
		workerTier = models.TierStandard
	}
	if !managerTier.Valid() {
		return nil, fmt.Errorf("invalid manager tier %q", managerTier)
	}
	if !workerTier.Valid() {
		return nil, fmt.Errorf("invalid worker tier %q", workerTier)
	}

	timeout := opts.CallTimeout
	if timeout == 0 {
		timeout = DefaultCallTimeout
	}
	if timeout < 0 {
		return nil, fmt.Errorf("call timeout must be positive, got %v", timeout)
	}

	return &Registry{
		Manager: &AgentState{
			Config: AgentConfig{
				Name:        "manager",
				Role:        models.RoleManager,
				Tier:        managerTier,
				CallTimeout: timeout,
			},
			Active: true,
		},
		Worker: &AgentState{
			Config: AgentConfig{
				Name:        "worker",
				Role:        models.RoleWorker,
				Tier:        workerTier,
				CallTimeout: timeout,
			},
		},
	}, nil
}

// Get returns the agent state for the given role.
func (r *Registry) Get(role models.Role) *AgentState {
	if role == models.RoleManager {
		return r.Manager
	}
	return r.Worker
}

// Active returns the currently active agent. Exactly one agent is active
// at any instant.
func (r *Registry) Active() *AgentState {
	if r.Manager.Active {
		return r.Manager
	}
	return r.Worker
}

// Activate atomically deactivates the current agent and activates the one
// with the given role.
func (r *Registry) Activate(role models.Role) {
	r.Manager.Active = role == models.RoleManager
	r.Worker.Active = role == models.RoleWorker
}
