package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/logging"
)

// Agent is the server-side unit of execution behind an agent name.
type Agent interface {
	// Name is the catalog name clients address the agent by.
	Name() string
	// Description is shown in the agent listing.
	Description() string
	// Run executes one turn, emitting message parts through rc and returning
	// the final output text.
	Run(rc *RunContext) (string, error)
}

// RunContext carries everything an agent needs for one run. It embeds the
// run's context.Context; cancellation of the run cancels it.
type RunContext struct {
	context.Context

	RunID     string
	SessionID string
	Input     core.Parts     // User input of this run (or step)
	History   []core.Content // Earlier turns of the session, oldest first
	Logger    logging.Logger

	emit    chan<- core.Event
	stepIdx *int
}

// NewRunContext constructs a RunContext. Events passed to Emit are sent on
// emit until ctx is done.
func NewRunContext(
	ctx context.Context,
	runID, sessionID string,
	input core.Parts,
	history []core.Content,
	emit chan<- core.Event,
	logger logging.Logger,
) *RunContext {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &RunContext{
		Context:   ctx,
		RunID:     runID,
		SessionID: sessionID,
		Input:     input,
		History:   history,
		Logger:    logger,
		emit:      emit,
	}
}

// Emit forwards ev to the client. Inside a workflow step the event is tagged
// with the step index.
func (rc *RunContext) Emit(ev core.Event) error {
	if rc.stepIdx != nil {
		ev = ev.WithAgentIdx(*rc.stepIdx)
	}
	select {
	case <-rc.Done():
		return context.Cause(rc)
	case rc.emit <- ev:
		return nil
	}
}

// ForStep derives the context for workflow step idx with its own input and
// no session history.
func (rc *RunContext) ForStep(idx int, input core.Parts) *RunContext {
	child := *rc
	child.Input = input
	child.History = nil
	child.stepIdx = &idx
	return &child
}

// StepIndex returns the workflow step index, if any.
func (rc *RunContext) StepIndex() (int, bool) {
	if rc.stepIdx == nil {
		return 0, false
	}
	return *rc.stepIdx, true
}

// UserText concatenates the text parts of the input.
func (rc *RunContext) UserText() string {
	return core.Content{Parts: rc.Input}.Text()
}

// UserContent returns the input as user content for a model request. Data
// parts are control input and are left out.
func (rc *RunContext) UserContent() core.Content {
	parts := make([]core.Part, 0, len(rc.Input))
	for _, p := range rc.Input {
		if _, ok := p.(core.DataPart); ok {
			continue
		}
		parts = append(parts, p)
	}
	return core.Content{Role: "user", Parts: parts}
}

// Registry is a goroutine-safe set of agents keyed by name.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry constructs a registry holding agents.
func NewRegistry(agents ...Agent) (*Registry, error) {
	r := &Registry{agents: make(map[string]Agent)}
	for _, a := range agents {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a. Names must be unique.
func (r *Registry) Register(a Agent) error {
	if a.Name() == "" {
		return fmt.Errorf("agent name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[a.Name()]; exists {
		return fmt.Errorf("agent %q already registered", a.Name())
	}
	r.agents[a.Name()] = a
	return nil
}

// Get looks up an agent by name.
func (r *Registry) Get(name string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	return a, ok
}

// List returns the catalog sorted by name.
func (r *Registry) List() []core.AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.AgentInfo, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, core.AgentInfo{Name: a.Name(), Description: a.Description()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
