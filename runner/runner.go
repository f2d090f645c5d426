package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentdeck/agent"
	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/logging"
	"github.com/hupe1980/agentdeck/session"
)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// EventBufferSize sets channel buffering for events.
	EventBufferSize int
	// Session history services.
	SessionStore *session.InMemoryStore
	// Logging services.
	Logger logging.Logger
}

// Runner coordinates agent execution: resolves the agent, creates run
// contexts, streams events and persists history. Public methods are safe
// for concurrent use.
type Runner struct {
	registry        *agent.Registry
	eventBufferSize int
	sessions        *session.InMemoryStore
	logger          logging.Logger

	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
	wg         sync.WaitGroup
}

// New constructs a Runner with optional overrides.
func New(registry *agent.Registry, optFns ...func(o *Options)) *Runner {
	opts := Options{
		EventBufferSize: 100,
		SessionStore:    session.NewInMemoryStore(100),
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Runner{
		registry:        registry,
		eventBufferSize: opts.EventBufferSize,
		sessions:        opts.SessionStore,
		logger:          opts.Logger,
		activeRuns:      make(map[string]context.CancelFunc),
	}
}

// Agents lists the runnable agents.
func (r *Runner) Agents() []core.AgentInfo { return r.registry.List() }

// Run starts an asynchronous run. The returned channel yields run.created,
// the agent's events and one terminal event, then closes. Cancelling ctx
// abandons the stream without a terminal event; Cancel(runID) ends it with
// run.cancelled.
func (r *Runner) Run(ctx context.Context, req core.RunRequest) (core.Run, <-chan core.Event, error) {
	a, ok := r.registry.Get(req.AgentName)
	if !ok {
		return core.Run{}, nil, fmt.Errorf("%w: %s", core.ErrAgentNotFound, req.AgentName)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = core.NewID()
	}

	run := core.Run{
		ID:        core.NewID(),
		SessionID: sessionID,
		AgentName: a.Name(),
		Status:    core.RunStatusCreated,
		Stats:     core.RunStats{StartTime: time.Now()},
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.activeRuns[run.ID] = cancel
	r.mu.Unlock()

	events := make(chan core.Event, r.eventBufferSize)
	history := r.sessions.History(sessionID)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(events)
		defer func() {
			r.mu.Lock()
			delete(r.activeRuns, run.ID)
			r.mu.Unlock()
			cancel()
		}()

		logger := r.logger
		send := func(ev core.Event) bool {
			select {
			case <-ctx.Done():
				return false
			case events <- ev:
				return true
			}
		}

		if !send(core.NewRunCreatedEvent(run.ID, sessionID)) {
			return
		}

		rc := agent.NewRunContext(runCtx, run.ID, sessionID, req.Input, history, events, logger)
		output, err := r.runAgent(a, rc)

		switch {
		case runCtx.Err() != nil:
			logging.RunFinished(logger, run.ID, a.Name(), string(core.RunStatusCancelled), time.Since(run.Stats.StartTime), nil)
			send(core.NewRunCancelledEvent(run.ID))
		case err != nil:
			logging.RunFinished(logger, run.ID, a.Name(), string(core.RunStatusFailed), time.Since(run.Stats.StartTime), err)
			send(core.NewRunFailedEvent(run.ID, toRunError(err)))
		default:
			r.sessions.Append(sessionID, rc.UserContent(), core.Content{
				Role:  "assistant",
				Parts: []core.Part{core.TextPart{Text: output}},
			})
			logging.RunFinished(logger, run.ID, a.Name(), string(core.RunStatusCompleted), time.Since(run.Stats.StartTime), nil)
			send(core.NewRunCompletedEvent(run.ID, output))
		}
	}()

	return run, events, nil
}

// runAgent shields the runner from agent panics.
func (r *Runner) runAgent(a agent.Agent, rc *agent.RunContext) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("agent %s panicked: %v", a.Name(), p)
		}
	}()
	return a.Run(rc)
}

// Cancel cancels a running run by ID.
func (r *Runner) Cancel(runID string) error {
	r.mu.RLock()
	cancel, exists := r.activeRuns[runID]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("run %s: %w", runID, core.ErrNotFound)
	}

	cancel()
	return nil
}

// Active returns the number of runs in progress.
func (r *Runner) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.activeRuns)
}

// Shutdown cancels every active run and waits until their streams are
// closed or ctx is done.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	for _, cancel := range r.activeRuns {
		cancel()
	}
	r.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// toRunError maps an agent error to the run.failed payload.
func toRunError(err error) *core.RunError {
	code := core.CodeAgentError
	if errors.Is(err, core.ErrAgentNotFound) {
		code = core.CodeAgentNotFound
	}
	return &core.RunError{Code: code, Message: err.Error()}
}
