package run

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/logging"
)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// Transport opens run streams and sends remote cancel requests.
	Transport core.Transport
	// Timeout bounds the whole run. There is no per-event timeout.
	Timeout time.Duration
	// CancelTimeout bounds the remote cancel request.
	CancelTimeout time.Duration
	// EventBufferSize sets channel buffering for normalized events.
	EventBufferSize int
	// Logging services.
	Logger logging.Logger
}

// Controller drives one run at a time against a Transport. Public methods
// are safe for concurrent use; Cancel and Reset are typically called from a
// UI goroutine while another goroutine drains the run.
type Controller struct {
	transport       core.Transport
	timeout         time.Duration
	cancelTimeout   time.Duration
	eventBufferSize int
	logger          logging.Logger

	mu        sync.Mutex
	current   *attempt
	sessionID string
}

// attempt is the state of one Start call. It outlives Reset so the draining
// goroutine can finish without touching the controller's next run.
type attempt struct {
	run           core.Run
	cancel        context.CancelFunc
	userCancelled bool
	done          bool
}

// New constructs a Controller with optional overrides.
func New(optFns ...func(o *Options)) *Controller {
	opts := Options{
		Timeout:         5 * time.Minute,
		CancelTimeout:   10 * time.Second,
		EventBufferSize: 100,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Controller{
		transport:       opts.Transport,
		timeout:         opts.Timeout,
		cancelTimeout:   opts.CancelTimeout,
		eventBufferSize: opts.EventBufferSize,
		logger:          opts.Logger,
	}
}

// Start opens a run and returns its normalized event channel. The channel
// always ends with exactly one terminal event and is then closed; callers
// must drain it. Setup failures (active run, unknown agent, connection
// refused) are returned synchronously.
func (c *Controller) Start(ctx context.Context, req core.RunRequest) (<-chan core.Event, error) {
	_, ch, err := c.start(ctx, req)
	return ch, err
}

// Run starts a run and dispatches every event to h until the run ends. It
// returns the final run record; the error is non-nil only for setup failures.
func (c *Controller) Run(ctx context.Context, req core.RunRequest, h Handler) (core.Run, error) {
	a, ch, err := c.start(ctx, req)
	if err != nil {
		return core.Run{AgentName: req.AgentName, Status: core.RunStatusFailed, Error: err}, err
	}

	for ev := range ch {
		var evErr error
		if ev.Type == core.EventRunFailed {
			evErr = c.snapshot(a).Error
		}
		Dispatch(h, ev, evErr)
	}

	return c.snapshot(a), nil
}

func (c *Controller) start(ctx context.Context, req core.RunRequest) (*attempt, <-chan core.Event, error) {
	if c.transport == nil {
		return nil, nil, fmt.Errorf("%w: no transport configured", core.ErrTransport)
	}

	c.mu.Lock()
	if c.current != nil && !c.current.done {
		c.mu.Unlock()
		return nil, nil, core.ErrRunActive
	}
	if req.SessionID == "" {
		req.SessionID = c.sessionID
	}
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if c.timeout > 0 {
		runCtx, cancel = context.WithTimeoutCause(ctx, c.timeout, core.ErrTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	a := &attempt{
		run: core.Run{
			AgentName: req.AgentName,
			SessionID: req.SessionID,
			Status:    core.RunStatusIdle,
			Stats:     core.RunStats{StartTime: time.Now()},
		},
		cancel: cancel,
	}
	c.current = a
	c.mu.Unlock()

	c.logger.Debug("run starting", "agent", req.AgentName, "session_id", req.SessionID)

	events, errs, err := c.transport.Open(runCtx, req)
	if err != nil {
		c.mu.Lock()
		userCancelled := a.userCancelled
		c.mu.Unlock()

		if !userCancelled {
			cancel()
			c.finish(a, core.RunStatusFailed, err)
			c.logger.Warn("run setup failed", "agent", req.AgentName, "error", err)
			return a, nil, err
		}

		// The abort raced the dial; report it as a cancelled run.
		out := make(chan core.Event, 1)
		out <- c.finishEvent(a, core.RunStatusCancelled, nil)
		close(out)
		cancel()
		return a, out, nil
	}

	out := make(chan core.Event, c.eventBufferSize)
	go c.pump(runCtx, a, events, errs, out)

	return a, out, nil
}

func (c *Controller) pump(
	runCtx context.Context,
	a *attempt,
	events <-chan core.Event,
	errs <-chan error,
	out chan<- core.Event,
) {
	defer close(out)
	defer a.cancel()

	terminal := false
	for ev := range events {
		if terminal {
			continue
		}
		forward, remoteCancel := c.observe(a, ev)
		if ev.Type.IsTerminal() && forward {
			terminal = true
		}
		if remoteCancel != "" {
			go c.cancelRemote(remoteCancel)
		}
		if forward {
			out <- ev
		}
	}

	var streamErr error
	for err := range errs {
		if err != nil {
			streamErr = err
		}
	}

	if terminal {
		return
	}

	c.mu.Lock()
	userCancelled := a.userCancelled
	c.mu.Unlock()

	switch {
	case userCancelled:
		out <- c.finishEvent(a, core.RunStatusCancelled, nil)
	case errors.Is(context.Cause(runCtx), core.ErrTimeout):
		if id := c.snapshot(a).ID; id != "" {
			_ = c.cancelRemote(id)
		}
		out <- c.finishEvent(a, core.RunStatusFailed, core.ErrTimeout)
	case runCtx.Err() != nil:
		// The caller's context ended the run; that is a local abort too.
		out <- c.finishEvent(a, core.RunStatusCancelled, nil)
	case streamErr != nil:
		if !errors.Is(streamErr, core.ErrTransport) {
			streamErr = fmt.Errorf("%w: %w", core.ErrTransport, streamErr)
		}
		out <- c.finishEvent(a, core.RunStatusFailed, streamErr)
	default:
		out <- c.finishEvent(a, core.RunStatusFailed, core.ErrStreamEnded)
	}
}

// observe applies ev to the attempt state. It reports whether ev should be
// forwarded and, when a late run.created reveals the id of a run the user
// already cancelled, the run id that still needs a remote cancel.
func (c *Controller) observe(a *attempt, ev core.Event) (forward bool, remoteCancel string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if a.done {
		return false, ""
	}

	switch ev.Type {
	case core.EventRunCreated:
		if ev.RunID != "" {
			a.run.ID = ev.RunID
		}
		if ev.SessionID != "" {
			a.run.SessionID = ev.SessionID
			if c.current == a {
				c.sessionID = ev.SessionID
			}
		}
		if a.run.Status == core.RunStatusIdle {
			a.run.Status = core.RunStatusCreated
		}
		if a.userCancelled && a.run.ID != "" {
			remoteCancel = a.run.ID
		}
	case core.EventMessagePart:
		a.run.Status = core.RunStatusStreaming
	case core.EventRunCompleted, core.EventRunFailed, core.EventRunCancelled:
		// A user cancel wins over whatever the server reports afterwards.
		if a.userCancelled {
			return false, ""
		}
		status := core.RunStatusCompleted
		var err error
		switch ev.Type {
		case core.EventRunFailed:
			status = core.RunStatusFailed
			if ev.Error != nil {
				err = ev.Error
			} else {
				err = &core.RunError{Code: "run_failed", Message: "run failed"}
			}
		case core.EventRunCancelled:
			status = core.RunStatusCancelled
		}
		a.run.Output = ev.Output
		c.finishLocked(a, status, err)
	}
	return true, ""
}

// finishEvent marks the attempt terminal and builds the synthesized terminal
// event describing it.
func (c *Controller) finishEvent(a *attempt, status core.RunStatus, err error) core.Event {
	c.finish(a, status, err)

	c.mu.Lock()
	runID := a.run.ID
	c.mu.Unlock()

	switch status {
	case core.RunStatusCancelled:
		return core.NewRunCancelledEvent(runID)
	default:
		return core.NewRunFailedEvent(runID, toRunError(err))
	}
}

func (c *Controller) finish(a *attempt, status core.RunStatus, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finishLocked(a, status, err)
}

func (c *Controller) finishLocked(a *attempt, status core.RunStatus, err error) {
	if a.done {
		return
	}
	a.done = true
	a.run.Status = status
	a.run.Error = err
	a.run.Stats.EndTime = time.Now()

	c.logger.Info("run finished",
		"agent", a.run.AgentName,
		"run_id", a.run.ID,
		"status", string(status),
		"duration", a.run.Stats.Duration(),
	)
}

// Cancel aborts the active run: the local stream is cancelled immediately and
// a remote cancel request is sent when the run id is known. It is idempotent
// and a no-op once the run has ended. The returned error only reports a
// failed remote request; the run is cancelled locally regardless.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	a := c.current
	if a == nil || a.done || a.userCancelled {
		c.mu.Unlock()
		return nil
	}
	a.userCancelled = true
	runID := a.run.ID
	c.mu.Unlock()

	a.cancel()
	c.logger.Debug("run cancel requested", "run_id", runID)

	if runID == "" {
		return nil
	}
	return c.cancelRemote(runID)
}

func (c *Controller) cancelRemote(runID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cancelTimeout)
	defer cancel()

	if err := c.transport.Cancel(ctx, runID); err != nil {
		c.logger.Warn("remote cancel failed", "run_id", runID, "error", err)
		return fmt.Errorf("failed to cancel run %s: %w", runID, err)
	}
	return nil
}

// Reset aborts any active run locally and returns the controller to idle,
// forgetting the retained run and session identifiers. Reconstructed message
// state is the caller's responsibility.
func (c *Controller) Reset() {
	c.mu.Lock()
	a := c.current
	if a != nil && !a.done {
		a.userCancelled = true
	}
	c.current = nil
	c.sessionID = ""
	c.mu.Unlock()

	if a != nil {
		a.cancel()
	}
}

// Snapshot returns a copy of the current (or last) run. An idle controller
// reports RunStatusIdle.
func (c *Controller) Snapshot() core.Run {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return core.Run{Status: core.RunStatusIdle}
	}
	return c.current.run
}

// Status returns the current run status.
func (c *Controller) Status() core.RunStatus { return c.Snapshot().Status }

// SessionID returns the session retained from the last run.created event.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Active reports whether a run is in progress.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && !c.current.done
}

func (c *Controller) snapshot(a *attempt) core.Run {
	c.mu.Lock()
	defer c.mu.Unlock()
	return a.run
}

func toRunError(err error) *core.RunError {
	if err == nil {
		return nil
	}
	var re *core.RunError
	if errors.As(err, &re) {
		return re
	}
	code := "transport_error"
	switch {
	case errors.Is(err, core.ErrTimeout):
		code = "timeout"
	case errors.Is(err, core.ErrStreamEnded):
		code = "stream_ended"
	}
	return &core.RunError{Code: code, Message: err.Error()}
}
