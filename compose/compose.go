// Package compose runs a chain of agents as one sequential workflow.
//
// All steps are declared up front and sent to the server's workflow agent in
// a single run. The server executes them in order and tags every event with
// the originating step index (agent_idx); the Orchestrator demultiplexes the
// stream into one reconstructed message per step. Step boundaries are only
// ever detected from a change of that index.
package compose

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/logging"
	"github.com/hupe1980/agentdeck/message"
	"github.com/hupe1980/agentdeck/run"
)

// DefaultWorkflowAgent is the server side agent executing step chains.
const DefaultWorkflowAgent = "sequential"

// StepsKey is the data part key carrying the declared steps.
const StepsKey = "steps"

// ErrNoSteps is returned when Run is called without steps.
var ErrNoSteps = errors.New("compose: no steps")

// Step is one agent invocation of a chain.
type Step struct {
	AgentName   string `json:"agent_name"`
	Instruction string `json:"instruction,omitempty"`
}

// StepState is the observed state of one step.
type StepState struct {
	Index     int
	Step      Step
	Message   message.Message
	IsPending bool
	Result    string
	Logs      []string
	Stats     core.RunStats
}

// Snapshot is handed to OnUpdate after every event.
type Snapshot struct {
	Steps  []StepState
	Status core.RunStatus
}

// Result is the outcome of a chain. Output is the last step's result only;
// intermediate results stay available in Steps.
type Result struct {
	Output string
	Steps  []StepState
	Run    core.Run
}

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// Transport is used to build the controller when Controller is nil.
	Transport core.Transport
	// Controller overrides the run controller.
	Controller *run.Controller
	// WorkflowAgent names the server side sequential workflow agent.
	WorkflowAgent string
	// OnUpdate receives a snapshot after every applied event.
	OnUpdate func(Snapshot)
	// Logging services.
	Logger logging.Logger
}

// Orchestrator drives sequential chains over one run controller.
type Orchestrator struct {
	ctrl          *run.Controller
	workflowAgent string
	onUpdate      func(Snapshot)
	logger        logging.Logger

	mu      sync.Mutex
	steps   []StepState
	current int
}

// New constructs an Orchestrator with optional overrides.
func New(optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		WorkflowAgent: DefaultWorkflowAgent,
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	ctrl := opts.Controller
	if ctrl == nil {
		ctrl = run.New(func(o *run.Options) {
			o.Transport = opts.Transport
			o.Logger = opts.Logger
		})
	}

	return &Orchestrator{
		ctrl:          ctrl,
		workflowAgent: opts.WorkflowAgent,
		onUpdate:      opts.OnUpdate,
		logger:        opts.Logger,
	}
}

// StepsPart encodes steps as the data part understood by the workflow agent.
func StepsPart(steps []Step) core.DataPart {
	list := make([]any, 0, len(steps))
	for _, s := range steps {
		list = append(list, map[string]any{"agent_name": s.AgentName, "instruction": s.Instruction})
	}
	return core.DataPart{Data: map[string]any{StepsKey: list}}
}

// Run executes the chain on one stream and blocks until it ends. The error
// is non-nil only when the run could not be started.
func (o *Orchestrator) Run(ctx context.Context, steps []Step) (Result, error) {
	if len(steps) == 0 {
		return Result{}, ErrNoSteps
	}
	if o.ctrl.Active() {
		return Result{}, core.ErrRunActive
	}

	now := time.Now()
	states := make([]StepState, len(steps))
	for i, s := range steps {
		states[i] = StepState{Index: i, Step: s, Message: message.NewAgent(), IsPending: true}
	}
	states[0].Stats.StartTime = now

	o.mu.Lock()
	o.steps = states
	o.current = 0
	o.mu.Unlock()
	o.publish()

	req := core.RunRequest{
		AgentName: o.workflowAgent,
		Input:     core.Parts{StepsPart(steps)},
	}
	res, err := o.ctrl.Run(ctx, req, &chain{o: o})
	if err != nil {
		o.finalizePending(func(m message.Message) message.Message { return message.Fail(m, err) })
		return Result{Steps: o.Steps(), Run: res}, fmt.Errorf("failed to start chain: %w", err)
	}

	out := o.Steps()
	return Result{Output: out[len(out)-1].Result, Steps: out, Run: res}, nil
}

// Cancel finalizes every pending step with the current time, then cancels
// the underlying run.
func (o *Orchestrator) Cancel() error {
	o.finalizePending(message.Cancel)
	return o.ctrl.Cancel()
}

// Steps returns a copy of the step states of the current (or last) chain.
func (o *Orchestrator) Steps() []StepState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.copyStepsLocked()
}

func (o *Orchestrator) copyStepsLocked() []StepState {
	out := make([]StepState, len(o.steps))
	for i, s := range o.steps {
		s.Logs = append([]string(nil), s.Logs...)
		out[i] = s
	}
	return out
}

func (o *Orchestrator) publish() {
	if o.onUpdate == nil {
		return
	}
	o.onUpdate(Snapshot{Steps: o.Steps(), Status: o.ctrl.Status()})
}

// finalizePending ends every step still pending and applies fn to its
// message.
func (o *Orchestrator) finalizePending(fn func(message.Message) message.Message) {
	o.mu.Lock()
	now := time.Now()
	for i := range o.steps {
		s := &o.steps[i]
		if !s.IsPending {
			continue
		}
		s.IsPending = false
		s.Stats.EndTime = now
		s.Message = fn(s.Message)
		if s.Result == "" {
			s.Result = s.Message.Content
		}
		logging.StepFinished(o.logger, s.Index, s.Step.AgentName, s.Stats.Duration(), s.Message.Status == message.StatusCompleted)
	}
	o.mu.Unlock()
	o.publish()
}

// routeLocked resolves the step of ev and applies the transition rule when the
// index changed. It returns -1 when the index is out of range.
func (o *Orchestrator) routeLocked(ev core.Event) int {
	idx := o.current
	if ev.AgentIdx != nil {
		idx = *ev.AgentIdx
	}
	if idx < 0 || idx >= len(o.steps) {
		o.logger.Warn("event for unknown step dropped", "agent_idx", idx, "type", string(ev.Type))
		return -1
	}
	if idx != o.current {
		now := time.Now()
		prev := &o.steps[o.current]
		prev.IsPending = false
		prev.Stats.EndTime = now
		logging.StepFinished(o.logger, prev.Index, prev.Step.AgentName, prev.Stats.Duration(), true)

		next := &o.steps[idx]
		next.IsPending = true
		if next.Stats.StartTime.IsZero() {
			next.Stats.StartTime = now
		}
		o.current = idx
	}
	return idx
}

func (o *Orchestrator) apply(ev core.Event, fn func(s *StepState)) {
	o.mu.Lock()
	idx := o.routeLocked(ev)
	if idx >= 0 {
		fn(&o.steps[idx])
	}
	o.mu.Unlock()
	o.publish()
}

// chain adapts the orchestrator to run.Handler.
type chain struct {
	o *Orchestrator
}

func (c *chain) OnRunCreated(core.Event) { c.o.publish() }

func (c *chain) OnPart(ev core.Event) {
	c.o.apply(ev, func(s *StepState) {
		s.Message = message.ApplyPart(s.Message, ev.Part())
		// Late bytes of a finished step still count towards its result.
		if s.Message.Status == message.StatusCompleted {
			s.Result = s.Message.Content
		}
	})
}

func (c *chain) OnMessageCompleted(ev core.Event) {
	c.o.apply(ev, func(s *StepState) {
		s.Message = message.Complete(s.Message)
		s.Result = s.Message.Content
	})
}

func (c *chain) OnGeneric(ev core.Event) {
	c.o.apply(ev, func(s *StepState) {
		if ev.Message != "" {
			s.Logs = append(s.Logs, ev.Message)
		}
	})
}

func (c *chain) OnCompleted(ev core.Event) {
	c.o.apply(ev, func(*StepState) {})
	c.o.finalizePending(message.Complete)

	c.o.mu.Lock()
	if n := len(c.o.steps); n > 0 && c.o.steps[n-1].Result == "" {
		c.o.steps[n-1].Result = ev.Output
	}
	c.o.mu.Unlock()
}

func (c *chain) OnFailed(ev core.Event, err error) {
	c.o.apply(ev, func(s *StepState) {
		s.Message = message.FailRun(s.Message, err)
	})
	c.o.finalizePending(func(m message.Message) message.Message { return message.Fail(m, err) })
}

func (c *chain) OnCancelled(ev core.Event) {
	c.o.apply(ev, func(*StepState) {})
	c.o.finalizePending(message.Cancel)
}
