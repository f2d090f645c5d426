package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentdeck/agent"
	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/model"
	"github.com/hupe1980/agentdeck/session"
)

// blockingAgent emits one part and then waits for cancellation.
type blockingAgent struct {
	agent.BaseAgent
	started chan struct{}
}

func (b *blockingAgent) Run(rc *agent.RunContext) (string, error) {
	if err := rc.Emit(core.NewTextPartEvent("working")); err != nil {
		return "", err
	}
	close(b.started)
	<-rc.Done()
	return "", rc.Err()
}

type panicAgent struct{ agent.BaseAgent }

func (panicAgent) Run(*agent.RunContext) (string, error) { panic("kaboom") }

type failingAgent struct{ agent.BaseAgent }

func (failingAgent) Run(*agent.RunContext) (string, error) { return "", errors.New("model down") }

func collect(t *testing.T, ch <-chan core.Event) []core.Event {
	t.Helper()
	var out []core.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func newRunner(t *testing.T, agents ...agent.Agent) (*Runner, *session.InMemoryStore) {
	t.Helper()
	reg, err := agent.NewRegistry(agents...)
	require.NoError(t, err)
	store := session.NewInMemoryStore(0)
	return New(reg, func(o *Options) { o.SessionStore = store }), store
}

func textInput(s string) core.Parts { return core.Parts{core.TextPart{Text: s}} }

func TestRunner_CompletedRun(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.AddResponse("hi", "hello world")
	r, store := newRunner(t, agent.NewModelAgent("helper", llm))

	run, events, err := r.Run(context.Background(), core.RunRequest{AgentName: "helper", Input: textInput("hi")})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.NotEmpty(t, run.SessionID)
	assert.Equal(t, core.RunStatusCreated, run.Status)

	got := collect(t, events)
	require.NotEmpty(t, got)
	assert.Equal(t, core.EventRunCreated, got[0].Type)
	assert.Equal(t, run.ID, got[0].RunID)
	assert.Equal(t, run.SessionID, got[0].SessionID)

	last := got[len(got)-1]
	assert.Equal(t, core.EventRunCompleted, last.Type)
	assert.Equal(t, "hello world", last.Output)

	h := store.History(run.SessionID)
	require.Len(t, h, 2)
	assert.Equal(t, "hi", h[0].Text())
	assert.Equal(t, "hello world", h[1].Text())
	assert.Equal(t, 0, r.Active())
}

func TestRunner_SessionReuse(t *testing.T) {
	r, store := newRunner(t, agent.NewModelAgent("helper", model.NewMockModel("m", "mock")))

	run, events, err := r.Run(context.Background(), core.RunRequest{AgentName: "helper", Input: textInput("one"), SessionID: "s-1"})
	require.NoError(t, err)
	assert.Equal(t, "s-1", run.SessionID)
	collect(t, events)

	_, events, err = r.Run(context.Background(), core.RunRequest{AgentName: "helper", Input: textInput("two"), SessionID: "s-1"})
	require.NoError(t, err)
	collect(t, events)

	assert.Len(t, store.History("s-1"), 4)
}

func TestRunner_UnknownAgent(t *testing.T) {
	r, _ := newRunner(t)
	_, _, err := r.Run(context.Background(), core.RunRequest{AgentName: "ghost"})
	assert.ErrorIs(t, err, core.ErrAgentNotFound)
}

func TestRunner_Cancel(t *testing.T) {
	b := &blockingAgent{BaseAgent: agent.NewBaseAgent("slow"), started: make(chan struct{})}
	r, _ := newRunner(t, b)

	run, events, err := r.Run(context.Background(), core.RunRequest{AgentName: "slow"})
	require.NoError(t, err)

	<-b.started
	assert.Equal(t, 1, r.Active())
	require.NoError(t, r.Cancel(run.ID))

	got := collect(t, events)
	assert.Equal(t, core.EventRunCancelled, got[len(got)-1].Type)
	assert.ErrorIs(t, r.Cancel(run.ID), core.ErrNotFound)
}

func TestRunner_FailedRun(t *testing.T) {
	r, store := newRunner(t, &failingAgent{agent.NewBaseAgent("broken")}, &panicAgent{agent.NewBaseAgent("panics")})

	for _, name := range []string{"broken", "panics"} {
		run, events, err := r.Run(context.Background(), core.RunRequest{AgentName: name})
		require.NoError(t, err)

		got := collect(t, events)
		last := got[len(got)-1]
		assert.Equal(t, core.EventRunFailed, last.Type, name)
		require.NotNil(t, last.Error)
		assert.Equal(t, core.CodeAgentError, last.Error.Code)
		assert.Empty(t, store.History(run.SessionID))
	}
}

func TestRunner_Shutdown(t *testing.T) {
	b := &blockingAgent{BaseAgent: agent.NewBaseAgent("slow"), started: make(chan struct{})}
	r, _ := newRunner(t, b)

	_, events, err := r.Run(context.Background(), core.RunRequest{AgentName: "slow"})
	require.NoError(t, err)
	<-b.started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan []core.Event)
	go func() {
		var out []core.Event
		for ev := range events {
			out = append(out, ev)
		}
		done <- out
	}()

	require.NoError(t, r.Shutdown(ctx))
	got := <-done
	assert.Equal(t, core.EventRunCancelled, got[len(got)-1].Type)
}

func TestRunner_WorkflowStepNotFound(t *testing.T) {
	reg, err := agent.NewRegistry()
	require.NoError(t, err)
	require.NoError(t, reg.Register(agent.NewSequentialAgent("sequential", reg)))
	r := New(reg)

	_, events, err := r.Run(context.Background(), core.RunRequest{
		AgentName: "sequential",
		Input: core.Parts{core.DataPart{Data: map[string]any{
			agent.StepsKey: []any{map[string]any{"agent_name": "ghost"}},
		}}},
	})
	require.NoError(t, err)

	got := collect(t, events)
	last := got[len(got)-1]
	require.Equal(t, core.EventRunFailed, last.Type)
	assert.Equal(t, core.CodeAgentNotFound, last.Error.Code)
}
