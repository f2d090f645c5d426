package run

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	NopHandler
	types  []core.EventType
	text   string
	output string
	err    error
}

func (r *recorder) OnRunCreated(ev core.Event) { r.types = append(r.types, ev.Type) }
func (r *recorder) OnPart(ev core.Event) {
	r.types = append(r.types, ev.Type)
	r.text += ev.Content
}
func (r *recorder) OnMessageCompleted(ev core.Event) { r.types = append(r.types, ev.Type) }
func (r *recorder) OnCompleted(ev core.Event) {
	r.types = append(r.types, ev.Type)
	r.output = ev.Output
}
func (r *recorder) OnFailed(ev core.Event, err error) {
	r.types = append(r.types, ev.Type)
	r.err = err
}
func (r *recorder) OnCancelled(ev core.Event) { r.types = append(r.types, ev.Type) }

func newController(tr core.Transport, optFns ...func(o *Options)) *Controller {
	return New(append([]func(o *Options){func(o *Options) { o.Transport = tr }}, optFns...)...)
}

func drain(t *testing.T, ch <-chan core.Event) []core.Event {
	t.Helper()
	var out []core.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out draining run events")
		}
	}
}

func terminalCount(evs []core.Event) int {
	n := 0
	for _, ev := range evs {
		if ev.Type.IsTerminal() {
			n++
		}
	}
	return n
}

func TestRun_Completed(t *testing.T) {
	tr := &testutil.FakeTransport{Events: testutil.TextRun("r-1", "s-1", "Hello", ", world")}
	ctrl := newController(tr)

	rec := &recorder{}
	res, err := ctrl.Run(context.Background(), core.RunRequest{AgentName: "echo"}, rec)
	require.NoError(t, err)

	assert.Equal(t, core.RunStatusCompleted, res.Status)
	assert.Equal(t, "r-1", res.ID)
	assert.Equal(t, "s-1", res.SessionID)
	assert.Equal(t, "Hello, world", res.Output)
	assert.False(t, res.Stats.EndTime.IsZero())
	assert.NoError(t, res.Error)

	assert.Equal(t, "Hello, world", rec.text)
	assert.Equal(t, "Hello, world", rec.output)
	assert.Equal(t, []core.EventType{
		core.EventRunCreated,
		core.EventMessagePart,
		core.EventMessagePart,
		core.EventMessageCompleted,
		core.EventRunCompleted,
	}, rec.types)
	assert.False(t, ctrl.Active())
}

func TestRun_SessionReuse(t *testing.T) {
	tr := &testutil.FakeTransport{Events: testutil.TextRun("r-1", "s-1", "x")}
	ctrl := newController(tr)

	_, err := ctrl.Run(context.Background(), core.RunRequest{AgentName: "echo"}, NopHandler{})
	require.NoError(t, err)
	assert.Equal(t, "s-1", ctrl.SessionID())

	_, err = ctrl.Run(context.Background(), core.RunRequest{AgentName: "echo"}, NopHandler{})
	require.NoError(t, err)

	reqs := tr.Requests()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[0].SessionID)
	assert.Equal(t, "s-1", reqs[1].SessionID)
}

func TestStart_RejectsConcurrentRun(t *testing.T) {
	tr := &testutil.FakeTransport{Events: []core.Event{core.NewRunCreatedEvent("r-1", "")}, Hold: true}
	ctrl := newController(tr)

	ch, err := ctrl.Start(context.Background(), core.RunRequest{AgentName: "echo"})
	require.NoError(t, err)

	_, err = ctrl.Start(context.Background(), core.RunRequest{AgentName: "echo"})
	assert.ErrorIs(t, err, core.ErrRunActive)

	require.NoError(t, ctrl.Cancel())
	drain(t, ch)

	_, err = ctrl.Start(context.Background(), core.RunRequest{AgentName: "echo"})
	assert.NoError(t, err)
	ctrl.Reset()
}

func TestCancel_Idempotent(t *testing.T) {
	tr := &testutil.FakeTransport{
		Events: []core.Event{core.NewRunCreatedEvent("r-1", "s-1"), core.NewTextPartEvent("partial")},
		Hold:   true,
	}
	ctrl := newController(tr)

	ch, err := ctrl.Start(context.Background(), core.RunRequest{AgentName: "slow"})
	require.NoError(t, err)

	first := <-ch
	second := <-ch
	assert.Equal(t, core.EventRunCreated, first.Type)
	assert.Equal(t, core.EventMessagePart, second.Type)

	require.NoError(t, ctrl.Cancel())
	require.NoError(t, ctrl.Cancel())

	rest := drain(t, ch)
	require.Len(t, rest, 1)
	assert.Equal(t, core.EventRunCancelled, rest[0].Type)
	assert.Equal(t, "r-1", rest[0].RunID)

	assert.Equal(t, []string{"r-1"}, tr.Cancels())
	snap := ctrl.Snapshot()
	assert.Equal(t, core.RunStatusCancelled, snap.Status)
	assert.NoError(t, snap.Error)
	assert.False(t, snap.Stats.EndTime.IsZero())

	require.NoError(t, ctrl.Cancel())
	assert.Len(t, tr.Cancels(), 1)
}

func TestCancel_AfterCompletionIsNoop(t *testing.T) {
	tr := &testutil.FakeTransport{Events: testutil.TextRun("r-1", "s-1", "done")}
	ctrl := newController(tr)

	res, err := ctrl.Run(context.Background(), core.RunRequest{AgentName: "echo"}, NopHandler{})
	require.NoError(t, err)
	require.Equal(t, core.RunStatusCompleted, res.Status)

	require.NoError(t, ctrl.Cancel())
	assert.Empty(t, tr.Cancels())
	assert.Equal(t, core.RunStatusCompleted, ctrl.Status())
}

func TestCancel_RemoteFailureIsReported(t *testing.T) {
	tr := &testutil.FakeTransport{
		Events:    []core.Event{core.NewRunCreatedEvent("r-1", "")},
		Hold:      true,
		CancelErr: errors.New("unreachable"),
	}
	ctrl := newController(tr)

	ch, err := ctrl.Start(context.Background(), core.RunRequest{AgentName: "slow"})
	require.NoError(t, err)
	<-ch

	assert.Error(t, ctrl.Cancel())
	evs := drain(t, ch)
	require.Len(t, evs, 1)
	assert.Equal(t, core.EventRunCancelled, evs[0].Type)
}

// handTransport ignores context cancellation so the test decides exactly
// which events arrive after a cancel.
type handTransport struct {
	events chan core.Event
	errs   chan error
}

func (h *handTransport) Open(context.Context, core.RunRequest) (<-chan core.Event, <-chan error, error) {
	return h.events, h.errs, nil
}

func (h *handTransport) Cancel(context.Context, string) error { return nil }

func TestCancel_InFlightEventsForwardedAndCancelWins(t *testing.T) {
	tr := &handTransport{events: make(chan core.Event, 8), errs: make(chan error)}
	ctrl := newController(tr)

	ch, err := ctrl.Start(context.Background(), core.RunRequest{AgentName: "echo"})
	require.NoError(t, err)

	tr.events <- core.NewRunCreatedEvent("r-1", "")
	require.Equal(t, core.EventRunCreated, (<-ch).Type)

	require.NoError(t, ctrl.Cancel())

	tr.events <- core.NewTextPartEvent("late bytes")
	tr.events <- core.NewRunCompletedEvent("r-1", "late bytes")
	close(tr.events)
	close(tr.errs)

	evs := drain(t, ch)
	require.Len(t, evs, 2)
	assert.Equal(t, "late bytes", evs[0].Content)
	assert.Equal(t, core.EventRunCancelled, evs[1].Type)
	assert.Equal(t, core.RunStatusCancelled, ctrl.Status())
}

func TestRun_TransportErrorFails(t *testing.T) {
	boom := errors.New("connection reset")
	tr := &testutil.FakeTransport{
		Events:    []core.Event{core.NewRunCreatedEvent("r-1", ""), core.NewTextPartEvent("part")},
		StreamErr: boom,
	}
	ctrl := newController(tr)

	rec := &recorder{}
	res, err := ctrl.Run(context.Background(), core.RunRequest{AgentName: "echo"}, rec)
	require.NoError(t, err)

	assert.Equal(t, core.RunStatusFailed, res.Status)
	assert.ErrorIs(t, res.Error, core.ErrTransport)
	assert.ErrorIs(t, res.Error, boom)
	assert.ErrorIs(t, rec.err, boom)
	assert.Equal(t, "part", rec.text)
	assert.Equal(t, core.EventRunFailed, rec.types[len(rec.types)-1])
}

func TestRun_PrematureEOFFails(t *testing.T) {
	tr := &testutil.FakeTransport{Events: []core.Event{core.NewRunCreatedEvent("r-1", "")}}
	ctrl := newController(tr)

	res, err := ctrl.Run(context.Background(), core.RunRequest{AgentName: "echo"}, NopHandler{})
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusFailed, res.Status)
	assert.ErrorIs(t, res.Error, core.ErrStreamEnded)
}

func TestRun_ServerFailure(t *testing.T) {
	tr := &testutil.FakeTransport{Events: []core.Event{
		core.NewRunCreatedEvent("r-1", ""),
		core.NewRunFailedEvent("r-1", &core.RunError{Code: "model_error", Message: "rate limited"}),
	}}
	ctrl := newController(tr)

	rec := &recorder{}
	res, err := ctrl.Run(context.Background(), core.RunRequest{AgentName: "echo"}, rec)
	require.NoError(t, err)

	assert.Equal(t, core.RunStatusFailed, res.Status)
	var re *core.RunError
	require.ErrorAs(t, rec.err, &re)
	assert.Equal(t, "model_error", re.Code)
	assert.ErrorAs(t, res.Error, &re)
}

func TestRun_Timeout(t *testing.T) {
	tr := &testutil.FakeTransport{Events: []core.Event{core.NewRunCreatedEvent("r-1", "")}, Hold: true}
	ctrl := newController(tr, func(o *Options) { o.Timeout = 20 * time.Millisecond })

	res, err := ctrl.Run(context.Background(), core.RunRequest{AgentName: "slow"}, NopHandler{})
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusFailed, res.Status)
	assert.ErrorIs(t, res.Error, core.ErrTimeout)
	assert.Equal(t, []string{"r-1"}, tr.Cancels())
}

func TestRun_CallerContextCancelled(t *testing.T) {
	tr := &testutil.FakeTransport{Events: []core.Event{core.NewRunCreatedEvent("r-1", "")}, Hold: true}
	ctrl := newController(tr)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := ctrl.Start(ctx, core.RunRequest{AgentName: "slow"})
	require.NoError(t, err)
	<-ch
	cancel()

	evs := drain(t, ch)
	require.Len(t, evs, 1)
	assert.Equal(t, core.EventRunCancelled, evs[0].Type)
}

func TestStart_SetupErrorIsSynchronous(t *testing.T) {
	tr := &testutil.FakeTransport{OpenErr: core.ErrAgentNotFound}
	ctrl := newController(tr)

	_, err := ctrl.Start(context.Background(), core.RunRequest{AgentName: "missing"})
	assert.ErrorIs(t, err, core.ErrAgentNotFound)
	assert.Equal(t, core.RunStatusFailed, ctrl.Status())
	assert.False(t, ctrl.Active())
}

func TestReset(t *testing.T) {
	tr := &testutil.FakeTransport{Events: testutil.TextRun("r-1", "s-1", "x")}
	ctrl := newController(tr)

	_, err := ctrl.Run(context.Background(), core.RunRequest{AgentName: "echo"}, NopHandler{})
	require.NoError(t, err)
	require.Equal(t, "s-1", ctrl.SessionID())

	ctrl.Reset()
	assert.Empty(t, ctrl.SessionID())
	assert.Equal(t, core.RunStatusIdle, ctrl.Status())

	_, err = ctrl.Run(context.Background(), core.RunRequest{AgentName: "echo"}, NopHandler{})
	require.NoError(t, err)
	assert.Empty(t, tr.Requests()[1].SessionID)
}

func TestReset_AbortsActiveRun(t *testing.T) {
	tr := &testutil.FakeTransport{Events: []core.Event{core.NewRunCreatedEvent("r-1", "s-1")}, Hold: true}
	ctrl := newController(tr)

	ch, err := ctrl.Start(context.Background(), core.RunRequest{AgentName: "slow"})
	require.NoError(t, err)
	<-ch

	ctrl.Reset()
	evs := drain(t, ch)
	assert.Equal(t, 1, terminalCount(evs))
	assert.Equal(t, core.EventRunCancelled, evs[len(evs)-1].Type)
	assert.Equal(t, core.RunStatusIdle, ctrl.Status())
	assert.Empty(t, tr.Cancels())
}

func TestDispatch_FailedFallsBackToPayload(t *testing.T) {
	rec := &recorder{}
	Dispatch(rec, core.NewRunFailedEvent("r", &core.RunError{Message: "x"}), nil)
	assert.EqualError(t, rec.err, "x")

	Dispatch(rec, core.Event{Type: "unknown"}, nil)
	assert.Len(t, rec.types, 1)
}
