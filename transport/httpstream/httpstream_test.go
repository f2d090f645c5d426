package httpstream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentdeck/agent"
	"github.com/hupe1980/agentdeck/agentserver"
	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/model"
	"github.com/hupe1980/agentdeck/runner"
)

func drain(t *testing.T, events <-chan core.Event, errs <-chan error) ([]core.Event, error) {
	t.Helper()
	var out []core.Event
	timeout := time.After(5 * time.Second)
	for events != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream did not end")
		}
	}
	return out, <-errs
}

func TestClient_AgainstAgentServer(t *testing.T) {
	llm := model.NewMockModel("mock-1", "mock")
	llm.AddResponse("What color is the sky?", "The sky is blue.", core.Citation{
		URL:        "https://en.wikipedia.org/wiki/Sky",
		StartIndex: core.IntPtr(11),
		EndIndex:   core.IntPtr(15),
	})
	reg, err := agent.NewRegistry(agent.NewModelAgent("helper", llm))
	require.NoError(t, err)
	srv := httptest.NewServer(agentserver.New(runner.New(reg)))
	defer srv.Close()

	c := New(srv.URL)

	agents, err := c.ListAgents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.AgentInfo{{Name: "helper", Description: "helper agent"}}, agents)

	events, errs, err := c.Open(context.Background(), core.RunRequest{
		AgentName: "helper",
		Input:     core.Parts{core.TextPart{Text: "What color is the sky?"}},
	})
	require.NoError(t, err)

	got, streamErr := drain(t, events, errs)
	require.NoError(t, streamErr)
	require.NotEmpty(t, got)
	assert.Equal(t, core.EventRunCreated, got[0].Type)
	assert.Equal(t, core.EventRunCompleted, got[len(got)-1].Type)

	var citation *core.Citation
	for _, ev := range got {
		if ev.MetadataKind() == core.MetadataKindCitation {
			c, ok := core.ParseCitation(ev.Metadata)
			require.True(t, ok)
			citation = &c
		}
	}
	require.NotNil(t, citation)
	assert.Equal(t, 11, *citation.StartIndex)
	assert.Equal(t, 15, *citation.EndIndex)

	_, _, err = c.Open(context.Background(), core.RunRequest{AgentName: "ghost"})
	assert.ErrorIs(t, err, core.ErrAgentNotFound)

	assert.NoError(t, c.Cancel(context.Background(), "unknown-run"))
}

func TestClient_ParsesSSEAndSkipsNoise(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer t", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "event: message\ndata: {\"type\":\"run.created\",\"run_id\":\"r-1\"}\n\n")
		fmt.Fprint(w, "not json\n")
		fmt.Fprint(w, "{\"type\":\"message.part\",\"content\":\"hi\"}\n")
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	c := New(srv.URL, func(o *Options) {
		o.Header = http.Header{"Authorization": []string{"Bearer t"}}
	})
	events, errs, err := c.Open(context.Background(), core.RunRequest{AgentName: "x"})
	require.NoError(t, err)

	got, streamErr := drain(t, events, errs)
	require.NoError(t, streamErr)
	require.Len(t, got, 2)
	assert.Equal(t, "r-1", got[0].RunID)
	assert.Equal(t, "hi", got[1].Content)
}

func TestClient_StatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/cancel"):
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":{"code":"agent_error","message":"overloaded"}}`)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, _, err := c.Open(context.Background(), core.RunRequest{AgentName: "x"})
	require.ErrorIs(t, err, core.ErrTransport)
	assert.Contains(t, err.Error(), "overloaded")

	assert.ErrorIs(t, c.Cancel(context.Background(), "r-1"), core.ErrTransport)
}

func TestClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, _, err := New(url).Open(context.Background(), core.RunRequest{AgentName: "x"})
	assert.ErrorIs(t, err, core.ErrTransport)
}

func TestClient_ContextCancelMidStream(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "{\"type\":\"run.created\",\"run_id\":\"r-1\"}\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	events, errs, err := New(srv.URL).Open(ctx, core.RunRequest{AgentName: "x"})
	require.NoError(t, err)

	first := <-events
	assert.Equal(t, core.EventRunCreated, first.Type)
	cancel()

	_, streamErr := drain(t, events, errs)
	assert.ErrorIs(t, streamErr, context.Canceled)
}

func TestEventPayload(t *testing.T) {
	tests := []struct {
		line string
		want string
		ok   bool
	}{
		{line: `{"type":"generic"}`, want: `{"type":"generic"}`, ok: true},
		{line: `data: {"type":"generic"}`, want: `{"type":"generic"}`, ok: true},
		{line: `data:{"type":"generic"}`, want: `{"type":"generic"}`, ok: true},
		{line: "", ok: false},
		{line: ": comment", ok: false},
		{line: "event: message", ok: false},
		{line: "id: 3", ok: false},
		{line: "data: [DONE]", ok: false},
	}

	for _, tt := range tests {
		got, ok := eventPayload([]byte(tt.line))
		assert.Equal(t, tt.ok, ok, tt.line)
		if tt.ok {
			assert.Equal(t, tt.want, string(got))
		}
	}
}
