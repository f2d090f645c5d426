package agentdeck

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentdeck/agent"
	"github.com/hupe1980/agentdeck/agentserver"
	"github.com/hupe1980/agentdeck/compose"
	"github.com/hupe1980/agentdeck/config"
	"github.com/hupe1980/agentdeck/conversation"
	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/message"
	"github.com/hupe1980/agentdeck/model"
	"github.com/hupe1980/agentdeck/runner"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	skyModel := model.NewMockModel("sky", "mock")
	skyModel.AddResponse("What color is the sky?", "The sky is blue.", core.Citation{
		URL:        "https://example.com/sky",
		StartIndex: core.IntPtr(11),
		EndIndex:   core.IntPtr(15),
	})
	writer := model.NewMockModel("writer", "mock")
	writer.AddResponse("Write a haiku", "old pond frog")
	translator := model.NewMockModel("translator", "mock")
	translator.AddResponse("Translate: old pond frog", "vieil étang grenouille")

	reg, err := agent.NewRegistry(
		agent.NewModelAgent("assistant", skyModel),
		agent.NewModelAgent("writer", writer),
		agent.NewModelAgent("translator", translator),
	)
	require.NoError(t, err)
	require.NoError(t, reg.Register(agent.NewSequentialAgent(compose.DefaultWorkflowAgent, reg)))

	srv := httptest.NewServer(agentserver.New(runner.New(reg)))
	t.Cleanup(srv.Close)
	return srv
}

func TestDeck_ConversationEndToEnd(t *testing.T) {
	srv := newServer(t)

	for _, transport := range []config.Transport{config.TransportHTTP, config.TransportWebSocket} {
		t.Run(string(transport), func(t *testing.T) {
			deck, err := New(srv.URL, func(o *Options) { o.Transport = transport })
			require.NoError(t, err)

			var updates int
			conv := deck.NewConversation(func(conversation.Snapshot) { updates++ })

			run, err := conv.Send(context.Background(), "assistant", "What color is the sky?")
			require.NoError(t, err)
			assert.Equal(t, core.RunStatusCompleted, run.Status)
			assert.NotEmpty(t, run.SessionID)

			msgs := conv.Messages()
			require.Len(t, msgs, 2)
			reply := msgs[1]
			assert.Equal(t, message.StatusCompleted, reply.Status)
			assert.Equal(t, "The sky is blue.", reply.RawContent)
			assert.Equal(t, "The sky is [blue]^1.", reply.Content)
			require.Len(t, reply.Sources, 1)
			assert.Equal(t, 1, reply.Sources[0].Number)
			assert.NotEmpty(t, reply.Trajectory)
			assert.Positive(t, updates)

			// The follow-up turn continues the server session.
			second, err := conv.Send(context.Background(), "assistant", "And at night?")
			require.NoError(t, err)
			assert.Equal(t, run.SessionID, second.SessionID)
		})
	}
}

func TestDeck_ComposeEndToEnd(t *testing.T) {
	srv := newServer(t)
	deck, err := New(srv.URL)
	require.NoError(t, err)

	orch := deck.NewOrchestrator(nil)
	res, err := orch.Run(context.Background(), []compose.Step{
		{AgentName: "writer", Instruction: "Write a haiku"},
		{AgentName: "translator", Instruction: "Translate: {{.previous}}"},
	})
	require.NoError(t, err)

	assert.Equal(t, core.RunStatusCompleted, res.Run.Status)
	assert.Equal(t, "vieil étang grenouille", res.Output)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "old pond frog", res.Steps[0].Result)
	assert.Equal(t, "vieil étang grenouille", res.Steps[1].Result)
	for _, s := range res.Steps {
		assert.False(t, s.IsPending)
		assert.Equal(t, message.StatusCompleted, s.Message.Status)
		assert.NotEmpty(t, s.Logs)
	}
}

func TestDeck_CheckAgent(t *testing.T) {
	srv := newServer(t)
	deck, err := New(srv.URL)
	require.NoError(t, err)

	agents, err := deck.ListAgents(context.Background())
	require.NoError(t, err)
	assert.Len(t, agents, 4)

	assert.NoError(t, deck.CheckAgent(context.Background(), "writer"))
	assert.ErrorIs(t, deck.CheckAgent(context.Background(), "ghost"), core.ErrAgentNotFound)
}

func TestDeck_UnknownAgentFailsSend(t *testing.T) {
	srv := newServer(t)
	deck, err := New(srv.URL)
	require.NoError(t, err)

	conv := deck.NewConversation(nil)
	_, err = conv.Send(context.Background(), "ghost", "hello")
	require.ErrorIs(t, err, core.ErrAgentNotFound)

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, message.StatusFailed, msgs[1].Status)
}

func TestNew_InvalidTransport(t *testing.T) {
	_, err := New("http://localhost", func(o *Options) { o.Transport = "smoke-signals" })
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	cfg := &config.Config{ServerURL: "http://localhost:8080", Transport: config.TransportWebSocket}
	deck, err := NewFromConfig(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, deck.Transport())
}
