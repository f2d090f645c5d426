package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentdeck/compose"
	"github.com/hupe1980/agentdeck/conversation"
	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/message"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		want  command
		err   bool
	}{
		{input: "hello there", want: command{text: "hello there"}},
		{input: "/exit", want: command{name: "exit"}},
		{input: "/agent writer", want: command{name: "agent", agents: []string{"writer"}}},
		{input: "/agent", err: true},
		{input: "/chain writer, translator Write a haiku", want: command{name: "chain", agents: []string{"writer"}, text: "translator Write a haiku"}},
		{input: "/chain writer,translator Write a haiku", want: command{name: "chain", agents: []string{"writer", "translator"}, text: "Write a haiku"}},
		{input: "/chain", err: true},
		{input: "/dance", err: true},
	}

	for _, tt := range tests {
		got, err := parseCommand(tt.input)
		if tt.err {
			assert.Error(t, err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}

func TestRenderConversation(t *testing.T) {
	reply := message.NewAgent()
	reply = message.AppendText(reply, "The sky is blue.")
	reply, _ = message.AddCitation(reply, core.Citation{URL: "https://example.com/sky", StartIndex: core.IntPtr(11), EndIndex: core.IntPtr(15)})
	reply = message.Complete(reply)

	failed := message.Fail(message.AppendText(message.NewAgent(), "partial"), errors.New("connection reset"))

	out := renderConversation(conversation.Snapshot{Messages: []message.Message{
		message.NewUser(core.TextPart{Text: "What color is the sky?"}),
		reply,
		failed,
	}}, 0)

	assert.Contains(t, out, "What color is the sky?")
	assert.Contains(t, out, "The sky is [blue]^1.")
	assert.Contains(t, out, "[1] https://example.com/sky")
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "connection reset")
}

func TestRenderChain(t *testing.T) {
	out := renderChain(compose.Snapshot{Steps: []compose.StepState{
		{Index: 0, Step: compose.Step{AgentName: "writer"}, Message: message.AppendText(message.NewAgent(), "old pond"), Logs: []string{"Running step 1/2: writer"}},
		{Index: 1, Step: compose.Step{AgentName: "translator"}, Message: message.NewAgent(), IsPending: true},
	}}, 0)

	assert.Contains(t, out, "Step 1: writer")
	assert.Contains(t, out, "Running step 1/2: writer")
	assert.Contains(t, out, "old pond")
	assert.Contains(t, out, "Step 2: translator")
	assert.Contains(t, out, "(pending)")
}

func TestLatestKeepsNewest(t *testing.T) {
	ch := make(latest[int], 1)
	ch.put(1)
	ch.put(2)
	ch.put(3)
	assert.Equal(t, 3, <-ch)
}
