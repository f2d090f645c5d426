package anthropic

import (
	"testing"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildParams(t *testing.T) {
	m := NewModel(func(o *Options) { o.APIKey = "test" })
	params := m.buildParams(model.Request{
		Instructions: "answer in one word",
		Contents: []core.Content{
			{Role: "system", Parts: []core.Part{core.TextPart{Text: "be polite"}}},
			{Role: "user", Parts: []core.Part{core.TextPart{Text: "colour of sky?"}}},
			{Role: "assistant", Parts: []core.Part{core.TextPart{Text: "blue"}}},
			{Role: "user", Parts: []core.Part{core.FilePart{File: core.FilePartFile{Name: "sky.png", MimeType: "image/png"}}}},
			{Role: "user"},
		},
	})

	require.Len(t, params.System, 2)
	assert.Equal(t, "answer in one word", params.System[0].Text)
	assert.Equal(t, "be polite", params.System[1].Text)
	assert.Len(t, params.Messages, 3)
	assert.EqualValues(t, "assistant", params.Messages[1].Role)
	assert.Equal(t, int64(4096), params.MaxTokens)
}

func TestInfo(t *testing.T) {
	m := NewModel(func(o *Options) { o.Model = "claude-test" })
	assert.Equal(t, model.Info{Name: "claude-test", Provider: "anthropic"}, m.Info())
}
