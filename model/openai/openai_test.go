package openai

import (
	"testing"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteOffset(t *testing.T) {
	s := "héllo wörld"
	require.NotNil(t, byteOffset(s, 0))
	assert.Equal(t, 0, *byteOffset(s, 0))
	assert.Equal(t, 3, *byteOffset(s, 2))
	assert.Equal(t, len(s), *byteOffset(s, 11))
	assert.Nil(t, byteOffset(s, 12))
	assert.Nil(t, byteOffset(s, -1))
}

func TestBuildMessages(t *testing.T) {
	req := model.Request{
		Instructions: "be brief",
		Contents: []core.Content{
			{Role: "user", Parts: []core.Part{
				core.TextPart{Text: "look"},
				core.FilePart{File: core.FilePartFile{Name: "cat.png", MimeType: "image/png"}},
			}},
			{Role: "assistant", Parts: []core.Part{core.TextPart{Text: "a cat"}}},
			{Role: "user"},
		},
	}
	msgs := buildMessages(req)
	require.Len(t, msgs, 3)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	assert.NotNil(t, msgs[2].OfAssistant)
}

func TestContentText(t *testing.T) {
	c := core.Content{Parts: []core.Part{
		core.TextPart{Text: "see"},
		core.FilePart{File: core.FilePartFile{Name: "a.pdf", MimeType: "application/pdf"}},
	}}
	assert.Equal(t, "see\n[attached file: a.pdf (application/pdf)]", contentText(c))
}

func TestInfo(t *testing.T) {
	m := NewModel(func(o *Options) {
		o.Model = "gpt-test"
		o.APIKey = "sk-test"
	})
	assert.Equal(t, model.Info{Name: "gpt-test", Provider: "openai"}, m.Info())
}
