// Package gemini provides a model.Model backed by the Google Gen AI SDK.
// Google Search grounding metadata is converted into core citations whose
// segment offsets index the generated text.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/model"
	"google.golang.org/genai"
)

// Options configures the Gemini model adapter.
type Options struct {
	Model       string
	Temperature float32
	APIKey      string
	// Grounding enables the Google Search tool so answers carry citations.
	Grounding bool
}

// Model wraps genai.Client behind the generic model.Model interface.
type Model struct {
	client *genai.Client
	opts   Options
}

// NewModel creates a new Gemini model. It fails when the client cannot be
// configured (e.g. missing API key and no ambient credentials).
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := defaultOptions(optFns...)

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Model{client: client, opts: opts}, nil
}

// NewModelFromClient creates a new Gemini model from an existing client.
func NewModelFromClient(client *genai.Client, optFns ...func(o *Options)) *Model {
	return &Model{client: client, opts: defaultOptions(optFns...)}
}

func defaultOptions(optFns ...func(o *Options)) Options {
	opts := Options{
		Model:       "gemini-2.5-flash",
		Temperature: 0.7,
		Grounding:   true,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

// Generate implements model.Model. Non-streaming requests still use the
// streaming endpoint and only emit the final response.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		var (
			text     strings.Builder
			metadata *genai.GroundingMetadata
			usage    *model.TokenUsage
			finish   = "stop"
		)
		for resp, err := range m.client.Models.GenerateContentStream(ctx, m.opts.Model, buildContents(req), m.buildConfig(req)) {
			if err != nil {
				errCh <- fmt.Errorf("gemini streaming error: %w", err)
				return
			}
			if resp == nil {
				continue
			}
			if resp.UsageMetadata != nil {
				usage = &model.TokenUsage{
					PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
					CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
					TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
				}
			}
			if len(resp.Candidates) == 0 {
				continue
			}
			cand := resp.Candidates[0]
			if cand.GroundingMetadata != nil {
				metadata = cand.GroundingMetadata
			}
			if cand.FinishReason != "" {
				finish = strings.ToLower(string(cand.FinishReason))
			}
			chunk := candidateText(cand)
			if chunk == "" {
				continue
			}
			text.WriteString(chunk)
			if req.Stream {
				out <- model.Response{
					ID:      resp.ResponseID,
					Partial: true,
					Content: core.Content{Role: "assistant", Parts: []core.Part{core.TextPart{Text: chunk}}},
				}
			}
		}

		out <- model.Response{
			Partial:      false,
			Content:      core.Content{Role: "assistant", Parts: []core.Part{core.TextPart{Text: text.String()}}},
			Citations:    groundingCitations(metadata),
			FinishReason: finish,
			Usage:        usage,
		}
	}()

	return out, errCh
}

func (m *Model) buildConfig(req model.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(m.opts.Temperature),
	}
	if req.Instructions != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.Instructions}},
		}
	}
	if m.opts.Grounding {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	return config
}

func buildContents(req model.Request) []*genai.Content {
	var contents []*genai.Content
	for _, c := range req.Contents {
		role := genai.RoleUser
		switch c.Role {
		case "system":
			continue
		case "assistant":
			role = genai.RoleModel
		}

		var parts []*genai.Part
		for _, p := range c.Parts {
			switch pt := p.(type) {
			case core.TextPart:
				if pt.Text != "" {
					parts = append(parts, &genai.Part{Text: pt.Text})
				}
			case core.FilePart:
				parts = append(parts, &genai.Part{Text: fmt.Sprintf("[attached file: %s (%s)]", pt.File.Name, pt.File.MimeType)})
			}
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: string(role), Parts: parts})
	}
	return contents
}

func candidateText(cand *genai.Candidate) string {
	if cand == nil || cand.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil && !part.Thought {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

// groundingCitations maps grounding supports to citations. Segment offsets
// are byte offsets into the response text; each referenced web chunk yields
// one citation on the supported segment.
func groundingCitations(md *genai.GroundingMetadata) []core.Citation {
	if md == nil {
		return nil
	}
	var out []core.Citation
	for _, support := range md.GroundingSupports {
		if support == nil || support.Segment == nil {
			continue
		}
		start := int(support.Segment.StartIndex)
		end := int(support.Segment.EndIndex)
		for _, idx := range support.GroundingChunkIndices {
			if int(idx) < 0 || int(idx) >= len(md.GroundingChunks) {
				continue
			}
			chunk := md.GroundingChunks[idx]
			if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
				continue
			}
			out = append(out, core.Citation{
				URL:        chunk.Web.URI,
				Title:      chunk.Web.Title,
				StartIndex: core.IntPtr(start),
				EndIndex:   core.IntPtr(end),
			})
		}
	}
	return out
}

// Info returns metadata describing this Gemini model implementation.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "gemini"}
}
