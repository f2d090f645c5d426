package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/logging"
	"github.com/hupe1980/agentdeck/model"
)

// ModelAgentOptions configures a ModelAgent instance.
//
// Use functional options with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	Instruction        Instruction
	Description        string
	EnableStreaming    bool
	MaxHistoryMessages int
	// EmitTrajectory adds a trajectory record describing the model call.
	EmitTrajectory bool
}

// ModelAgent is a prompt wrapper: it resolves its instruction, sends the
// session history plus the user input to a model.Model and streams the
// answer back as message parts. Model citations become citation parts.
type ModelAgent struct {
	BaseAgent                      // Embedded identity
	llm                model.Model // Language model interface
	instruction        Instruction // Instructions for the LLM
	enableStreaming    bool        // Whether to stream responses
	maxHistoryMessages int         // Maximum number of history messages sent to the model
	emitTrajectory     bool
}

// NewModelAgent creates a new model-based agent with sensible defaults.
func NewModelAgent(name string, llm model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		Instruction:        NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
		EnableStreaming:    true,
		MaxHistoryMessages: 20,
		EmitTrajectory:     true,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	a := &ModelAgent{
		BaseAgent:          NewBaseAgent(name),
		llm:                llm,
		instruction:        opts.Instruction,
		enableStreaming:    opts.EnableStreaming,
		maxHistoryMessages: opts.MaxHistoryMessages,
		emitTrajectory:     opts.EmitTrajectory,
	}
	if opts.Description != "" {
		a.SetDescription(opts.Description)
	}
	return a
}

// Model returns the language model instance.
func (a *ModelAgent) Model() model.Model { return a.llm }

// Run implements Agent.
func (a *ModelAgent) Run(rc *RunContext) (string, error) {
	instructions, err := a.instruction.Resolve(rc)
	if err != nil {
		return "", fmt.Errorf("failed to resolve instruction: %w", err)
	}

	req := model.Request{
		Instructions: instructions,
		Contents:     append(a.history(rc), rc.UserContent()),
		Stream:       a.enableStreaming,
	}

	info := a.llm.Info()

	if a.emitTrajectory {
		if err := rc.Emit(core.NewTrajectoryEvent(map[string]any{
			"message":  fmt.Sprintf("Calling %s model %s", info.Provider, info.Name),
			"model":    info.Name,
			"provider": info.Provider,
		})); err != nil {
			return "", err
		}
	}

	start := time.Now()
	respCh, errCh := a.llm.Generate(rc, req)

	var (
		streamed strings.Builder
		final    *model.Response
	)
	for resp := range respCh {
		if resp.Partial {
			chunk := resp.Content.Text()
			if chunk == "" {
				continue
			}
			streamed.WriteString(chunk)
			if err := rc.Emit(core.NewTextPartEvent(chunk)); err != nil {
				return "", err
			}
			continue
		}
		r := resp
		final = &r
	}
	if err := <-errCh; err != nil {
		logging.ModelCall(rc.Logger, info.Name, 0, time.Since(start), err)
		return "", fmt.Errorf("model %s: %w", info.Name, err)
	}
	if final == nil {
		return "", fmt.Errorf("model %s returned no final response", info.Name)
	}

	tokens := 0
	if final.Usage != nil {
		tokens = final.Usage.TotalTokens
	}
	logging.ModelCall(rc.Logger, info.Name, tokens, time.Since(start), nil)

	output := final.Content.Text()
	if streamed.Len() == 0 && output != "" {
		if err := rc.Emit(core.NewTextPartEvent(output)); err != nil {
			return "", err
		}
	} else if streamed.String() != output {
		// Citation offsets index into the final text; keep the streamed text
		// authoritative when the two disagree.
		rc.Logger.Warn("agent.model.stream_mismatch", "agent", a.Name(), "model", info.Name)
		output = streamed.String()
	}

	for _, c := range final.Citations {
		if c.EndIndex != nil && *c.EndIndex > len(output) {
			continue
		}
		if err := rc.Emit(core.NewCitationEvent(c)); err != nil {
			return "", err
		}
	}

	if a.emitTrajectory && final.Usage != nil {
		if err := rc.Emit(core.NewTrajectoryEvent(map[string]any{
			"message":           "Model call finished",
			"finish_reason":     final.FinishReason,
			"prompt_tokens":     final.Usage.PromptTokens,
			"completion_tokens": final.Usage.CompletionTokens,
			"duration_ms":       time.Since(start).Milliseconds(),
		})); err != nil {
			return "", err
		}
	}

	if err := rc.Emit(core.NewMessageCompletedEvent()); err != nil {
		return "", err
	}

	return output, nil
}

// history returns the trailing window of session history sent to the model.
func (a *ModelAgent) history(rc *RunContext) []core.Content {
	h := rc.History
	if a.maxHistoryMessages > 0 && len(h) > a.maxHistoryMessages {
		h = h[len(h)-a.maxHistoryMessages:]
	}
	out := make([]core.Content, len(h), len(h)+1)
	copy(out, h)
	return out
}
