package agent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/internal/util"
)

// StepsKey is the data part key holding the workflow steps.
const StepsKey = "steps"

// ErrNoSteps is returned when a workflow run carries no steps.
var ErrNoSteps = errors.New("workflow input carries no steps")

// Step is one stage of a sequential workflow.
type Step struct {
	AgentName   string
	Instruction string
}

// SequentialAgent coordinates registered agents in sequence over a single
// run. The steps arrive as a data part of the run input; every event a step
// emits is tagged with its 0-based index. Each step consumes the previous
// step's output: an instruction referencing {{.previous}} receives it via
// the template, otherwise it is appended to the instruction.
type SequentialAgent struct {
	BaseAgent
	registry *Registry
}

// NewSequentialAgent creates a workflow agent resolving step agents from
// registry.
func NewSequentialAgent(name string, registry *Registry) *SequentialAgent {
	a := &SequentialAgent{
		BaseAgent: NewBaseAgent(name),
		registry:  registry,
	}
	a.SetDescription("Runs a chain of agents, feeding each step the previous output")
	return a
}

// Run implements Agent. Errors stop further processing immediately.
func (s *SequentialAgent) Run(rc *RunContext) (string, error) {
	steps, err := ParseSteps(rc.Input)
	if err != nil {
		return "", err
	}

	previous := ""
	for i, step := range steps {
		child, ok := s.registry.Get(step.AgentName)
		if !ok {
			return "", fmt.Errorf("step %d: %w: %s", i, core.ErrAgentNotFound, step.AgentName)
		}
		if child.Name() == s.Name() {
			return "", fmt.Errorf("step %d: workflow agent cannot run itself", i)
		}

		stepCtx := rc.ForStep(i, nil)
		if err := stepCtx.Emit(core.NewGenericEvent(fmt.Sprintf("Running step %d/%d: %s", i+1, len(steps), step.AgentName), nil)); err != nil {
			return "", err
		}

		input, err := stepInput(step, i, previous, rc.UserText())
		if err != nil {
			return "", fmt.Errorf("step %d: %w", i, err)
		}
		stepCtx = rc.ForStep(i, core.Parts{core.TextPart{Text: input}})

		rc.Logger.Debug("agent.sequential.step", "agent", s.Name(), "step", i, "child", step.AgentName)

		out, err := child.Run(stepCtx)
		if err != nil {
			return "", fmt.Errorf("sequential execution failed at step %d (%s): %w", i, step.AgentName, err)
		}
		previous = out
	}

	return previous, nil
}

// stepInput renders the step instruction. The output of the previous step
// is appended unless the instruction places it itself.
func stepInput(step Step, idx int, previous, userText string) (string, error) {
	state := map[string]any{
		"previous": previous,
		"input":    userText,
		"step":     idx,
	}
	text, err := util.RenderTemplate(step.Instruction, state)
	if err != nil {
		return "", fmt.Errorf("failed to render instruction: %w", err)
	}
	if previous == "" || strings.Contains(step.Instruction, ".previous") {
		return text, nil
	}
	if text == "" {
		return previous, nil
	}
	return text + "\n\n" + previous, nil
}

// ParseSteps extracts the workflow steps from the first data part carrying
// StepsKey.
func ParseSteps(input core.Parts) ([]Step, error) {
	for _, p := range input {
		dp, ok := p.(core.DataPart)
		if !ok {
			continue
		}
		raw, ok := dp.Data[StepsKey]
		if !ok {
			continue
		}
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("%q must be a list", StepsKey)
		}

		steps := make([]Step, 0, len(list))
		for i, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("step %d must be an object", i)
			}
			name, _ := m["agent_name"].(string)
			if name == "" {
				return nil, fmt.Errorf("step %d has no agent_name", i)
			}
			instruction, _ := m["instruction"].(string)
			steps = append(steps, Step{AgentName: name, Instruction: instruction})
		}
		if len(steps) == 0 {
			return nil, ErrNoSteps
		}
		return steps, nil
	}
	return nil, ErrNoSteps
}
