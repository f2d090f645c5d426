package agent

import (
	"github.com/hupe1980/agentdeck/internal/util"
)

// Provider supplies dynamic instruction text at runtime.
type Provider interface {
	Instruction(*RunContext) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(*RunContext) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(rc *RunContext) (string, error) { return f(rc) }

// Instruction represents either a static instruction template or a dynamic
// provider. Static text may use template variables, see TemplateState.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(*RunContext) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text, invoking the provider or rendering
// the template as needed.
func (i Instruction) Resolve(rc *RunContext) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(rc)
	}
	return util.RenderTemplate(i.text, TemplateState(rc))
}

// TemplateState exposes run values to instruction templates:
// {{.session_id}}, {{.run_id}}, {{.input}} and, inside a workflow,
// {{.step}}.
func TemplateState(rc *RunContext) map[string]any {
	state := map[string]any{
		"session_id": rc.SessionID,
		"run_id":     rc.RunID,
		"input":      rc.UserText(),
	}
	if idx, ok := rc.StepIndex(); ok {
		state["step"] = idx
	}
	return state
}
