package agent

// BaseAgent carries the catalog identity of an agent. Concrete agents embed it
// and add Run.
type BaseAgent struct {
	name        string
	description string
}

// NewBaseAgent returns an identity whose description defaults to the name.
func NewBaseAgent(name string) BaseAgent {
	return BaseAgent{name: name, description: name + " agent"}
}

func (b *BaseAgent) Name() string        { return b.name }
func (b *BaseAgent) Description() string { return b.description }

// SetDescription replaces the description shown in the agent listing.
func (b *BaseAgent) SetDescription(desc string) { b.description = desc }
