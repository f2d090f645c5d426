package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hupe1980/agentdeck"
	"github.com/hupe1980/agentdeck/compose"
	"github.com/hupe1980/agentdeck/conversation"
	"github.com/hupe1980/agentdeck/core"
)

type (
	conversationMsg conversation.Snapshot
	chainMsg        compose.Snapshot
	runDoneMsg      struct{ err error }
	agentsMsg       struct {
		agents []core.AgentInfo
		err    error
	}
)

// latest keeps only the newest value so a slow renderer never blocks the
// run's event loop.
type latest[T any] chan T

func (l latest[T]) put(v T) {
	for {
		select {
		case l <- v:
			return
		default:
			select {
			case <-l:
			default:
			}
		}
	}
}

type model struct {
	deck  *agentdeck.Deck
	agent string

	conv       *conversation.Conversation
	orch       *compose.Orchestrator
	convCh     latest[conversation.Snapshot]
	chainCh    latest[compose.Snapshot]
	transcript string
	chain      *compose.Snapshot
	notice     string
	running    bool

	width    int
	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
}

func newModel(deck *agentdeck.Deck, agentName string) model {
	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 4000
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	vp := viewport.New(80, 20)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	convCh := make(latest[conversation.Snapshot], 1)
	chainCh := make(latest[compose.Snapshot], 1)

	return model{
		deck:     deck,
		agent:    agentName,
		conv:     deck.NewConversation(convCh.put),
		orch:     deck.NewOrchestrator(chainCh.put),
		convCh:   convCh,
		chainCh:  chainCh,
		width:    80,
		viewport: vp,
		textarea: ta,
		spinner:  sp,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, m.listAgents(), waitFor(m.convCh, func(s conversation.Snapshot) tea.Msg { return conversationMsg(s) }), waitFor(m.chainCh, func(s compose.Snapshot) tea.Msg { return chainMsg(s) }))
}

func waitFor[T any](ch latest[T], wrap func(T) tea.Msg) tea.Cmd {
	return func() tea.Msg { return wrap(<-ch) }
}

func (m model) listAgents() tea.Cmd {
	return func() tea.Msg {
		agents, err := m.deck.ListAgents(context.Background())
		return agentsMsg{agents: agents, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.textarea.SetWidth(msg.Width)
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-m.textarea.Height()-3, 0)
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.running {
				_ = m.conv.Cancel()
				if m.chain != nil {
					_ = m.orch.Cancel()
				}
				return m, nil
			}
			return m, tea.Quit
		case tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			input := strings.TrimSpace(m.textarea.Value())
			m.textarea.Reset()
			if input == "" {
				return m, nil
			}
			return m.submit(input)
		}

	case conversationMsg:
		m.chain = nil
		m.transcript = renderConversation(conversation.Snapshot(msg), m.width)
		m.refresh()
		cmds = append(cmds, waitFor(m.convCh, func(s conversation.Snapshot) tea.Msg { return conversationMsg(s) }))

	case chainMsg:
		s := compose.Snapshot(msg)
		m.chain = &s
		m.transcript = renderChain(s, m.width)
		m.refresh()
		cmds = append(cmds, waitFor(m.chainCh, func(s compose.Snapshot) tea.Msg { return chainMsg(s) }))

	case runDoneMsg:
		m.running = false
		if msg.err != nil {
			m.notice = errorStyle.Render(msg.err.Error())
		}

	case agentsMsg:
		if msg.err != nil {
			m.notice = errorStyle.Render("agent listing failed: " + msg.err.Error())
		} else {
			m.notice = "agents: " + agentNames(msg.agents)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var taCmd, vpCmd tea.Cmd
	m.textarea, taCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, taCmd, vpCmd)

	return m, tea.Batch(cmds...)
}

func (m model) submit(input string) (tea.Model, tea.Cmd) {
	if m.running {
		m.notice = errorStyle.Render("a run is active; ctrl+c cancels it")
		return m, nil
	}

	cmd, err := parseCommand(input)
	if err != nil {
		m.notice = errorStyle.Render(err.Error())
		return m, nil
	}

	switch cmd.name {
	case "exit":
		return m, tea.Quit
	case "clear":
		m.conv.Clear()
		m.notice = "new conversation"
		return m, nil
	case "agents":
		return m, m.listAgents()
	case "agent":
		m.agent = cmd.agents[0]
		m.notice = "agent: " + m.agent
		return m, nil
	case "chain":
		m.running = true
		steps := make([]compose.Step, len(cmd.agents))
		for i, a := range cmd.agents {
			steps[i] = compose.Step{AgentName: a}
		}
		steps[0].Instruction = cmd.text
		orch := m.orch
		return m, func() tea.Msg {
			_, err := orch.Run(context.Background(), steps)
			return runDoneMsg{err: err}
		}
	default:
		m.running = true
		conv, agentName := m.conv, m.agent
		return m, func() tea.Msg {
			_, err := conv.Send(context.Background(), agentName, cmd.text)
			return runDoneMsg{err: err}
		}
	}
}

func (m *model) refresh() {
	m.viewport.SetContent(m.transcript)
	m.viewport.GotoBottom()
}

func (m model) View() string {
	status := statusStyle.Render(fmt.Sprintf("agent: %s", m.agent))
	if m.running {
		status += " " + m.spinner.View() + " running (ctrl+c to cancel)"
	}
	if m.notice != "" {
		status += "  " + m.notice
	}
	return fmt.Sprintf("%s\n%s\n%s", titleStyle.Render("agentdeck")+" "+status, m.viewport.View(), m.textarea.View())
}
