package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hupe1980/agentdeck/compose"
	"github.com/hupe1980/agentdeck/conversation"
	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/message"
	"github.com/hupe1980/agentdeck/trajectory"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	agentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)

	messageStyle    = lipgloss.NewStyle().PaddingLeft(2)
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	spinnerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	cancelledStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	stepHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
)

// command is a parsed input line.
type command struct {
	name   string // "" for a plain message
	agents []string
	text   string
}

func parseCommand(input string) (command, error) {
	if !strings.HasPrefix(input, "/") {
		return command{text: input}, nil
	}

	name, rest, _ := strings.Cut(strings.TrimPrefix(input, "/"), " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "exit", "clear", "agents":
		return command{name: name}, nil
	case "agent":
		if rest == "" {
			return command{}, errors.New("usage: /agent <name>")
		}
		return command{name: name, agents: []string{rest}}, nil
	case "chain":
		list, text, _ := strings.Cut(rest, " ")
		var agents []string
		for _, a := range strings.Split(list, ",") {
			if a = strings.TrimSpace(a); a != "" {
				agents = append(agents, a)
			}
		}
		if len(agents) == 0 {
			return command{}, errors.New("usage: /chain <agent>,<agent>,... <text>")
		}
		return command{name: name, agents: agents, text: strings.TrimSpace(text)}, nil
	default:
		return command{}, fmt.Errorf("unknown command /%s", name)
	}
}

func agentNames(agents []core.AgentInfo) string {
	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

func renderConversation(s conversation.Snapshot, width int) string {
	var b strings.Builder
	for _, m := range s.Messages {
		if m.Role == message.RoleUser {
			b.WriteString(userStyle.Render("You") + "\n")
			b.WriteString(wrap(messageStyle, width).Render(userText(m)) + "\n")
			for _, f := range m.Files {
				b.WriteString(dimStyle.Render("  attached: "+f.Name) + "\n")
			}
			b.WriteString("\n")
			continue
		}
		b.WriteString(agentStyle.Render("Agent") + "\n")
		renderAgentMessage(&b, m, width)
		b.WriteString("\n")
	}
	return b.String()
}

func renderChain(s compose.Snapshot, width int) string {
	var b strings.Builder
	for _, st := range s.Steps {
		state := "done"
		if st.IsPending {
			state = "pending"
		}
		b.WriteString(stepHeaderStyle.Render(fmt.Sprintf("Step %d: %s", st.Index+1, st.Step.AgentName)))
		b.WriteString(dimStyle.Render(fmt.Sprintf(" (%s)", state)) + "\n")
		for _, l := range st.Logs {
			b.WriteString(dimStyle.Render("  · "+l) + "\n")
		}
		renderAgentMessage(&b, st.Message, width)
		b.WriteString("\n")
	}
	return b.String()
}

func renderAgentMessage(b *strings.Builder, m message.Message, width int) {
	for _, e := range trajectory.Viewable(m.Trajectory) {
		b.WriteString(dimStyle.Render("  · "+trajectoryLine(e)) + "\n")
	}
	if m.Content != "" {
		b.WriteString(wrap(messageStyle, width).Render(m.Content) + "\n")
	}
	for _, src := range m.Sources {
		label := src.URL
		if src.Title != "" {
			label = src.Title + " - " + src.URL
		}
		b.WriteString(dimStyle.Render(fmt.Sprintf("  [%d] %s", src.Number, label)) + "\n")
	}
	switch m.Status {
	case message.StatusFailed:
		msg := "failed"
		if m.Error != nil {
			msg = m.Error.Error()
		}
		b.WriteString(errorStyle.Render("  ✗ "+msg) + "\n")
	case message.StatusCancelled:
		b.WriteString(cancelledStyle.Render("  (cancelled)") + "\n")
	}
}

func trajectoryLine(e core.TrajectoryEntry) string {
	if msg, ok := e.Fields["message"].(string); ok && msg != "" {
		return msg
	}
	if tool, ok := e.Fields["tool_name"].(string); ok && tool != "" {
		return "tool: " + tool
	}
	return e.Kind
}

func userText(m message.Message) string {
	return core.Content{Parts: m.Parts}.Text()
}

func wrap(style lipgloss.Style, width int) lipgloss.Style {
	if width > 4 {
		return style.Width(width - 2)
	}
	return style
}
