// agentdeck is a terminal client for a run server.
//
// Usage:
//
//	AGENTDECK_SERVER_URL=http://localhost:8080 go run ./cmd/agentdeck
//
// Commands:
//
//	/agent <name>                  - Switch the target agent
//	/agents                        - List the server's agents
//	/chain <a>,<b>,... <text>      - Run a sequential chain; text is the first step's instruction
//	/clear                         - Start a new conversation
//	/exit                          - Exit the program
//	<message>                      - Send a message to the current agent
//
// ctrl+c cancels the active run, or exits when idle.
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hupe1980/agentdeck"
	"github.com/hupe1980/agentdeck/config"
	"github.com/hupe1980/agentdeck/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentdeck:", err)
		os.Exit(1)
	}

	// The terminal belongs to the UI; logs only go to an explicit file.
	var logger logging.Logger = logging.NoOpLogger{}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "agentdeck:", err)
			os.Exit(1)
		}
		defer f.Close()
		logger = logging.NewLogger(&logging.LoggerConfig{
			Level:     logging.ParseLevel(cfg.LogLevel),
			Format:    cfg.LogFormat,
			Output:    f,
			Component: "agentdeck",
		})
	}

	deck, err := agentdeck.NewFromConfig(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentdeck:", err)
		os.Exit(1)
	}

	p := tea.NewProgram(newModel(deck, cfg.Agent), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "agentdeck:", err)
		os.Exit(1)
	}
}
