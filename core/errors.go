package core

import "errors"

// Sentinel errors shared by the engine, transports and server.
var (
	// ErrRunActive is returned when starting a run while another is active
	// on the same controller.
	ErrRunActive = errors.New("agentdeck: run already active")

	// ErrAgentNotFound indicates the requested agent does not exist.
	ErrAgentNotFound = errors.New("agentdeck: agent not found")

	// ErrTimeout indicates the overall run duration bound elapsed.
	ErrTimeout = errors.New("agentdeck: run timed out")

	// ErrTransport wraps stream establishment and mid-stream failures.
	ErrTransport = errors.New("agentdeck: transport error")

	// ErrStreamEnded indicates the stream closed without a terminal event.
	ErrStreamEnded = errors.New("agentdeck: stream ended before terminal event")

	// ErrNotFound indicates a stored item (file, run) does not exist.
	ErrNotFound = errors.New("agentdeck: not found")
)
