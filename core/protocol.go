package core

import (
	"net/url"
	"strings"
)

// HTTP routes of the run protocol, relative to the server base URL.
const (
	PathRuns      = "/api/v1/runs"
	PathRunCancel = "/api/v1/runs/{run_id}/cancel"
	PathAgents    = "/api/v1/agents"
	PathRunsWS    = "/api/v1/runs/ws"
)

// ContentTypeNDJSON is the media type of streamed run events.
const ContentTypeNDJSON = "application/x-ndjson"

// Error codes used in protocol error bodies and run.failed payloads.
const (
	CodeAgentNotFound = "agent_not_found"
	CodeBadRequest    = "bad_request"
	CodeAgentError    = "agent_error"
	CodeNotFound      = "not_found"
)

// CancelPath returns the cancel route for runID.
func CancelPath(runID string) string {
	return strings.Replace(PathRunCancel, "{run_id}", url.PathEscape(runID), 1)
}

// ErrorBody is the JSON body of non-2xx protocol responses.
type ErrorBody struct {
	Error RunError `json:"error"`
}

// AgentList is the body of the agent listing route.
type AgentList struct {
	Agents []AgentInfo `json:"agents"`
}

// Frame types of the WebSocket variant of the protocol. Server to client
// frames are plain events, plus FrameError for setup failures and
// FrameCancelAck confirming a cancel.
const (
	FrameRunStart  = "run.start"
	FrameRunCancel = "run.cancel"
	FrameCancelAck = "run.cancel.ack"
	FrameError     = "error"
)

// Frame is a client to server WebSocket message or a server control frame.
type Frame struct {
	Type    string      `json:"type"`
	Request *RunRequest `json:"request,omitempty"`
	RunID   string      `json:"run_id,omitempty"`
	Error   *RunError   `json:"error,omitempty"`
}
