package core

import "context"

// Transport defines the minimal contract for talking to a run server:
//   - Asynchronous execution via Open (streaming events + terminal error channel)
//   - Remote cancellation through Cancel
//
// Semantics & Guarantees:
//   - Event Ordering: events are delivered in arrival order, never reordered.
//   - Channel Lifecycle: the events channel is closed when the stream ends
//     (EOF, error or ctx cancellation). The error channel carries at most one
//     terminal error then closes (buffered size 1).
//   - Local Abort: cancelling ctx aborts the connection; the transport then
//     closes both channels promptly.
type Transport interface {
	// Open submits the run request and streams its events. The immediate
	// error covers setup failures (unknown agent, connection refused, non-2xx
	// status); mid-stream failures arrive on the error channel.
	Open(ctx context.Context, req RunRequest) (<-chan Event, <-chan error, error)

	// Cancel asks the server to stop the run. It MUST be idempotent;
	// cancelling an unknown or finished run is not an error.
	Cancel(ctx context.Context, runID string) error
}

// AgentInfo describes a catalog entry exposed by a run server.
type AgentInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Catalog lists the agents a server exposes.
type Catalog interface {
	ListAgents(ctx context.Context) ([]AgentInfo, error)
}
