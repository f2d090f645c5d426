package core

import "time"

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusIdle      RunStatus = "idle"
	RunStatusCreated   RunStatus = "created"
	RunStatusStreaming RunStatus = "streaming"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether s is a final status.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// RunStats records wall-clock timing. EndTime is zero until the run ends.
type RunStats struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitzero"`
}

// Duration returns the elapsed run time, or the time since start for an
// unfinished run.
func (s RunStats) Duration() time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Run is one execution request and its observed lifecycle.
type Run struct {
	ID        string    `json:"run_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	AgentName string    `json:"agent_name"`
	Status    RunStatus `json:"status"`
	Stats     RunStats  `json:"stats"`
	Output    string    `json:"output,omitempty"`
	Error     error     `json:"-"`
}
