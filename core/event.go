package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType discriminates run protocol events.
type EventType string

const (
	// EventRunCreated opens the stream and assigns run/session identifiers.
	EventRunCreated EventType = "run.created"
	// EventMessagePart carries one incremental content fragment.
	EventMessagePart EventType = "message.part"
	// EventMessageCompleted closes the currently open agent message.
	EventMessageCompleted EventType = "message.completed"
	// EventRunCompleted is the successful terminal event.
	EventRunCompleted EventType = "run.completed"
	// EventRunFailed is the failure terminal event.
	EventRunFailed EventType = "run.failed"
	// EventRunCancelled is the cancellation terminal event.
	EventRunCancelled EventType = "run.cancelled"
	// EventGeneric carries trajectory notes and step boundary hints.
	EventGeneric EventType = "generic"
)

// IsTerminal reports whether t ends a run.
func (t EventType) IsTerminal() bool {
	switch t {
	case EventRunCompleted, EventRunFailed, EventRunCancelled:
		return true
	default:
		return false
	}
}

// MessagePart is an incremental content fragment of an agent message. A part
// with ContentURL and no Content denotes a file artifact rather than text.
type MessagePart struct {
	Content     string         `json:"content,omitempty"`
	ContentType string         `json:"content_type,omitempty"`
	ContentURL  string         `json:"content_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// IsFile reports whether the part references a file artifact.
func (p MessagePart) IsFile() bool { return p.ContentURL != "" && p.Content == "" }

// MetadataKind returns the metadata "kind" discriminator or "" when absent or
// not a string.
func (p MessagePart) MetadataKind() string {
	if p.Metadata == nil {
		return ""
	}
	k, _ := p.Metadata["kind"].(string)
	return k
}

// RunError is the error payload of a run.failed event.
type RunError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Error implements error.
func (e *RunError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Event is one record of the run protocol stream. The wire form is flat: part
// fields sit next to the type discriminator. After emission an Event should be
// treated as immutable.
type Event struct {
	ID        string    `json:"id,omitempty"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	MessagePart
	Output    string    `json:"output,omitempty"`
	Error     *RunError `json:"error,omitempty"`
	Message   string    `json:"message,omitempty"`
	AgentIdx  *int      `json:"agent_idx,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// NewEvent creates a bare event of the given type with a fresh id.
func NewEvent(t EventType) Event {
	return Event{ID: NewID(), Type: t, Timestamp: time.Now().UTC()}
}

// NewRunCreatedEvent announces a run and its session.
func NewRunCreatedEvent(runID, sessionID string) Event {
	e := NewEvent(EventRunCreated)
	e.RunID = runID
	e.SessionID = sessionID
	return e
}

// NewTextPartEvent creates a message.part event carrying plain text.
func NewTextPartEvent(text string) Event {
	e := NewEvent(EventMessagePart)
	e.Content = text
	e.ContentType = "text/plain"
	return e
}

// NewFilePartEvent creates a message.part event referencing a file artifact.
func NewFilePartEvent(url, contentType string, metadata map[string]any) Event {
	e := NewEvent(EventMessagePart)
	e.ContentURL = url
	e.ContentType = contentType
	e.Metadata = metadata
	return e
}

// NewCitationEvent creates a metadata-only message.part event describing a
// citation anchored at [start, end) of the open message's raw content.
func NewCitationEvent(c Citation) Event {
	e := NewEvent(EventMessagePart)
	e.Metadata = c.Metadata()
	return e
}

// NewTrajectoryEvent creates a metadata-only message.part event carrying a
// trajectory record.
func NewTrajectoryEvent(fields map[string]any) Event {
	e := NewEvent(EventMessagePart)
	md := map[string]any{"kind": MetadataKindTrajectory}
	for k, v := range fields {
		md[k] = v
	}
	e.Metadata = md
	return e
}

// NewMessageCompletedEvent closes the open message.
func NewMessageCompletedEvent() Event { return NewEvent(EventMessageCompleted) }

// NewRunCompletedEvent ends the run successfully with its final output.
func NewRunCompletedEvent(runID, output string) Event {
	e := NewEvent(EventRunCompleted)
	e.RunID = runID
	e.Output = output
	return e
}

// NewRunFailedEvent ends the run with an error payload.
func NewRunFailedEvent(runID string, err *RunError) Event {
	e := NewEvent(EventRunFailed)
	e.RunID = runID
	e.Error = err
	return e
}

// NewRunCancelledEvent ends the run as cancelled.
func NewRunCancelledEvent(runID string) Event {
	e := NewEvent(EventRunCancelled)
	e.RunID = runID
	return e
}

// NewGenericEvent creates a generic event with an optional message and step
// index (nil idx leaves agent_idx unset).
func NewGenericEvent(message string, idx *int) Event {
	e := NewEvent(EventGeneric)
	e.Message = message
	e.AgentIdx = idx
	return e
}

// WithAgentIdx returns a copy of e tagged with the given step index.
func (e Event) WithAgentIdx(idx int) Event {
	e.AgentIdx = &idx
	return e
}

// Part returns the message part carried by a message.part event.
func (e Event) Part() MessagePart { return e.MessagePart }

// HasAgentIdx reports whether the event carries a step index.
func (e Event) HasAgentIdx() bool { return e.AgentIdx != nil }

// NewID generates a new unique identifier for events, sources and trajectory
// entries.
func NewID() string { return uuid.NewString() }
