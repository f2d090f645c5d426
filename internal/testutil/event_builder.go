package testutil

import (
	"github.com/hupe1980/agentdeck/core"
)

// EventBuilder provides a fluent helper for constructing events in tests.
// Example:
//
//	ev := NewEventBuilder().Part().Text("hello").AgentIdx(1).Build()
//
// Chain only the parts you need; sensible defaults are applied.
type EventBuilder struct {
	ev core.Event
}

// NewEventBuilder creates a builder for a generic event.
func NewEventBuilder() *EventBuilder {
	return &EventBuilder{ev: core.NewEvent(core.EventGeneric)}
}

// Type sets the event type (chainable).
func (b *EventBuilder) Type(t core.EventType) *EventBuilder { b.ev.Type = t; return b }

// Part marks the event as a message.part (chainable).
func (b *EventBuilder) Part() *EventBuilder { return b.Type(core.EventMessagePart) }

// ID overrides the auto-generated event ID (chainable).
func (b *EventBuilder) ID(id string) *EventBuilder { b.ev.ID = id; return b }

// Run sets run and session identifiers (chainable).
func (b *EventBuilder) Run(runID, sessionID string) *EventBuilder {
	b.ev.RunID = runID
	b.ev.SessionID = sessionID
	return b
}

// Text sets plain text content (chainable).
func (b *EventBuilder) Text(t string) *EventBuilder {
	b.ev.Content = t
	b.ev.ContentType = "text/plain"
	return b
}

// File sets a file reference (chainable).
func (b *EventBuilder) File(url, contentType string) *EventBuilder {
	b.ev.ContentURL = url
	b.ev.ContentType = contentType
	return b
}

// Metadata sets one metadata key (chainable).
func (b *EventBuilder) Metadata(key string, value any) *EventBuilder {
	if b.ev.Metadata == nil {
		b.ev.Metadata = map[string]any{}
	}
	b.ev.Metadata[key] = value
	return b
}

// Citation sets citation metadata spanning [start, end) (chainable).
func (b *EventBuilder) Citation(url string, start, end int) *EventBuilder {
	b.ev.Metadata = core.Citation{URL: url, StartIndex: &start, EndIndex: &end}.Metadata()
	return b
}

// Message sets the generic message text (chainable).
func (b *EventBuilder) Message(m string) *EventBuilder { b.ev.Message = m; return b }

// AgentIdx tags the event with a step index (chainable).
func (b *EventBuilder) AgentIdx(i int) *EventBuilder { b.ev.AgentIdx = &i; return b }

// Build returns the event value.
func (b *EventBuilder) Build() core.Event { return b.ev }

// TextRun scripts a complete successful run streaming the given chunks.
func TextRun(runID, sessionID string, chunks ...string) []core.Event {
	evs := []core.Event{core.NewRunCreatedEvent(runID, sessionID)}
	var out string
	for _, c := range chunks {
		evs = append(evs, core.NewTextPartEvent(c))
		out += c
	}
	return append(evs, core.NewMessageCompletedEvent(), core.NewRunCompletedEvent(runID, out))
}
