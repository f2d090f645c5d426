// Package conversation wires a run controller to the message reconstruction
// engine for one conversation: it owns the message list, applies every
// streamed event to the open agent message and notifies a renderer.
package conversation

import (
	"context"
	"sync"

	"github.com/hupe1980/agentdeck/artifact"
	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/logging"
	"github.com/hupe1980/agentdeck/message"
	"github.com/hupe1980/agentdeck/run"
)

// Snapshot is an immutable view handed to renderers after every event.
type Snapshot struct {
	Messages  []message.Message
	Status    core.RunStatus
	SessionID string
}

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// Transport is used to build the controller when Controller is nil.
	Transport core.Transport
	// Controller overrides the run controller.
	Controller *run.Controller
	// Files stores attachments.
	Files core.FileStore
	// OnUpdate receives a snapshot after every applied event.
	OnUpdate func(Snapshot)
	// Logging services.
	Logger logging.Logger
}

// Conversation is one chat thread against agents of a run server. Public
// methods are safe for concurrent use, but only one Send may be in flight.
type Conversation struct {
	ctrl     *run.Controller
	files    core.FileStore
	onUpdate func(Snapshot)
	logger   logging.Logger

	mu           sync.Mutex
	messages     []message.Message
	localSession string
}

// New constructs a Conversation with optional overrides.
func New(optFns ...func(o *Options)) *Conversation {
	opts := Options{
		Files:  artifact.NewInMemoryStore(),
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	ctrl := opts.Controller
	if ctrl == nil {
		ctrl = run.New(func(o *run.Options) {
			o.Transport = opts.Transport
			o.Logger = opts.Logger
		})
	}

	return &Conversation{
		ctrl:         ctrl,
		files:        opts.Files,
		onUpdate:     opts.OnUpdate,
		logger:       opts.Logger,
		localSession: core.NewID(),
	}
}

// Send appends a user turn, opens an agent message and streams the run into
// it. The returned error is non-nil only when the run could not be started;
// stream failures are reflected in the agent message and the run record.
func (c *Conversation) Send(ctx context.Context, agentName, text string, files ...core.FilePart) (core.Run, error) {
	parts := make([]core.Part, 0, len(files)+1)
	if text != "" {
		parts = append(parts, core.TextPart{Text: text})
	}
	for _, f := range files {
		parts = append(parts, f)
	}

	if c.ctrl.Active() {
		return core.Run{AgentName: agentName, Status: core.RunStatusFailed, Error: core.ErrRunActive}, core.ErrRunActive
	}

	reply := message.NewAgent()
	c.mu.Lock()
	c.messages = append(c.messages, message.NewUser(parts...), reply)
	c.mu.Unlock()
	c.publish()

	req := core.RunRequest{AgentName: agentName, Input: parts}
	res, err := c.ctrl.Run(ctx, req, &turn{conv: c, msgID: reply.ID})
	if err != nil {
		c.update(reply.ID, func(m message.Message) message.Message { return message.Fail(m, err) })
		c.logger.Warn("conversation send failed", "agent", agentName, "error", err)
		return res, err
	}
	return res, nil
}

// Cancel aborts the in-flight run, if any.
func (c *Conversation) Cancel() error { return c.ctrl.Cancel() }

// Clear aborts any run, forgets the session and drops all messages.
func (c *Conversation) Clear() {
	c.ctrl.Reset()
	c.mu.Lock()
	c.messages = nil
	c.mu.Unlock()
	c.publish()
}

// Messages returns the current message list.
func (c *Conversation) Messages() []message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]message.Message(nil), c.messages...)
}

// Controller exposes the underlying run controller.
func (c *Conversation) Controller() *run.Controller { return c.ctrl }

// Attach stores data as an attachment and returns the part to send with the
// next turn.
func (c *Conversation) Attach(name, mimeType string, data []byte) (core.FilePart, error) {
	sessionID := c.ctrl.SessionID()
	if sessionID == "" {
		sessionID = c.localSession
	}
	fileID := core.NewID()
	if err := c.files.Save(sessionID, fileID, data); err != nil {
		return core.FilePart{}, err
	}
	return core.FilePart{File: core.FilePartFile{
		Name:     name,
		MimeType: mimeType,
		URI:      artifact.URI(sessionID, fileID),
	}}, nil
}

// Open returns the bytes of an attachment created by Attach.
func (c *Conversation) Open(uri string) ([]byte, error) {
	sessionID, fileID, err := artifact.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return c.files.Get(sessionID, fileID)
}

// update applies fn to the message with the given id. Messages dropped by
// Clear are gone, so late events of a cleared run change nothing.
func (c *Conversation) update(msgID string, fn func(message.Message) message.Message) {
	c.mu.Lock()
	found := false
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID == msgID {
			c.messages[i] = fn(c.messages[i])
			found = true
			break
		}
	}
	c.mu.Unlock()
	if found {
		c.publish()
	}
}

func (c *Conversation) publish() {
	if c.onUpdate == nil {
		return
	}
	snap := Snapshot{
		Messages:  c.Messages(),
		Status:    c.ctrl.Status(),
		SessionID: c.ctrl.SessionID(),
	}
	c.onUpdate(snap)
}

// turn applies the events of one run to its agent message.
type turn struct {
	run.NopHandler
	conv  *Conversation
	msgID string
}

func (t *turn) apply(fn func(message.Message) message.Message) { t.conv.update(t.msgID, fn) }

func (t *turn) OnRunCreated(core.Event) { t.conv.publish() }

func (t *turn) OnPart(ev core.Event) {
	t.apply(func(m message.Message) message.Message { return message.ApplyPart(m, ev.Part()) })
}

func (t *turn) OnMessageCompleted(core.Event) { t.apply(message.Complete) }

func (t *turn) OnGeneric(ev core.Event) {
	if ev.Message == "" {
		return
	}
	t.apply(func(m message.Message) message.Message {
		m, _ = message.AddTrajectory(m, map[string]any{"message": ev.Message})
		return m
	})
}

func (t *turn) OnCompleted(ev core.Event) {
	t.apply(func(m message.Message) message.Message {
		if m.RawContent == "" && ev.Output != "" {
			m = message.AppendText(m, ev.Output)
		}
		return message.Complete(m)
	})
}

func (t *turn) OnFailed(_ core.Event, err error) {
	t.apply(func(m message.Message) message.Message { return message.FailRun(m, err) })
}

func (t *turn) OnCancelled(core.Event) { t.apply(message.Cancel) }
