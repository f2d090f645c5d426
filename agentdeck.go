// Package agentdeck provides a high-level façade over the client-side run
// engine. Most applications interact with this package by:
//  1. Creating a Deck for a run server via New() or NewFromConfig()
//  2. Discovering agents (ListAgents, CheckAgent)
//  3. Constructing one Conversation per chat thread or one Orchestrator per
//     sequential chain; each owns its own run controller
//
// The façade only wires transports, timeouts and logging; all run semantics
// live in the run, message and compose packages.
package agentdeck

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hupe1980/agentdeck/artifact"
	"github.com/hupe1980/agentdeck/compose"
	"github.com/hupe1980/agentdeck/config"
	"github.com/hupe1980/agentdeck/conversation"
	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/logging"
	"github.com/hupe1980/agentdeck/run"
	"github.com/hupe1980/agentdeck/transport/httpstream"
	"github.com/hupe1980/agentdeck/transport/websocket"
)

// Options configures the Deck instance.
type Options struct {
	// Transport selects the run stream transport (http or ws). The agent
	// listing always uses HTTP.
	Transport config.Transport

	// Timeout bounds every run; CancelTimeout bounds remote cancel requests.
	Timeout       time.Duration
	CancelTimeout time.Duration

	// WorkflowAgent names the server side sequential workflow agent.
	WorkflowAgent string

	// Header is added to every request (e.g. authorization).
	Header http.Header

	// Files stores attachments (defaults to an in-memory store shared by all
	// conversations of the deck).
	Files core.FileStore

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Deck is the high-level façade for one run server.
type Deck struct {
	opts      Options
	transport core.Transport
	catalog   core.Catalog
}

// New creates a Deck talking to the server at serverURL.
func New(serverURL string, optFns ...func(o *Options)) (*Deck, error) {
	opts := Options{
		Transport:     config.TransportHTTP,
		Timeout:       5 * time.Minute,
		CancelTimeout: 10 * time.Second,
		WorkflowAgent: compose.DefaultWorkflowAgent,
		Files:         artifact.NewInMemoryStore(),
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	httpClient := httpstream.New(serverURL, func(o *httpstream.Options) {
		o.Header = opts.Header
		o.Logger = opts.Logger
	})

	d := &Deck{opts: opts, transport: httpClient, catalog: httpClient}

	switch opts.Transport {
	case config.TransportHTTP, "":
	case config.TransportWebSocket:
		ws, err := websocket.New(serverURL, func(o *websocket.Options) {
			o.Header = opts.Header
			o.Logger = opts.Logger
		})
		if err != nil {
			return nil, err
		}
		d.transport = ws
	default:
		return nil, fmt.Errorf("unsupported transport %q", opts.Transport)
	}

	return d, nil
}

// NewFromConfig creates a Deck from loaded binary settings.
func NewFromConfig(cfg *config.Config, logger logging.Logger) (*Deck, error) {
	return New(cfg.ServerURL, func(o *Options) {
		o.Transport = cfg.Transport
		o.Timeout = cfg.RunTimeout
		o.CancelTimeout = cfg.CancelTimeout
		if logger != nil {
			o.Logger = logger
		}
	})
}

// Transport returns the run stream transport.
func (d *Deck) Transport() core.Transport { return d.transport }

// ListAgents returns the server's agent catalog.
func (d *Deck) ListAgents(ctx context.Context) ([]core.AgentInfo, error) {
	return d.catalog.ListAgents(ctx)
}

// CheckAgent returns core.ErrAgentNotFound when the server does not expose
// name.
func (d *Deck) CheckAgent(ctx context.Context, name string) error {
	agents, err := d.ListAgents(ctx)
	if err != nil {
		return err
	}
	for _, a := range agents {
		if a.Name == name {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", core.ErrAgentNotFound, name)
}

// NewController creates a run controller with the deck's transport and
// timeouts.
func (d *Deck) NewController() *run.Controller {
	return run.New(func(o *run.Options) {
		o.Transport = d.transport
		o.Timeout = d.opts.Timeout
		o.CancelTimeout = d.opts.CancelTimeout
		o.Logger = d.opts.Logger
	})
}

// NewConversation creates a conversation with its own controller. onUpdate
// may be nil.
func (d *Deck) NewConversation(onUpdate func(conversation.Snapshot)) *conversation.Conversation {
	return conversation.New(func(o *conversation.Options) {
		o.Controller = d.NewController()
		o.Files = d.opts.Files
		o.OnUpdate = onUpdate
		o.Logger = d.opts.Logger
	})
}

// NewOrchestrator creates a sequential chain orchestrator with its own
// controller. onUpdate may be nil.
func (d *Deck) NewOrchestrator(onUpdate func(compose.Snapshot)) *compose.Orchestrator {
	return compose.New(func(o *compose.Options) {
		o.Controller = d.NewController()
		o.WorkflowAgent = d.opts.WorkflowAgent
		o.OnUpdate = onUpdate
		o.Logger = d.opts.Logger
	})
}
