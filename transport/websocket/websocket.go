// Package websocket implements core.Transport over a WebSocket connection.
// The client writes a run.start frame and the server answers with the run's
// events, one JSON text message each, closing the connection after the
// terminal event. Cancellation uses a second short-lived connection.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/logging"
)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// Dialer opens connections; defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// Header is sent with every handshake.
	Header http.Header
	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration
	// Logging services.
	Logger logging.Logger
}

// Client talks to a run server over WebSocket.
type Client struct {
	url          string
	dialer       *websocket.Dialer
	header       http.Header
	writeTimeout time.Duration
	logger       logging.Logger
}

var _ core.Transport = (*Client)(nil)

// New constructs a Client for the server at baseURL. http(s) schemes are
// mapped to ws(s).
func New(baseURL string, optFns ...func(o *Options)) (*Client, error) {
	opts := Options{
		Dialer:       websocket.DefaultDialer,
		WriteTimeout: 10 * time.Second,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	u.Path += core.PathRunsWS

	return &Client{
		url:          u.String(),
		dialer:       opts.Dialer,
		header:       opts.Header,
		writeTimeout: opts.WriteTimeout,
		logger:       opts.Logger,
	}, nil
}

// Open implements core.Transport. The first server message is read
// synchronously so an unknown agent surfaces as a setup error.
func (c *Client) Open(ctx context.Context, req core.RunRequest) (<-chan core.Event, <-chan error, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, nil, err
	}

	if err := c.writeFrame(conn, core.Frame{Type: core.FrameRunStart, Request: &req}); err != nil {
		conn.Close()
		return nil, nil, err
	}

	// Unblock the handshake read below when ctx ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	first, err := readEvent(conn)
	if err != nil {
		stop()
		conn.Close()
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		if !errors.Is(err, core.ErrAgentNotFound) && !errors.Is(err, core.ErrTransport) {
			err = fmt.Errorf("%w: %w", core.ErrTransport, err)
		}
		return nil, nil, err
	}

	events := make(chan core.Event)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(events)
		defer stop()
		defer conn.Close()

		if err := c.readLoop(ctx, conn, first, events); err != nil {
			errs <- err
		}
	}()

	return events, errs, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, first core.Event, events chan<- core.Event) error {
	ev := first
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case events <- ev:
		}
		if ev.Type.IsTerminal() {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return nil
		}

		next, err := readEvent(conn)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		ev = next
	}
}

// readEvent reads one server message. Error frames become errors; malformed
// messages are a transport failure.
func readEvent(conn *websocket.Conn) (core.Event, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return core.Event{}, err
		}
		return core.Event{}, fmt.Errorf("%w: %w", core.ErrTransport, err)
	}

	var probe struct {
		Type  string         `json:"type"`
		Error *core.RunError `json:"error"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return core.Event{}, fmt.Errorf("%w: malformed frame: %w", core.ErrTransport, err)
	}
	if probe.Type == core.FrameError {
		return core.Event{}, frameError(probe.Error)
	}

	var ev core.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return core.Event{}, fmt.Errorf("%w: malformed event: %w", core.ErrTransport, err)
	}
	return ev, nil
}

func frameError(e *core.RunError) error {
	if e == nil {
		return fmt.Errorf("%w: server error", core.ErrTransport)
	}
	if e.Code == core.CodeAgentNotFound {
		return fmt.Errorf("%w: %s", core.ErrAgentNotFound, e.Message)
	}
	return fmt.Errorf("%w: %w", core.ErrTransport, e)
}

// Cancel implements core.Transport by sending a run.cancel frame on a new
// connection and waiting for the acknowledgement.
func (c *Client) Cancel(ctx context.Context, runID string) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	var once sync.Once
	closeConn := func() { once.Do(func() { conn.Close() }) }
	defer closeConn()
	stop := context.AfterFunc(ctx, closeConn)
	defer stop()

	if err := c.writeFrame(conn, core.Frame{Type: core.FrameRunCancel, RunID: runID}); err != nil {
		return err
	}

	var ack core.Frame
	if err := conn.ReadJSON(&ack); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", core.ErrTransport, err)
	}
	if ack.Type == core.FrameError {
		return frameError(ack.Error)
	}

	c.logger.Debug("cancel acknowledged", "run_id", runID)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: dial %s: %w", core.ErrTransport, c.url, err)
	}
	return conn, nil
}

func (c *Client) writeFrame(conn *websocket.Conn, f core.Frame) error {
	if c.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := conn.WriteJSON(f); err != nil {
		return fmt.Errorf("%w: write %s frame: %w", core.ErrTransport, f.Type, err)
	}
	return nil
}
