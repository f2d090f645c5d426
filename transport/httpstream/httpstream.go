// Package httpstream implements core.Transport over HTTP: a run is a POST
// whose response body streams one JSON event per line (NDJSON). Lines with
// an SSE "data:" prefix are accepted too, so the client also works against
// event-stream servers.
package httpstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/logging"
)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// HTTPClient performs requests. It must not set an overall Timeout since
	// run streams are long-lived; the controller bounds runs via context.
	HTTPClient *http.Client
	// Header is added to every request (e.g. authorization).
	Header http.Header
	// MaxLineSize bounds a single event line.
	MaxLineSize int
	// Logging services.
	Logger logging.Logger
}

// Client talks to a run server over HTTP.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	header      http.Header
	maxLineSize int
	logger      logging.Logger
}

var (
	_ core.Transport = (*Client)(nil)
	_ core.Catalog   = (*Client)(nil)
)

// New constructs a Client for the server at baseURL.
func New(baseURL string, optFns ...func(o *Options)) *Client {
	opts := Options{
		HTTPClient:  &http.Client{},
		MaxLineSize: 1 << 20,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  opts.HTTPClient,
		header:      opts.Header,
		maxLineSize: opts.MaxLineSize,
		logger:      opts.Logger,
	}
}

// Open implements core.Transport.
func (c *Client) Open(ctx context.Context, req core.RunRequest) (<-chan core.Event, <-chan error, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode run request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, core.PathRuns, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", core.ContentTypeNDJSON+", text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", core.ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, nil, statusError(resp)
	}

	events := make(chan core.Event)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(events)
		defer resp.Body.Close()

		if err := c.readStream(ctx, resp.Body, events); err != nil {
			errs <- err
		}
	}()

	return events, errs, nil
}

func (c *Client) readStream(ctx context.Context, body io.Reader, events chan<- core.Event) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), c.maxLineSize)

	for scanner.Scan() {
		line, ok := eventPayload(scanner.Bytes())
		if !ok {
			continue
		}

		var ev core.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			c.logger.Warn("skipping malformed event line", "error", err)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case events <- ev:
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", core.ErrTransport, err)
	}
	return nil
}

// eventPayload strips SSE framing and reports whether line carries an event.
func eventPayload(line []byte) ([]byte, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] == ':' {
		return nil, false
	}
	if rest, ok := bytes.CutPrefix(line, []byte("data:")); ok {
		line = bytes.TrimSpace(rest)
	} else if bytes.HasPrefix(line, []byte("event:")) || bytes.HasPrefix(line, []byte("id:")) || bytes.HasPrefix(line, []byte("retry:")) {
		return nil, false
	}
	if len(line) == 0 || bytes.Equal(line, []byte("[DONE]")) {
		return nil, false
	}
	return line, true
}

// Cancel implements core.Transport. Unknown or finished runs are not an
// error.
func (c *Client) Cancel(ctx context.Context, runID string) error {
	httpReq, err := c.newRequest(ctx, http.MethodPost, core.CancelPath(runID), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrTransport, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusNotFound || (resp.StatusCode >= 200 && resp.StatusCode <= 299) {
		return nil
	}
	return statusError(resp)
}

// ListAgents implements core.Catalog.
func (c *Client) ListAgents(ctx context.Context) ([]core.AgentInfo, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, core.PathAgents, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var list core.AgentList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode agent list: %w", err)
	}
	return list.Agents, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// statusError maps a non-2xx response to an error, decoding the protocol
// error body when present.
func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var body core.ErrorBody
	msg := strings.TrimSpace(string(data))
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Message != "" {
		msg = body.Error.Message
	}

	if resp.StatusCode == http.StatusNotFound && (body.Error.Code == core.CodeAgentNotFound || body.Error.Code == "") {
		return fmt.Errorf("%w: %s", core.ErrAgentNotFound, msg)
	}
	return fmt.Errorf("%w: status %d: %s", core.ErrTransport, resp.StatusCode, msg)
}
