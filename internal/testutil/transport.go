package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/agentdeck/core"
)

// FakeTransport is a scripted core.Transport. Open streams Events, then relays
// Feed (when set) until it is closed, then reports StreamErr. With Hold the
// stream stays open until the context is cancelled, like a slow server.
type FakeTransport struct {
	Events    []core.Event
	Feed      <-chan core.Event
	OpenErr   error
	StreamErr error
	Hold      bool
	CancelErr error

	// Opened, when set, receives the request of every successful Open.
	Opened chan core.RunRequest

	mu       sync.Mutex
	requests []core.RunRequest
	cancels  []string
}

var _ core.Transport = (*FakeTransport)(nil)

// Open implements core.Transport.
func (f *FakeTransport) Open(ctx context.Context, req core.RunRequest) (<-chan core.Event, <-chan error, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.OpenErr != nil {
		return nil, nil, f.OpenErr
	}
	if f.Opened != nil {
		f.Opened <- req
	}

	events := make(chan core.Event)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(events)

		if err := f.stream(ctx, events); err != nil {
			errs <- err
		}
	}()

	return events, errs, nil
}

func (f *FakeTransport) stream(ctx context.Context, events chan<- core.Event) error {
	send := func(ev core.Event) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case events <- ev:
			return nil
		}
	}

	for _, ev := range f.Events {
		if err := send(ev); err != nil {
			return err
		}
	}

	if f.Feed != nil {
	feed:
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev, ok := <-f.Feed:
				if !ok {
					break feed
				}
				if err := send(ev); err != nil {
					return err
				}
			}
		}
	}

	if f.Hold {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.StreamErr
}

// Cancel implements core.Transport.
func (f *FakeTransport) Cancel(_ context.Context, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, runID)
	return f.CancelErr
}

// Requests returns every request passed to Open.
func (f *FakeTransport) Requests() []core.RunRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.RunRequest(nil), f.requests...)
}

// Cancels returns the run ids passed to Cancel.
func (f *FakeTransport) Cancels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancels...)
}

// SequenceTransport hands the n-th Open to the n-th script. Opens beyond the
// scripts reuse the last one.
type SequenceTransport struct {
	Scripts []*FakeTransport

	mu    sync.Mutex
	opens int
}

var _ core.Transport = (*SequenceTransport)(nil)

func (s *SequenceTransport) next() *FakeTransport {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.opens
	if i >= len(s.Scripts) {
		i = len(s.Scripts) - 1
	}
	s.opens++
	return s.Scripts[i]
}

// Open implements core.Transport.
func (s *SequenceTransport) Open(ctx context.Context, req core.RunRequest) (<-chan core.Event, <-chan error, error) {
	return s.next().Open(ctx, req)
}

// Cancel implements core.Transport. Every script records the cancel.
func (s *SequenceTransport) Cancel(ctx context.Context, runID string) error {
	var err error
	for _, f := range s.Scripts {
		if e := f.Cancel(ctx, runID); e != nil {
			err = e
		}
	}
	return err
}
