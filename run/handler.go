package run

import "github.com/hupe1980/agentdeck/core"

// Handler receives the events of one run. Methods are called sequentially on
// the goroutine draining the run, never concurrently.
type Handler interface {
	OnRunCreated(ev core.Event)
	OnPart(ev core.Event)
	OnMessageCompleted(ev core.Event)
	OnGeneric(ev core.Event)
	OnCompleted(ev core.Event)
	// OnFailed receives the server reported error or the local transport,
	// timeout or stream error that ended the run.
	OnFailed(ev core.Event, err error)
	OnCancelled(ev core.Event)
}

// NopHandler ignores every event. Embed it to implement a subset of Handler.
type NopHandler struct{}

func (NopHandler) OnRunCreated(core.Event)       {}
func (NopHandler) OnPart(core.Event)             {}
func (NopHandler) OnMessageCompleted(core.Event) {}
func (NopHandler) OnGeneric(core.Event)          {}
func (NopHandler) OnCompleted(core.Event)        {}
func (NopHandler) OnFailed(core.Event, error)    {}
func (NopHandler) OnCancelled(core.Event)        {}

// Dispatch routes ev to the matching Handler method. err is only used for
// run.failed; when nil the event's error payload is passed instead. Unknown
// event types are dropped.
func Dispatch(h Handler, ev core.Event, err error) {
	switch ev.Type {
	case core.EventRunCreated:
		h.OnRunCreated(ev)
	case core.EventMessagePart:
		h.OnPart(ev)
	case core.EventMessageCompleted:
		h.OnMessageCompleted(ev)
	case core.EventGeneric:
		h.OnGeneric(ev)
	case core.EventRunCompleted:
		h.OnCompleted(ev)
	case core.EventRunFailed:
		if err == nil && ev.Error != nil {
			err = ev.Error
		}
		h.OnFailed(ev, err)
	case core.EventRunCancelled:
		h.OnCancelled(ev)
	}
}
