package rtcshare

import (
	"time"

	"github.com/bft-labs/rtcshare/internal/app"
	"github.com/bft-labs/rtcshare/pkg/relay"
)

// State is the lifecycle state of a Service.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// StateChangeEvent reports a lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// RelayStateEvent reports a relay session state change. PublicURL is
// set once the relay acknowledged the session.
type RelayStateEvent struct {
	State     relay.State
	PublicURL string
}

// LimitChangeEvent reports new peer pacing.
type LimitChangeEvent struct {
	MaxBytesPerPeriod int
	Period            time.Duration
}

// EventHandler receives service events. Calls are synchronous; keep
// them short.
type EventHandler interface {
	OnStateChange(event StateChangeEvent)
	OnRelayStateChange(event RelayStateEvent)
	OnLimitChange(event LimitChangeEvent)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to
// handle a subset of events.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent)     {}
func (BaseEventHandler) OnRelayStateChange(RelayStateEvent) {}
func (BaseEventHandler) OnLimitChange(LimitChangeEvent)     {}

// emitter adapts an EventHandler to the lifecycle emitter and the relay
// observer.
type emitter struct {
	handler   EventHandler
	next      relay.Observer
	publicURL func() string
}

func (e *emitter) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: convertState(previous),
		Current:  convertState(current),
		Reason:   reason,
	})
}

func (e *emitter) StateChanged(s relay.State) {
	if e.next != nil {
		e.next.StateChanged(s)
	}
	if e.handler == nil {
		return
	}
	ev := RelayStateEvent{State: s}
	if s == relay.StateAcknowledged && e.publicURL != nil {
		ev.PublicURL = e.publicURL()
	}
	e.handler.OnRelayStateChange(ev)
}

func (e *emitter) Reconnecting() {
	if e.next != nil {
		e.next.Reconnecting()
	}
}

func convertState(s app.State) State {
	switch s {
	case app.StateStarting:
		return StateStarting
	case app.StateRunning:
		return StateRunning
	case app.StateStopping:
		return StateStopping
	case app.StateCrashed:
		return StateCrashed
	default:
		return StateStopped
	}
}
