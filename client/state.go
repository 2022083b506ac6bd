package client

import (
	"time"

	v1 "github.com/chatsync/chatsync/protocol/v1"
)

// State is the agent connection lifecycle state.
type State uint8

const (
	// StateConnecting means a physical connection attempt is in flight.
	StateConnecting State = iota
	// StateConnected means the logical channel is live.
	StateConnected
	// StateDisconnected means the link dropped and a reconnect is scheduled.
	StateDisconnected
	// StateFailed means the reconnect budget is exhausted; only an explicit
	// Retry leaves this state.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Reconnection defaults.
const (
	DefaultBackoffBase = 1 * time.Second
	DefaultBackoffCap  = 30 * time.Second
	DefaultMaxAttempts = 5
)

// Backoff computes the reconnect delay for the given attempt counter:
// min(cap, base * 2^attempts).
func Backoff(attempts int, base, cap time.Duration) time.Duration {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if cap <= 0 {
		cap = DefaultBackoffCap
	}
	if attempts < 0 {
		attempts = 0
	}

	d := base
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}

// event is one input to the lifecycle state machine.
type event interface{ isEvent() }

type evOpened struct{}

// evClosed reports a connection loss. normal is true only for the explicit
// closed-by-caller close code, which terminates the agent instead of
// triggering reconnection.
type evClosed struct{ normal bool }

type evRetryTimer struct{}

type evSend struct{ req v1.Request }

type evRetry struct{}

func (evOpened) isEvent()     {}
func (evClosed) isEvent()     {}
func (evRetryTimer) isEvent() {}
func (evSend) isEvent()       {}
func (evRetry) isEvent()      {}

// effect is one action the runtime must execute after a transition.
type effect interface{ isEffect() }

// fxWrite writes a request to the live connection.
type fxWrite struct{ req v1.Request }

// fxDial opens a new physical connection.
type fxDial struct{}

// fxSchedule arms the cancelable reconnect timer.
type fxSchedule struct{ delay time.Duration }

// fxStop terminates the agent with no further transitions.
type fxStop struct{}

func (fxWrite) isEffect()    {}
func (fxDial) isEffect()     {}
func (fxSchedule) isEffect() {}
func (fxStop) isEffect()     {}

// machine holds the lifecycle state: connection status, reconnect attempt
// counter, and the single pending-operation slot.
type machine struct {
	state    State
	attempts int
	pending  *v1.Request

	backoffBase time.Duration
	backoffCap  time.Duration
	maxAttempts int
}

func newMachine(base, cap time.Duration, maxAttempts int) machine {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if cap <= 0 {
		cap = DefaultBackoffCap
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return machine{
		state:       StateConnecting,
		backoffBase: base,
		backoffCap:  cap,
		maxAttempts: maxAttempts,
	}
}

// transition is the pure transition function (state, event) -> (state,
// effects). All reconnect/backoff/replay decisions live here so they are
// unit-testable without a live network.
func transition(m machine, ev event) (machine, []effect) {
	switch ev := ev.(type) {
	case evOpened:
		if m.state != StateConnecting {
			return m, nil
		}
		m.state = StateConnected
		m.attempts = 0
		if m.pending != nil {
			req := *m.pending
			m.pending = nil
			return m, []effect{fxWrite{req: req}}
		}
		return m, nil

	case evClosed:
		if m.state != StateConnecting && m.state != StateConnected {
			return m, nil
		}
		if ev.normal {
			// Intentional close: terminate, no reconnection.
			return m, []effect{fxStop{}}
		}
		if m.attempts >= m.maxAttempts {
			m.state = StateFailed
			return m, nil
		}
		delay := Backoff(m.attempts, m.backoffBase, m.backoffCap)
		m.attempts++
		m.state = StateDisconnected
		return m, []effect{fxSchedule{delay: delay}}

	case evRetryTimer:
		if m.state != StateDisconnected {
			return m, nil
		}
		m.state = StateConnecting
		return m, []effect{fxDial{}}

	case evSend:
		if m.state == StateConnected {
			return m, []effect{fxWrite{req: ev.req}}
		}
		// Store as the single pending operation, overwriting any previous
		// one: only the most recent unsent operation survives. A reconnect
		// cycle is already in progress in CONNECTING/DISCONNECTED; FAILED
		// requires an explicit Retry.
		req := ev.req
		m.pending = &req
		return m, nil

	case evRetry:
		if m.state != StateFailed {
			return m, nil
		}
		m.attempts = 0
		m.state = StateConnecting
		return m, []effect{fxDial{}}
	}

	return m, nil
}
