// Package client implements the chatsync synchronization agent: a single
// reliable-looking logical channel over an unreliable websocket link.
//
// Architecture: a reader goroutine feeds inbound frames to a single run-loop
// goroutine that owns the connection, the lifecycle state machine, the
// reconnect timer, and the local mirror. All writes happen from the run
// loop, so no write mutex is needed.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"

	v1 "github.com/chatsync/chatsync/protocol/v1"
)

const (
	maxInboundBytes = 1 << 20 // 1 MiB

	defaultWriteTimeout = 5 * time.Second
	defaultDialTimeout  = 10 * time.Second

	closedByCaller = "closed by caller"
)

// Options configures an Agent.
type Options struct {
	// URL of the server websocket endpoint (ws:// or wss://).
	// Ignored when Dial is set.
	URL string

	// Dial overrides the connection factory (used by tests).
	Dial DialFunc

	Logger *slog.Logger

	// Reconnect policy. Zero values select the protocol defaults
	// (1s base, 30s cap, 5 attempts).
	BackoffBase time.Duration
	BackoffCap  time.Duration
	MaxAttempts int

	WriteTimeout time.Duration
	DialTimeout  time.Duration

	// OnEvent is invoked from the run loop after each applied server event,
	// once the mirror reflects it. Optional.
	OnEvent func(v1.Event)
}

// Agent maintains one logical connection, mirrors server state locally, and
// recovers from link failures with exponential backoff and single-slot
// pending-operation replay.
type Agent struct {
	log  *slog.Logger
	dial DialFunc

	backoffBase  time.Duration
	backoffCap   time.Duration
	maxAttempts  int
	writeTimeout time.Duration
	dialTimeout  time.Duration
	onEvent      func(v1.Event)

	cmds chan command

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	mu     sync.RWMutex
	state  State
	mirror []v1.Message
}

type command struct {
	ev    event
	reply chan bool
}

// NewAgent constructs an Agent. Run must be called to start it.
func NewAgent(opts Options) (*Agent, error) {
	dial := opts.Dial
	if dial == nil {
		if opts.URL == "" {
			return nil, errors.New("client: either URL or Dial is required")
		}
		dial = WebsocketDialer(opts.URL)
	}

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}

	return &Agent{
		log:          log,
		dial:         dial,
		backoffBase:  opts.BackoffBase,
		backoffCap:   opts.BackoffCap,
		maxAttempts:  opts.MaxAttempts,
		writeTimeout: writeTimeout,
		dialTimeout:  dialTimeout,
		onEvent:      opts.OnEvent,
		cmds:         make(chan command),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		state:        StateConnecting,
	}, nil
}

// Run is the agent event loop. It blocks until the context is canceled, the
// agent is closed, or the connection is closed intentionally by the peer.
// Exhausting the reconnect budget does not return: the agent idles in
// StateFailed waiting for Retry or Close.
func (a *Agent) Run(ctx context.Context) error {
	defer close(a.done)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type dialResult struct {
		conn Conn
		err  error
	}
	type inbound struct {
		data []byte
		err  error
	}

	dialCh := make(chan dialResult, 1)

	var (
		conn       Conn
		connCancel context.CancelFunc = func() {}
		inboundCh  chan inbound

		timer  *time.Timer
		timerC <-chan time.Time

		dialing bool
		stopped bool
	)

	startDial := func() {
		dialing = true
		go func() {
			dctx, dcancel := context.WithTimeout(runCtx, a.dialTimeout)
			defer dcancel()

			c, err := a.dial(dctx)
			// dialCh is buffered and at most one dial is in flight, so this
			// never blocks. The loop (or abandonDial on exit) always drains
			// it; dropping the result here could leak an open connection.
			dialCh <- dialResult{conn: c, err: err}
		}()
	}

	// abandonDial reaps an in-flight dial on the exit paths: cancel makes
	// the dialer return promptly, and any connection it opened is closed.
	abandonDial := func() {
		if !dialing {
			return
		}
		cancel()
		res := <-dialCh
		dialing = false
		if res.conn != nil {
			_ = res.conn.Close(websocket.StatusNormalClosure, closedByCaller)
		}
	}

	startReader := func() {
		ch := make(chan inbound, 16)
		inboundCh = ch

		var rctx context.Context
		rctx, connCancel = context.WithCancel(runCtx)

		// Capture conn by value so a stale reader from a previous connection
		// can never feed the current loop.
		c := conn
		go func() {
			for {
				_, data, err := c.Read(rctx)
				select {
				case ch <- inbound{data: data, err: err}:
				case <-rctx.Done():
					return
				}
				if err != nil {
					return
				}
			}
		}()
	}

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	closeConn := func(reason string) {
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, reason)
			conn = nil
		}
		connCancel()
		inboundCh = nil
	}

	m := newMachine(a.backoffBase, a.backoffCap, a.maxAttempts)
	a.setState(m.state)

	apply := func(ev event) []effect {
		var fx []effect
		m, fx = transition(m, ev)
		a.setState(m.state)

		for _, f := range fx {
			switch f := f.(type) {
			case fxWrite:
				a.write(runCtx, conn, f.req)
			case fxDial:
				startDial()
			case fxSchedule:
				a.log.Info("agent.reconnect.schedule", "delay_ms", f.delay.Milliseconds(), "attempt", m.attempts)
				stopTimer()
				timer = time.NewTimer(f.delay)
				timerC = timer.C
			case fxStop:
				stopped = true
			}
		}
		return fx
	}

	// Initial state is CONNECTING: open the first connection immediately.
	a.log.Info("agent.start")
	startDial()

	for {
		select {
		case <-runCtx.Done():
			stopTimer()
			abandonDial()
			closeConn(closedByCaller)
			a.log.Info("agent.stopped", "reason", "context_done")
			return nil

		case <-a.stop:
			stopTimer()
			abandonDial()
			closeConn(closedByCaller)
			a.log.Info("agent.stopped", "reason", "closed_by_caller")
			return nil

		case res := <-dialCh:
			dialing = false
			if res.err != nil {
				a.log.Warn("agent.dial.fail", "err", res.err)
				apply(evClosed{normal: false})
			} else {
				conn = res.conn
				startReader()
				a.log.Info("agent.connected")
				apply(evOpened{})
			}

		case in := <-inboundCh:
			if in.err != nil {
				normal := websocket.CloseStatus(in.err) == websocket.StatusNormalClosure
				a.log.Info("agent.conn.lost", "normal", normal, "err", in.err)
				closeConn("peer closed")
				apply(evClosed{normal: normal})
			} else {
				a.applyInbound(in.data)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			apply(evRetryTimer{})

		case cmd := <-a.cmds:
			fx := apply(cmd.ev)
			if cmd.reply != nil {
				sent := false
				for _, f := range fx {
					if _, ok := f.(fxWrite); ok {
						sent = true
					}
				}
				cmd.reply <- sent
			}
		}

		if stopped {
			stopTimer()
			abandonDial()
			closeConn(closedByCaller)
			a.log.Info("agent.stopped", "reason", "normal_close")
			return nil
		}
	}
}

// TrySend sends a mutation request if connected and reports success.
// When not connected it stores the request as the single pending operation
// (overwriting any previous one) and returns false, so the caller can defer
// clearing its own optimistic state until the corresponding event arrives.
func (a *Agent) TrySend(req v1.Request) bool {
	reply := make(chan bool, 1)
	select {
	case a.cmds <- command{ev: evSend{req: req}, reply: reply}:
	case <-a.done:
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-a.done:
		return false
	}
}

// Retry re-enters CONNECTING from FAILED with a reset attempt counter.
// It is a no-op in any other state.
func (a *Agent) Retry() {
	select {
	case a.cmds <- command{ev: evRetry{}}:
	case <-a.done:
	}
}

// Close tears the agent down: the pending reconnect timer is canceled and
// the active connection is closed with the normal code so peers do not see
// an abnormal disconnect. Idempotent.
func (a *Agent) Close() error {
	a.stopOnce.Do(func() { close(a.stop) })
	return nil
}

// Done is closed when the run loop has exited.
func (a *Agent) Done() <-chan struct{} { return a.done }

// State returns the current lifecycle state.
func (a *Agent) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Messages returns a copy of the local mirror.
func (a *Agent) Messages() []v1.Message {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]v1.Message, len(a.mirror))
	copy(out, a.mirror)
	return out
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// applyInbound parses one server frame and patches the mirror. Malformed
// data is logged and dropped without affecting connection state.
func (a *Agent) applyInbound(data []byte) {
	ev, err := v1.ParseEvent(data)
	if err != nil {
		a.log.Warn("agent.event.malformed", "err", err)
		return
	}

	a.mu.Lock()
	a.mirror = applyToMirror(a.mirror, ev)
	a.mu.Unlock()

	if a.onEvent != nil {
		a.onEvent(ev)
	}
}

// write is fire-and-forget: success is inferred only from the resulting
// broadcast event arriving, never from the transport. A write failure will
// surface through the read side as a connection loss.
func (a *Agent) write(ctx context.Context, conn Conn, req v1.Request) {
	if conn == nil {
		return
	}

	b, err := json.Marshal(req)
	if err != nil {
		a.log.Error("agent.encode.fail", "err", err)
		return
	}

	wctx, cancel := context.WithTimeout(ctx, a.writeTimeout)
	defer cancel()

	if err := conn.Write(wctx, websocket.MessageText, b); err != nil {
		a.log.Warn("agent.write.fail", "err", err)
	}
}
