package ax25

import (
	"context"
	"sync"
	"time"
)

// ConnState is a connected-mode peer's position in the state machine of
// §4.4.
type ConnState int

const (
	Disconnected ConnState = iota
	AwaitingConnect
	Connected
	AwaitingDisconnect
)

func (s ConnState) String() string {
	switch s {
	case AwaitingConnect:
		return "awaiting-connect"
	case Connected:
		return "connected"
	case AwaitingDisconnect:
		return "awaiting-disconnect"
	default:
		return "disconnected"
	}
}

// EngineParams are the tunables of §4.4: window size, retransmission
// timer, retry budget and idle timer.
type EngineParams struct {
	Window      int
	T1          time.Duration
	T3          time.Duration
	MaxRetries  int
}

// DefaultEngineParams matches the spec's stated defaults.
func DefaultEngineParams() EngineParams {
	return EngineParams{Window: 4, T1: 3 * time.Second, T3: 2 * time.Minute, MaxRetries: 5}
}

// Outcome is delivered to a connection's subscriber when the state
// machine reaches a terminal or notable transition: connected, refused,
// disconnected, or timed out.
type Outcome struct {
	State  ConnState
	Reason string
}

// SendFrame transmits one already-encoded AX.25 frame; the engine is
// transport-agnostic and calls back into whatever carries bytes to the
// radio (§4.2's Transport, glued in by the supervisor).
type SendFrame func(f *Frame) error

// pending is one unacknowledged I-frame sitting in the send window.
type pending struct {
	ns   int
	info []byte
}

// Connection is one peer's connected-mode session, run as its own actor
// per §5 ("connection engine is sharded by peer callsign: one actor per
// active peer"). All state is owned by the run goroutine; callers only
// ever touch the exported channel-based methods.
type Connection struct {
	Local  Address
	Remote Address
	Params EngineParams
	send   SendFrame
	onErr  func(error)

	mailbox   chan func()
	outcomeCh chan Outcome
	closeOnce sync.Once
	done      chan struct{}

	state ConnState
	vs    int // next N(S) to assign
	vr    int // next expected N(S) from peer
	nrAck int // highest N(R) peer has acknowledged (window floor)

	window     []pending
	retries    int
	t1Timer    *time.Timer
	t1Active   bool
	t3Timer    *time.Timer
	rejSent    bool
}

// NewConnection constructs an idle connection actor for one peer. Run
// must be called to start its event loop.
func NewConnection(local, remote Address, params EngineParams, send SendFrame) *Connection {
	c := &Connection{
		Local:     local,
		Remote:    remote,
		Params:    params,
		send:      send,
		mailbox:   make(chan func(), 32),
		outcomeCh: make(chan Outcome, 8),
		done:      make(chan struct{}),
		state:     Disconnected,
	}
	return c
}

// OnError registers a callback for transmit errors surfaced by the
// underlying send function. Must be set before Run.
func (c *Connection) OnError(cb func(error)) { c.onErr = cb }

// Outcomes returns the channel on which state notifications (§4.4's
// "notify") are delivered.
func (c *Connection) Outcomes() <-chan Outcome { return c.outcomeCh }

// State returns the connection's current state. Safe to call from any
// goroutine; it posts through the mailbox and blocks for the answer.
func (c *Connection) State() ConnState {
	reply := make(chan ConnState, 1)
	select {
	case c.mailbox <- func() { reply <- c.state }:
		return <-reply
	case <-c.done:
		return Disconnected
	}
}

// Run drives the actor's event loop until ctx is canceled.
func (c *Connection) Run(ctx context.Context) {
	defer close(c.done)
	t1C := make(<-chan time.Time)
	for {
		if c.t1Timer != nil {
			t1C = c.t1Timer.C
		} else {
			t1C = make(<-chan time.Time)
		}
		select {
		case <-ctx.Done():
			return
		case fn := <-c.mailbox:
			fn()
		case <-t1C:
			c.onT1Expire()
		}
	}
}

// post enqueues fn to run on the actor goroutine, ignoring the request
// if the actor has already exited.
func (c *Connection) post(fn func()) {
	select {
	case c.mailbox <- fn:
	case <-c.done:
	}
}

// Connect issues the local `connect()` event of §4.4's table.
func (c *Connection) Connect() { c.post(c.handleLocalConnect) }

// Disconnect issues the local `disconnect()` event.
func (c *Connection) Disconnect() { c.post(c.handleLocalDisconnect) }

// SendData issues the local `send(data)` event, enqueuing payload for
// transmission as an I-frame once the window permits.
func (c *Connection) SendData(data []byte) { c.post(func() { c.handleLocalSend(data) }) }

// Deliver feeds one frame received from C3 addressed to this peer.
func (c *Connection) Deliver(f *Frame) { c.post(func() { c.handleRecv(f) }) }

func (c *Connection) handleLocalConnect() {
	if c.state != Disconnected {
		return
	}
	c.vs, c.vr, c.nrAck = 0, 0, 0
	c.retries = 0
	c.window = nil
	c.transmit(&Frame{Dest: c.Remote, Src: c.Local, Kind: KindU, Control: BuildControlU(SABM, true)})
	c.setState(AwaitingConnect)
	c.startT1()
}

func (c *Connection) handleLocalDisconnect() {
	if c.state != Connected {
		return
	}
	c.transmit(&Frame{Dest: c.Remote, Src: c.Local, Kind: KindU, Control: BuildControlU(DISC, true)})
	c.setState(AwaitingDisconnect)
	c.retries = 0
	c.startT1()
}

func (c *Connection) handleLocalSend(data []byte) {
	if c.state != Connected {
		return
	}
	c.window = append(c.window, pending{ns: c.vs, info: data})
	c.vs = (c.vs + 1) % 8
	c.trySendWindow()
}

// trySendWindow (re)transmits every queued I-frame up to Params.Window
// frames outstanding — a go-back-N retransmit of the whole outstanding
// window, per §4.4, not just its newest member.
func (c *Connection) trySendWindow() {
	outstanding := len(c.window)
	if outstanding == 0 {
		return
	}
	if outstanding > c.Params.Window {
		outstanding = c.Params.Window
	}
	for _, p := range c.window[:outstanding] {
		f := &Frame{
			Dest: c.Remote, Src: c.Local, Kind: KindI,
			NS: p.ns, NR: c.vr, PF: true,
			Control: BuildControlI(p.ns, c.vr, true),
			HasPID:  true, PID: PIDNoLayer3, Info: p.info,
		}
		c.transmit(f)
	}
	if !c.t1Active {
		c.startT1()
	}
}

func (c *Connection) handleRecv(f *Frame) {
	// Re-derive Kind, N(S), N(R), subtype and P/F from the control byte, so a
	// frame built with only Control set is read the same as one from Decode.
	if raw, err := Encode(f); err == nil {
		if parsed, err := Decode(raw); err == nil {
			f = parsed
		}
	}
	switch c.state {
	case Disconnected:
		if f.Kind == KindU && f.UType == SABM {
			c.transmit(&Frame{Dest: c.Remote, Src: c.Local, Kind: KindU, Control: BuildControlU(UA, f.PF)})
			c.vs, c.vr, c.nrAck = 0, 0, 0
			c.setState(Connected)
		}
	case AwaitingConnect:
		switch {
		case f.Kind == KindU && f.UType == UA:
			c.vs, c.vr, c.nrAck = 0, 0, 0
			c.stopT1()
			c.setState(Connected)
			c.notify(Connected, "connected")
		case f.Kind == KindU && f.UType == DM:
			c.stopT1()
			c.setState(Disconnected)
			c.notify(Disconnected, "refused")
		}
	case Connected:
		c.handleRecvConnected(f)
	case AwaitingDisconnect:
		if f.Kind == KindU && (f.UType == UA || f.UType == DM) {
			c.stopT1()
			c.setState(Disconnected)
			c.notify(Disconnected, "disconnected")
		}
	}
}

func (c *Connection) handleRecvConnected(f *Frame) {
	switch f.Kind {
	case KindI:
		if f.NS == c.vr {
			c.vr = (c.vr + 1) % 8
			c.rejSent = false
			c.transmit(&Frame{Dest: c.Remote, Src: c.Local, Kind: KindS, Control: BuildControlS(RR, c.vr, false)})
		} else if !c.rejSent {
			c.rejSent = true
			c.transmit(&Frame{Dest: c.Remote, Src: c.Local, Kind: KindS, Control: BuildControlS(REJ, c.vr, false)})
		}
		c.ackWindow(f.NR)
	case KindS:
		switch f.SType {
		case RR:
			c.ackWindow(f.NR)
		case REJ:
			c.retransmitFrom(f.NR)
		}
	case KindU:
		if f.UType == DISC {
			c.transmit(&Frame{Dest: c.Remote, Src: c.Local, Kind: KindU, Control: BuildControlU(UA, f.PF)})
			c.stopT1()
			c.setState(Disconnected)
			c.notify(Disconnected, "peer disconnected")
		}
	}
}

// ackWindow slides the send window to nr, per "slide send window to
// N(R); stop T1 if empty; restart if not".
func (c *Connection) ackWindow(nr int) {
	c.nrAck = nr
	kept := c.window[:0]
	for _, p := range c.window {
		if !seqAcked(p.ns, nr) {
			kept = append(kept, p)
		}
	}
	c.window = kept
	c.retries = 0
	if len(c.window) == 0 {
		c.stopT1()
	} else {
		c.startT1()
		c.trySendWindow()
	}
}

// seqAcked reports whether modulo-8 sequence number ns falls before nr,
// meaning the peer has acknowledged it.
func seqAcked(ns, nr int) bool {
	// distance from ns to nr going forward, mod 8; ns is acked if nr has
	// passed it (distance in (0,4] given a window of 4).
	d := (nr - ns + 8) % 8
	return d > 0 && d <= 4
}

func (c *Connection) retransmitFrom(nr int) {
	for i := range c.window {
		if c.window[i].ns == nr {
			c.window = c.window[i:]
			break
		}
	}
	c.trySendWindow()
}

func (c *Connection) onT1Expire() {
	c.t1Active = false
	switch c.state {
	case AwaitingConnect:
		if c.retries >= c.Params.MaxRetries {
			c.setState(Disconnected)
			c.notify(Disconnected, "max retries exceeded")
			return
		}
		c.retries++
		c.transmit(&Frame{Dest: c.Remote, Src: c.Local, Kind: KindU, Control: BuildControlU(SABM, true)})
		c.startT1()
	case Connected:
		if len(c.window) == 0 {
			return
		}
		if c.retries >= c.Params.MaxRetries {
			c.setState(Disconnected)
			c.notify(Disconnected, "max retries exceeded")
			return
		}
		c.retries++
		c.trySendWindow()
	case AwaitingDisconnect:
		if c.retries >= c.Params.MaxRetries {
			c.setState(Disconnected)
			c.notify(Disconnected, "disconnect timed out")
			return
		}
		c.retries++
		c.transmit(&Frame{Dest: c.Remote, Src: c.Local, Kind: KindU, Control: BuildControlU(DISC, true)})
		c.startT1()
	}
}

func (c *Connection) startT1() {
	if c.t1Timer != nil {
		c.t1Timer.Stop()
	}
	c.t1Timer = time.NewTimer(c.Params.T1)
	c.t1Active = true
}

func (c *Connection) stopT1() {
	if c.t1Timer != nil {
		c.t1Timer.Stop()
	}
	c.t1Active = false
}

func (c *Connection) transmit(f *Frame) {
	if c.send == nil {
		return
	}
	if err := c.send(f); err != nil && c.onErr != nil {
		c.onErr(err)
	}
}

func (c *Connection) setState(s ConnState) { c.state = s }

func (c *Connection) notify(s ConnState, reason string) {
	select {
	case c.outcomeCh <- Outcome{State: s, Reason: reason}:
	default:
	}
}
