// Package transport implements the three KISS carriers named in the spec
// (BLE handheld, serial TNC, KISS-over-TCP) behind one interface, with
// uniform connect/reconnect and state-change semantics.
package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// State is the transport's connectedness, exposed monotonically to
// observers (§4.2: "expose a monotonic connected/disconnected state").
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateConnecting:
		return "connecting"
	default:
		return "disconnected"
	}
}

// Transport is the capability set every KISS carrier implements.
type Transport interface {
	// Open establishes the underlying connection. It blocks until the
	// first connection attempt resolves (success or permanent failure);
	// subsequent reconnects happen in the background and are reported
	// through OnState.
	Open(ctx context.Context) error
	// Send writes one already-framed KISS byte sequence.
	Send(frame []byte) error
	// Close releases the underlying connection and stops reconnecting.
	Close() error
	// OnBytes registers the callback invoked with every chunk of raw
	// bytes read from the carrier. Must be called before Open.
	OnBytes(cb func([]byte))
	// OnState registers the callback invoked whenever State changes.
	OnState(cb func(State))
	// State returns the current connectedness.
	State() State
}

// Backoff parameters for automatic reconnection (§4.2).
const (
	backoffInitial = time.Second
	backoffMax     = 30 * time.Second
)

// nextBackoff doubles d, capped at backoffMax.
func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > backoffMax {
		return backoffMax
	}
	return d
}

// ErrFatal wraps a transport error that should not be retried (e.g. an
// authentication/permission failure), per §4.2's failure-mode split.
type ErrFatal struct {
	Err error
}

func (e *ErrFatal) Error() string { return "transport: fatal: " + e.Err.Error() }
func (e *ErrFatal) Unwrap() error { return e.Err }

func isFatal(err error) bool {
	var f *ErrFatal
	return errors.As(err, &f)
}

// base holds the plumbing common to every carrier: callbacks, current
// state, and reconnect loop management. Carriers embed it and supply a
// dial function.
type base struct {
	mu        sync.Mutex
	state     atomic.Int32
	onBytes   func([]byte)
	onState   func(State)
	closed    atomic.Bool
	cancelCtx context.CancelFunc
}

func (b *base) OnBytes(cb func([]byte)) { b.mu.Lock(); b.onBytes = cb; b.mu.Unlock() }
func (b *base) OnState(cb func(State))  { b.mu.Lock(); b.onState = cb; b.mu.Unlock() }

func (b *base) State() State { return State(b.state.Load()) }

func (b *base) setState(s State) {
	b.state.Store(int32(s))
	b.mu.Lock()
	cb := b.onState
	b.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

func (b *base) deliverBytes(p []byte) {
	b.mu.Lock()
	cb := b.onBytes
	b.mu.Unlock()
	if cb != nil {
		cb(p)
	}
}

// runWithReconnect drives dial/pump/backoff until ctx is canceled or a
// fatal error is returned by dial. It blocks the calling goroutine until
// the first dial attempt resolves, then continues reconnecting in the
// background.
func (b *base) runWithReconnect(ctx context.Context, dial func(ctx context.Context) (pump func(ctx context.Context) error, closeFn func() error, err error)) error {
	first := make(chan error, 1)
	go func() {
		backoff := backoffInitial
		firstAttempt := true
		for {
			if ctx.Err() != nil {
				return
			}
			b.setState(StateConnecting)
			pump, closeFn, err := dial(ctx)
			if err != nil {
				if firstAttempt {
					first <- err
					firstAttempt = false
					if isFatal(err) {
						return
					}
				}
				if isFatal(err) {
					return
				}
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return
				}
				backoff = nextBackoff(backoff)
				continue
			}
			if firstAttempt {
				first <- nil
				firstAttempt = false
			}
			backoff = backoffInitial
			b.setState(StateConnected)
			pumpErr := pump(ctx)
			if closeFn != nil {
				_ = closeFn()
			}
			if ctx.Err() != nil {
				b.setState(StateDisconnected)
				return
			}
			b.setState(StateDisconnected)
			if pumpErr != nil && isFatal(pumpErr) {
				return
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = nextBackoff(backoff)
		}
	}()
	return <-first
}
