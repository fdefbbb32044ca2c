// Package txqueue serializes access to the transport per §5: exactly
// one frame on the wire at a time, chosen by FIFO within a priority
// class (ack > retry > user-originated > beacon).
package txqueue

import (
	"context"
)

// Priority orders which class of outbound frame is chosen first when
// more than one is ready.
type Priority int

const (
	PriorityAck Priority = iota
	PriorityRetry
	PriorityUser
	PriorityBeacon
	numPriorities
)

// Sender writes one already-framed byte sequence to the transport.
type Sender func(frame []byte) error

// Queue holds one buffered channel per priority class and a single
// drain loop that always prefers the highest-priority non-empty lane,
// the teacher's per-purpose buffered-channel idiom generalized to four
// lanes instead of one.
type Queue struct {
	lanes [numPriorities]chan []byte
	send  Sender
	onErr func(error)
}

// New constructs a Queue with the given per-lane buffer depth.
func New(send Sender, laneDepth int) *Queue {
	q := &Queue{send: send}
	for i := range q.lanes {
		q.lanes[i] = make(chan []byte, laneDepth)
	}
	return q
}

// OnError installs a callback invoked whenever the sender returns an
// error; the queue keeps draining regardless.
func (q *Queue) OnError(cb func(error)) { q.onErr = cb }

// Enqueue queues a frame on the named priority lane. It blocks if that
// lane is full, applying backpressure to the producer rather than
// silently dropping a frame the caller expects to be sent.
func (q *Queue) Enqueue(p Priority, frame []byte) {
	q.lanes[p] <- frame
}

// TryEnqueue is the non-blocking form: it returns false instead of
// waiting when the lane is full.
func (q *Queue) TryEnqueue(p Priority, frame []byte) bool {
	select {
	case q.lanes[p] <- frame:
		return true
	default:
		return false
	}
}

// Run drains the lanes in strict priority order until ctx is canceled,
// then drains whatever remains once (the shutdown grace period is the
// caller's responsibility via ctx's deadline).
func (q *Queue) Run(ctx context.Context) {
	for {
		if !q.drainOne(ctx) {
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}
}

// drainOne sends at most one frame, preferring the highest-priority
// non-empty lane, and reports whether it sent anything.
func (q *Queue) drainOne(ctx context.Context) bool {
	for p := range q.lanes {
		select {
		case frame := <-q.lanes[p]:
			if err := q.send(frame); err != nil && q.onErr != nil {
				q.onErr(err)
			}
			return true
		default:
		}
	}
	select {
	case <-ctx.Done():
		return false
	case frame := <-q.lanes[PriorityAck]:
		if err := q.send(frame); err != nil && q.onErr != nil {
			q.onErr(err)
		}
		return true
	case frame := <-q.lanes[PriorityRetry]:
		if err := q.send(frame); err != nil && q.onErr != nil {
			q.onErr(err)
		}
		return true
	case frame := <-q.lanes[PriorityUser]:
		if err := q.send(frame); err != nil && q.onErr != nil {
			q.onErr(err)
		}
		return true
	case frame := <-q.lanes[PriorityBeacon]:
		if err := q.send(frame); err != nil && q.onErr != nil {
			q.onErr(err)
		}
		return true
	}
}

// Drain flushes every remaining queued frame synchronously, used during
// shutdown's grace period before the transport is closed.
func (q *Queue) Drain() {
	for {
		sent := false
		for p := range q.lanes {
			select {
			case frame := <-q.lanes[p]:
				if err := q.send(frame); err != nil && q.onErr != nil {
					q.onErr(err)
				}
				sent = true
			default:
			}
		}
		if !sent {
			return
		}
	}
}

// Len reports how many frames are currently queued across all lanes.
func (q *Queue) Len() int {
	n := 0
	for _, l := range q.lanes {
		n += len(l)
	}
	return n
}
