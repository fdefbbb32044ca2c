package ax25

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopbackPair wires two Connection actors' transmit functions directly
// into each other's Deliver, simulating a lossless radio link so the
// state machine of §4.4 can be exercised without a real transport.
func loopbackPair(t *testing.T, params EngineParams) (a, b *Connection, cancel func()) {
	t.Helper()
	callA := mustAddr(t, "N0CALL-1", false)
	callB := mustAddr(t, "N0CALL-2", false)

	ctx, cancelFn := context.WithCancel(context.Background())

	var mu sync.Mutex
	var bRef, aRef *Connection

	a = NewConnection(callA, callB, params, func(f *Frame) error {
		mu.Lock()
		dst := bRef
		mu.Unlock()
		if dst != nil {
			dst.Deliver(f)
		}
		return nil
	})
	b = NewConnection(callB, callA, params, func(f *Frame) error {
		mu.Lock()
		dst := aRef
		mu.Unlock()
		if dst != nil {
			dst.Deliver(f)
		}
		return nil
	})
	mu.Lock()
	aRef, bRef = a, b
	mu.Unlock()

	go a.Run(ctx)
	go b.Run(ctx)
	return a, b, cancelFn
}

func TestConnection_ConnectHandshake(t *testing.T) {
	a, b, cancel := loopbackPair(t, DefaultEngineParams())
	defer cancel()

	a.Connect()

	select {
	case out := <-a.Outcomes():
		assert.Equal(t, Connected, out.State)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connect outcome")
	}

	assert.Equal(t, Connected, a.State())
	assert.Equal(t, Connected, b.State())
}

func TestConnection_DataTransferAndDisconnect(t *testing.T) {
	a, b, cancel := loopbackPair(t, DefaultEngineParams())
	defer cancel()

	a.Connect()
	require.Eventually(t, func() bool { return a.State() == Connected }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return b.State() == Connected }, 2*time.Second, 10*time.Millisecond)
	select {
	case out := <-a.Outcomes():
		require.Equal(t, Connected, out.State)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connect outcome")
	}

	a.SendData([]byte("hello"))
	// b's window slides only on receipt; give the loopback goroutines a
	// moment to exchange I/RR frames.
	time.Sleep(100 * time.Millisecond)

	a.Disconnect()
	select {
	case out := <-a.Outcomes():
		assert.Equal(t, Disconnected, out.State)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnect outcome")
	}
	require.Eventually(t, func() bool { return b.State() == Disconnected }, 2*time.Second, 10*time.Millisecond)
}

func TestConnection_RefusedByDM(t *testing.T) {
	params := DefaultEngineParams()
	params.T1 = 50 * time.Millisecond
	callA := mustAddr(t, "N0CALL-1", false)
	callB := mustAddr(t, "N0CALL-2", false)

	var a *Connection
	a = NewConnection(callA, callB, params, func(f *Frame) error {
		// Simulate a peer that always refuses with DM instead of SABM/UA.
		reply := &Frame{Dest: callA, Src: callB, Kind: KindU, Control: BuildControlU(DM, true)}
		go func() { a2Deliver(a, reply) }()
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	a.Connect()
	select {
	case out := <-a.Outcomes():
		assert.Equal(t, Disconnected, out.State)
		assert.Equal(t, "refused", out.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for refusal outcome")
	}
}

func a2Deliver(c *Connection, f *Frame) { c.Deliver(f) }

// captureSend records every transmitted frame's kind/N(S) without moving
// any bytes, so a window's retransmit burst can be counted directly.
func captureSend(mu *sync.Mutex, sent *[]Frame) SendFrame {
	return func(f *Frame) error {
		mu.Lock()
		*sent = append(*sent, *f)
		mu.Unlock()
		return nil
	}
}

func TestTrySendWindow_RetransmitsEveryOutstandingFrame(t *testing.T) {
	var mu sync.Mutex
	var sent []Frame
	callA := mustAddr(t, "N0CALL-1", false)
	callB := mustAddr(t, "N0CALL-2", false)
	params := DefaultEngineParams()
	c := NewConnection(callA, callB, params, captureSend(&mu, &sent))
	c.state = Connected
	c.window = []pending{
		{ns: 0, info: []byte("one")},
		{ns: 1, info: []byte("two")},
		{ns: 2, info: []byte("three")},
	}

	c.trySendWindow()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 3)
	assert.Equal(t, 0, sent[0].NS)
	assert.Equal(t, 1, sent[1].NS)
	assert.Equal(t, 2, sent[2].NS)
}

func TestRetransmitFrom_OnREJResendsFromRequestedSeq(t *testing.T) {
	var mu sync.Mutex
	var sent []Frame
	callA := mustAddr(t, "N0CALL-1", false)
	callB := mustAddr(t, "N0CALL-2", false)
	params := DefaultEngineParams()
	c := NewConnection(callA, callB, params, captureSend(&mu, &sent))
	c.state = Connected
	c.window = []pending{
		{ns: 0, info: []byte("one")},
		{ns: 1, info: []byte("two")},
		{ns: 2, info: []byte("three")},
	}

	c.retransmitFrom(1)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 2)
	assert.Equal(t, 1, sent[0].NS)
	assert.Equal(t, 2, sent[1].NS)
}

func TestOnT1Expire_ConnectedResendsWholeWindow(t *testing.T) {
	var mu sync.Mutex
	var sent []Frame
	callA := mustAddr(t, "N0CALL-1", false)
	callB := mustAddr(t, "N0CALL-2", false)
	params := DefaultEngineParams()
	c := NewConnection(callA, callB, params, captureSend(&mu, &sent))
	c.state = Connected
	c.window = []pending{
		{ns: 0, info: []byte("one")},
		{ns: 1, info: []byte("two")},
	}

	c.onT1Expire()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 2)
	assert.Equal(t, 0, sent[0].NS)
	assert.Equal(t, 1, sent[1].NS)
	assert.Equal(t, 1, c.retries)
}

func TestConnection_DataTransferAcrossMultipleSends(t *testing.T) {
	a, b, cancel := loopbackPair(t, DefaultEngineParams())
	defer cancel()

	a.Connect()
	require.Eventually(t, func() bool { return a.State() == Connected }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return b.State() == Connected }, 2*time.Second, 10*time.Millisecond)
	select {
	case out := <-a.Outcomes():
		require.Equal(t, Connected, out.State)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connect outcome")
	}

	a.SendData([]byte("one"))
	a.SendData([]byte("two"))
	a.SendData([]byte("three"))
	time.Sleep(200 * time.Millisecond)

	a.Disconnect()
	select {
	case out := <-a.Outcomes():
		assert.Equal(t, Disconnected, out.State)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnect outcome")
	}
	require.Eventually(t, func() bool { return b.State() == Disconnected }, 2*time.Second, 10*time.Millisecond)
}

func TestSeqAcked(t *testing.T) {
	assert.True(t, seqAcked(0, 1))
	assert.True(t, seqAcked(0, 4))
	assert.False(t, seqAcked(0, 0))
	assert.False(t, seqAcked(0, 5))
	assert.True(t, seqAcked(6, 2)) // wraps mod 8
}
