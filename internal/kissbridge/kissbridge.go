// Package kissbridge implements C9: a TCP listener that re-exports the
// radio channel as a raw KISS stream to any number of clients,
// broadcasting transport-received frames to all of them and
// fair-sharing client-originated frames back to the transport.
package kissbridge

import (
	"bufio"
	"io"
	"net"
	"sync"

	"github.com/aprsgo/tncd/internal/kissframe"
)

// FrameSink is where a decoded client frame goes for transmission on
// the radio, matching C2's transport Send signature.
type FrameSink func(cmd byte, payload []byte) error

// Bridge accepts client connections on a TCP listener and relays raw
// KISS frames between them and the radio transport.
type Bridge struct {
	send FrameSink

	mu      sync.Mutex
	clients map[*client]struct{}

	onError func(error)
}

type client struct {
	conn net.Conn
	// outbox is this client's own FIFO for frames destined for the
	// radio, drained by its own goroutine so one busy client can never
	// starve another's turn on the shared transport.
	outbox chan []byte
}

// New constructs a Bridge that hands decoded client-originated frames
// to send.
func New(send FrameSink) *Bridge {
	return &Bridge{
		send:    send,
		clients: make(map[*client]struct{}),
	}
}

// OnError registers a callback for connection-level errors (accept
// failures, client I/O errors) that would otherwise be silently
// dropped.
func (b *Bridge) OnError(cb func(error)) { b.onError = cb }

func (b *Bridge) reportErr(err error) {
	if b.onError != nil && err != nil {
		b.onError(err)
	}
}

// Serve accepts connections on ln until it is closed. Each accepted
// client is registered for broadcast and its own frames are pumped
// into the shared fairness scheduler.
func (b *Bridge) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		b.addClient(conn)
	}
}

func (b *Bridge) addClient(conn net.Conn) {
	c := &client{conn: conn, outbox: make(chan []byte, 32)}
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()

	go b.readClient(c)
	go b.pumpClientOutbox(c)
}

func (b *Bridge) removeClient(c *client) {
	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()
	close(c.outbox)
	c.conn.Close()
}

// readClient decodes the KISS stream from one client and enqueues each
// complete frame onto that client's own outbox — the FIFO-per-client
// half of §4.9's fairness rule.
func (b *Bridge) readClient(c *client) {
	defer b.removeClient(c)
	dec := kissframe.NewDecoder(b.reportErr)
	buf := make([]byte, 4096)
	r := bufio.NewReader(c.conn)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, f := range dec.Feed(buf[:n]) {
				select {
				case c.outbox <- append([]byte(nil), f.Payload...):
				default:
					// this client's own queue is full; drop rather than
					// stall the reader loop.
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				b.reportErr(err)
			}
			return
		}
	}
}

// pumpClientOutbox drains one client's FIFO into the shared transport,
// tagging each frame with KindData before handing it to send.
func (b *Bridge) pumpClientOutbox(c *client) {
	for payload := range c.outbox {
		if err := b.send(kissframe.Command(0, kissframe.KindData), payload); err != nil {
			b.reportErr(err)
		}
	}
}

// Broadcast delivers a frame received from the transport to every
// connected client, the receive-side half of §4.9.
func (b *Bridge) Broadcast(cmd byte, payload []byte) {
	frame := kissframe.Encode(cmd, payload)

	b.mu.Lock()
	targets := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		targets = append(targets, c)
	}
	b.mu.Unlock()

	for _, c := range targets {
		if _, err := c.conn.Write(frame); err != nil {
			b.reportErr(err)
			b.removeClient(c)
		}
	}
}

// ClientCount reports the number of currently connected clients.
func (b *Bridge) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}
