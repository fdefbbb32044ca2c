package kissbridge

import (
	"net"
	"testing"
	"time"

	"github.com/aprsgo/tncd/internal/kissframe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcast_SendsToAllClients(t *testing.T) {
	b := New(func(cmd byte, payload []byte) error { return nil })

	serverConn, clientConn := net.Pipe()
	c := &client{conn: serverConn, outbox: make(chan []byte, 4)}
	b.clients[c] = struct{}{}
	go b.pumpClientOutbox(c)

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := clientConn.Read(buf)
		done <- buf[:n]
	}()

	b.Broadcast(kissframe.Command(0, kissframe.KindData), []byte("hello"))

	select {
	case data := <-done:
		assert.Equal(t, kissframe.Encode(kissframe.Command(0, kissframe.KindData), []byte("hello")), data)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestReadClient_DecodesAndForwardsToSend(t *testing.T) {
	received := make(chan []byte, 1)
	b := New(func(cmd byte, payload []byte) error {
		received <- payload
		return nil
	})

	serverConn, clientConn := net.Pipe()
	c := &client{conn: serverConn, outbox: make(chan []byte, 4)}
	b.clients[c] = struct{}{}
	go b.readClient(c)
	go b.pumpClientOutbox(c)

	frame := kissframe.Encode(kissframe.Command(0, kissframe.KindData), []byte("test-payload"))
	go clientConn.Write(frame)

	select {
	case payload := <-received:
		assert.Equal(t, []byte("test-payload"), payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for client frame to reach transport")
	}
	clientConn.Close()
}

func TestClientCount_TracksAddAndRemove(t *testing.T) {
	b := New(func(cmd byte, payload []byte) error { return nil })
	serverConn, clientConn := net.Pipe()
	c := &client{conn: serverConn, outbox: make(chan []byte, 4)}
	b.clients[c] = struct{}{}
	assert.Equal(t, 1, b.ClientCount())

	b.removeClient(c)
	assert.Equal(t, 0, b.ClientCount())
	clientConn.Close()
}

func TestServe_AcceptsAndRegistersClients(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	b := New(func(cmd byte, payload []byte) error { return nil })
	go b.Serve(ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return b.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)
}
