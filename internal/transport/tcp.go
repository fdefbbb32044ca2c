package transport

import (
	"context"
	"fmt"
	"net"
)

// TCPClient drives a remote KISS-over-TCP software TNC (§4.2).
type TCPClient struct {
	base
	Host string
	Port int

	conn net.Conn
}

// NewTCPClient constructs a TCPClient transport for host:port.
func NewTCPClient(host string, port int) *TCPClient {
	return &TCPClient{Host: host, Port: port}
}

func (t *TCPClient) Open(ctx context.Context) error {
	return t.runWithReconnect(ctx, t.dial)
}

func (t *TCPClient) dial(ctx context.Context) (pump func(context.Context) error, closeFn func() error, err error) {
	addr := fmt.Sprintf("%s:%d", t.Host, t.Port)
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	t.conn = conn

	pump = func(ctx context.Context) error {
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return fmt.Errorf("transport: tcp read: %w", err)
			}
			t.deliverBytes(append([]byte(nil), buf[:n]...))
		}
	}
	closeFn = conn.Close
	return pump, closeFn, nil
}

func (t *TCPClient) Send(frame []byte) error {
	if t.conn == nil {
		return fmt.Errorf("transport: tcp not connected")
	}
	_, err := t.conn.Write(frame)
	return err
}

func (t *TCPClient) Close() error {
	t.closed.Store(true)
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}
