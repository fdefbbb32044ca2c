package agwpe

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/aprsgo/tncd/internal/ax25"
)

// PortInfo describes one radio port for the AGWPE port-info/capability
// queries (G/g).
type PortInfo struct {
	Name        string
	Baud        int
	TXDelayMS   int
	Persistence int
}

// UnprotoSender transmits a UI frame on the radio; RawSender transmits
// an already-framed AX.25 packet. Both correspond to C2/C3 send paths.
type UnprotoSender func(dest string, path []string, info []byte) error
type RawSender func(raw []byte) error

// PeerManager is the subset of internal/ax25.Manager the connected-mode
// data kinds (C/v/c/D/d) need.
type PeerManager interface {
	Peer(remote ax25.Address) *ax25.Connection
}

// Server is the AGWPE application-protocol listener. One Server can
// serve any number of concurrently connected clients.
type Server struct {
	myCallsign string
	ports      []PortInfo
	sendUnproto UnprotoSender
	sendRaw     RawSender
	peers       PeerManager

	mu      sync.Mutex
	clients map[*Client]struct{}

	onError func(error)
}

// Client is one connected AGWPE application, tracking its monitor
// filter state and registered callsigns per §4.10.
type Client struct {
	conn          net.Conn
	addr          string
	w             *bufio.Writer
	wmu           sync.Mutex
	monEnabled    bool
	rawEnabled    bool
	registered    map[string]bool
	mu            sync.Mutex
}

// New constructs a Server for myCallsign exposing ports, using
// sendUnproto/sendRaw for transmission and peers for connected-mode
// requests.
func New(myCallsign string, ports []PortInfo, sendUnproto UnprotoSender, sendRaw RawSender, peers PeerManager) *Server {
	return &Server{
		myCallsign:  strings.ToUpper(myCallsign),
		ports:       ports,
		sendUnproto: sendUnproto,
		sendRaw:     sendRaw,
		peers:       peers,
		clients:     make(map[*Client]struct{}),
	}
}

// OnError registers a callback for connection-level errors.
func (s *Server) OnError(cb func(error)) { s.onError = cb }

func (s *Server) reportErr(err error) {
	if s.onError != nil && err != nil {
		s.onError(err)
	}
}

// Serve accepts connections on ln until it is closed.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleClient(conn)
	}
}

func (s *Server) handleClient(conn net.Conn) {
	c := &Client{
		conn:       conn,
		addr:       conn.RemoteAddr().String(),
		w:          bufio.NewWriter(conn),
		registered: make(map[string]bool),
	}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		conn.Close()
	}()

	r := bufio.NewReader(conn)
	for {
		f, err := ReadFrame(r)
		if err != nil {
			if err != io.EOF {
				s.reportErr(fmt.Errorf("agwpe: %s: %w", c.addr, err))
			}
			return
		}
		s.dispatch(c, f)
	}
}

func (c *Client) send(f Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.w.Write(Encode(f)); err != nil {
		return err
	}
	return c.w.Flush()
}

// dispatch handles one decoded frame from client c per §4.10's
// data-kind table.
func (s *Server) dispatch(c *Client, f Frame) {
	switch f.Kind {
	case KindVersion:
		c.send(Frame{Kind: KindVersion, Data: []byte("AGWPE emulation\r\n")})

	case KindPortInfo:
		s.sendPortInfo(c)

	case KindPortCap:
		s.sendPortCapabilities(c, f.Port)

	case KindMonitor:
		c.mu.Lock()
		c.monEnabled = true
		c.mu.Unlock()

	case KindMonitorRaw:
		c.mu.Lock()
		c.rawEnabled = true
		c.mu.Unlock()

	case KindRegisterCall:
		if f.CallFrom != "" {
			c.mu.Lock()
			c.registered[strings.ToUpper(f.CallFrom)] = true
			c.mu.Unlock()
		}

	case KindUnregister:
		c.mu.Lock()
		delete(c.registered, strings.ToUpper(f.CallFrom))
		c.mu.Unlock()

	case KindUnproto, KindUnprotoVia:
		s.handleUnproto(f)

	case KindRawFrame:
		if s.sendRaw != nil {
			if err := s.sendRaw(f.Data); err != nil {
				s.reportErr(err)
			}
		}

	case KindOutstanding, KindOutstandingC:
		resp := Frame{Port: f.Port, Kind: f.Kind, CallFrom: f.CallFrom, CallTo: f.CallTo, Data: make([]byte, 4)}
		c.send(resp)

	case KindConnect, KindConnectVia, KindConnectCustom:
		s.handleConnect(c, f)

	case KindData:
		s.handleData(f)

	case KindDisconnect:
		s.handleDisconnect(f)
	}
}

func (s *Server) sendPortInfo(c *Client) {
	data := fmt.Sprintf("%d;", len(s.ports))
	for _, p := range s.ports {
		data += fmt.Sprintf("%s\r", p.Name)
	}
	c.send(Frame{Kind: KindPortInfo, Data: []byte(data)})
}

func (s *Server) sendPortCapabilities(c *Client, port uint8) {
	var p PortInfo
	if int(port) < len(s.ports) {
		p = s.ports[port]
	}
	data := make([]byte, 12)
	data[0] = byte(p.Baud)
	data[8] = byte(p.TXDelayMS / 10)
	data[9] = byte(p.Persistence)
	c.send(Frame{Port: port, Kind: KindPortCap, Data: data})
}

func (s *Server) handleUnproto(f Frame) {
	if s.sendUnproto == nil {
		return
	}
	// KindUnprotoVia's payload begins with a comma-separated via path
	// followed by NUL, then the info text; KindUnproto has no path.
	path, info := splitUnprotoPayload(f.Kind, f.Data)
	if err := s.sendUnproto(f.CallTo, path, info); err != nil {
		s.reportErr(err)
	}
}

func splitUnprotoPayload(kind DataKind, data []byte) (path []string, info []byte) {
	if kind != KindUnprotoVia {
		return nil, data
	}
	idx := indexByte(data, 0)
	if idx < 0 {
		return nil, data
	}
	pathStr := string(data[:idx])
	if pathStr != "" {
		path = strings.Split(pathStr, ",")
	}
	return path, data[idx+1:]
}

func indexByte(b []byte, target byte) int {
	for i, c := range b {
		if c == target {
			return i
		}
	}
	return -1
}

func (s *Server) handleConnect(c *Client, f Frame) {
	if s.peers == nil {
		return
	}
	remote, err := ax25.NewAddress(f.CallTo, false)
	if err != nil {
		return
	}
	conn := s.peers.Peer(remote)
	go func() {
		for outcome := range conn.Outcomes() {
			switch outcome.State {
			case ax25.Connected:
				c.send(Frame{Port: f.Port, Kind: KindConnect, CallFrom: f.CallFrom, CallTo: f.CallTo})
			case ax25.Disconnected:
				c.send(Frame{Port: f.Port, Kind: KindDisconnect, CallFrom: f.CallFrom, CallTo: f.CallTo})
				return
			}
		}
	}()
	conn.Connect()
}

func (s *Server) handleData(f Frame) {
	if s.peers == nil {
		return
	}
	remote, err := ax25.NewAddress(f.CallTo, false)
	if err != nil {
		return
	}
	s.peers.Peer(remote).SendData(f.Data)
}

func (s *Server) handleDisconnect(f Frame) {
	if s.peers == nil {
		return
	}
	remote, err := ax25.NewAddress(f.CallTo, false)
	if err != nil {
		return
	}
	s.peers.Peer(remote).Disconnect()
}

// EmitMonitor formats and delivers a monitored AX.25 frame to every
// client with monitoring enabled, and the raw AX.25 bytes to every
// client with raw-frame mode enabled, per §4.10's monitor emission
// rule.
func (s *Server) EmitMonitor(frame *ax25.Frame, raw []byte, at time.Time) {
	s.mu.Lock()
	targets := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	header := monitorHeaderLine(frame, len(raw), at)
	data := append([]byte(header), frame.Info...)

	for _, c := range targets {
		c.mu.Lock()
		mon, rawOn := c.monEnabled, c.rawEnabled
		c.mu.Unlock()

		if mon {
			c.send(Frame{Kind: KindMonitorUI, CallFrom: frame.Src.String(), CallTo: frame.Dest.String(), PID: pidOrDefault(frame), Data: data})
		}
		if rawOn {
			c.send(Frame{Kind: KindRawFrame, Data: raw})
		}
	}
}

func pidOrDefault(f *ax25.Frame) byte {
	if f.HasPID {
		return f.PID
	}
	return ax25.PIDNoLayer3
}

func monitorHeaderLine(f *ax25.Frame, rawLen int, at time.Time) string {
	pathParts := make([]string, 0, len(f.Digis))
	for _, d := range f.Digis {
		s := d.String()
		if d.Bit7 {
			s += "*"
		}
		pathParts = append(pathParts, s)
	}
	pathStr := ""
	if len(pathParts) > 0 {
		pathStr = "," + strings.Join(pathParts, ",")
	}
	frameType := frameTypeLabel(f)
	return fmt.Sprintf("0: %s>%s%s <%s Len=%d> [%s]\r\n",
		f.Src.String(), f.Dest.String(), pathStr, frameType, rawLen, at.Format("15:04:05"))
}

func frameTypeLabel(f *ax25.Frame) string {
	switch f.Kind {
	case ax25.KindI:
		return fmt.Sprintf("I N(S)=%d N(R)=%d", f.NS, f.NR)
	case ax25.KindS:
		names := map[ax25.SFrameType]string{ax25.RR: "RR", ax25.RNR: "RNR", ax25.REJ: "REJ"}
		return fmt.Sprintf("%s N(R)=%d", names[f.SType], f.NR)
	case ax25.KindU:
		names := map[ax25.UFrameType]string{
			ax25.SABM: "SABM", ax25.UA: "UA", ax25.DISC: "DISC", ax25.DM: "DM", ax25.FRMR: "FRMR",
		}
		if name, ok := names[f.UType]; ok {
			return name
		}
		return "U"
	default:
		if f.HasPID {
			return fmt.Sprintf("UI pid=%02X", f.PID)
		}
		return "UI"
	}
}
