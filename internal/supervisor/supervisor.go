// Package supervisor implements C15: the single long-lived coordinator
// that owns the configuration, opens the transport, wires the decode
// pipeline (C1/C3/C4/C5) into the station database and message
// manager, and starts every listener the configuration enables.
package supervisor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/aprsgo/tncd/internal/agwpe"
	"github.com/aprsgo/tncd/internal/aprs"
	"github.com/aprsgo/tncd/internal/ax25"
	"github.com/aprsgo/tncd/internal/beacon"
	"github.com/aprsgo/tncd/internal/config"
	"github.com/aprsgo/tncd/internal/digipeater"
	"github.com/aprsgo/tncd/internal/eventbus"
	"github.com/aprsgo/tncd/internal/framebuffer"
	"github.com/aprsgo/tncd/internal/httpapi"
	"github.com/aprsgo/tncd/internal/kissbridge"
	"github.com/aprsgo/tncd/internal/kissframe"
	"github.com/aprsgo/tncd/internal/logging"
	"github.com/aprsgo/tncd/internal/msgmanager"
	"github.com/aprsgo/tncd/internal/station"
	"github.com/aprsgo/tncd/internal/transport"
	"github.com/aprsgo/tncd/internal/txqueue"
)

// Paths locates the two persisted-state files the supervisor owns: the
// station database and the frame buffer.
type Paths struct {
	StationsGZ string
	FrameBufGZ string
}

// DefaultPaths returns §6's documented paths under the user's home
// directory.
func DefaultPaths() Paths {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Paths{
		StationsGZ: filepath.Join(home, ".aprs_stations.json.gz"),
		FrameBufGZ: filepath.Join(home, ".console_frame_buffer.json.gz"),
	}
}

const (
	persistInterval = 5 * time.Minute
	retryInterval   = time.Second
	reapInterval    = 30 * time.Second
	shutdownGrace   = 15 * time.Second
	laneDepth       = 64
)

// Supervisor owns every long-lived task in the running system.
type Supervisor struct {
	cfg    config.Config
	local  ax25.Address
	paths  Paths
	logger *log.Logger

	transport  transport.Transport
	txq        *txqueue.Queue
	kissDec    *kissframe.Decoder
	stations   *station.DB
	messages   *msgmanager.Manager
	digipeater *digipeater.Digipeater
	frames     *framebuffer.Buffer
	bus        *eventbus.Bus
	ax25mgr    *ax25.Manager
	beacon     *beacon.Beacon

	kissBridge *kissbridge.Bridge
	agwSrv     *agwpe.Server
	httpSrv    *http.Server

	cancel context.CancelFunc
}

// New wires every component named by cfg, but does not start any task
// yet; call Run to do that.
func New(cfg config.Config, tr transport.Transport, paths Paths, logger *log.Logger) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, ssid, err := ax25.ParseCallsign(cfg.MyCallsign)
	if err != nil {
		return nil, fmt.Errorf("supervisor: invalid MYCALL: %w", err)
	}
	local := ax25.Address{Base: base, SSID: ssid}

	bus := eventbus.New()
	s := &Supervisor{
		cfg:        cfg,
		local:      local,
		paths:      paths,
		logger:     logger,
		transport:  tr,
		kissDec:    kissframe.NewDecoder(nil),
		stations:   station.New(bus),
		messages:   msgmanager.New(cfg.MyCallsign, bus),
		digipeater: digipeater.New(cfg.MyCallsign, cfg.MyAlias),
		frames:     framebuffer.New(cfg.DebugBufferMB),
		bus:        bus,
	}
	s.messages.SetRetryParams(
		time.Duration(cfg.RetryFast)*time.Second,
		time.Duration(cfg.RetrySlow)*time.Second,
		cfg.Retry,
	)

	s.txq = txqueue.New(s.sendKISS, laneDepth)

	s.kissDec = kissframe.NewDecoder(func(err error) {
		logging.FramingError(logging.For(s.logger, logging.ComponentKISS), err.Error(), 0)
	})

	s.kissBridge = kissbridge.New(s.sendKISSFromBridge)
	s.kissBridge.OnError(func(err error) {
		logging.For(s.logger, logging.ComponentKISSBridge).Warn("client error", "err", err)
	})

	bcn, err := beacon.New(cfg.MyCallsign, pathToAddresses(strings.Split(cfg.BeaconPath, ",")),
		cfg.BeaconSymbol, cfg.MyLocation, cfg.BeaconComment, s.sendBeaconFrame)
	if err != nil {
		return nil, err
	}
	s.beacon = bcn

	return s, nil
}

// startConnectionEngine builds the ax25.Manager and AGWPE server bound
// to ctx, so peer connection actors are reaped when the supervisor's
// context is canceled rather than outliving it. Both depend on ctx, so
// neither can be built at New() time.
func (s *Supervisor) startConnectionEngine(ctx context.Context) {
	s.ax25mgr = ax25.NewManager(ctx, s.local, ax25.DefaultEngineParams(), s.sendAX25Frame)
	s.ax25mgr.OnError(func(err error) {
		logging.For(s.logger, logging.ComponentAX25).Warn("connection error", "err", err)
	})

	s.agwSrv = agwpe.New(s.cfg.MyCallsign, []agwpe.PortInfo{{Name: "KISS TNC", Baud: 1200, TXDelayMS: s.cfg.TXDelay * 10, Persistence: 63}},
		s.sendUnproto, s.sendRaw, s.ax25mgr)
	s.agwSrv.OnError(func(err error) {
		logging.For(s.logger, logging.ComponentAGWPE).Warn("client error", "err", err)
	})
}

// sendKISS is the txqueue's Sender: it writes an already-KISS-framed
// byte sequence to the transport.
func (s *Supervisor) sendKISS(frame []byte) error {
	if err := s.transport.Send(frame); err != nil {
		return err
	}
	s.frames.Append(framebuffer.TX, s.cfg.MyCallsign, frame, time.Now())
	return nil
}

// sendKISSFromBridge relays a frame injected by a KISS-bridge TCP
// client onto the shared transmit queue at user priority.
func (s *Supervisor) sendKISSFromBridge(cmd byte, payload []byte) error {
	s.txq.Enqueue(txqueue.PriorityUser, kissframe.Encode(cmd, payload))
	return nil
}

// sendAX25Frame is the ax25.Manager's SendFrame: encode and enqueue at
// user priority (connected-mode data belongs to the user-originated
// class per §5).
func (s *Supervisor) sendAX25Frame(f *ax25.Frame) error {
	raw, err := ax25.Encode(f)
	if err != nil {
		return err
	}
	s.txq.Enqueue(txqueue.PriorityUser, kissframe.Encode(kissframe.Command(0, kissframe.KindData), raw))
	return nil
}

// sendUnproto builds and enqueues a UI frame for the AGWPE bridge's
// unproto (M/V) requests.
func (s *Supervisor) sendUnproto(dest string, path []string, info []byte) error {
	destAddr, err := ax25.NewAddress(dest, false)
	if err != nil {
		return err
	}
	digis := make([]ax25.Address, 0, len(path))
	for _, p := range path {
		a, err := ax25.NewAddress(strings.TrimSpace(p), false)
		if err != nil {
			continue
		}
		digis = append(digis, a)
	}
	f := ax25.NewUI(destAddr, s.local, digis, info)
	raw, err := ax25.Encode(f)
	if err != nil {
		return err
	}
	s.txq.Enqueue(txqueue.PriorityUser, kissframe.Encode(kissframe.Command(0, kissframe.KindData), raw))
	return nil
}

// sendRaw enqueues an already-encoded AX.25 frame from an AGWPE 'K'
// raw-frame request.
func (s *Supervisor) sendRaw(raw []byte) error {
	s.txq.Enqueue(txqueue.PriorityUser, kissframe.Encode(kissframe.Command(0, kissframe.KindData), raw))
	return nil
}

// sendBeaconFrame is the beacon package's Sender: encode and enqueue at
// beacon priority, the lowest class per §5's ordering guarantee.
func (s *Supervisor) sendBeaconFrame(f *ax25.Frame) error {
	raw, err := ax25.Encode(f)
	if err != nil {
		return err
	}
	s.txq.Enqueue(txqueue.PriorityBeacon, kissframe.Encode(kissframe.Command(0, kissframe.KindData), raw))
	return nil
}

// Run starts every task and blocks until ctx is canceled, then performs
// the §5 shutdown sequence.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	if err := s.stations.Load(s.paths.StationsGZ); err != nil {
		logging.For(s.logger, logging.ComponentStation).Warn("station database load failed, starting fresh", "err", err)
	}
	if err := s.frames.Load(s.paths.FrameBufGZ); err != nil {
		logging.For(s.logger, logging.ComponentStation).Warn("frame buffer load failed, starting fresh", "err", err)
	}

	s.startConnectionEngine(ctx)

	s.transport.OnBytes(s.handleRXBytes)
	s.transport.OnState(func(st transport.State) {
		logging.TransportReconnect(s.logger, st.String())
	})
	if err := s.transport.Open(ctx); err != nil {
		return fmt.Errorf("supervisor: transport open: %w", err)
	}

	go s.txq.Run(ctx)
	go s.retryLoop(ctx)
	go s.persistLoop(ctx)
	go s.reapLoop(ctx)

	if err := s.startKISSBridge(ctx); err != nil {
		return err
	}
	if err := s.startAGWPE(ctx); err != nil {
		return err
	}
	s.startHTTP(ctx)

	<-ctx.Done()
	return s.shutdown()
}

// Shutdown cancels every leaf task; Run then performs the drain and
// persist sequence before returning.
func (s *Supervisor) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Supervisor) shutdown() error {
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.txq.Drain()
		close(done)
	}()
	select {
	case <-done:
	case <-drainCtx.Done():
		logging.For(s.logger, logging.ComponentAX25).Warn("shutdown drain timed out", "remaining", s.txq.Len())
	}

	if err := s.stations.Persist(s.paths.StationsGZ); err != nil {
		logging.For(s.logger, logging.ComponentStation).Warn("final station persist failed", "err", err)
	}
	if err := s.frames.Persist(s.paths.FrameBufGZ); err != nil {
		logging.For(s.logger, logging.ComponentStation).Warn("final frame buffer persist failed", "err", err)
	}
	if s.httpSrv != nil {
		s.httpSrv.Close()
	}
	return s.transport.Close()
}

func (s *Supervisor) retryLoop(ctx context.Context) {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, out := range s.messages.PendingRetries(now) {
				info := []byte(fmt.Sprintf(":%-9s:%s{%s", out.To, out.Body, out.ID))
				f := ax25.NewUI(mustAPRSDest(), s.local, pathToAddresses(out.Path), info)
				if raw, err := ax25.Encode(f); err == nil {
					s.txq.Enqueue(txqueue.PriorityRetry, kissframe.Encode(kissframe.Command(0, kissframe.KindData), raw))
				}
				s.messages.RecordRetry(out, now)
			}
			s.messages.ExpireOverdue(now)
		}
	}
}

func (s *Supervisor) persistLoop(ctx context.Context) {
	ticker := time.NewTicker(persistInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.stations.Persist(s.paths.StationsGZ); err != nil {
				logging.For(s.logger, logging.ComponentStation).Warn("periodic persist failed", "err", err)
			}
			if err := s.frames.Persist(s.paths.FrameBufGZ); err != nil {
				logging.For(s.logger, logging.ComponentStation).Warn("periodic frame buffer persist failed", "err", err)
			}
		}
	}
}

func (s *Supervisor) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ax25mgr.Reap()
		}
	}
}

// handleRXBytes is the transport's OnBytes callback: feed C1, decode
// each recovered frame through C3, C4 (connected-mode), C8
// (digipeating), then C5/C6/C7 for UI traffic.
func (s *Supervisor) handleRXBytes(raw []byte) {
	for _, kf := range s.kissDec.Feed(raw) {
		if kissframe.Kind(kf.Cmd) != kissframe.KindData {
			continue
		}
		s.frames.Append(framebuffer.RX, "", kf.Payload, time.Now())

		f, err := ax25.Decode(kf.Payload)
		if err != nil {
			logging.FramingError(logging.For(s.logger, logging.ComponentAX25), err.Error(), len(kf.Payload))
			continue
		}

		s.agwSrv.EmitMonitor(f, kf.Payload, time.Now())
		s.kissBridge.Broadcast(kissframe.Command(0, kissframe.KindData), kf.Payload)

		hopCount, srcIsDigipeater := s.hopInfo(f)
		if s.cfg.Digipeat && s.digipeater.ShouldDigipeat(f, hopCount, srcIsDigipeater) {
			if relayed, ok := s.digipeater.Digipeat(f, time.Now()); ok {
				if out, err := ax25.Encode(relayed); err == nil {
					s.txq.Enqueue(txqueue.PriorityUser, kissframe.Encode(kissframe.Command(0, kissframe.KindData), out))
				}
			}
		}

		if f.Kind == ax25.KindUI && f.HasPID && f.PID == ax25.PIDNoLayer3 {
			s.handleUIFrame(f)
			continue
		}
		s.ax25mgr.Dispatch(s.local, f)
	}
}

// hopInfo reports the frame's already-repeated hop count and whether
// its source callsign is a station this database already knows to be a
// digipeater.
func (s *Supervisor) hopInfo(f *ax25.Frame) (hopCount int, srcIsDigipeater bool) {
	for _, hop := range f.Digis {
		if hop.Bit7 {
			hopCount++
		}
	}
	snap, ok := s.stations.Snapshot(f.Src.String())
	return hopCount, ok && snap.IsDigipeater
}

func (s *Supervisor) handleUIFrame(f *ax25.Frame) {
	decoded, err := aprs.Decode(f.Src.String(), f.Dest.String(), string(f.Info), time.Now())
	if err != nil {
		logging.For(s.logger, logging.ComponentAPRS).Warn("decode failed", "err", err)
		return
	}

	pkt := station.Packet{
		SourceCallsign: f.Src.String(),
		Source:         station.SourceRF,
		DigiPath:       digiHops(f.Digis),
		Now:            time.Now(),
	}
	s.ingestDecoded(decoded, pkt)
}

// ingestDecoded dispatches one decoded APRS payload through the station
// database and, where applicable, the message manager. pkt carries the
// source/relay identity and hop context already resolved by the caller
// (direct RF reception in handleUIFrame, or an unwrapped third-party
// envelope in the *aprs.ThirdParty case below).
func (s *Supervisor) ingestDecoded(decoded any, pkt station.Packet) {
	switch v := decoded.(type) {
	case *aprs.Position:
		pkt.Position = v
		s.stations.Ingest(pkt)
	case *aprs.Weather:
		pkt.Weather = v
		s.stations.Ingest(pkt)
	case *aprs.Status:
		pkt.Status = v
		s.stations.Ingest(pkt)
	case *aprs.Telemetry:
		pkt.Telemetry = v
		s.stations.Ingest(pkt)
	case *aprs.Message:
		s.stations.Ingest(pkt)
		if delivered := s.messages.HandleIncoming(v, time.Now()); delivered != nil && s.cfg.AutoAck {
			s.sendAck(delivered)
		}
	case *aprs.Ack:
		s.stations.Ingest(pkt)
		s.messages.HandleAck(v.ID)
	case *aprs.Reject:
		s.stations.Ingest(pkt)
		s.messages.HandleReject(v.ID)
	case *aprs.ThirdParty:
		// Never re-forwarded to RF (§4.5); unwrap and ingest the inner
		// station, distinctly flagged as heard via relay rather than
		// direct RF, with the wrapping station recorded as its relay.
		inner := station.Packet{
			SourceCallsign: v.InnerSrc,
			Source:         station.SourceThirdParty,
			RelayCallsign:  pkt.SourceCallsign,
			Now:            pkt.Now,
		}
		s.ingestDecoded(v.Inner, inner)
	default:
		s.stations.Ingest(pkt)
	}
}

func (s *Supervisor) sendAck(msg *aprs.Message) {
	info := []byte(fmt.Sprintf(":%-9s:ack%s", msg.From, msg.ID))
	f := ax25.NewUI(mustAPRSDest(), s.local, nil, info)
	if raw, err := ax25.Encode(f); err == nil {
		s.txq.Enqueue(txqueue.PriorityAck, kissframe.Encode(kissframe.Command(0, kissframe.KindData), raw))
	}
}

func (s *Supervisor) startKISSBridge(ctx context.Context) error {
	ln, err := net.Listen("tcp", addrFor(s.cfg.TNCPort))
	if err != nil {
		return fmt.Errorf("supervisor: kiss bridge listen: %w", err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go func() {
		if err := s.kissBridge.Serve(ln); err != nil && ctx.Err() == nil {
			logging.For(s.logger, logging.ComponentKISSBridge).Warn("listener stopped", "err", err)
		}
	}()
	return nil
}

func (s *Supervisor) startAGWPE(ctx context.Context) error {
	ln, err := net.Listen("tcp", addrFor(s.cfg.AGWPEPort))
	if err != nil {
		return fmt.Errorf("supervisor: agwpe listen: %w", err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go func() {
		if err := s.agwSrv.Serve(ln); err != nil && ctx.Err() == nil {
			logging.For(s.logger, logging.ComponentAGWPE).Warn("listener stopped", "err", err)
		}
	}()
	return nil
}

func (s *Supervisor) startHTTP(ctx context.Context) {
	api := &httpapi.Server{
		MyCallsign:    s.cfg.MyCallsign,
		Started:       time.Now(),
		Stations:      s.stations,
		Messages:      s.messages,
		Digipeater:    s.digipeater,
		Frames:        s.frames,
		Bus:           s.bus,
		Beacon:        s.beacon,
		WebUIPassword: s.cfg.WebUIPassword,
	}
	s.httpSrv = &http.Server{
		Addr:    addrFor(s.cfg.WebUIPort),
		Handler: api.Mux(os.Stderr),
	}
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.For(s.logger, logging.ComponentSSE).Warn("http server stopped", "err", err)
		}
	}()
}

func addrFor(port int) string { return ":" + strconv.Itoa(port) }

func mustAPRSDest() ax25.Address {
	a, _ := ax25.NewAddress("APRS", false)
	return a
}

func digiHops(path []ax25.Address) []station.DigiHop {
	out := make([]station.DigiHop, len(path))
	for i, a := range path {
		out[i] = station.DigiHop{Callsign: a.String(), Heard: a.Bit7}
	}
	return out
}

func pathToAddresses(path []string) []ax25.Address {
	out := make([]ax25.Address, 0, len(path))
	for _, p := range path {
		if a, err := ax25.NewAddress(strings.TrimSpace(p), false); err == nil {
			out = append(out, a)
		}
	}
	return out
}
