// Package station implements C6: the shared station database, the one
// piece of mutable state every other component reads. Per §5's
// shared-resource policy, all mutation goes through a single serialized
// actor; reads snapshot a station's fields under the same lock rather
// than exposing the live record.
package station

import (
	"strings"
	"sync"
	"time"

	"github.com/aprsgo/tncd/internal/aprs"
	"github.com/aprsgo/tncd/internal/eventbus"
)

// Source distinguishes packets heard on RF from ones recovered from a
// third-party (`}`) encapsulation, per §4.6's hop accounting.
type Source int

const (
	SourceRF Source = iota
	SourceThirdParty
)

// DefaultPositionHistoryLimit and friends are the bounded-history caps
// of §4.6.
const (
	DefaultPositionHistoryLimit = 6000
	ReceptionHistoryLimit       = 200
	WeatherHistoryLimit         = 250
)

// Station is one tracked callsign's accumulated state.
type Station struct {
	Callsign  string
	FirstHeard time.Time
	LastHeard  time.Time

	LastPosition    *aprs.Position
	PositionHistory []aprs.Position

	LastWeather    *aprs.Weather
	WeatherHistory []aprs.Weather

	LastStatus *aprs.Status

	LastTelemetry *aprs.Telemetry

	MessagesReceived int
	MessagesSent     int
	PacketsHeard     int

	RelayPaths         []string
	HeardDirect        bool
	HopCount           int
	HeardZeroHop       bool
	LastHeardZeroHop   time.Time
	ZeroHopPacketCount int

	Device string

	ObservedPaths     [][]string
	DigipeatersHeardBy []string
	IsDigipeater      bool
}

// snapshot deep-copies the slice/pointer fields that callers must not be
// able to mutate through the returned value.
func (s *Station) snapshot() Station {
	cp := *s
	cp.PositionHistory = append([]aprs.Position(nil), s.PositionHistory...)
	cp.WeatherHistory = append([]aprs.Weather(nil), s.WeatherHistory...)
	cp.RelayPaths = append([]string(nil), s.RelayPaths...)
	cp.DigipeatersHeardBy = append([]string(nil), s.DigipeatersHeardBy...)
	cp.ObservedPaths = make([][]string, len(s.ObservedPaths))
	for i, p := range s.ObservedPaths {
		cp.ObservedPaths[i] = append([]string(nil), p...)
	}
	return cp
}

// Packet is what C5's decoded output plus C3's frame context contribute
// to one ingest call.
type Packet struct {
	SourceCallsign string
	Source         Source
	RelayCallsign  string    // for SourceThirdParty: the iGate/relay station that forwarded it
	DigiPath       []DigiHop // AX.25 path entries in order, with H-bit state
	Now            time.Time

	Position  *aprs.Position
	Weather   *aprs.Weather
	Status    *aprs.Status
	Telemetry *aprs.Telemetry
}

// DigiHop is one AX.25 path entry as seen on ingest.
type DigiHop struct {
	Callsign string
	Heard    bool // H-bit set: this digipeater actually repeated the frame
}

// DB is the serialized station-database actor. All exported methods are
// safe for concurrent use; mutation happens under a single mutex per
// §5, and reads return copies.
type DB struct {
	mu                    sync.Mutex
	stations              map[string]*Station
	positionHistoryLimit  int
	bus                   *eventbus.Bus
}

// New constructs an empty database publishing change events to bus.
func New(bus *eventbus.Bus) *DB {
	return &DB{
		stations:             make(map[string]*Station),
		positionHistoryLimit: DefaultPositionHistoryLimit,
		bus:                  bus,
	}
}

// SetPositionHistoryLimit overrides the default per-station position
// history cap (§4.6's "configurable, default 6,000").
func (db *DB) SetPositionHistoryLimit(n int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.positionHistoryLimit = n
}

// Ingest atomically updates the record for pkt.SourceCallsign and
// publishes a station_update (and weather_update, if applicable) event.
func (db *DB) Ingest(pkt Packet) Station {
	db.mu.Lock()
	defer db.mu.Unlock()

	call := strings.ToUpper(pkt.SourceCallsign)
	sta, ok := db.stations[call]
	if !ok {
		sta = &Station{Callsign: call, FirstHeard: pkt.Now, HopCount: 999}
		db.stations[call] = sta
	}
	sta.LastHeard = pkt.Now
	sta.PacketsHeard++

	db.applyHopAccounting(sta, pkt)

	if pkt.Position != nil {
		sta.LastPosition = pkt.Position
		sta.PositionHistory = append(sta.PositionHistory, *pkt.Position)
		if over := len(sta.PositionHistory) - db.positionHistoryLimit; over > 0 {
			sta.PositionHistory = sta.PositionHistory[over:]
		}
		if pkt.Position.Device != "" {
			sta.Device = pkt.Position.Device
		}
	}
	if pkt.Weather != nil {
		sta.LastWeather = pkt.Weather
		sta.WeatherHistory = append(sta.WeatherHistory, *pkt.Weather)
		if over := len(sta.WeatherHistory) - WeatherHistoryLimit; over > 0 {
			sta.WeatherHistory = sta.WeatherHistory[over:]
		}
	}
	if pkt.Status != nil {
		sta.LastStatus = pkt.Status
	}
	if pkt.Telemetry != nil {
		sta.LastTelemetry = pkt.Telemetry
	}

	snap := sta.snapshot()
	if db.bus != nil {
		db.bus.Publish(eventbus.Event{Type: eventbus.StationUpdate, Payload: snap})
		if pkt.Weather != nil {
			db.bus.Publish(eventbus.Event{Type: eventbus.WeatherUpdate, Payload: snap})
		}
		if pkt.Position != nil {
			db.bus.Publish(eventbus.Event{Type: eventbus.GPSUpdate, Payload: snap})
		}
	}
	return snap
}

// applyHopAccounting implements §4.6's hop-count and digipeater-marking
// rules. Must be called with db.mu held.
func (db *DB) applyHopAccounting(sta *Station, pkt Packet) {
	heardPath := make([]string, 0, len(pkt.DigiPath))
	for _, hop := range pkt.DigiPath {
		if hop.Heard {
			heardPath = append(heardPath, hop.Callsign)
		}
	}

	// Hop-count tracking only reflects direct RF reception. A third-party
	// (`}`-wrapped) packet is never counted as zero-hop even when the
	// enclosing frame was heard directly from the relaying iGate — its
	// own distance from the true origin is unknown.
	if pkt.Source == SourceRF {
		if len(heardPath) == 0 {
			sta.HeardZeroHop = true
			sta.LastHeardZeroHop = pkt.Now
			sta.ZeroHopPacketCount++
			if 0 < sta.HopCount {
				sta.HopCount = 0
			}
		} else if len(heardPath) < sta.HopCount {
			sta.HopCount = len(heardPath)
		}
	}

	if pkt.Source == SourceRF {
		sta.HeardDirect = true
	} else if pkt.RelayCallsign != "" {
		sta.RelayPaths = appendUnique(sta.RelayPaths, strings.ToUpper(pkt.RelayCallsign))
	}

	if len(heardPath) > 0 {
		sta.ObservedPaths = appendUniquePath(sta.ObservedPaths, heardPath)
		sta.DigipeatersHeardBy = appendUnique(sta.DigipeatersHeardBy, heardPath[0])
	}

	for _, hop := range pkt.DigiPath {
		if !hop.Heard {
			continue
		}
		digiCall := strings.ToUpper(hop.Callsign)
		digi, ok := db.stations[digiCall]
		if !ok {
			digi = &Station{Callsign: digiCall, FirstHeard: pkt.Now, HopCount: 999}
			db.stations[digiCall] = digi
		}
		digi.IsDigipeater = true
	}
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func appendUniquePath(paths [][]string, p []string) [][]string {
	for _, existing := range paths {
		if equalPath(existing, p) {
			return paths
		}
	}
	return append(paths, append([]string(nil), p...))
}

func equalPath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Snapshot returns a copy of the named station's record, or false if
// unknown.
func (db *DB) Snapshot(callsign string) (Station, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	sta, ok := db.stations[strings.ToUpper(callsign)]
	if !ok {
		return Station{}, false
	}
	return sta.snapshot(), true
}

// Filter selects stations to return from List.
type Filter func(Station) bool

// List returns a snapshot of every station matching filter (nil means
// every station).
func (db *DB) List(filter Filter) []Station {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]Station, 0, len(db.stations))
	for _, sta := range db.stations {
		snap := sta.snapshot()
		if filter == nil || filter(snap) {
			out = append(out, snap)
		}
	}
	return out
}

// Count returns the number of tracked stations.
func (db *DB) Count() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.stations)
}
