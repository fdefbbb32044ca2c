// Package beacon builds and transmits the on-demand position beacon that
// backs the C11 `POST /api/beacon/comment` operation (§4.11/§6). The
// periodic beacon *scheduler* — the timer that decides when to fire — is
// named out of scope in §1 ("the local-position beacon scheduler") and
// lives in an external collaborator; this package only holds the mutable
// comment and knows how to build and hand off one beacon frame the
// instant something asks for it, the same single-shot packet assembly
// the teacher's own `1200beacon.go` performs on every tick.
package beacon

import (
	"fmt"
	"sync"

	"github.com/aprsgo/tncd/internal/ax25"
	"github.com/aprsgo/tncd/internal/geo"
)

// Sender hands a built beacon frame off to the transmit path. Supervisor
// wires this to its priority queue at the beacon priority class.
type Sender func(f *ax25.Frame) error

// Beacon holds the mutable pieces of a position beacon: the comment text
// (the only field the API is allowed to change at runtime) plus the
// static path/symbol/location read from configuration at startup.
type Beacon struct {
	mu sync.Mutex

	local   ax25.Address
	dest    ax25.Address
	path    []ax25.Address
	symbol  string
	grid    string
	comment string

	send Sender
}

// New builds a Beacon for myCallsign, beaconing along path with the
// given two-character SDT symbol (table char + symbol code, e.g. "/>")
// from the given Maidenhead grid square (used when no live GPS fix is
// available, which is always the case here since GPS ingestion belongs
// to the external beacon scheduler).
func New(myCallsign string, path []ax25.Address, symbol, grid, comment string, send Sender) (*Beacon, error) {
	local, err := ax25.NewAddress(myCallsign, true)
	if err != nil {
		return nil, fmt.Errorf("beacon: %w", err)
	}
	dest, err := ax25.NewAddress("APRS", false)
	if err != nil {
		return nil, fmt.Errorf("beacon: %w", err)
	}
	if len(symbol) != 2 {
		symbol = "/>"
	}
	return &Beacon{
		local:   local,
		dest:    dest,
		path:    path,
		symbol:  symbol,
		grid:    grid,
		comment: comment,
		send:    send,
	}, nil
}

// SetComment updates the free-text comment appended to future beacons.
// It never transmits by itself.
func (b *Beacon) SetComment(comment string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.comment = comment
}

// Comment returns the current comment text.
func (b *Beacon) Comment() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.comment
}

// TransmitNow builds one uncompressed APRS position report from the
// configured grid square, symbol, and current comment, and hands it to
// the sender. It returns an error only if the grid square cannot be
// resolved to a coordinate or the sender rejects the frame.
func (b *Beacon) TransmitNow() error {
	b.mu.Lock()
	grid, symbol, comment := b.grid, b.symbol, b.comment
	b.mu.Unlock()

	lat, lon, err := geo.FromMaidenhead(grid)
	if err != nil {
		return fmt.Errorf("beacon: resolving position: %w", err)
	}

	info := []byte(fmt.Sprintf("!%s%c%s%c%s",
		formatLat(lat), symbol[0], formatLon(lon), symbol[1], comment))

	f := ax25.NewUI(b.dest, b.local, b.path, info)
	return b.send(f)
}

func formatLat(lat float64) string {
	hemi := byte('N')
	if lat < 0 {
		hemi = 'S'
		lat = -lat
	}
	deg := int(lat)
	min := (lat - float64(deg)) * 60
	return fmt.Sprintf("%02d%05.2f%c", deg, min, hemi)
}

func formatLon(lon float64) string {
	hemi := byte('E')
	if lon < 0 {
		hemi = 'W'
		lon = -lon
	}
	deg := int(lon)
	min := (lon - float64(deg)) * 60
	return fmt.Sprintf("%03d%05.2f%c", deg, min, hemi)
}
