// Package digipeater implements C8: new-paradigm WIDEn-N digipeating —
// decrementing a wide alias, substituting our own callsign, and
// suppressing re-digipeating of packets we've already relayed.
package digipeater

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/aprsgo/tncd/internal/ax25"
)

// DedupWindow is how long a (src, dest, info) tuple is remembered to
// suppress re-digipeating the same packet heard from multiple paths.
const DedupWindow = 30 * time.Second

// Digipeater applies WIDEn-N substitution per §4.8: any frame whose
// path still carries an unconsumed hop addressed to us — by literal
// callsign, WIDEn-N alias, or a configured plain alias (e.g. "RELAY") —
// is eligible, regardless of how many prior digipeaters already
// serviced an earlier hop in the same path. That's what lets a
// multi-hop WIDEn-N chain (N>1) make it past more than one digipeater.
type Digipeater struct {
	myCallsign string
	myAlias    string

	mu       sync.Mutex
	seen     map[string]time.Time
	repeated int
	coverage map[string]*Coverage
}

// Coverage tracks how much traffic from a given source station this
// digipeater has relayed, for the §6 digipeater-coverage endpoints.
type Coverage struct {
	Callsign       string
	PacketsRelayed int
	FirstRelayed   time.Time
	LastRelayed    time.Time
}

// New constructs a Digipeater for myCallsign. myAlias, if non-empty, is
// a configured plain alias (e.g. "RELAY") recognized as a viable hop
// alongside the station's own callsign and WIDEn-N entries.
func New(myCallsign, myAlias string) *Digipeater {
	return &Digipeater{
		myCallsign: strings.ToUpper(myCallsign),
		myAlias:    strings.ToUpper(myAlias),
		seen:       make(map[string]time.Time),
		coverage:   make(map[string]*Coverage),
	}
}

// PacketsRepeated reports how many frames this instance has digipeated.
func (d *Digipeater) PacketsRepeated() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.repeated
}

// Coverage reports relay statistics for every source station this
// digipeater has ever relayed traffic for.
func (d *Digipeater) Coverage() []Coverage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Coverage, 0, len(d.coverage))
	for _, c := range d.coverage {
		out = append(out, *c)
	}
	return out
}

// StationCoverage reports relay statistics for a single source station.
func (d *Digipeater) StationCoverage(callsign string) (Coverage, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.coverage[strings.ToUpper(callsign)]
	if !ok {
		return Coverage{}, false
	}
	return *c, true
}

// ShouldDigipeat decides whether f, heard with the given hop count and
// digipeater-known flag for its source, should be relayed. hopCount
// counts prior relays of this path but is not itself disqualifying:
// hasViableHop skips already-digipeated entries of f.Digis and accepts
// the frame when any remaining unused entry is a WIDEn-N alias, our
// callsign, or our configured alias.
func (d *Digipeater) ShouldDigipeat(f *ax25.Frame, hopCount int, srcIsDigipeater bool) bool {
	if srcIsDigipeater {
		return false
	}
	if strings.EqualFold(f.Src.String(), d.myCallsign) {
		return false
	}
	return d.hasViableHop(f.Digis)
}

func (d *Digipeater) hasViableHop(path []ax25.Address) bool {
	for _, hop := range path {
		if hop.Bit7 {
			continue // already used
		}
		clean := strings.ToUpper(hop.Base)
		if strings.HasPrefix(clean, "WIDE") {
			return true
		}
		if clean == d.myCallsign && hop.SSID == 0 {
			return true
		}
		if d.myAlias != "" && clean == d.myAlias {
			return true
		}
	}
	return false
}

// Digipeat produces the relayed frame with the path rewritten per
// §4.8: the first unused WIDEn-N hop is decremented (or marked
// consumed at N=1) and our own callsign is inserted ahead of it with
// its has-been-repeated bit set. Returns ok=false if no viable hop was
// found (the caller should have checked ShouldDigipeat first).
func (d *Digipeater) Digipeat(f *ax25.Frame, now time.Time) (out *ax25.Frame, ok bool) {
	key := dedupKey(f)
	d.mu.Lock()
	if last, seen := d.seen[key]; seen && now.Sub(last) < DedupWindow {
		d.mu.Unlock()
		return nil, false
	}
	d.seen[key] = now
	d.evictExpired(now)
	d.mu.Unlock()

	newPath, filled := d.processPath(f.Digis)
	if !filled {
		return nil, false
	}

	src := strings.ToUpper(f.Src.String())
	d.mu.Lock()
	d.repeated++
	c, ok := d.coverage[src]
	if !ok {
		c = &Coverage{Callsign: src, FirstRelayed: now}
		d.coverage[src] = c
	}
	c.PacketsRelayed++
	c.LastRelayed = now
	d.mu.Unlock()

	relayed := *f
	relayed.Digis = newPath
	return &relayed, true
}

// processPath rewrites the digipeater path, inserting our callsign
// (marked as heard) ahead of the first viable hop and either
// decrementing a WIDEn-N alias or consuming our own listed callsign.
func (d *Digipeater) processPath(path []ax25.Address) (newPath []ax25.Address, filled bool) {
	newPath = make([]ax25.Address, 0, len(path)+1)
	for _, hop := range path {
		if hop.Bit7 || filled {
			newPath = append(newPath, hop)
			continue
		}
		clean := strings.ToUpper(hop.Base)
		if strings.HasPrefix(clean, "WIDE") {
			myBase, mySSID := splitBase(d.myCallsign)
			newPath = append(newPath, ax25.Address{Base: myBase, SSID: mySSID, Bit7: true, Reserved: hop.Reserved})
			if hop.SSID > 1 {
				newPath = append(newPath, ax25.Address{Base: hop.Base, SSID: hop.SSID - 1, Bit7: false, Reserved: hop.Reserved})
			} else {
				newPath = append(newPath, ax25.Address{Base: hop.Base, SSID: 0, Bit7: true, Reserved: hop.Reserved})
			}
			filled = true
			continue
		}
		if clean == d.myCallsign && hop.SSID == 0 {
			mine := hop
			mine.Bit7 = true
			newPath = append(newPath, mine)
			filled = true
			continue
		}
		if d.myAlias != "" && clean == d.myAlias {
			myBase, mySSID := splitBase(d.myCallsign)
			newPath = append(newPath, ax25.Address{Base: myBase, SSID: mySSID, Bit7: true, Reserved: hop.Reserved})
			filled = true
			continue
		}
		newPath = append(newPath, hop)
	}
	return newPath, filled
}

func splitBase(callsign string) (string, int) {
	base, ssid, err := ax25.ParseCallsign(callsign)
	if err != nil {
		return "", 0
	}
	return base, ssid
}

// evictExpired drops dedup entries outside the window. Must be called
// with d.mu held.
func (d *Digipeater) evictExpired(now time.Time) {
	for k, ts := range d.seen {
		if now.Sub(ts) >= DedupWindow {
			delete(d.seen, k)
		}
	}
}

// dedupKey hashes the frame's identity for the suppression window: two
// packets heard via different neighbors with the same source,
// destination, and payload are the same transmission.
func dedupKey(f *ax25.Frame) string {
	h := sha1.New()
	h.Write([]byte(f.Src.String()))
	h.Write([]byte{0})
	h.Write([]byte(f.Dest.String()))
	h.Write([]byte{0})
	h.Write(f.Info)
	return hex.EncodeToString(h.Sum(nil))
}
