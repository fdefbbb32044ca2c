// Package config defines the Config value object consumed by the
// supervisor (C15) and the flag surface (C17) used to override it for
// development and testing. File-based load/save is deliberately left
// to an external collaborator; this package only defines the shape and
// its defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// Config holds every recognized configuration key from §6.
type Config struct {
	MyCallsign string
	MyLocation string // Maidenhead grid, used for beacons absent GPS
	RadioMAC   string

	TXDelay int // units of 10ms, per KISS type-1 frames

	Retry     int
	RetryFast int // seconds
	RetrySlow int // seconds

	Digipeat bool
	MyAlias  string

	AutoAck bool

	Beacon         bool
	BeaconInterval int // seconds
	BeaconPath     string
	BeaconSymbol   string
	BeaconComment  string

	DebugBufferMB int // 0 means "off" (tiny ring)

	AGWPEPort int
	TNCPort   int
	WebUIPort int

	WebUIPassword string
}

// Defaults returns the documented default configuration. Every field
// not explicitly named in §6's table keeps Go's zero value, which is
// the correct "unset" state for that field (e.g. an empty MyCallsign
// forces the caller to supply one before the supervisor can start).
func Defaults() Config {
	return Config{
		TXDelay:        30, // 300ms
		Retry:          3,
		RetryFast:      20,
		RetrySlow:      600,
		Digipeat:       false,
		AutoAck:        true,
		Beacon:         false,
		BeaconInterval: 1800,
		BeaconPath:     "WIDE1-1,WIDE2-1",
		BeaconSymbol:   "/>",
		DebugBufferMB:  8,
		AGWPEPort:      8000,
		TNCPort:        8001,
		WebUIPort:      8002,
	}
}

// Validate reports the configuration errors that would prevent the
// supervisor from starting: an unset callsign, or a port collision
// across the three TCP listeners.
func (c Config) Validate() error {
	if strings.TrimSpace(c.MyCallsign) == "" {
		return fmt.Errorf("config: MYCALL is required")
	}
	named := []struct {
		port int
		name string
	}{
		{c.AGWPEPort, "AGWPE_PORT"},
		{c.TNCPort, "TNC_PORT"},
		{c.WebUIPort, "WEBUI_PORT"},
	}
	seen := map[int]string{}
	for _, n := range named {
		if other, dup := seen[n.port]; dup {
			return fmt.Errorf("config: %s and %s both use port %d", other, n.name, n.port)
		}
		seen[n.port] = n.name
	}
	return nil
}

// ParseFlags overlays command-line flags onto base, returning the
// merged configuration. Intended for development and testing; the
// supervisor's normal path is file-sourced configuration provided by
// its caller.
func ParseFlags(base Config, args []string) (Config, error) {
	fs := pflag.NewFlagSet("tncd", pflag.ContinueOnError)

	myCallsign := fs.String("mycall", base.MyCallsign, "local callsign-SSID")
	myLocation := fs.String("mylocation", base.MyLocation, "Maidenhead grid for beacons")
	radioMAC := fs.String("radio-mac", base.RadioMAC, "BLE peer MAC address")
	txDelay := fs.Int("txdelay", base.TXDelay, "KISS TXDELAY in 10ms units")
	retry := fs.Int("retry", base.Retry, "message retry budget")
	retryFast := fs.Int("retry-fast", base.RetryFast, "fast retry interval in seconds")
	retrySlow := fs.Int("retry-slow", base.RetrySlow, "slow retry interval in seconds")
	digipeat := fs.Bool("digipeat", base.Digipeat, "enable digipeating")
	myAlias := fs.String("myalias", base.MyAlias, "digipeater alias")
	autoAck := fs.Bool("auto-ack", base.AutoAck, "auto-acknowledge incoming messages")
	beacon := fs.Bool("beacon", base.Beacon, "enable periodic position beacon")
	beaconInterval := fs.Int("beacon-interval", base.BeaconInterval, "beacon interval in seconds")
	beaconPath := fs.String("beacon-path", base.BeaconPath, "beacon digipeater path")
	beaconSymbol := fs.String("beacon-symbol", base.BeaconSymbol, "beacon APRS symbol")
	beaconComment := fs.String("beacon-comment", base.BeaconComment, "beacon comment text")
	debugBufferMB := fs.Int("debug-buffer", base.DebugBufferMB, "frame buffer cap in MB, 0 for off")
	agwpePort := fs.Int("agwpe-port", base.AGWPEPort, "AGWPE listener port")
	tncPort := fs.Int("tnc-port", base.TNCPort, "KISS bridge listener port")
	webUIPort := fs.Int("webui-port", base.WebUIPort, "HTTP/SSE listener port")
	webUIPassword := fs.String("webui-password", base.WebUIPassword, "shared secret for POST endpoints")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	base.MyCallsign = *myCallsign
	base.MyLocation = *myLocation
	base.RadioMAC = *radioMAC
	base.TXDelay = *txDelay
	base.Retry = *retry
	base.RetryFast = *retryFast
	base.RetrySlow = *retrySlow
	base.Digipeat = *digipeat
	base.MyAlias = *myAlias
	base.AutoAck = *autoAck
	base.Beacon = *beacon
	base.BeaconInterval = *beaconInterval
	base.BeaconPath = *beaconPath
	base.BeaconSymbol = *beaconSymbol
	base.BeaconComment = *beaconComment
	base.DebugBufferMB = *debugBufferMB
	base.AGWPEPort = *agwpePort
	base.TNCPort = *tncPort
	base.WebUIPort = *webUIPort
	base.WebUIPassword = *webUIPassword
	return base, nil
}
