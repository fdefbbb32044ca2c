// Package aprs decodes the APRS payload formats carried in AX.25 UI
// frames with PID 0xF0 (§4.5): positions (uncompressed, compressed,
// MIC-E), objects, items, status, messages/ack/reject, weather,
// telemetry, and third-party encapsulation.
package aprs

import "time"

// Position is a decoded location report, produced by the `!=/@` and
// MIC-E formats, and by object/item reports (which reuse the same
// coordinate encoding under a different station name).
type Position struct {
	Station     string
	Timestamp   time.Time
	Latitude    float64
	Longitude   float64
	SymbolTable byte
	SymbolCode  byte
	Comment     string
	Compressed  bool
	Course      *int
	Speed       *int
	Altitude    *int
	GridSquare  string
	Device      string
}

// Object is a named, movable map marker placed by Station (§4.5
// supplement, grounded on the original implementation's object
// support). Killed objects (status byte `_`) carry no position.
type Object struct {
	Position
	Name   string
	Killed bool
}

// Item is an object with a variable-length (3-9 char) name and no kill
// state.
type Item struct {
	Position
	Name string
}

// Status is a free-text status report (`>`).
type Status struct {
	Station   string
	Timestamp time.Time
	Text      string
}

// Weather is a decoded APRS weather report (`_`, or embedded in a
// position report).
type Weather struct {
	Station           string
	Timestamp         time.Time
	Raw               string
	WindDirection     *int
	WindSpeedMPH      *int
	WindGustMPH       *int
	TemperatureF      *int
	Rain1hIn          *float64
	Rain24hIn         *float64
	RainSinceMidnight *float64
	Humidity          *int
	PressureMbar      *float64
	DewPointF         *float64
	PressureTendency  string
	PressureChange3h  *float64
}

// Telemetry is a decoded `T#` packet: sequence, five analog channels,
// eight binary bits.
type Telemetry struct {
	Station  string
	Sequence int
	Analog   [5]int
	Digital  [8]bool
}

// Message is a addressed text message (`:`), not an ack/reject.
type Message struct {
	From      string
	To        string
	Text      string
	ID        string
}

// Ack acknowledges a message previously sent with the given ID.
type Ack struct {
	From string
	To   string
	ID   string
}

// Reject rejects a message previously sent with the given ID.
type Reject struct {
	From string
	To   string
	ID   string
}

// ThirdParty is a decoded `}` envelope: the header identifying the
// original sender/path, and the recursively decoded inner packet. Per
// §4.5, third-party packets must never be forwarded back to RF and must
// never count as a direct RF reception.
type ThirdParty struct {
	InnerSrc  string
	InnerDest string
	InnerPath []string
	Inner     any
}
