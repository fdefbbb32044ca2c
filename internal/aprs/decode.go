package aprs

import (
	"fmt"
	"time"

	"github.com/aprsgo/tncd/internal/deviceid"
)

// Decode dispatches on info[0] per §4.5 and returns one of *Position,
// *Object, *Item, *Status, *Message, *Ack, *Reject, *Weather,
// *Telemetry, or *ThirdParty. dest is the AX.25 destination address
// (used for device identification and MIC-E latitude decoding); it is
// the tocall for non-MIC-E frames and the MIC-E-encoded destination
// callsign for MIC-E frames.
func Decode(src, dest, info string, now time.Time) (any, error) {
	if info == "" {
		return nil, fmt.Errorf("aprs: empty information field")
	}

	switch info[0] {
	case '!', '=', '/', '@':
		if wx, err := decodeWeather(src, info, now); err == nil {
			return wx, nil
		}
		pos, err := decodePosition(src, info, now)
		if err != nil {
			return nil, err
		}
		pos.Device = deviceid.IdentifyByTocall(dest)
		return pos, nil
	case '\'', '`', 0x1c, 0x1d, 0x1e, 0x1f:
		pos, err := decodeMicE(src, dest, info, now)
		if err != nil {
			return nil, err
		}
		return pos, nil
	case ';':
		return decodeObject(src, info, now)
	case ')':
		return decodeItem(src, info, now)
	case '>':
		return decodeStatus(src, info, now)
	case ':':
		return decodeMessage(src, info)
	case '_':
		return decodeWeather(src, info, now)
	case 'T':
		return decodeTelemetry(src, info)
	case '}':
		return decodeThirdParty(info, now)
	default:
		return nil, fmt.Errorf("aprs: unrecognized information field type %q", info[0])
	}
}
