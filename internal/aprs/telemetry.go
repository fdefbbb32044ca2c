package aprs

import (
	"strconv"
	"strings"
)

// decodeTelemetry handles `T#SSS,A1,A2,A3,A4,A5,BBBBBBBB` per §4.5.
func decodeTelemetry(station, info string) (*Telemetry, error) {
	if !strings.HasPrefix(info, "T#") {
		return nil, ErrNotThisFormat
	}
	parts := strings.Split(strings.TrimSpace(info[2:]), ",")
	if len(parts) != 7 {
		return nil, ErrNotThisFormat
	}

	seq, err := strconv.Atoi(parts[0])
	if err != nil || seq < 0 || seq > 999 {
		return nil, ErrNotThisFormat
	}

	var analog [5]int
	for i := 0; i < 5; i++ {
		v, err := strconv.Atoi(parts[i+1])
		if err != nil || v < 0 || v > 255 {
			return nil, ErrNotThisFormat
		}
		analog[i] = v
	}

	digitalStr := strings.TrimSpace(parts[6])
	if len(digitalStr) != 8 {
		return nil, ErrNotThisFormat
	}
	var digital [8]bool
	for i := 0; i < 8; i++ {
		switch digitalStr[i] {
		case '0':
			digital[i] = false
		case '1':
			digital[i] = true
		default:
			return nil, ErrNotThisFormat
		}
	}

	return &Telemetry{
		Station:  strings.ToUpper(station),
		Sequence: seq,
		Analog:   analog,
		Digital:  digital,
	}, nil
}
