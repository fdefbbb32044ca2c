package aprs

import (
	"strings"
	"time"
)

// decodeStatus handles `>Status text` per §4.5's supplement.
func decodeStatus(station, info string, now time.Time) (*Status, error) {
	if info == "" || info[0] != '>' {
		return nil, ErrNotThisFormat
	}
	text := strings.TrimSpace(info[1:])
	if text == "" {
		return nil, ErrNotThisFormat
	}
	return &Status{Station: strings.ToUpper(station), Timestamp: now, Text: text}, nil
}
