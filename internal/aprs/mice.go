package aprs

import (
	"fmt"
	"strings"
	"time"

	"github.com/aprsgo/tncd/internal/deviceid"
	"github.com/aprsgo/tncd/internal/geo"
)

// micEDigit decodes one destination-address MIC-E character into its
// latitude digit and message bit, per §4.5's table.
func micEDigit(ch byte) (digit int, bit int, ok bool) {
	switch {
	case ch >= '0' && ch <= '9':
		return int(ch - '0'), 0, true
	case ch >= 'A' && ch <= 'J':
		return int(ch - 'A'), 1, true
	case ch >= 'P' && ch <= 'Y':
		return int(ch - 'P'), 1, true
	case ch == 'K' || ch == 'L' || ch == 'Z':
		if ch == 'L' {
			return 0, 0, true
		}
		return 0, 1, true
	default:
		return 0, 0, false
	}
}

// decodeMicE decodes a MIC-E position, whose latitude is packed into the
// destination callsign and whose longitude/course/speed live in the
// first bytes of the info field (§4.5).
func decodeMicE(station, destCall, info string, now time.Time) (*Position, error) {
	if info == "" || len(info) < 9 {
		return nil, ErrNotThisFormat
	}
	switch info[0] {
	case '\'', '`', 0x1c, 0x1d, 0x1e, 0x1f:
	default:
		return nil, ErrNotThisFormat
	}

	if idx := strings.IndexByte(destCall, '-'); idx >= 0 {
		destCall = destCall[:idx]
	}
	if len(destCall) != 6 {
		return nil, ErrNotThisFormat
	}

	digits := make([]int, 6)
	bits := make([]int, 6)
	for i := 0; i < 6; i++ {
		d, b, ok := micEDigit(destCall[i])
		if !ok {
			return nil, ErrNotThisFormat
		}
		digits[i], bits[i] = d, b
	}

	latDeg := digits[0]*10 + digits[1]
	latMin := float64(digits[2]*10+digits[3]) + float64(digits[4]*10+digits[5])/100.0
	lat := float64(latDeg) + latMin/60.0
	if bits[3] == 0 {
		lat = -lat
	}

	lonDeg := int(info[1]) - 28
	lonMin := int(info[2]) - 28
	lonMinFrac := int(info[3]) - 28
	if bits[4] == 1 {
		lonDeg += 100
	}
	lon := float64(lonDeg) + (float64(lonMin)+float64(lonMinFrac)/100.0)/60.0
	if bits[5] == 1 {
		lon = -lon
	}

	speedCourse := int(info[4]) - 28
	speed := (int(info[5])-28)*10 + (speedCourse/10)%10
	course := (speedCourse%10)*100 + (int(info[6]) - 28)

	symCode := byte('>')
	symTable := byte('/')
	if len(info) > 7 {
		symCode = info[7]
	}
	if len(info) > 8 {
		symTable = info[8]
	}

	rawComment := ""
	if len(info) > 9 {
		rawComment = info[9:]
	}
	if len(rawComment) > 0 {
		switch rawComment[0] {
		case 0x20, 0x3e, 0x5d, 0x60, 0x27:
			rawComment = rawComment[1:]
		}
	}

	var printable strings.Builder
	for i := 0; i < len(rawComment); i++ {
		if rawComment[i] >= 0x20 && rawComment[i] <= 0x7e {
			printable.WriteByte(rawComment[i])
		}
	}
	comment := printable.String()

	if braceIdx := strings.IndexByte(comment, '}'); braceIdx >= 0 {
		end := braceIdx + 1
		for end < len(comment) && end < braceIdx+4 {
			if comment[end] >= 0x21 && comment[end] <= 0x7b {
				end++
			} else {
				break
			}
		}
		comment = comment[:braceIdx] + comment[end:]
	}

	device := deviceid.IdentifyMicE(comment)

	for len(comment) > 0 && strings.ContainsRune("!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~", rune(comment[len(comment)-1])) {
		comment = comment[:len(comment)-1]
	}
	comment = strings.TrimSpace(comment)

	if len(comment) > 0 {
		alnum := 0
		for _, c := range comment {
			if c == ' ' || (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
				alnum++
			}
		}
		if float64(alnum)/float64(len(comment)) < 0.4 {
			comment = ""
		}
	}

	if lat == 0 && lon == 0 {
		return nil, fmt.Errorf("aprs: rejecting null island from %s", station)
	}

	pos := &Position{
		Station:     strings.ToUpper(station),
		Timestamp:   now,
		Latitude:    lat,
		Longitude:   lon,
		SymbolTable: symTable,
		SymbolCode:  symCode,
		Comment:     comment,
		Course:      intPtr(course),
		Speed:       intPtr(speed),
		GridSquare:  geo.ToMaidenhead(lat, lon),
		Device:      device,
	}
	return pos, nil
}

func intPtr(v int) *int { return &v }
