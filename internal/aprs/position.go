package aprs

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aprsgo/tncd/internal/geo"
)

// ErrNotThisFormat signals a decode function was handed an information
// field it does not own; the caller tries the next dispatch case.
var ErrNotThisFormat = fmt.Errorf("aprs: not this format")

// decodePosition handles `!`, `=`, `/`, `@`. `@` and `/` carry a leading
// 7-byte timestamp that this function skips without interpreting it
// (the spec does not ask the decoder to surface fix time).
func decodePosition(station string, info string, now time.Time) (*Position, error) {
	if info == "" || !strings.ContainsRune("!=/@", rune(info[0])) {
		return nil, ErrNotThisFormat
	}

	offset := 1
	if info[0] == '@' || info[0] == '/' {
		offset = 8
	}

	if len(info) >= offset+13 && (info[offset] == '/' || info[offset] == '\\') {
		if pos, err := decodeCompressedPosition(station, info, offset, now); err == nil {
			return pos, nil
		}
	}

	if len(info) < offset+19 {
		return nil, ErrNotThisFormat
	}
	return decodeUncompressedPosition(station, info, offset, now)
}

// decodeUncompressedPosition parses the DDMM.mmN/DDDMM.mmW layout common
// to positions, objects, and items alike.
func decodeUncompressedPosition(station, info string, offset int, now time.Time) (*Position, error) {
	latStr := info[offset : offset+8]
	symTable := info[offset+8]
	lonStr := info[offset+9 : offset+18]
	symCode := info[offset+18]

	lat, err := parseLatUncompressed(latStr)
	if err != nil {
		return nil, err
	}
	lon, err := parseLonUncompressed(lonStr)
	if err != nil {
		return nil, err
	}
	if lat == 0 && lon == 0 {
		return nil, fmt.Errorf("aprs: rejecting null island from %s", station)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("aprs: position out of range from %s", station)
	}

	comment := ""
	if len(info) > offset+19 {
		comment = strings.TrimSpace(info[offset+19:])
	}
	course, speed, comment := extractCourseSpeed(comment)
	alt, comment := extractAltitude(comment)

	return &Position{
		Station:     strings.ToUpper(station),
		Timestamp:   now,
		Latitude:    lat,
		Longitude:   lon,
		SymbolTable: symTable,
		SymbolCode:  symCode,
		Comment:     comment,
		Course:      course,
		Speed:       speed,
		Altitude:    alt,
		GridSquare:  geo.ToMaidenhead(lat, lon),
	}, nil
}

func parseLatUncompressed(s string) (float64, error) {
	if len(s) != 8 {
		return 0, ErrNotThisFormat
	}
	deg, err := strconv.Atoi(s[0:2])
	if err != nil {
		return 0, err
	}
	min, err := strconv.ParseFloat(s[2:7], 64)
	if err != nil {
		return 0, err
	}
	lat := float64(deg) + min/60.0
	switch s[7] {
	case 'S', 's':
		lat = -lat
	case 'N', 'n':
	default:
		return 0, fmt.Errorf("aprs: bad latitude hemisphere %q", s[7])
	}
	return lat, nil
}

func parseLonUncompressed(s string) (float64, error) {
	if len(s) != 9 {
		return 0, ErrNotThisFormat
	}
	deg, err := strconv.Atoi(s[0:3])
	if err != nil {
		return 0, err
	}
	min, err := strconv.ParseFloat(s[3:8], 64)
	if err != nil {
		return 0, err
	}
	lon := float64(deg) + min/60.0
	switch s[8] {
	case 'W', 'w':
		lon = -lon
	case 'E', 'e':
	default:
		return 0, fmt.Errorf("aprs: bad longitude hemisphere %q", s[8])
	}
	return lon, nil
}

// base91Decode decodes a fixed-width base-91 string (chars '!'..'{') to
// an integer, per §4.5's compressed-position encoding.
func base91Decode(s string) (int, bool) {
	result := 0
	for _, c := range s {
		v := int(c) - 33
		if v < 0 || v > 90 {
			return 0, false
		}
		result = result*91 + v
	}
	return result, true
}

func decodeCompressedPosition(station, info string, offset int, now time.Time) (*Position, error) {
	if len(info) < offset+13 {
		return nil, ErrNotThisFormat
	}
	symTable := info[offset]
	latVal, ok := base91Decode(info[offset+1 : offset+5])
	if !ok {
		return nil, ErrNotThisFormat
	}
	lonVal, ok := base91Decode(info[offset+5 : offset+9])
	if !ok {
		return nil, ErrNotThisFormat
	}
	symCode := info[offset+9]

	lat := 90.0 - float64(latVal)/380926.0
	lon := -180.0 + float64(lonVal)/190463.0
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("aprs: compressed position out of range from %s", station)
	}
	if lat == 0 && lon == 0 {
		return nil, fmt.Errorf("aprs: rejecting null island from %s", station)
	}

	comment := ""
	if len(info) > offset+13 {
		comment = strings.TrimSpace(info[offset+13:])
	}

	return &Position{
		Station:     strings.ToUpper(station),
		Timestamp:   now,
		Latitude:    lat,
		Longitude:   lon,
		SymbolTable: symTable,
		SymbolCode:  symCode,
		Comment:     comment,
		Compressed:  true,
		GridSquare:  geo.ToMaidenhead(lat, lon),
	}, nil
}

// extractCourseSpeed pulls a leading `CCC/SSS` course/speed field off
// the front of a position comment, per §4.5.
func extractCourseSpeed(comment string) (course, speed *int, rest string) {
	if len(comment) < 7 || comment[3] != '/' {
		return nil, nil, comment
	}
	c, err1 := strconv.Atoi(comment[0:3])
	s, err2 := strconv.Atoi(comment[4:7])
	if err1 != nil || err2 != nil {
		return nil, nil, comment
	}
	return &c, &s, strings.TrimSpace(comment[7:])
}

// extractAltitude finds an embedded `/A=NNNNNN` altitude marker (feet)
// anywhere in the comment and strips it out.
func extractAltitude(comment string) (*int, string) {
	idx := strings.Index(comment, "/A=")
	if idx < 0 || idx+9 > len(comment) {
		return nil, comment
	}
	digits := comment[idx+3 : idx+9]
	alt, err := strconv.Atoi(digits)
	if err != nil {
		return nil, comment
	}
	rest := strings.TrimSpace(comment[:idx] + comment[idx+9:])
	return &alt, rest
}

// decodeObject handles `;OBJECTNAM*DDHHMMzLAT.../LON...comment`.
func decodeObject(station, info string, now time.Time) (*Object, error) {
	if info == "" || info[0] != ';' || len(info) < 18 {
		return nil, ErrNotThisFormat
	}
	name := strings.TrimSpace(info[1:10])
	status := info[10]
	if status != '*' && status != '_' {
		return nil, ErrNotThisFormat
	}
	if status == '_' {
		return &Object{Name: name, Killed: true, Position: Position{Station: strings.ToUpper(name), Timestamp: now}}, nil
	}
	pos, err := decodeUncompressedPosition(name, info, 18, now)
	if err != nil {
		return nil, err
	}
	return &Object{Position: *pos, Name: name}, nil
}

// decodeItem handles `)NAME!lat/lon...` or `)NAME_lat/lon...`.
func decodeItem(station, info string, now time.Time) (*Item, error) {
	if info == "" || info[0] != ')' {
		return nil, ErrNotThisFormat
	}
	markerIdx := -1
	for i := 1; i < len(info); i++ {
		if info[i] == '!' || info[i] == '_' {
			markerIdx = i
			break
		}
	}
	if markerIdx < 0 {
		return nil, ErrNotThisFormat
	}
	name := strings.TrimSpace(info[1:markerIdx])
	if len(name) < 3 || len(name) > 9 {
		return nil, ErrNotThisFormat
	}
	pos, err := decodeUncompressedPosition(name, info, markerIdx+1, now)
	if err != nil {
		return nil, err
	}
	return &Item{Position: *pos, Name: name}, nil
}
