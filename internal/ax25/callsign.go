// Package ax25 implements the AX.25 link layer: address encoding, UI/I/S/U
// frame parsing and construction, and the v2.2 connected-mode state
// machine used for connection-oriented traffic.
package ax25

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCallsign splits a lexical callsign "BASE" or "BASE-SSID" into its
// base (1-6 uppercase alphanumerics) and SSID (0-15).
func ParseCallsign(s string) (base string, ssid int, err error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", 0, fmt.Errorf("ax25: empty callsign")
	}

	base = s
	if idx := strings.IndexByte(s, '-'); idx >= 0 {
		base = s[:idx]
		ssidStr := s[idx+1:]
		n, convErr := strconv.Atoi(ssidStr)
		if convErr != nil || n < 0 || n > 15 {
			return "", 0, fmt.Errorf("ax25: invalid SSID %q in callsign %q", ssidStr, s)
		}
		ssid = n
	}

	if len(base) < 1 || len(base) > 6 {
		return "", 0, fmt.Errorf("ax25: callsign base %q must be 1-6 characters", base)
	}
	for _, c := range base {
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return "", 0, fmt.Errorf("ax25: callsign base %q has invalid character %q", base, c)
		}
	}
	return base, ssid, nil
}

// FormatCallsign renders a base/SSID pair in lexical form, omitting the
// SSID when it is zero.
func FormatCallsign(base string, ssid int) string {
	if ssid == 0 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, ssid)
}

// Address is one 7-byte AX.25 address field: a callsign, SSID, the
// top bit (C-bit for destination/source, H-bit for a digipeater entry),
// and the two reserved bits, which are preserved verbatim across a
// decode/encode round trip rather than normalized.
type Address struct {
	Base     string
	SSID     int
	Bit7     bool // command/response bit (dest, src) or has-been-repeated (digipeater)
	Reserved byte // 2 bits, as observed (typically 0b11 per the AX.25 spec)
}

// String renders the address in lexical form. Callers that need the
// trailing '*' digipeater-heard marker append it themselves, since that
// marker's meaning depends on position within the path.
func (a Address) String() string {
	return FormatCallsign(a.Base, a.SSID)
}

// NewAddress parses a lexical callsign into an Address with the given
// bit7/reserved values (defaulting reserved to 0b11 as the spec directs
// for anything we originate).
func NewAddress(callsign string, bit7 bool) (Address, error) {
	base, ssid, err := ParseCallsign(callsign)
	if err != nil {
		return Address{}, err
	}
	return Address{Base: base, SSID: ssid, Bit7: bit7, Reserved: 0x03}, nil
}

// EncodeAddress produces the 7-byte wire form of a. Each of the six
// callsign bytes is the ASCII character left-shifted by one bit, space
// padded; the seventh byte packs Bit7, the two reserved bits, the SSID,
// and the end-of-address marker (last).
func EncodeAddress(a Address, last bool) ([7]byte, error) {
	var out [7]byte
	call := a.Base
	if len(call) > 6 {
		return out, fmt.Errorf("ax25: callsign base %q longer than 6 characters", call)
	}
	call = call + strings.Repeat(" ", 6-len(call))
	for i := 0; i < 6; i++ {
		out[i] = call[i] << 1
	}

	if a.SSID < 0 || a.SSID > 15 {
		return out, fmt.Errorf("ax25: SSID %d out of range", a.SSID)
	}

	ssidByte := byte(a.SSID) << 1
	ssidByte |= (a.Reserved & 0x03) << 5
	if a.Bit7 {
		ssidByte |= 0x80
	}
	if last {
		ssidByte |= 0x01
	}
	out[6] = ssidByte
	return out, nil
}

// DecodeAddress parses one 7-byte AX.25 address field. It reports whether
// the low bit marked this as the final address in the path.
func DecodeAddress(b []byte) (addr Address, last bool, err error) {
	if len(b) != 7 {
		return Address{}, false, fmt.Errorf("ax25: address field must be 7 bytes, got %d", len(b))
	}

	var call strings.Builder
	for i := 0; i < 6; i++ {
		call.WriteByte(b[i] >> 1)
	}
	base := strings.TrimRight(call.String(), " ")
	if base == "" {
		return Address{}, false, fmt.Errorf("ax25: empty callsign in address field")
	}

	ssidByte := b[6]
	addr = Address{
		Base:     base,
		SSID:     int((ssidByte >> 1) & 0x0F),
		Bit7:     ssidByte&0x80 != 0,
		Reserved: (ssidByte >> 5) & 0x03,
	}
	last = ssidByte&0x01 != 0
	return addr, last, nil
}
