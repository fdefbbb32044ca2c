package ax25

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseCallsign(t *testing.T) {
	base, ssid, err := ParseCallsign("n0call-5")
	require.NoError(t, err)
	assert.Equal(t, "N0CALL", base)
	assert.Equal(t, 5, ssid)

	base, ssid, err = ParseCallsign("K1FSY")
	require.NoError(t, err)
	assert.Equal(t, "K1FSY", base)
	assert.Equal(t, 0, ssid)

	_, _, err = ParseCallsign("TOOLONGCALL-1")
	assert.Error(t, err)

	_, _, err = ParseCallsign("N0CALL-16")
	assert.Error(t, err)
}

func TestEncodeAddress_LiteralScenario(t *testing.T) {
	// Spec §8 scenario 4: N0CALL-5, not the last address.
	addr, err := NewAddress("N0CALL-5", false)
	require.NoError(t, err)

	raw, err := EncodeAddress(addr, false)
	require.NoError(t, err)

	want := [7]byte{'N' << 1, '0' << 1, 'C' << 1, 'A' << 1, 'L' << 1, 'L' << 1, 0x60 | (5 << 1)}
	assert.Equal(t, want, raw)
	assert.Equal(t, byte(0), raw[6]&0x01, "end-of-address bit must be clear when not last")
}

func TestEncodeAddress_LastSetsEndOfAddressBit(t *testing.T) {
	addr, err := NewAddress("N0CALL-5", false)
	require.NoError(t, err)
	raw, err := EncodeAddress(addr, true)
	require.NoError(t, err)
	assert.Equal(t, byte(1), raw[6]&0x01)
}

func TestAddressRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		base := rapid.StringMatching(`[A-Z0-9]{1,6}`).Draw(rt, "base")
		ssid := rapid.IntRange(0, 15).Draw(rt, "ssid")
		bit7 := rapid.Bool().Draw(rt, "bit7")
		last := rapid.Bool().Draw(rt, "last")

		orig := Address{Base: base, SSID: ssid, Bit7: bit7, Reserved: 0x03}
		raw, err := EncodeAddress(orig, last)
		require.NoError(rt, err)

		decoded, gotLast, err := DecodeAddress(raw[:])
		require.NoError(rt, err)
		assert.Equal(rt, orig, decoded)
		assert.Equal(rt, last, gotLast)
	})
}
