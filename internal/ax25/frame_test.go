package ax25

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func mustAddr(t require.TestingT, call string, bit7 bool) Address {
	a, err := NewAddress(call, bit7)
	require.NoError(t, err)
	return a
}

func TestDecodeEncode_UIFrame(t *testing.T) {
	dest := mustAddr(t, "APRS", false)
	src := mustAddr(t, "N0CALL-9", false)
	digi := mustAddr(t, "WIDE2-1", false)

	f := NewUI(dest, src, []Address{digi}, []byte("!4237.14N/07107.45W-Testing"))
	raw, err := Encode(f)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, KindUI, decoded.Kind)
	assert.True(t, decoded.HasPID)
	assert.Equal(t, PIDNoLayer3, decoded.PID)
	assert.Equal(t, "!4237.14N/07107.45W-Testing", string(decoded.Info))
	require.Len(t, decoded.Digis, 1)
	assert.Equal(t, "WIDE2-1", decoded.Digis[0].String())

	reencoded, err := Encode(decoded)
	require.NoError(t, err)
	assert.Equal(t, raw, reencoded)
}

func TestDecode_ShortFrameIsError(t *testing.T) {
	_, err := Decode([]byte{0x01, 0x02, 0x03})
	require.Error(t, err)
	var derr *DecodeError
	assert.ErrorAs(t, err, &derr)
}

func TestDecode_IFrameSequenceNumbers(t *testing.T) {
	dest := mustAddr(t, "N0CALL", false)
	src := mustAddr(t, "N1CALL", false)
	f := &Frame{
		Dest:    dest,
		Src:     src,
		Kind:    KindI,
		Control: BuildControlI(3, 5, true),
		HasPID:  true,
		PID:     PIDNoLayer3,
		Info:    []byte("payload"),
	}
	raw, err := Encode(f)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, KindI, decoded.Kind)
	assert.Equal(t, 3, decoded.NS)
	assert.Equal(t, 5, decoded.NR)
	assert.True(t, decoded.PF)
}

func TestDecode_SupervisoryFrames(t *testing.T) {
	dest := mustAddr(t, "N0CALL", false)
	src := mustAddr(t, "N1CALL", false)
	for _, st := range []SFrameType{RR, RNR, REJ} {
		f := &Frame{Dest: dest, Src: src, Kind: KindS, Control: BuildControlS(st, 2, false)}
		raw, err := Encode(f)
		require.NoError(t, err)
		decoded, err := Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, KindS, decoded.Kind)
		assert.Equal(t, st, decoded.SType)
		assert.Equal(t, 2, decoded.NR)
	}
}

func TestDecode_UnnumberedFrames(t *testing.T) {
	dest := mustAddr(t, "N0CALL", false)
	src := mustAddr(t, "N1CALL", false)
	for _, ut := range []UFrameType{SABM, DISC, DM, UA, FRMR} {
		f := &Frame{Dest: dest, Src: src, Kind: KindU, Control: BuildControlU(ut, true)}
		raw, err := Encode(f)
		require.NoError(t, err)
		decoded, err := Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, KindU, decoded.Kind)
		assert.Equal(t, ut, decoded.UType)
		assert.True(t, decoded.PF)
	}
}

// TestEncodeDecodeRoundTripProperty checks spec §8's universal invariant:
// encode(decode(F)) == F, byte for byte, across randomly generated valid
// frames of every kind.
func TestEncodeDecodeRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dest := mustAddr(rt, randCallsign(rt, "dest"), rapid.Bool().Draw(rt, "destC"))
		src := mustAddr(rt, randCallsign(rt, "src"), rapid.Bool().Draw(rt, "srcC"))

		numDigis := rapid.IntRange(0, 6).Draw(rt, "numDigis")
		digis := make([]Address, numDigis)
		for i := range digis {
			digis[i] = mustAddr(rt, randCallsign(rt, "digi"), rapid.Bool().Draw(rt, "digiH"))
		}

		kindChoice := rapid.IntRange(0, 3).Draw(rt, "kind")
		info := rapid.SliceOfN(rapid.Byte(), 0, 40).Draw(rt, "info")

		var f *Frame
		switch kindChoice {
		case 0:
			f = &Frame{Dest: dest, Src: src, Digis: digis, Kind: KindUI,
				Control: BuildControlUI(rapid.Bool().Draw(rt, "pf")), HasPID: true, PID: PIDNoLayer3, Info: info}
		case 1:
			f = &Frame{Dest: dest, Src: src, Digis: digis, Kind: KindI,
				Control: BuildControlI(rapid.IntRange(0, 7).Draw(rt, "ns"), rapid.IntRange(0, 7).Draw(rt, "nr"), rapid.Bool().Draw(rt, "pf")),
				HasPID:  true, PID: PIDNoLayer3, Info: info}
		case 2:
			st := SFrameType(rapid.IntRange(0, 2).Draw(rt, "stype"))
			f = &Frame{Dest: dest, Src: src, Digis: digis, Kind: KindS,
				Control: BuildControlS(st, rapid.IntRange(0, 7).Draw(rt, "nr"), rapid.Bool().Draw(rt, "pf"))}
		default:
			ut := UFrameType(rapid.IntRange(0, 4).Draw(rt, "utype"))
			f = &Frame{Dest: dest, Src: src, Digis: digis, Kind: KindU,
				Control: BuildControlU(ut, rapid.Bool().Draw(rt, "pf"))}
		}

		raw, err := Encode(f)
		require.NoError(rt, err)

		decoded, err := Decode(raw)
		require.NoError(rt, err)

		reencoded, err := Encode(decoded)
		require.NoError(rt, err)
		assert.Equal(rt, raw, reencoded)
	})
}

func randCallsign(t *rapid.T, label string) string {
	base := rapid.StringMatching(`[A-Z0-9]{1,6}`).Draw(t, label+"_base")
	ssid := rapid.IntRange(0, 15).Draw(t, label+"_ssid")
	return FormatCallsign(base, ssid)
}
