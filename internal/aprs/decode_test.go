package aprs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var fixedNow = time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)

func TestDecode_UncompressedPosition(t *testing.T) {
	out, err := Decode("N0CALL-9", "APRS", "!4237.14N/07107.45W-Testing 123", fixedNow)
	require.NoError(t, err)
	pos, ok := out.(*Position)
	require.True(t, ok)
	assert.InDelta(t, 42+37.14/60.0, pos.Latitude, 1e-6)
	assert.InDelta(t, -(71+7.45/60.0), pos.Longitude, 1e-6)
	assert.Equal(t, byte('/'), pos.SymbolTable)
	assert.Equal(t, byte('-'), pos.SymbolCode)
	assert.Equal(t, "Testing 123", pos.Comment)
	assert.NotEmpty(t, pos.GridSquare)
}

func TestDecode_UncompressedPosition_CourseSpeedAndAltitude(t *testing.T) {
	out, err := Decode("N0CALL", "APRS", "!4237.14N/07107.45W-088/036/A=001234 comment", fixedNow)
	require.NoError(t, err)
	pos := out.(*Position)
	require.NotNil(t, pos.Course)
	require.NotNil(t, pos.Speed)
	require.NotNil(t, pos.Altitude)
	assert.Equal(t, 88, *pos.Course)
	assert.Equal(t, 36, *pos.Speed)
	assert.Equal(t, 1234, *pos.Altitude)
	assert.Equal(t, "comment", pos.Comment)
}

func TestDecode_RejectsNullIsland(t *testing.T) {
	_, err := Decode("N0CALL", "APRS", "!0000.00N/00000.00W-", fixedNow)
	assert.Error(t, err)
}

func TestDecode_CompressedPosition(t *testing.T) {
	// A synthetic compressed packet: symbol table '/', 4 base91 lat
	// bytes, 4 base91 lon bytes, symbol code, 3 trailing bytes.
	info := "!/5L!!<*e7>7P[ comment"
	out, err := Decode("N0CALL", "APRS", info, fixedNow)
	require.NoError(t, err)
	pos, ok := out.(*Position)
	require.True(t, ok)
	assert.True(t, pos.Compressed)
	assert.True(t, pos.Latitude >= -90 && pos.Latitude <= 90)
	assert.True(t, pos.Longitude >= -180 && pos.Longitude <= 180)
}

func TestDecode_MicE(t *testing.T) {
	// N0CALL's Mic-E destination S52TP0 encodes latitude 3524.00N.
	dest := "S52TP0"
	info := string([]byte{0x60, 28 + 71, 28 + 7, 28 + 45, 28 + 36, 28 + 8, 28 + 88, '>', '/'}) + "test`"
	out, err := Decode("N0CALL", dest, info, fixedNow)
	require.NoError(t, err)
	pos, ok := out.(*Position)
	require.True(t, ok)
	assert.Equal(t, byte('>'), pos.SymbolCode)
	assert.Equal(t, byte('/'), pos.SymbolTable)
}

func TestDecode_Object(t *testing.T) {
	out, err := Decode("N0CALL", "APRS", ";LEADER   *092345z4903.50N/07201.75W>Event HQ", fixedNow)
	require.NoError(t, err)
	obj, ok := out.(*Object)
	require.True(t, ok)
	assert.Equal(t, "LEADER", obj.Name)
	assert.False(t, obj.Killed)
	assert.InDelta(t, 49+3.5/60.0, obj.Latitude, 1e-6)
}

func TestDecode_ObjectKilled(t *testing.T) {
	out, err := Decode("N0CALL", "APRS", ";LEADER   _092345z", fixedNow)
	require.NoError(t, err)
	obj := out.(*Object)
	assert.True(t, obj.Killed)
}

func TestDecode_Item(t *testing.T) {
	out, err := Decode("N0CALL", "APRS", ")MAP1!4903.50N/07201.75W>", fixedNow)
	require.NoError(t, err)
	item, ok := out.(*Item)
	require.True(t, ok)
	assert.Equal(t, "MAP1", item.Name)
}

func TestDecode_Status(t *testing.T) {
	out, err := Decode("N0CALL", "APRS", ">Net control until 2200", fixedNow)
	require.NoError(t, err)
	st := out.(*Status)
	assert.Equal(t, "Net control until 2200", st.Text)
}

func TestDecode_Message(t *testing.T) {
	out, err := Decode("N0CALL", "APRS", ":N1CALL   :Hello there{00001", fixedNow)
	require.NoError(t, err)
	msg, ok := out.(*Message)
	require.True(t, ok)
	assert.Equal(t, "N1CALL", msg.To)
	assert.Equal(t, "Hello there", msg.Text)
	assert.Equal(t, "00001", msg.ID)
}

func TestDecode_MessageAck(t *testing.T) {
	out, err := Decode("N1CALL", "APRS", ":N0CALL   :ack00001", fixedNow)
	require.NoError(t, err)
	ack, ok := out.(*Ack)
	require.True(t, ok)
	assert.Equal(t, "00001", ack.ID)
}

func TestDecode_MessageReject(t *testing.T) {
	out, err := Decode("N1CALL", "APRS", ":N0CALL   :rej00001", fixedNow)
	require.NoError(t, err)
	rej, ok := out.(*Reject)
	require.True(t, ok)
	assert.Equal(t, "00001", rej.ID)
}

func TestDecode_TelemetryConfigIsSkipped(t *testing.T) {
	out, err := Decode("N0CALL", "APRS", ":N0CALL   :PARM.Battery,Temp", fixedNow)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestDecode_Weather(t *testing.T) {
	out, err := Decode("N0CALL", "APRS", "_10090556c220s004g005t077r000p000P000h50b10132", fixedNow)
	require.NoError(t, err)
	wx, ok := out.(*Weather)
	require.True(t, ok)
	require.NotNil(t, wx.WindDirection)
	assert.Equal(t, 220, *wx.WindDirection)
	require.NotNil(t, wx.TemperatureF)
	assert.Equal(t, 77, *wx.TemperatureF)
	require.NotNil(t, wx.Humidity)
	assert.Equal(t, 50, *wx.Humidity)
	require.NotNil(t, wx.DewPointF)
}

func TestDecode_Telemetry(t *testing.T) {
	out, err := Decode("N0CALL", "APRS", "T#005,100,050,000,255,000,00101010", fixedNow)
	require.NoError(t, err)
	tel, ok := out.(*Telemetry)
	require.True(t, ok)
	assert.Equal(t, 5, tel.Sequence)
	assert.Equal(t, [5]int{100, 50, 0, 255, 0}, tel.Analog)
	assert.Equal(t, [8]bool{false, false, true, false, true, false, true, false}, tel.Digital)
}

func TestDecode_ThirdParty(t *testing.T) {
	inner := "!4237.14N/07107.45W-inner"
	info := "}N2CALL>APRS,WIDE1-1:" + inner
	out, err := Decode("N1CALL", "APRS", info, fixedNow)
	require.NoError(t, err)
	tp, ok := out.(*ThirdParty)
	require.True(t, ok)
	assert.Equal(t, "N2CALL", tp.InnerSrc)
	require.IsType(t, &Position{}, tp.Inner)
}

func TestDecode_UnrecognizedTypeIsError(t *testing.T) {
	_, err := Decode("N0CALL", "APRS", "~garbage", fixedNow)
	assert.Error(t, err)
}

// TestCompressedPositionProperty checks that any
// legal base-91 4-byte pair decodes to a coordinate within range,
// matching §8's decode-never-panics invariant for compressed positions.
func TestCompressedPositionProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		latBytes := randBase91(rt, "lat")
		lonBytes := randBase91(rt, "lon")
		info := "!/" + latBytes + lonBytes + ">   "
		out, err := decodeCompressedPosition("N0CALL", info, 1, fixedNow)
		if err != nil {
			return // some combinations legitimately hit null-island/out-of-range rejection
		}
		assert.True(rt, out.Latitude >= -90 && out.Latitude <= 90)
		assert.True(rt, out.Longitude >= -180 && out.Longitude <= 180)
	})
}

func randBase91(t *rapid.T, label string) string {
	b := make([]byte, 4)
	for i := range b {
		b[i] = byte(rapid.IntRange(33, 123).Draw(t, label))
	}
	return string(b)
}
