package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aprsgo/tncd/internal/aprs"
	"github.com/aprsgo/tncd/internal/ax25"
	"github.com/aprsgo/tncd/internal/digipeater"
	"github.com/aprsgo/tncd/internal/eventbus"
	"github.com/aprsgo/tncd/internal/msgmanager"
	"github.com/aprsgo/tncd/internal/station"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer() *Server {
	bus := eventbus.New()
	return &Server{
		MyCallsign:    "K1FSY",
		Started:       time.Now(),
		Stations:      station.New(bus),
		Messages:      msgmanager.New("K1FSY", bus),
		Bus:           bus,
		WebUIPassword: "secret",
	}
}

func TestHandleStations_ReturnsIngestedStation(t *testing.T) {
	s := newTestServer()
	s.Stations.Ingest(station.Packet{
		SourceCallsign: "N0CALL",
		Source:         station.SourceRF,
		Now:            time.Now(),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/stations", nil)
	rec := httptest.NewRecorder()
	s.handleStations(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["count"])
}

func TestHandleStationDetail_UnknownReturns404(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/stations/N0CALL", nil)
	rec := httptest.NewRecorder()
	s.handleStationDetail(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleMessages_ReturnsOnlyIncomingInbox(t *testing.T) {
	s := newTestServer()
	s.Messages.HandleIncoming(&aprs.Message{From: "N0CALL", To: "K1FSY", Text: "hello", ID: "001"}, time.Now())
	s.Messages.Send("N0CALL", "outbound, not an inbox entry", nil, time.Now())

	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	rec := httptest.NewRecorder()
	s.handleMessages(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["count"])
}

func TestHandleMessages_UnreadOnlyExcludesRead(t *testing.T) {
	s := newTestServer()
	s.Messages.HandleIncoming(&aprs.Message{From: "N0CALL", To: "K1FSY", Text: "hello", ID: "001"}, time.Now())
	s.Messages.MarkRead("N0CALL", "001")

	req := httptest.NewRequest(http.MethodGet, "/api/messages?unread_only=true", nil)
	rec := httptest.NewRecorder()
	s.handleMessages(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["count"])
}

func TestHandleStatus_ReportsCallsignAndCount(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "K1FSY", body["mycall"])
}

func TestHandleBeaconComment_RejectsWrongPassword(t *testing.T) {
	s := newTestServer()
	payload := `{"password":"wrong","comment":"hi","tx":false}`
	req := httptest.NewRequest(http.MethodPost, "/api/beacon/comment", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	s.handleBeaconComment(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type fakeBeacon struct {
	comment     string
	transmitted bool
}

func (f *fakeBeacon) SetComment(c string) { f.comment = c }
func (f *fakeBeacon) TransmitNow() error  { f.transmitted = true; return nil }

func TestHandleBeaconComment_UpdatesAndTransmits(t *testing.T) {
	s := newTestServer()
	fb := &fakeBeacon{}
	s.Beacon = fb

	payload := `{"password":"secret","comment":"testing","tx":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/beacon/comment", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	s.handleBeaconComment(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "testing", fb.comment)
	assert.True(t, fb.transmitted)
}

func TestHandleDigipeaters_EmptyWithoutDigipeater(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/digipeaters", nil)
	rec := httptest.NewRecorder()
	s.handleDigipeaters(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 0, body["count"])
}

func TestHandleDigipeaterDetail_ReturnsCoverage(t *testing.T) {
	s := newTestServer()
	dp := digipeater.New("K1FSY-9", "")
	f := &ax25.Frame{
		Src:   mustTestAddress("N0CALL"),
		Dest:  mustTestAddress("APRS"),
		Digis: []ax25.Address{{Base: "WIDE1", SSID: 1}},
		Info:  []byte("!hello"),
	}
	_, ok := dp.Digipeat(f, time.Now())
	require.True(t, ok)
	s.Digipeater = dp

	req := httptest.NewRequest(http.MethodGet, "/api/digipeaters/N0CALL", nil)
	rec := httptest.NewRecorder()
	s.handleDigipeaterDetail(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var cov digipeater.Coverage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cov))
	assert.Equal(t, 1, cov.PacketsRelayed)
}

func mustTestAddress(callsign string) ax25.Address {
	a, err := ax25.NewAddress(callsign, false)
	if err != nil {
		panic(err)
	}
	return a
}

func TestMux_RoutesToStationsEndpoint(t *testing.T) {
	s := newTestServer()
	var logBuf bytes.Buffer
	mux := s.Mux(&logBuf)

	req := httptest.NewRequest(http.MethodGet, "/api/stations", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, logBuf.String())
}
