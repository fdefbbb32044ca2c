// Package httpapi wires C11's read-only JSON endpoints and the beacon
// comment mutation onto the SSE stream, mounted by the supervisor as
// the single HTTP+SSE listener (default port 8002).
package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/aprsgo/tncd/internal/digipeater"
	"github.com/aprsgo/tncd/internal/eventbus"
	"github.com/aprsgo/tncd/internal/framebuffer"
	"github.com/aprsgo/tncd/internal/msgmanager"
	"github.com/aprsgo/tncd/internal/sse"
	"github.com/aprsgo/tncd/internal/station"
	"github.com/gorilla/handlers"
)

// BeaconState is the small piece of mutable beacon configuration the
// POST endpoint can change at runtime.
type BeaconState interface {
	SetComment(comment string)
	TransmitNow() error
}

// Server bundles the dependencies the HTTP API reads from.
type Server struct {
	MyCallsign    string
	Started       time.Time
	Stations      *station.DB
	Messages      *msgmanager.Manager
	Digipeater    *digipeater.Digipeater
	Frames        *framebuffer.Buffer
	Bus           *eventbus.Bus
	Beacon        BeaconState
	WebUIPassword string
}

// Mux builds the routed HTTP handler, wrapped in an access-log
// middleware the way the teacher's own HTTP surface does.
func (s *Server) Mux(logWriter interface{ Write([]byte) (int, error) }) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stations", s.handleStations)
	mux.HandleFunc("/api/stations/", s.handleStationDetail)
	mux.HandleFunc("/api/weather", s.handleWeather)
	mux.HandleFunc("/api/messages", s.handleMessages)
	mux.HandleFunc("/api/monitored_messages", s.handleMonitoredMessages)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/digipeaters", s.handleDigipeaters)
	mux.HandleFunc("/api/digipeaters/", s.handleDigipeaterDetail)
	mux.HandleFunc("/api/beacon/comment", s.handleBeaconComment)
	mux.HandleFunc("/api/events", sse.Handler(s.Bus))

	return handlers.CombinedLoggingHandler(logWriter, mux)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	sortBy := r.URL.Query().Get("sort_by")
	stations := s.Stations.List(nil)
	sortStations(stations, sortBy)
	writeJSON(w, map[string]any{"stations": stations, "count": len(stations)})
}

func (s *Server) handleStationDetail(w http.ResponseWriter, r *http.Request) {
	callsign := r.URL.Path[len("/api/stations/"):]
	if callsign == "" {
		http.NotFound(w, r)
		return
	}
	snap, ok := s.Stations.Snapshot(callsign)
	if !ok {
		http.Error(w, "unknown station", http.StatusNotFound)
		return
	}
	writeJSON(w, snap)
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	stations := s.Stations.List(func(st station.Station) bool { return st.LastWeather != nil })
	writeJSON(w, map[string]any{"stations": stations, "count": len(stations)})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread_only"))
	msgs := s.Messages.Received()
	if unreadOnly {
		filtered := msgs[:0]
		for _, m := range msgs {
			if !m.Read {
				filtered = append(filtered, m)
			}
		}
		msgs = filtered
	}
	writeJSON(w, map[string]any{"messages": msgs, "count": len(msgs)})
}

func (s *Server) handleMonitoredMessages(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	callsign := r.URL.Query().Get("callsign")

	if s.Frames == nil {
		writeJSON(w, map[string]any{"frames": []framebuffer.Entry{}, "count": 0})
		return
	}
	entries := s.Frames.List(framebuffer.Filter{Callsign: callsign, Limit: limit})
	writeJSON(w, map[string]any{"frames": entries, "count": len(entries)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"mycall":         s.MyCallsign,
		"uptime_seconds": int(time.Since(s.Started).Seconds()),
		"station_count":  s.Stations.Count(),
	})
}

func (s *Server) handleDigipeaters(w http.ResponseWriter, r *http.Request) {
	if s.Digipeater == nil {
		writeJSON(w, map[string]any{"stations": []digipeater.Coverage{}, "count": 0})
		return
	}
	cov := s.Digipeater.Coverage()
	writeJSON(w, map[string]any{"stations": cov, "count": len(cov)})
}

func (s *Server) handleDigipeaterDetail(w http.ResponseWriter, r *http.Request) {
	callsign := r.URL.Path[len("/api/digipeaters/"):]
	if callsign == "" || s.Digipeater == nil {
		http.NotFound(w, r)
		return
	}
	cov, ok := s.Digipeater.StationCoverage(callsign)
	if !ok {
		http.Error(w, "unknown station", http.StatusNotFound)
		return
	}
	writeJSON(w, cov)
}

// beaconCommentRequest is the POST /api/beacon/comment body: a shared
// secret, the new comment text, and whether to transmit immediately.
type beaconCommentRequest struct {
	Password string `json:"password"`
	Comment  string `json:"comment"`
	TX       bool   `json:"tx"`
}

func (s *Server) handleBeaconComment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req beaconCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if s.WebUIPassword == "" || req.Password != s.WebUIPassword {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.Beacon == nil {
		http.Error(w, "beacon not configured", http.StatusServiceUnavailable)
		return
	}
	s.Beacon.SetComment(req.Comment)
	if req.TX {
		if err := s.Beacon.TransmitNow(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, map[string]bool{"ok": true})
}

func sortStations(stations []station.Station, sortBy string) {
	switch sortBy {
	case "name":
		sort.Slice(stations, func(i, j int) bool { return stations[i].Callsign < stations[j].Callsign })
	case "packets":
		sort.Slice(stations, func(i, j int) bool { return stations[i].PacketsHeard > stations[j].PacketsHeard })
	case "hops":
		sort.Slice(stations, func(i, j int) bool { return stations[i].HopCount < stations[j].HopCount })
	default: // "last"
		sort.Slice(stations, func(i, j int) bool { return stations[i].LastHeard.After(stations[j].LastHeard) })
	}
}
