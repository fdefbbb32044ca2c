// Package sse implements C11: a long-lived HTTP response stream per
// subscriber, relaying internal/eventbus events as
// "event: <type>\ndata: <json>\n\n" records with a 15-second heartbeat.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aprsgo/tncd/internal/eventbus"
)

// HeartbeatInterval is how often a "connected" event is sent to keep
// idle connections (and any intermediate proxies) alive.
const HeartbeatInterval = 15 * time.Second

// SubscriberBuffer bounds how many events queue for a slow client
// before it is dropped rather than allowed to stall the bus.
const SubscriberBuffer = 64

// Handler streams bus events to the client until the request context
// is canceled or the client's write buffer backs up.
func Handler(bus *eventbus.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		sub := bus.Subscribe(SubscriberBuffer)
		defer sub.Unsubscribe()

		if err := writeEvent(w, "connected", map[string]string{"status": "ok"}); err != nil {
			return
		}
		flusher.Flush()

		heartbeat := time.NewTicker(HeartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-heartbeat.C:
				if err := writeEvent(w, "connected", map[string]string{"status": "ok"}); err != nil {
					return
				}
				flusher.Flush()
			case ev, open := <-sub.C:
				if !open {
					return
				}
				if err := writeEvent(w, string(ev.Type), ev.Payload); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, body)
	return err
}
