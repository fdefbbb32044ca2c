// Package msgmanager implements C7: outgoing APRS message retry
// tracking and incoming message deduplication, matching the two-tier
// timeout scheme and fuzzy duplicate detection of §4.7.
package msgmanager

import (
	"strings"
	"sync"
	"time"

	"github.com/aprsgo/tncd/internal/aprs"
	"github.com/aprsgo/tncd/internal/eventbus"
)

// Default retry parameters, per §4.7.
const (
	DefaultFastRetry = 20 * time.Second
	DefaultSlowRetry = 600 * time.Second
	DefaultMaxRetry  = 3

	// fuzzyWindow and fuzzyMinLen bound the fuzzy duplicate match: two
	// messages from the same sender within this window whose first
	// fuzzyMinLen characters agree are treated as one corrupted-copy
	// duplicate rather than two distinct messages.
	fuzzyWindow = 30 * time.Second
	fuzzyMinLen = 20
)

// Outgoing is a message this station is tracking for retry/ack.
type Outgoing struct {
	ID         string
	To         string
	Body       string
	Path       []string
	CreatedAt  time.Time
	LastSent   time.Time
	RetryCount int
	Digipeated bool
	Acked      bool
	Rejected   bool
	Failed     bool
}

// Manager tracks outgoing message retry state and deduplicates incoming
// messages addressed to myCallsign.
type Manager struct {
	mu         sync.Mutex
	myCallsign string
	fastRetry  time.Duration
	slowRetry  time.Duration
	maxRetry   int
	nextID     int

	outgoing []*Outgoing
	received []receivedRecord
	bus      *eventbus.Bus
}

type receivedRecord struct {
	from      string
	to        string
	messageID string
	body      string
	at        time.Time
	read      bool
}

// Received is a message addressed to this station, exposed for the
// `/api/messages` inbox view.
type Received struct {
	From      string
	To        string
	MessageID string
	Body      string
	At        time.Time
	Read      bool
}

// New constructs a Manager for myCallsign using the default retry
// timeouts of §4.7.
func New(myCallsign string, bus *eventbus.Bus) *Manager {
	return &Manager{
		myCallsign: strings.ToUpper(myCallsign),
		fastRetry:  DefaultFastRetry,
		slowRetry:  DefaultSlowRetry,
		maxRetry:   DefaultMaxRetry,
		bus:        bus,
	}
}

// SetRetryParams overrides the default retry timeouts and budget.
func (m *Manager) SetRetryParams(fast, slow time.Duration, maxRetry int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fastRetry, m.slowRetry, m.maxRetry = fast, slow, maxRetry
}

// nextMessageID mints APRS message IDs as a monotonic decimal counter
// without zero padding ("1", "2", ...).
func (m *Manager) nextMessageID() string {
	m.nextID++
	return itoa(m.nextID)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Send registers a new outgoing message and returns its message ID.
// The caller is responsible for the actual transmission; Send only
// begins retry tracking, matching a "fire, then track" split.
func (m *Manager) Send(to, body string, path []string, now time.Time) *Outgoing {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &Outgoing{
		ID:        m.nextMessageID(),
		To:        strings.ToUpper(to),
		Body:      body,
		Path:      path,
		CreatedAt: now,
		LastSent:  now,
	}
	m.outgoing = append(m.outgoing, out)
	return out
}

// IsForMe reports whether toCall addresses myCallsign, treating an
// absent SSID as the equivalent of an explicit "-0".
func (m *Manager) IsForMe(toCall string) bool {
	return normalizeSSID(toCall) == normalizeSSID(m.myCallsign)
}

func normalizeSSID(callsign string) string {
	callsign = strings.ToUpper(strings.TrimSpace(callsign))
	if strings.Contains(callsign, "-") {
		return callsign
	}
	return callsign + "-0"
}

// NotePathDigipeated marks an outgoing message as having been observed
// digipeated (heard relayed on RF), switching its retry cadence from
// fast to slow.
func (m *Manager) NotePathDigipeated(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if out := m.find(id); out != nil {
		out.Digipeated = true
	}
}

// HandleAck marks the outgoing message matching id as acknowledged,
// halting further retries.
func (m *Manager) HandleAck(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if out := m.find(id); out != nil {
		out.Acked = true
	}
}

// HandleReject marks the outgoing message matching id as rejected by
// the recipient, halting further retries.
func (m *Manager) HandleReject(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if out := m.find(id); out != nil {
		out.Rejected = true
	}
}

func (m *Manager) find(id string) *Outgoing {
	for _, out := range m.outgoing {
		if out.ID == id {
			return out
		}
	}
	return nil
}

// PendingRetries returns every outgoing message due for retransmission
// under the two-tier fast/slow timeout of §4.7, excluding anything
// already acked, rejected, failed, or exhausted of retry budget.
func (m *Manager) PendingRetries(now time.Time) []*Outgoing {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []*Outgoing
	for _, out := range m.outgoing {
		if out.Acked || out.Rejected || out.Failed {
			continue
		}
		if out.RetryCount >= m.maxRetry {
			continue
		}
		timeout := m.fastRetry
		if out.Digipeated {
			timeout = m.slowRetry
		}
		if now.Sub(out.LastSent) >= timeout {
			pending = append(pending, out)
		}
	}
	return pending
}

// RecordRetry marks out as having just been retransmitted.
func (m *Manager) RecordRetry(out *Outgoing, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out.RetryCount++
	out.LastSent = now
}

// ExpireOverdue marks every message that has exhausted its retry
// budget and is now past its final timeout as failed, returning the
// ones just expired.
func (m *Manager) ExpireOverdue(now time.Time) []*Outgoing {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []*Outgoing
	for _, out := range m.outgoing {
		if out.Acked || out.Rejected || out.Failed {
			continue
		}
		if out.RetryCount < m.maxRetry {
			continue
		}
		timeout := m.fastRetry
		if out.Digipeated {
			timeout = m.slowRetry
		}
		if now.Sub(out.LastSent) >= timeout {
			out.Failed = true
			expired = append(expired, out)
		}
	}
	return expired
}

// HandleIncoming processes a decoded message addressed (possibly) to
// myCallsign, applying duplicate suppression before accepting it. It
// returns the accepted message, or nil if it was not for us or was a
// duplicate.
func (m *Manager) HandleIncoming(msg *aprs.Message, now time.Time) *aprs.Message {
	if !m.IsForMe(msg.To) {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isDuplicate(msg, now) {
		return nil
	}
	m.received = append(m.received, receivedRecord{
		from:      strings.ToUpper(msg.From),
		to:        strings.ToUpper(msg.To),
		messageID: msg.ID,
		body:      msg.Text,
		at:        now,
		read:      false,
	})
	if m.bus != nil {
		m.bus.Publish(eventbus.Event{Type: eventbus.MessageReceived, Payload: *msg})
	}
	return msg
}

// isDuplicate applies the same-sender + (same ID | same body | fuzzy
// content match within a time window) rule. Must be called with m.mu
// held.
func (m *Manager) isDuplicate(msg *aprs.Message, now time.Time) bool {
	from := strings.ToUpper(msg.From)
	for _, r := range m.received {
		if r.from != from {
			continue
		}
		if msg.ID != "" && r.messageID == msg.ID {
			return true
		}
		if r.body == msg.Text {
			return true
		}
		if fuzzyMatch(r.body, msg.Text, r.at, now) {
			return true
		}
	}
	return false
}

// fuzzyMatch catches corrupted iGate re-transmissions of the same
// message: same sender, arriving within fuzzyWindow, where one body's
// leading fuzzyMinLen characters is a prefix of the other's.
func fuzzyMatch(a, b string, at, now time.Time) bool {
	if now.Sub(at) < 0 {
		return false
	}
	if now.Sub(at) >= fuzzyWindow {
		return false
	}
	if len(a) < fuzzyMinLen || len(b) < fuzzyMinLen {
		return false
	}
	return strings.HasPrefix(a, b[:fuzzyMinLen]) || strings.HasPrefix(b, a[:fuzzyMinLen])
}

// Outgoing returns a copy of the tracked outgoing messages, for
// diagnostics/SSE feeds.
func (m *Manager) Outgoing() []Outgoing {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Outgoing, len(m.outgoing))
	for i, o := range m.outgoing {
		out[i] = *o
	}
	return out
}

// Received returns every message addressed to this station, per §4.7's
// "flagged unread" incoming contract, backing `/api/messages`.
func (m *Manager) Received() []Received {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Received, len(m.received))
	for i, r := range m.received {
		out[i] = Received{From: r.from, To: r.to, MessageID: r.messageID, Body: r.body, At: r.at, Read: r.read}
	}
	return out
}

// MarkRead clears the unread flag on every received message with the
// given message ID from the given sender.
func (m *Manager) MarkRead(from, messageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	from = strings.ToUpper(from)
	for i := range m.received {
		if m.received[i].from == from && m.received[i].messageID == messageID {
			m.received[i].read = true
		}
	}
}
