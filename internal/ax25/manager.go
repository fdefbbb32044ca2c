package ax25

import (
	"context"
	"sync"
)

// Manager shards connection actors by remote peer callsign, per §5: "the
// connection engine is sharded by peer callsign: one actor per active
// peer". It lazily creates a Connection the first time a peer is
// addressed and reaps it once it drops back to Disconnected.
type Manager struct {
	local  Address
	params EngineParams
	send   SendFrame
	onErr  func(error)

	mu    sync.Mutex
	peers map[string]*Connection
	ctx   context.Context
}

// NewManager constructs a Manager transmitting through send as the given
// local station.
func NewManager(ctx context.Context, local Address, params EngineParams, send SendFrame) *Manager {
	return &Manager{
		local:  local,
		params: params,
		send:   send,
		peers:  make(map[string]*Connection),
		ctx:    ctx,
	}
}

// OnError installs a shared error callback applied to every peer actor
// created from this point on.
func (m *Manager) OnError(cb func(error)) { m.onErr = cb }

// Peer returns the actor for remote, creating and starting it if this is
// the first time it has been addressed.
func (m *Manager) Peer(remote Address) *Connection {
	key := remote.String()
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.peers[key]; ok {
		return c
	}
	c := NewConnection(m.local, remote, m.params, m.send)
	if m.onErr != nil {
		c.OnError(m.onErr)
	}
	m.peers[key] = c
	go c.Run(m.ctx)
	return c
}

// Dispatch routes a decoded frame to the actor for its source station,
// creating one on demand. Frames not addressed to the local station
// (per f.Dest) are ignored.
func (m *Manager) Dispatch(local Address, f *Frame) {
	if f.Dest.String() != local.String() {
		return
	}
	m.Peer(f.Src).Deliver(f)
}

// Active reports every peer callsign with a live actor.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.peers))
	for k := range m.peers {
		out = append(out, k)
	}
	return out
}

// Reap removes actors for peers that have returned to Disconnected,
// letting their goroutines exit naturally when ctx is later canceled.
// Called periodically by the supervisor.
func (m *Manager) Reap() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, c := range m.peers {
		if c.State() == Disconnected {
			delete(m.peers, k)
		}
	}
}
