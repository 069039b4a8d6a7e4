// ABOUTME: Connection registry and conversation room router
// ABOUTME: Tracks live connections, room membership and heartbeat liveness

package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventHeartbeat is sent to every connection on each sweep; peers answer
// with a heartbeat-response which the socket layer forwards as an ack.
const EventHeartbeat = "heartbeat"

type connState struct {
	conn Conn

	// rooms this connection has joined, keyed by conversation ID
	rooms map[string]struct{}

	// awaiting is true from the moment a heartbeat is sent until the ack
	// arrives. A connection still awaiting at the next sweep is pruned.
	awaiting bool
}

// Hub is the in-memory registry of live connections and their conversation
// rooms. All membership state dies with the process; clients are expected
// to reconnect and rejoin.
type Hub struct {
	logger   *slog.Logger
	interval time.Duration

	mu    sync.RWMutex
	conns map[string]*connState
	rooms map[string]map[string]*connState
}

// New creates a hub sweeping at the given heartbeat interval.
func New(logger *slog.Logger, interval time.Duration) *Hub {
	return &Hub{
		logger:   logger.With("component", "hub"),
		interval: interval,
		conns:    make(map[string]*connState),
		rooms:    make(map[string]map[string]*connState),
	}
}

// Register adds a connection to the registry. If a connection with the same
// ID is already present it is closed and replaced.
func (h *Hub) Register(conn Conn) {
	h.mu.Lock()
	prev, ok := h.conns[conn.ID()]
	if ok {
		h.detachLocked(prev)
	}
	h.conns[conn.ID()] = &connState{
		conn:  conn,
		rooms: make(map[string]struct{}),
	}
	h.mu.Unlock()

	if ok {
		prev.conn.Close("replaced")
	}
	h.logger.Debug("connection registered", "conn_id", conn.ID())
}

// Unregister removes a connection and all of its room memberships. Unknown
// IDs are a no-op.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	st, ok := h.conns[connID]
	if ok {
		h.detachLocked(st)
	}
	h.mu.Unlock()

	if ok {
		h.logger.Debug("connection unregistered", "conn_id", connID)
	}
}

// detachLocked removes the connection from the registry and every room it
// joined. Caller holds h.mu.
func (h *Hub) detachLocked(st *connState) {
	delete(h.conns, st.conn.ID())
	for room := range st.rooms {
		members := h.rooms[room]
		delete(members, st.conn.ID())
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Join adds the connection to a conversation room. Joining twice is a no-op.
// Returns false if the connection is not registered.
func (h *Hub) Join(connID, conversationID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.conns[connID]
	if !ok {
		return false
	}
	st.rooms[conversationID] = struct{}{}

	members := h.rooms[conversationID]
	if members == nil {
		members = make(map[string]*connState)
		h.rooms[conversationID] = members
	}
	members[connID] = st
	return true
}

// Leave removes the connection from a conversation room.
func (h *Hub) Leave(connID, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.conns[connID]
	if !ok {
		return
	}
	delete(st.rooms, conversationID)

	members := h.rooms[conversationID]
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, conversationID)
	}
}

// Broadcast sends an event to every member of a conversation room.
// Connections whose Send fails are closed and pruned. Broadcasting to a
// room with no members is a no-op.
func (h *Hub) Broadcast(conversationID, event string, data any) {
	h.mu.RLock()
	members := make([]Conn, 0, len(h.rooms[conversationID]))
	for _, st := range h.rooms[conversationID] {
		members = append(members, st.conn)
	}
	h.mu.RUnlock()

	for _, conn := range members {
		if err := conn.Send(event, data); err != nil {
			h.logger.Warn("broadcast send failed, pruning connection",
				"conn_id", conn.ID(), "event", event, "error", err)
			h.Unregister(conn.ID())
			conn.Close("send failed")
		}
	}
}

// SendTo delivers an event to a single connection. Returns false if the
// connection is unknown or the send failed (in which case it is pruned).
func (h *Hub) SendTo(connID, event string, data any) bool {
	h.mu.RLock()
	st, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	if err := st.conn.Send(event, data); err != nil {
		h.logger.Warn("send failed, pruning connection",
			"conn_id", connID, "event", event, "error", err)
		h.Unregister(connID)
		st.conn.Close("send failed")
		return false
	}
	return true
}

// HeartbeatAck records that the connection answered the last heartbeat.
func (h *Hub) HeartbeatAck(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if st, ok := h.conns[connID]; ok {
		st.awaiting = false
	}
}

// ConnCount returns the number of live connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// RoomCount returns the number of members in a conversation room.
func (h *Hub) RoomCount(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// Run drives the heartbeat sweeper until the context is cancelled. Each
// sweep prunes connections that never acked the previous heartbeat, then
// sends a fresh heartbeat to the survivors.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Info("heartbeat sweeper started", "interval", h.interval)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("heartbeat sweeper stopped")
			return
		case <-ticker.C:
			h.Sweep()
		}
	}
}

// Sweep performs one heartbeat cycle. Exported so tests can drive the
// sweeper without waiting on the ticker.
func (h *Hub) Sweep() {
	h.mu.Lock()
	var stale []*connState
	live := make([]*connState, 0, len(h.conns))
	for _, st := range h.conns {
		if st.awaiting {
			stale = append(stale, st)
			h.detachLocked(st)
			continue
		}
		st.awaiting = true
		live = append(live, st)
	}
	h.mu.Unlock()

	for _, st := range stale {
		h.logger.Info("pruning unresponsive connection", "conn_id", st.conn.ID())
		st.conn.Close("heartbeat timeout")
	}

	now := time.Now().UTC()
	for _, st := range live {
		if err := st.conn.Send(EventHeartbeat, map[string]any{"timestamp": now}); err != nil {
			h.Unregister(st.conn.ID())
			st.conn.Close("send failed")
		}
	}
}
