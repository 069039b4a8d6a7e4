// ABOUTME: Connection abstraction for the realtime hub
// ABOUTME: Keeps the hub transport-agnostic so tests can use in-memory conns

package hub

// Conn is a single realtime connection as the hub sees it. The websocket
// layer implements this; tests substitute in-memory fakes.
type Conn interface {
	// ID returns a stable identifier unique among live connections.
	ID() string

	// Send delivers one event envelope to the peer. Send must be safe for
	// concurrent use; errors are treated as a dead connection.
	Send(event string, data any) error

	// Close tears down the underlying transport. Close is idempotent.
	Close(reason string)
}
