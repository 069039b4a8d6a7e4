// Package hub tracks live websocket connections and their room
// memberships.
//
// A room is keyed by conversation id; broadcasting to a room delivers an
// event to every member and prunes connections whose send buffers are
// full. The hub also runs the heartbeat sweep: each interval it closes
// connections that never acknowledged the previous heartbeat and sends a
// new one to the rest.
//
// The hub knows nothing about chat semantics. Event names and payload
// shapes live here only so that every producer emits the same wire types.
package hub
