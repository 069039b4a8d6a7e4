// ABOUTME: Websocket connection implementing the hub's Conn interface
// ABOUTME: Buffered outbound queue drained by a single write pump

package chat

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBufferSize = 32
	writeTimeout   = 10 * time.Second
)

// errSendBufferFull marks a peer too slow to keep up; the hub prunes it.
var errSendBufferFull = errors.New("send buffer full")

type wsConn struct {
	id     string
	ws     *websocket.Conn
	logger *slog.Logger

	send chan OutEnvelope

	closeOnce sync.Once
	closed    chan struct{}
}

func newWSConn(id string, ws *websocket.Conn, logger *slog.Logger) *wsConn {
	return &wsConn{
		id:     id,
		ws:     ws,
		logger: logger,
		send:   make(chan OutEnvelope, sendBufferSize),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

// Send enqueues an event for the write pump. A full buffer counts as a
// dead connection rather than blocking the broadcaster.
func (c *wsConn) Send(event string, data any) error {
	env := OutEnvelope{Event: event, Data: data}
	select {
	case <-c.closed:
		return errors.New("connection closed")
	case c.send <- env:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close tears down the websocket. Safe to call from any goroutine and
// more than once.
func (c *wsConn) Close(reason string) {
	c.closeOnce.Do(func() {
		close(c.closed)
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = c.ws.Close()
	})
}

// writePump serializes all writes to the websocket. Runs until Close or a
// write failure.
func (c *wsConn) writePump() {
	for {
		select {
		case <-c.closed:
			return
		case env := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteJSON(env); err != nil {
				c.logger.Debug("write failed", "conn_id", c.id, "error", err)
				c.Close("write failed")
				return
			}
		}
	}
}
