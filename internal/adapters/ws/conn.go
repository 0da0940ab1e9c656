// Package ws terminates one persistent connection per client and dispatches
// wire events to the chat façade and the call coordinator.
package ws

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/sablev/huddle/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	errConnClosed   = errors.New("connection closed")
)

// wsConn is the transport endpoint. Sends go through a buffered channel;
// a full channel drops the frame rather than blocking the sender.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWSConn(conn *websocket.Conn, sendBuf int) *wsConn {
	return &wsConn{
		conn: conn,
		send: make(chan core.Frame, sendBuf),
	}
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}
