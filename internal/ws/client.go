// Package ws manages one websocket connection per room member: the
// authenticated join handshake, the read/write pumps, and the teardown
// path that guarantees exactly one leave per connection.
package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sketchsync/sketchsync/internal/protocol"
	"github.com/sketchsync/sketchsync/internal/room"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. A shapes_update carries
	// the whole board, so this is far larger than a chat frame.
	maxMessageSize = 512 * 1024

	// Outbound queue depth per connection. A member that falls this far
	// behind is evicted rather than allowed to stall the room.
	sendQueueSize = 64
)

// client is the per-connection state. It implements room.Conn for the
// session's fanout.
type client struct {
	conn    *websocket.Conn
	send    chan []byte
	closed  chan struct{}
	closeMu sync.Once
	ctx     context.Context
	cancel  context.CancelFunc
	logger  zerolog.Logger
}

func newClient(conn *websocket.Conn, logger zerolog.Logger) *client {
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		closed: make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Send enqueues a frame for the write pump. It never blocks: a full
// queue reports false, which the session treats as an implicit leave.
func (c *client) Send(data []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close is idempotent; it is reached from the read pump, from session
// eviction, and from process shutdown, in any order.
func (c *client) Close() {
	c.closeMu.Do(func() {
		close(c.closed)
		c.cancel()
		c.conn.Close()
	})
}

// readPump relays client events into the session until the connection
// dies, then triggers the single leave transition.
func (c *client) readPump(s *room.Session, userID string) {
	defer func() {
		c.Close()
		s.Leave(userID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("read failed")
			}
			return
		}

		ev, err := protocol.DecodeClientEvent(data)
		if err != nil {
			// Malformed event: the connection is closed, not the room.
			c.logger.Warn().Err(err).Msg("protocol error, closing connection")
			c.writeClose(websocket.ClosePolicyViolation, "protocol error")
			return
		}

		if err := s.Submit(c.ctx, userID, ev); err != nil {
			if !errors.Is(err, room.ErrSessionClosed) {
				c.logger.Warn().Err(err).Msg("submit failed")
			}
			return
		}
	}
}

// writePump drains the outbound queue and keeps the connection alive
// with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *client) writeClose(code int, reason string) {
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
}
