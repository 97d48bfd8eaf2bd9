// Package ws is the WebSocket transport: one goroutine pair per
// connection, a hub for addressed delivery, and an HTTP handler that
// feeds decoded commands into the session coordinator.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/Prashantpareek-dev/Royal-Chess/internal/obslog"
	"github.com/Prashantpareek-dev/Royal-Chess/pkg/protocol"
)

const (
	sendBuffer   = 32
	writeTimeout = 10 * time.Second
)

// Client is one connected socket. Writes go through the send channel so
// the write pump is the only goroutine touching the connection for
// output.
type Client struct {
	ID string

	conn      *websocket.Conn
	send      chan protocol.Event
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.NewString(),
		conn: conn,
		send: make(chan protocol.Event, sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case ev := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.conn, ev)
			cancel()
			if err != nil {
				obslog.L().Debug("ws_write_failed", zap.String("conn_id", c.ID), zap.Error(err))
				return
			}
		}
	}
}

// enqueue drops the event when the client cannot keep up; a stalled
// socket must not block room broadcasts.
func (c *Client) enqueue(ev protocol.Event) {
	select {
	case c.send <- ev:
	default:
		obslog.L().Warn("ws_send_dropped",
			zap.String("conn_id", c.ID),
			zap.String("event", string(ev.Type)))
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
