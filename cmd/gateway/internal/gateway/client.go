// Package gateway adapts raw websocket connections into hub clients.
package gateway

import (
	"encoding/json"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pricewatch/crypto-notify/cmd/gateway/internal/hub"
)

const maxMessageSize = 4 * 1024

// ClientAdapter pumps outbound hub messages onto a websocket connection.
// The pipeline is push-only: inbound frames are control traffic, nothing more.
type ClientAdapter struct {
	id     string
	conn   net.Conn
	hub    *hub.Hub
	send   chan []byte
	logger *zap.Logger

	closeOnce sync.Once

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewClient(conn net.Conn, h *hub.Hub, logger *zap.Logger) *ClientAdapter {
	return &ClientAdapter{
		id:         uuid.NewString(),
		conn:       conn,
		hub:        h,
		send:       make(chan []byte, 256),
		logger:     logger,
		writeWait:  5 * time.Second,
		pongWait:   60 * time.Second,
		pingPeriod: 50 * time.Second,
	}
}

func (c *ClientAdapter) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *ClientAdapter) ID() string { return c.id }

// Close only closes the channel; writePump owns the connection teardown.
func (c *ClientAdapter) Close() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (c *ClientAdapter) SendJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to encode outbound message", zap.Error(err))
		return
	}
	select {
	case c.send <- b:
	default:
		// Drop when the buffer is full; a slow client must not stall fan-out
		c.logger.Warn("Dropping message for slow client", zap.String("client_id", c.id))
	}
}

func (c *ClientAdapter) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

	for {
		header, err := ws.ReadHeader(c.conn)
		if err != nil {
			return
		}

		if header.Length > int64(maxMessageSize) {
			c.logger.Warn("Msg too big", zap.Int64("size", header.Length))
			return
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			return
		}
		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		switch header.OpCode {
		case ws.OpClose:
			return
		case ws.OpPong:
			c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		default:
			// Inbound data frames are ignored: subscriptions are decided by
			// the verified subject at connect time, not by client commands
		}
	}
}

func (c *ClientAdapter) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if !ok {
				c.conn.Write(ws.CompiledClose)
				return
			}
			if err := wsutil.WriteServerText(c.conn, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}
