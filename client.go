// Client.go
// The read goroutine listens to frames from the peer and hands them to the manager loop.
// The write goroutine drains the client’s send channel back to the peer, in order.
// Separating read/write avoids head-of-line blocking when a peer is slow.

package main

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// pumpTimings carries the per-connection deadlines from Config.
type pumpTimings struct {
	maxMessageSize int64
	pongWait       time.Duration
	pingInterval   time.Duration
	writeWait      time.Duration
}

func (c *Client) read(m *Manager, t pumpTimings) {
	logger := log.With().Str("component", "client").Str("remote", c.remote).Logger()
	defer func() {
		m.disconnect(c)
		_ = c.socket.Close()
	}()

	if t.maxMessageSize > 0 {
		c.socket.SetReadLimit(t.maxMessageSize)
	}
	if t.pongWait > 0 {
		_ = c.socket.SetReadDeadline(time.Now().Add(t.pongWait))
		c.socket.SetPongHandler(func(string) error {
			return c.socket.SetReadDeadline(time.Now().Add(t.pongWait))
		})
	}

	for {
		messageType, message, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logger.Warn().Err(err).Str("client_id", c.ID()).Msg("read failed")
			} else {
				logger.Debug().Err(err).Str("client_id", c.ID()).Msg("read loop end")
			}
			return
		}
		if messageType != websocket.TextMessage {
			logger.Debug().Int("frame_type", messageType).Msg("ignoring non-text frame")
			continue
		}
		if !m.receive(c, message) {
			return
		}
	}
}

func (c *Client) write(t pumpTimings) {
	logger := log.With().Str("component", "client").Str("remote", c.remote).Logger()

	var ping <-chan time.Time
	if t.pingInterval > 0 {
		ticker := time.NewTicker(t.pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}
	defer c.socket.Close()

	for {
		select {
		case message, ok := <-c.send:
			c.setWriteDeadline(t.writeWait)
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn().Err(err).Str("client_id", c.ID()).Msg("write failed")
				return
			}
		case <-ping:
			c.setWriteDeadline(t.writeWait)
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

func (c *Client) setWriteDeadline(wait time.Duration) {
	if wait > 0 {
		_ = c.socket.SetWriteDeadline(time.Now().Add(wait))
	}
}
