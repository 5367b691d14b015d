// manager.go

// central event loop. Every connect, inbound frame, and close passes through
// one goroutine, so registry mutations are applied in a single order and each
// connection's frames are handled in the order they were read.
package main

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type eventKind int

const (
	eventConnect eventKind = iota
	eventFrame
	eventClose
)

type event struct {
	kind   eventKind
	client *Client
	data   []byte
}

type Manager struct {
	registry   *Registry
	dispatcher *Dispatcher
	policy     ClosePolicy
	logger     zerolog.Logger

	events chan event
	done   chan struct{}

	// conns tracks every open connection, greeted or not. Owned by Run.
	conns map[*Client]struct{}
}

func NewManager(registry *Registry, dispatcher *Dispatcher, policy ClosePolicy) *Manager {
	if policy == "" {
		policy = ClosePolicyResetAll
	}
	return &Manager{
		registry:   registry,
		dispatcher: dispatcher,
		policy:     policy,
		logger:     log.With().Str("component", "manager").Logger(),
		events:     make(chan event),
		done:       make(chan struct{}),
		conns:      make(map[*Client]struct{}),
	}
}

// Run processes events until ctx is cancelled, then closes every open
// connection.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case ev := <-m.events:
			switch ev.kind {
			case eventConnect:
				m.conns[ev.client] = struct{}{}
				m.logger.Info().Str("remote", ev.client.remote).Int("connections", len(m.conns)).Msg("client connects")
			case eventFrame:
				m.handleFrame(ev.client, ev.data)
			case eventClose:
				m.handleClose(ev.client)
			}
		}
	}
}

// submit hands an event to the loop. It reports false once the loop has
// stopped.
func (m *Manager) submit(ev event) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) connect(c *Client) bool {
	return m.submit(event{kind: eventConnect, client: c})
}

func (m *Manager) receive(c *Client, data []byte) bool {
	return m.submit(event{kind: eventFrame, client: c, data: data})
}

func (m *Manager) disconnect(c *Client) bool {
	return m.submit(event{kind: eventClose, client: c})
}

func (m *Manager) handleFrame(c *Client, data []byte) {
	if c.closed {
		return
	}
	msg, ok := Decode(data)
	if !ok {
		return
	}
	m.logger.Debug().Str("remote", c.remote).Str("client_id", c.ID()).Interface("message", msg).Msg("received")

	sends, err := m.dispatcher.Dispatch(c, msg)
	if err != nil {
		m.logger.Warn().Err(err).Str("remote", c.remote).Str("client_id", c.ID()).
			Str("message_type", string(msg.MessageType)).Msg("message discarded")
		return
	}
	m.deliver(sends)
}

func (m *Manager) deliver(sends []Send) {
	for _, s := range sends {
		payload, err := Encode(s.Message.MessageType, s.Message)
		if err != nil {
			m.logger.Error().Err(err).Msg("encode outbound message")
			continue
		}
		if !s.To.enqueue(payload) {
			m.logger.Warn().Str("client_id", s.To.ID()).Str("message_type", string(s.Message.MessageType)).
				Msg("outbound queue full or closed, dropping message")
		}
	}
}

func (m *Manager) handleClose(c *Client) {
	if _, ok := m.conns[c]; !ok {
		return
	}
	delete(m.conns, c)

	switch m.policy {
	case ClosePolicyRemoveSelf:
		if id := c.ID(); id != "" && m.registry.Remove(id, c) {
			m.logger.Info().Str("client_id", id).Msg("registry entry removed")
		}
	default:
		if n := m.registry.ResetAll(); n > 0 {
			m.logger.Info().Int("cleared", n).Msg("registry reset")
		}
	}
	c.close()
	m.logger.Info().Str("remote", c.remote).Str("client_id", c.ID()).Int("connections", len(m.conns)).Msg("client disconnects")
}

func (m *Manager) shutdown() {
	m.logger.Info().Int("connections", len(m.conns)).Msg("closing client connections")
	for c := range m.conns {
		c.close()
		if c.socket != nil {
			_ = c.socket.Close()
		}
		delete(m.conns, c)
	}
	m.registry.ResetAll()
}
