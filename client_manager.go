// client_manager.go
package main

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// maxIDAttempts bounds identifier regeneration when a fresh UUID collides
// with a live registry key.
const maxIDAttempts = 8

// ErrIdentifierExhausted is returned by Register when every generated
// identifier collided with an existing entry.
var ErrIdentifierExhausted = errors.New("could not generate a unique client identifier")

// Client represents a single WebSocket connection. The identifier is bound
// onto the handle at GREET time and is the only sender identity the
// dispatcher trusts.
type Client struct {
	socket *websocket.Conn
	send   chan []byte
	remote string

	mu sync.RWMutex
	id string

	// closed is owned by the manager goroutine.
	closed bool
}

// NewClient wraps socket with an outbound queue of the given capacity.
func NewClient(socket *websocket.Conn, remote string, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Client{
		socket: socket,
		send:   make(chan []byte, buffer),
		remote: remote,
	}
}

// ID returns the identifier bound at GREET time, or "" before that.
func (c *Client) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

func (c *Client) bind(id string) {
	c.mu.Lock()
	c.id = id
	c.mu.Unlock()
}

// enqueue pushes a frame onto the outbound queue without blocking. A full
// queue drops the frame.
func (c *Client) enqueue(payload []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// close stops the write pump. Only the manager goroutine calls it.
func (c *Client) close() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Entry is one registry row.
type Entry struct {
	ID     string
	Client *Client
}

// Registry maps client identifiers to their connection handles. All reads
// and writes go through one mutex, so no reader sees a half-applied
// ResetAll.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	newID   func() string
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithIDGenerator replaces uuid.NewString as the identifier source.
func WithIDGenerator(fn func() string) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		clients: make(map[string]*Client),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register inserts client under a fresh identifier and binds that
// identifier onto the handle.
func (r *Registry) Register(client *Client) (string, error) {
	if client == nil {
		return "", errors.New("register nil client")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := r.newID()
		if id == "" {
			continue
		}
		if _, taken := r.clients[id]; taken {
			continue
		}
		r.clients[id] = client
		client.bind(id)
		return id, nil
	}
	return "", errors.Wrapf(ErrIdentifierExhausted, "after %d attempts", maxIDAttempts)
}

func (r *Registry) Lookup(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[id]
	return client, ok
}

// IDOf reports the identifier client is currently registered under. A
// handle whose bound identifier has been wiped by ResetAll is not
// registered.
func (r *Registry) IDOf(client *Client) (string, bool) {
	if client == nil {
		return "", false
	}
	id := client.ID()
	if id == "" {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.clients[id] != client {
		return "", false
	}
	return id, true
}

// All returns a snapshot of every entry. Order is unspecified.
func (r *Registry) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]Entry, 0, len(r.clients))
	for id, client := range r.clients {
		entries = append(entries, Entry{ID: id, Client: client})
	}
	return entries
}

// ResetAll empties the registry and returns how many entries it dropped.
func (r *Registry) ResetAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.clients)
	r.clients = make(map[string]*Client)
	return n
}

// Remove deletes id only while it still points at client.
func (r *Registry) Remove(id string, client *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.clients[id]; !ok || current != client {
		return false
	}
	delete(r.clients, id)
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
