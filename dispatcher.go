// dispatcher.go
// Routing decisions only: the dispatcher turns one decoded message into the
// sends it implies and leaves delivery to the manager.

package main

import (
	"github.com/pkg/errors"
)

var (
	// ErrNotRegistered rejects TEXT and BROADCAST from a connection that has
	// not been granted an identifier (or lost it to a registry reset).
	ErrNotRegistered = errors.New("sender not registered")
	// ErrSenderMismatch rejects a message whose declared id is not the one
	// bound to the connection it arrived on.
	ErrSenderMismatch = errors.New("declared sender does not match connection")
	// ErrUnknownDestination rejects a direct TEXT to an identifier that is
	// not in the registry.
	ErrUnknownDestination = errors.New("destination not registered")
)

// Send is one outbound frame the dispatcher wants delivered.
type Send struct {
	To      *Client
	Message Message
}

// Observer receives the operational events dispatch produces.
type Observer interface {
	Greeted(id string)
	Text(id, text string)
	Direct(id, destination, text string)
	Broadcast(id, text string)
}

type nopObserver struct{}

func (nopObserver) Greeted(string)                {}
func (nopObserver) Text(string, string)           {}
func (nopObserver) Direct(string, string, string) {}
func (nopObserver) Broadcast(string, string)      {}

type Dispatcher struct {
	registry *Registry
	observer Observer
}

func NewDispatcher(registry *Registry, observer Observer) *Dispatcher {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Dispatcher{registry: registry, observer: observer}
}

// Dispatch decides what sender's message turns into. Unknown message types
// yield no sends and no error.
func (d *Dispatcher) Dispatch(sender *Client, msg Message) ([]Send, error) {
	switch msg.MessageType {
	case MessageGreet:
		return d.greet(sender)
	case MessageText:
		return d.text(sender, msg)
	case MessageBroadcast:
		return d.broadcast(sender, msg)
	default:
		return nil, nil
	}
}

func (d *Dispatcher) greet(sender *Client) ([]Send, error) {
	if id, ok := d.registry.IDOf(sender); ok {
		return []Send{grant(sender, id)}, nil
	}
	id, err := d.registry.Register(sender)
	if err != nil {
		return nil, err
	}
	d.observer.Greeted(id)
	return []Send{grant(sender, id)}, nil
}

func grant(to *Client, id string) Send {
	return Send{To: to, Message: Message{MessageType: MessageGrantIdentifier, ID: id}}
}

func (d *Dispatcher) text(sender *Client, msg Message) ([]Send, error) {
	id, err := d.senderID(sender, msg.ID)
	if err != nil {
		return nil, err
	}

	if msg.Destination == "" {
		d.observer.Text(id, msg.Text)
		return nil, nil
	}

	dest, ok := d.registry.Lookup(msg.Destination)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownDestination, "destination %s", msg.Destination)
	}
	d.observer.Direct(id, msg.Destination, msg.Text)
	return []Send{{
		To: dest,
		Message: Message{
			MessageType: MessageText,
			ID:          id,
			Destination: msg.Destination,
			Text:        msg.Text,
		},
	}}, nil
}

func (d *Dispatcher) broadcast(sender *Client, msg Message) ([]Send, error) {
	id, err := d.senderID(sender, msg.ID)
	if err != nil {
		return nil, err
	}
	d.observer.Broadcast(id, msg.Broadcast)

	entries := d.registry.All()
	sends := make([]Send, 0, len(entries))
	for _, entry := range entries {
		if entry.ID == id {
			continue
		}
		sends = append(sends, Send{
			To:      entry.Client,
			Message: Message{MessageType: MessageBroadcast, ID: id, Broadcast: msg.Broadcast},
		})
	}
	return sends, nil
}

// senderID resolves the sender from the connection binding. A declared id is
// optional but must agree with the binding when present.
func (d *Dispatcher) senderID(sender *Client, declared string) (string, error) {
	id, ok := d.registry.IDOf(sender)
	if !ok {
		return "", errors.Wrapf(ErrNotRegistered, "declared id %q", declared)
	}
	if declared != "" && declared != id {
		return "", errors.Wrapf(ErrSenderMismatch, "declared %s, bound %s", declared, id)
	}
	return id, nil
}
