// protocol.go
// Wire format shared by the relay and its clients: one flat JSON object per
// WebSocket text frame, tagged by messageType.

package main

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// MessageType is the tag every frame carries in its messageType field.
type MessageType string

const (
	MessageGreet           MessageType = "GREET"
	MessageGrantIdentifier MessageType = "GRANT_IDENTIFIER"
	MessageText            MessageType = "TEXT"
	MessageBroadcast       MessageType = "BROADCAST"
)

// Message is the flat record exchanged over the wire. Which payload fields
// are meaningful depends on MessageType:
//
//	GREET             (none)
//	GRANT_IDENTIFIER  id
//	TEXT              id, text, optional destination
//	BROADCAST         id, broadcast
type Message struct {
	MessageType MessageType `json:"messageType"`
	ID          string      `json:"id,omitempty"`
	Destination string      `json:"destination,omitempty"`
	Text        string      `json:"text,omitempty"`
	Broadcast   string      `json:"broadcast,omitempty"`
}

// Encode merges the message type into the payload and serializes the result.
func Encode(messageType MessageType, payload Message) ([]byte, error) {
	payload.MessageType = messageType
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s message", messageType)
	}
	return data, nil
}

// Decode parses one inbound frame. Malformed input is logged and reported as
// ok == false so the caller drops the frame and keeps the connection open.
func Decode(data []byte) (Message, bool) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Str("component", "protocol").Int("bytes", len(data)).
			Msg("failed to parse received data as JSON: bad format")
		return Message{}, false
	}
	return msg, true
}
