// Package protocol defines the WebSocket message types exchanged with
// clients of the notification hub. All messages are serialized as JSON and
// carry a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Server -> Client message types. The four pipeline status events mirror the
// stages a submission moves through.
const (
	TypeSessionCreated   = "session_created"
	TypeProcessingStart  = "processing_start"
	TypeErrorExternal    = "error_external"
	TypeErrorBan         = "error_ban"
	TypeProcessingFinish = "processing_finish"
	TypeNewMessage       = "new_message"
	TypeError            = "error"
	TypePong             = "pong"
)

// Client -> Server message types.
const (
	TypeMessage = "message"
	TypePing    = "ping"
)

// StatusEvent is a pipeline status notification pushed to a client. Text is
// the human-readable status line shown in the client UI.
type StatusEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SessionCreatedMsg is sent when a client connects to the hub. The client
// submits ConnectionID with subsequent image submissions so status events
// can be routed back to it.
type SessionCreatedMsg struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connection_id"`
}

// NewMessageMsg relays a broadcast chat message to every connected client.
type NewMessageMsg struct {
	Type string `json:"type"`
	From string `json:"from,omitempty"`
	Text string `json:"text"`
}

// ErrorMsg communicates a hub-level error condition to the client.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ClientMessage is a parsed client -> server message.
type ClientMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ParseClientMessage parses raw WebSocket bytes into a client message. An
// error is returned for malformed JSON, a missing type, or server-only
// message types.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("protocol: failed to parse message: %w", err)
	}
	switch msg.Type {
	case TypeMessage, TypePing:
		return msg, nil
	case "":
		return ClientMessage{}, fmt.Errorf("protocol: missing or empty \"type\" field")
	default:
		return ClientMessage{}, fmt.Errorf("protocol: unknown client message type: %q", msg.Type)
	}
}

// EncodeStatusEvent builds the wire form of a status event.
func EncodeStatusEvent(eventType, text string) ([]byte, error) {
	data, err := json.Marshal(StatusEvent{Type: eventType, Text: text})
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal status event: %w", err)
	}
	return data, nil
}

// DecodeStatusEvent parses a status event published on the notify subjects.
func DecodeStatusEvent(data []byte) (StatusEvent, error) {
	var ev StatusEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return StatusEvent{}, fmt.Errorf("protocol: unmarshal status event: %w", err)
	}
	if ev.Type == "" {
		return StatusEvent{}, fmt.Errorf("protocol: status event missing type")
	}
	return ev, nil
}
