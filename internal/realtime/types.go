// Package realtime lets participants announce and withdraw endpoints over a
// WebSocket connection.
package realtime

import (
	"encoding/json"

	"github.com/watzon/topiccache/internal/discovery"
)

// MessageType represents the type of WebSocket message.
type MessageType string

const (
	MessageTypeAnnounce MessageType = "announce"
	MessageTypeWithdraw MessageType = "withdraw"
	MessageTypePing     MessageType = "ping"

	MessageTypeConnected MessageType = "connected"
	MessageTypeAck       MessageType = "ack"
	MessageTypeError     MessageType = "error"
	MessageTypePong      MessageType = "pong"
)

// Message is the base WebSocket message structure.
type Message struct {
	ID      string          `json:"id,omitempty"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EndpointPayload is the payload for announce and withdraw messages.
type EndpointPayload struct {
	Kind  discovery.EndpointKind `json:"kind"`
	Topic string                 `json:"topic"`
	Type  string                 `json:"type"`
}

// ConnectedPayload is the payload for connected messages.
type ConnectedPayload struct {
	ParticipantID string `json:"participant_id"`
}

// AckPayload is the payload for ack messages.
type AckPayload struct {
	Changed bool `json:"changed"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorCode represents an error code for WebSocket errors.
type ErrorCode string

const (
	ErrorCodeInvalidMessage  ErrorCode = "INVALID_MESSAGE"
	ErrorCodeInvalidPayload  ErrorCode = "INVALID_PAYLOAD"
	ErrorCodeEndpointLimit   ErrorCode = "ENDPOINT_LIMIT_REACHED"
	ErrorCodeUnknownEndpoint ErrorCode = "UNKNOWN_ENDPOINT"
	ErrorCodeInternalError   ErrorCode = "INTERNAL_ERROR"
)
