package model

import "time"

// APIResponse is a generic wrapper for API responses.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewSuccessResponse creates a successful API response.
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error API response.
func NewErrorResponse[T any](errMsg string) APIResponse[T] {
	return APIResponse[T]{
		Success: false,
		Error:   errMsg,
	}
}

// WebSocketMessage represents a message sent over WebSocket connection.
type WebSocketMessage struct {
	Type      string           `json:"type"`
	Event     *TransitionEvent `json:"event,omitempty"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// TransitionEvent is the wire form of a store state transition.
type TransitionEvent struct {
	Store     string  `json:"store"`
	Action    string  `json:"action"`
	Seq       uint64  `json:"seq"`
	ElapsedMs float64 `json:"elapsedMs,omitempty"`
	Error     string  `json:"error,omitempty"`
	State     any     `json:"state"`
}

// WebSocket message types.
const (
	WSMessageTypeTransition = "transition"
	WSMessageTypePing       = "ping"
	WSMessageTypePong       = "pong"
	WSMessageTypeError      = "error"
)

// NewTransitionMessage wraps a transition event for the WebSocket stream.
func NewTransitionMessage(event TransitionEvent) WebSocketMessage {
	return WebSocketMessage{
		Type:      WSMessageTypeTransition,
		Event:     &event,
		Timestamp: time.Now().UTC(),
	}
}
