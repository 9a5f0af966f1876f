// Package server defines the JSON wire protocol shared by the relay server
// and its clients: the message envelope, the closed set of action
// identifiers, and constructors for the standard replies.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Client -> server actions.
const (
	ActionCreateRoom  = "create_room"
	ActionJoinRoom    = "join_room"
	ActionLeaveRoom   = "leave_room"
	ActionSendMessage = "send_message"
	ActionListRooms   = "list_rooms"
	ActionListUsers   = "list_users"
)

// Server -> client actions.
const (
	ActionReceiveMessage = "receive_message"
	ActionSuccess        = "success"
	ActionError          = "error"
)

// SystemUsername is the reserved sender name used for membership notices
// (joins, departures). Registration under this name is not prevented at the
// protocol level; notices are distinguishable by it purely by convention.
const SystemUsername = "system"

var (
	// ErrInvalidJSON reports a payload that is not a JSON object.
	ErrInvalidJSON = errors.New("invalid message format")

	// ErrMissingAction reports an envelope without an action identifier.
	ErrMissingAction = errors.New("missing 'action' field")

	// ErrMissingUsername reports a registration frame without a username.
	ErrMissingUsername = errors.New("username required")
)

// Message is the wire envelope exchanged on every frame after registration.
// Data carries the action-specific payload; Timestamp is optional on input
// and always populated on output.
type Message struct {
	Action    string         `json:"action"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// NewMessage builds an outbound envelope stamped with the current UTC time.
func NewMessage(action string, data map[string]any) Message {
	if data == nil {
		data = map[string]any{}
	}
	return Message{
		Action:    action,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// DecodeMessage parses an inbound frame into an envelope. It fails with
// ErrInvalidJSON for malformed payloads and ErrMissingAction when the action
// identifier is absent; both are protocol errors the caller answers with an
// error reply while keeping the connection open.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if strings.TrimSpace(msg.Action) == "" {
		return Message{}, ErrMissingAction
	}
	if msg.Data == nil {
		msg.Data = map[string]any{}
	}
	return msg, nil
}

// Encode serializes the envelope for transport.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// StringField returns the named data field when it is a string, or "".
func (m Message) StringField(key string) string {
	value, _ := m.Data[key].(string)
	return value
}

// NewErrorMessage builds the standard error reply.
func NewErrorMessage(text string) Message {
	return NewMessage(ActionError, map[string]any{"error": text})
}

// NewSuccessMessage builds the standard success reply, merging any extra
// fields next to the human-readable message.
func NewSuccessMessage(text string, extra map[string]any) Message {
	data := map[string]any{"message": text}
	for key, value := range extra {
		data[key] = value
	}
	return NewMessage(ActionSuccess, data)
}

// NewChatMessage builds the broadcast payload for a chat line.
func NewChatMessage(roomName, username, text string) Message {
	return NewMessage(ActionReceiveMessage, map[string]any{
		"username":  username,
		"message":   text,
		"room_name": roomName,
	})
}

// NewSystemNotice builds a membership notice delivered through the same
// receive_message action chat lines use, attributed to SystemUsername.
func NewSystemNotice(roomName, text string) Message {
	return NewChatMessage(roomName, SystemUsername, text)
}

// NewRoomListMessage builds the room directory snapshot pushed to clients.
func NewRoomListMessage(rooms map[string]int) Message {
	return NewMessage(ActionListRooms, map[string]any{"rooms": rooms})
}

// registration is the special-cased first frame on a new connection. It is
// the only payload that arrives without the action/data envelope.
type registration struct {
	Username string `json:"username"`
}

// decodeRegistration extracts the claimed username from the handshake frame.
func decodeRegistration(payload []byte) (string, error) {
	var reg registration
	if err := json.Unmarshal(payload, &reg); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	username := strings.TrimSpace(reg.Username)
	if username == "" {
		return "", ErrMissingUsername
	}
	return username, nil
}
