// Package server defines the event envelope and payload types exchanged with
// chat clients, plus helpers shared across client and hub logic.
package server

import (
	"encoding/json"
	"strings"
)

// Event names used on the wire.
const (
	EventConnected   = "connected"
	EventUsersUpdate = "users_update"
	EventUsersList   = "users_list"
	EventUserJoined  = "user_joined"
	EventChatMessage = "chat_message"
	EventRegister    = "register"
)

// WelcomeMessage is sent to every new connection.
const WelcomeMessage = "Welcome to the chat!"

// UnknownUsername labels chat messages from connections that never registered.
const UnknownUsername = "Unknown"

// Event is an immutable outbound notification. Data is marshalled as the
// envelope's data field.
type Event struct {
	Name string
	Data any
}

// Envelope is the JSON frame format for both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ConnectedPayload greets a freshly accepted connection.
type ConnectedPayload struct {
	Message string `json:"message"`
}

// UsersUpdatePayload carries the online count after a disconnect.
type UsersUpdatePayload struct {
	Count int `json:"count"`
}

// UsersListPayload carries the roster to a registering connection.
type UsersListPayload struct {
	UsersOnline []string `json:"users_online"`
}

// UserJoinedPayload announces a registration.
type UserJoinedPayload struct {
	Username string `json:"username"`
}

// ChatMessagePayload is a relayed chat line.
type ChatMessagePayload struct {
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Encode marshals the event into a wire envelope.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: e.Name, Data: data})
}

// inboundEvent is a decoded client frame on its way to the hub.
type inboundEvent struct {
	client *Client
	name   string
	fields map[string]any
}

// decodeInbound parses a client frame. Payload fields that are missing or not
// strings read as empty; only a frame that is not an envelope is an error.
func decodeInbound(raw []byte) (string, map[string]any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, err
	}

	fields := map[string]any{}
	if len(env.Data) > 0 {
		// Non-object data is treated as an empty payload.
		_ = json.Unmarshal(env.Data, &fields)
	}
	return env.Event, fields, nil
}

// stringField reads a string payload field, treating anything else as "".
func stringField(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
