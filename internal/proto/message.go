package proto

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Client events.
const (
	EventAuth             = "auth"
	EventJoinRoom         = "join-room"
	EventLeaveRoom        = "leave-room"
	EventJoinChat         = "join-chat"
	EventLeaveChat        = "leave-chat"
	EventSendMessage      = "send-message"
	EventTypingStart      = "typing-start"
	EventTypingStop       = "typing-stop"
	EventSendNotification = "send-notification"
)

// Server events.
const (
	EventConnected      = "connected"
	EventConnectError   = "connect_error"
	EventNewMessage     = "new-message"
	EventUserTyping     = "user-typing"
	EventUserStopTyping = "user-stop-typing"
	EventNotification   = "notification"
	EventUserOnline     = "user-online"
	EventUserOffline    = "user-offline"
	EventOnlineUsers    = "online-users"
	EventError          = "error"
)

// AuthenticationErrorMessage is the only detail a refused client gets.
const AuthenticationErrorMessage = "Authentication error"

// AuthData carries the credential of a first-frame handshake.
type AuthData struct {
	Token string `json:"token"`
}

// RoomRef names a room either as a bare JSON string or as an object with
// roomId (or chatId).
type RoomRef struct {
	RoomID string `json:"roomId,omitempty"`
	ChatID string `json:"chatId,omitempty"`
}

// UnmarshalJSON accepts "general" as well as {"roomId":"general"}.
func (r *RoomRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = RoomRef{RoomID: id}
		return nil
	}
	type plain RoomRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = RoomRef(p)
	return nil
}

// Room returns roomId, falling back to chatId.
func (r RoomRef) Room() string {
	if r.RoomID != "" {
		return r.RoomID
	}
	return r.ChatID
}

// SendMessageData is a chat message from the client.
type SendMessageData struct {
	RoomRef
	Content string `json:"content"`
}

// UnmarshalJSON decodes the room reference and the content side by side.
func (m *SendMessageData) UnmarshalJSON(data []byte) error {
	var raw struct {
		RoomID  string `json:"roomId"`
		ChatID  string `json:"chatId"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = SendMessageData{
		RoomRef: RoomRef{RoomID: raw.RoomID, ChatID: raw.ChatID},
		Content: raw.Content,
	}
	return nil
}

// NotificationData describes a notification. On the wire any field besides
// userId, type and message is payload; an explicit "payload" object is merged
// in as well.
type NotificationData struct {
	UserID  string
	Type    string
	Message string
	Payload map[string]any
}

// UnmarshalJSON splits the known fields from the free-form payload.
func (n *NotificationData) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return errors.New("notification must be an object")
	}

	out := NotificationData{}
	var ok bool
	for key, dst := range map[string]*string{"userId": &out.UserID, "type": &out.Type, "message": &out.Message} {
		v, present := fields[key]
		if !present {
			continue
		}
		delete(fields, key)
		if v == nil {
			continue
		}
		if *dst, ok = v.(string); !ok {
			return errors.New(key + " must be a string")
		}
	}

	if nested, present := fields["payload"]; present {
		obj, isObj := nested.(map[string]any)
		if !isObj && nested != nil {
			return errors.New("payload must be an object")
		}
		delete(fields, "payload")
		for k, v := range obj {
			fields[k] = v
		}
	}
	if len(fields) > 0 {
		out.Payload = fields
	}

	*n = out
	return nil
}

// ConnectedData acknowledges a successful handshake.
type ConnectedData struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
}

// ConnectErrorData is sent right before an unauthenticated connection is closed.
type ConnectErrorData struct {
	Message string `json:"message"`
}

// NewMessageData is a stamped chat message.
type NewMessageData struct {
	ID         string `json:"id"`
	RoomID     string `json:"roomId"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
}

// TypingData reports a user starting or stopping typing.
type TypingData struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
	RoomID   string `json:"roomId"`
}

// ErrorData describes a rejected client event.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
