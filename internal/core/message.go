package core

import "time"

// Identity is the authenticated user behind a connection.
type Identity struct {
	ID          string
	DisplayName string
}

// Message is a chat message relayed to room members. It is never stored.
type Message struct {
	ID         string
	Room       RoomID
	SenderID   string
	SenderName string
	Content    string
	Timestamp  time.Time
}

// NotificationTypeNewMessage is the type of the notification derived from a chat message.
const NotificationTypeNewMessage = "new_message"

// Notification is a user-facing alert. An empty UserID means every live connection.
type Notification struct {
	Type    string
	Message string
	UserID  string
	Payload map[string]any
}
