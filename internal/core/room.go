package core

import (
	"strings"
	"unicode"
)

// RoomID identifies a broadcast group. Rooms are never persisted: a room
// exists only while at least one connection is a member.
type RoomID string

const (
	chatRoomPrefix = "chat:"
	userRoomPrefix = "user:"

	maxRoomIDLen = 128
)

// ChatRoom returns the room id of a chat channel.
func ChatRoom(chatID string) RoomID {
	return RoomID(chatRoomPrefix + chatID)
}

// UserRoom returns the private room of a user.
func UserRoom(userID string) RoomID {
	return RoomID(userRoomPrefix + userID)
}

// IsPrivate reports whether the room is a reserved per-user room.
func (r RoomID) IsPrivate() bool {
	return strings.HasPrefix(string(r), userRoomPrefix)
}

// ParseChatRoom turns a client-supplied room reference into a chat room id.
// Both "general" and "chat:general" map to "chat:general". Private rooms
// cannot be named by clients.
func ParseChatRoom(raw string) (RoomID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", coreError(ErrCodeInvalidRoom, "room id is required")
	}
	if strings.HasPrefix(raw, userRoomPrefix) {
		return "", coreError(ErrCodeReservedRoom, "private rooms cannot be joined by name")
	}
	chatID := strings.TrimPrefix(raw, chatRoomPrefix)
	if chatID == "" {
		return "", coreError(ErrCodeInvalidRoom, "room id is required")
	}
	if len(chatRoomPrefix)+len(chatID) > maxRoomIDLen {
		return "", coreError(ErrCodeInvalidRoom, "room id is too long")
	}
	if strings.IndexFunc(chatID, unicode.IsControl) >= 0 {
		return "", coreError(ErrCodeInvalidRoom, "room id contains control characters")
	}
	return ChatRoom(chatID), nil
}
