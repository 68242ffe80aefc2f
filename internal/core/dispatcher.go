package core

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// SendMessage stamps a chat message and fans it out to the room. Every member
// receives new-message, the sender's own connection included; every member
// except the sending connection also receives a new_message notification.
func (s *State) SendMessage(connID string, room RoomID, content string) ([]Delivery, error) {
	conn, ok := s.registry.Get(connID)
	if !ok {
		return nil, ErrUnknownConnection
	}
	if strings.TrimSpace(content) == "" {
		return nil, coreError(ErrCodeEmptyContent, "message content is required")
	}
	if s.maxContentLength > 0 && utf8.RuneCountInString(content) > s.maxContentLength {
		return nil, coreError(ErrCodeContentTooLong, fmt.Sprintf("message content exceeds %d characters", s.maxContentLength))
	}

	msg := &Message{
		ID:         s.newID(),
		Room:       room,
		SenderID:   conn.Identity.ID,
		SenderName: conn.Identity.DisplayName,
		Content:    content,
		Timestamp:  s.now().UTC(),
	}

	out := deliverTo(s.router.Members(room, ""), &Event{
		Kind:    EventNewMessage,
		Room:    room,
		UserID:  msg.SenderID,
		Message: msg,
	})

	notice := &Notification{
		Type:    NotificationTypeNewMessage,
		Message: "New message from " + conn.Identity.DisplayName,
		Payload: map[string]any{"roomId": string(room)},
	}
	out = append(out, deliverTo(s.router.Members(room, connID), &Event{
		Kind:         EventNotification,
		Room:         room,
		Notification: notice,
	})...)

	return out, nil
}

// SendNotification delivers n to the private room of n.UserID, or to every
// live connection when UserID is empty.
func (s *State) SendNotification(n *Notification) ([]Delivery, error) {
	if err := validateNotification(n); err != nil {
		return nil, err
	}

	ev := &Event{Kind: EventNotification, Notification: n}
	if n.UserID != "" {
		room := UserRoom(n.UserID)
		ev.Room = room
		return deliverTo(s.router.Members(room, ""), ev), nil
	}
	return deliverTo(s.registry.All(), ev), nil
}

func validateNotification(n *Notification) error {
	if n == nil {
		return coreError(ErrCodeInvalidNotification, "notification is required")
	}
	if strings.TrimSpace(n.Type) == "" {
		return coreError(ErrCodeInvalidNotification, "notification type is required")
	}
	return nil
}
