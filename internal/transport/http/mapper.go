package http

import (
	"encoding/json"
	"errors"

	"github.com/vovakirdan/learnwire/internal/core"
	"github.com/vovakirdan/learnwire/internal/proto"
)

// isoMillis matches the timestamps the web client already parses.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

func inboundToCommand(inbound proto.Inbound) (*core.Command, *core.CoreError) {
	switch inbound.Event {
	case proto.EventJoinRoom, proto.EventJoinChat:
		room, protoErr := decodeRoom(inbound)
		if protoErr != nil {
			return nil, protoErr
		}
		return &core.Command{Kind: core.CommandJoinRoom, Room: room}, nil
	case proto.EventLeaveRoom, proto.EventLeaveChat:
		room, protoErr := decodeRoom(inbound)
		if protoErr != nil {
			return nil, protoErr
		}
		return &core.Command{Kind: core.CommandLeaveRoom, Room: room}, nil
	case proto.EventSendMessage:
		var msg proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, badPayload(inbound.Event)
		}
		room, protoErr := parseRoom(msg.Room())
		if protoErr != nil {
			return nil, protoErr
		}
		return &core.Command{Kind: core.CommandSendMessage, Room: room, Content: msg.Content}, nil
	case proto.EventTypingStart:
		room, protoErr := decodeRoom(inbound)
		if protoErr != nil {
			return nil, protoErr
		}
		return &core.Command{Kind: core.CommandTypingStart, Room: room}, nil
	case proto.EventTypingStop:
		room, protoErr := decodeRoom(inbound)
		if protoErr != nil {
			return nil, protoErr
		}
		return &core.Command{Kind: core.CommandTypingStop, Room: room}, nil
	case proto.EventSendNotification:
		var n proto.NotificationData
		if err := json.Unmarshal(inbound.Data, &n); err != nil {
			return nil, badPayload(inbound.Event)
		}
		return &core.Command{Kind: core.CommandSendNotification, Notification: notificationFromData(n)}, nil
	case proto.EventAuth:
		// already authenticated; a repeated auth frame is ignored
		return nil, nil
	default:
		return nil, &core.CoreError{Code: core.ErrCodeUnknownEvent, Message: "unknown event " + inbound.Event}
	}
}

func decodeRoom(inbound proto.Inbound) (core.RoomID, *core.CoreError) {
	var ref proto.RoomRef
	if err := json.Unmarshal(inbound.Data, &ref); err != nil {
		return "", badPayload(inbound.Event)
	}
	return parseRoom(ref.Room())
}

func parseRoom(raw string) (core.RoomID, *core.CoreError) {
	room, err := core.ParseChatRoom(raw)
	if err != nil {
		var ce *core.CoreError
		if errors.As(err, &ce) {
			return "", ce
		}
		return "", &core.CoreError{Code: core.ErrCodeInvalidRoom, Message: err.Error()}
	}
	return room, nil
}

func badPayload(event string) *core.CoreError {
	return &core.CoreError{Code: core.ErrCodeBadRequest, Message: "invalid payload for " + event}
}

func notificationFromData(n proto.NotificationData) *core.Notification {
	return &core.Notification{
		Type:    n.Type,
		Message: n.Message,
		UserID:  n.UserID,
		Payload: n.Payload,
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	if event == nil {
		return proto.Outbound{}
	}

	out := proto.Outbound{Event: event.Kind.String()}
	switch event.Kind {
	case core.EventNewMessage:
		if msg := event.Message; msg != nil {
			out.Data = proto.NewMessageData{
				ID:         msg.ID,
				RoomID:     string(msg.Room),
				SenderID:   msg.SenderID,
				SenderName: msg.SenderName,
				Content:    msg.Content,
				Timestamp:  msg.Timestamp.UTC().Format(isoMillis),
			}
		}
	case core.EventUserTyping, core.EventUserStopTyping:
		out.Data = proto.TypingData{
			UserID:   event.UserID,
			UserName: event.UserName,
			RoomID:   string(event.Room),
		}
	case core.EventNotification:
		out.Data = notificationPayload(event.Notification)
	case core.EventUserOnline, core.EventUserOffline:
		out.Data = event.UserID
	case core.EventOnlineUsers:
		users := event.Users
		if users == nil {
			users = []string{}
		}
		out.Data = users
	case core.EventError:
		if event.Error != nil {
			out.Data = proto.ErrorData{Code: event.Error.Code, Message: event.Error.Message}
		}
	}
	return out
}

// notificationPayload flattens a notification into a single JSON object.
// The fixed fields win over payload keys of the same name.
func notificationPayload(n *core.Notification) map[string]any {
	if n == nil {
		return nil
	}
	data := make(map[string]any, len(n.Payload)+3)
	for k, v := range n.Payload {
		data[k] = v
	}
	data["type"] = n.Type
	data["message"] = n.Message
	if n.UserID != "" {
		data["userId"] = n.UserID
	}
	return data
}

func errorOutbound(ce *core.CoreError) proto.Outbound {
	return outboundFromEvent(&core.Event{Kind: core.EventError, Error: ce})
}
