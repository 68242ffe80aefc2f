package http

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/learnwire/internal/core"
	"github.com/vovakirdan/learnwire/internal/proto"
)

func inbound(event string, data string) proto.Inbound {
	return proto.Inbound{Event: event, Data: json.RawMessage(data)}
}

func TestInboundToCommand(t *testing.T) {
	tests := []struct {
		name string
		in   proto.Inbound
		want *core.Command
		code string
	}{
		{name: "join bare", in: inbound(proto.EventJoinRoom, `"general"`), want: &core.Command{Kind: core.CommandJoinRoom, Room: "chat:general"}},
		{name: "join chat alias", in: inbound(proto.EventJoinChat, `{"chatId":"42"}`), want: &core.Command{Kind: core.CommandJoinRoom, Room: "chat:42"}},
		{name: "leave chat alias", in: inbound(proto.EventLeaveChat, `"chat:42"`), want: &core.Command{Kind: core.CommandLeaveRoom, Room: "chat:42"}},
		{name: "send", in: inbound(proto.EventSendMessage, `{"roomId":"g","content":"hi"}`), want: &core.Command{Kind: core.CommandSendMessage, Room: "chat:g", Content: "hi"}},
		{name: "typing stop", in: inbound(proto.EventTypingStop, `{"roomId":"g"}`), want: &core.Command{Kind: core.CommandTypingStop, Room: "chat:g"}},
		{name: "auth ignored", in: inbound(proto.EventAuth, `{"token":"x"}`)},
		{name: "private room", in: inbound(proto.EventLeaveRoom, `"user:alice"`), code: core.ErrCodeReservedRoom},
		{name: "missing room", in: inbound(proto.EventSendMessage, `{"content":"hi"}`), code: core.ErrCodeInvalidRoom},
		{name: "no payload", in: proto.Inbound{Event: proto.EventTypingStart}, code: core.ErrCodeBadRequest},
		{name: "unknown", in: inbound("dance", `{}`), code: core.ErrCodeUnknownEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, protoErr := inboundToCommand(tt.in)
			if tt.code != "" {
				require.NotNil(t, protoErr)
				assert.Equal(t, tt.code, protoErr.Code)
				assert.Nil(t, cmd)
				return
			}
			require.Nil(t, protoErr)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestInboundNotification(t *testing.T) {
	cmd, protoErr := inboundToCommand(inbound(proto.EventSendNotification, `{"userId":"bob","type":"quiz","message":"Quiz graded","score":9}`))
	require.Nil(t, protoErr)
	require.NotNil(t, cmd.Notification)
	assert.Equal(t, core.CommandSendNotification, cmd.Kind)
	assert.Equal(t, "bob", cmd.Notification.UserID)
	assert.Equal(t, map[string]any{"score": float64(9)}, cmd.Notification.Payload)
}

func TestOutboundFromEvent(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 890_000_000, time.UTC)
	out := outboundFromEvent(&core.Event{
		Kind: core.EventNewMessage,
		Room: "chat:g",
		Message: &core.Message{
			ID: "m1", Room: "chat:g", SenderID: "alice", SenderName: "Alice", Content: "hi", Timestamp: ts,
		},
	})
	assert.Equal(t, proto.EventNewMessage, out.Event)
	assert.Equal(t, proto.NewMessageData{
		ID: "m1", RoomID: "chat:g", SenderID: "alice", SenderName: "Alice", Content: "hi",
		Timestamp: "2026-03-04T05:06:07.890Z",
	}, out.Data)

	out = outboundFromEvent(&core.Event{Kind: core.EventNotification, Notification: &core.Notification{
		Type:    "quiz",
		Message: "Quiz graded",
		Payload: map[string]any{"type": "spoofed", "score": 9},
	}})
	assert.Equal(t, map[string]any{"type": "quiz", "message": "Quiz graded", "score": 9}, out.Data)

	out = outboundFromEvent(&core.Event{Kind: core.EventUserOffline, UserID: "alice"})
	assert.Equal(t, proto.EventUserOffline, out.Event)
	assert.Equal(t, "alice", out.Data)

	out = outboundFromEvent(&core.Event{Kind: core.EventOnlineUsers})
	assert.Equal(t, []string{}, out.Data)
}
