package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHubMessageAndNotification(t *testing.T) {
	hub, ctx := startHub(t)

	a := connect(t, hub, ctx, "a1", alice)
	b := connect(t, hub, ctx, "b1", bob)
	joinRoom(t, hub, ctx, a, general)
	joinRoom(t, hub, ctx, b, general)

	a.Commands <- &Command{Kind: CommandSendMessage, Room: general, Content: "hi"}

	for _, c := range []*Client{a, b} {
		ev := mustEvent(t, c.Events, EventNewMessage)
		if ev.Message == nil || ev.Message.Content != "hi" || ev.Message.SenderID != "alice" {
			t.Fatalf("unexpected message on %s: %+v", c.ID, ev.Message)
		}
		if ev.Message.ID == "" || ev.Message.Timestamp.IsZero() {
			t.Fatalf("message not stamped: %+v", ev.Message)
		}
	}

	notice := mustEvent(t, b.Events, EventNotification)
	if notice.Notification.Type != NotificationTypeNewMessage {
		t.Fatalf("unexpected notification type %q", notice.Notification.Type)
	}
	if notice.Notification.Message != "New message from Alice" {
		t.Fatalf("unexpected notification text %q", notice.Notification.Message)
	}
	noEvent(t, a.Events, EventNotification, 100*time.Millisecond)
}

func TestHubTypingClearedOnDisconnect(t *testing.T) {
	hub, ctx := startHub(t)

	a := connect(t, hub, ctx, "a1", alice)
	b := connect(t, hub, ctx, "b1", bob)
	joinRoom(t, hub, ctx, a, general)
	joinRoom(t, hub, ctx, b, general)

	a.Commands <- &Command{Kind: CommandTypingStart, Room: general}
	typing := mustEvent(t, b.Events, EventUserTyping)
	if typing.UserID != "alice" || typing.Room != general {
		t.Fatalf("unexpected typing event: %+v", typing)
	}

	hub.UnregisterClient(a)

	stop := mustEvent(t, b.Events, EventUserStopTyping)
	if stop.UserID != "alice" || stop.Room != general {
		t.Fatalf("unexpected stop event: %+v", stop)
	}
	offline := mustEvent(t, b.Events, EventUserOffline)
	if offline.UserID != "alice" {
		t.Fatalf("unexpected offline user %q", offline.UserID)
	}

	select {
	case <-a.Done():
	default:
		t.Fatal("unregistered client not stopped")
	}
}

func TestHubPresence(t *testing.T) {
	hub, ctx := startHub(t)

	b := connect(t, hub, ctx, "b1", bob)
	a1 := connect(t, hub, ctx, "a1", alice)
	mustEvent(t, b.Events, EventUserOnline)

	a2 := connect(t, hub, ctx, "a2", alice)
	noEvent(t, b.Events, EventUserOnline, 100*time.Millisecond)

	n, err := hub.Presence(ctx, "alice")
	if err != nil {
		t.Fatalf("presence: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 connections, got %d", n)
	}

	hub.UnregisterClient(a1)
	noEvent(t, b.Events, EventUserOffline, 100*time.Millisecond)
	hub.UnregisterClient(a2)
	mustEvent(t, b.Events, EventUserOffline)

	st, err := hub.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Connections != 1 || st.Users != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestHubNotify(t *testing.T) {
	hub, ctx := startHub(t)

	a := connect(t, hub, ctx, "a1", alice)
	b := connect(t, hub, ctx, "b1", bob)

	n, err := hub.Notify(ctx, &Notification{Type: "enrollment", Message: "Enrolled", UserID: "alice"})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
	mustEvent(t, a.Events, EventNotification)
	noEvent(t, b.Events, EventNotification, 100*time.Millisecond)

	n, err = hub.Notify(ctx, &Notification{Type: "announcement", Message: "Hello all"})
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}

	_, err = hub.Notify(ctx, &Notification{})
	var ce *CoreError
	if !errors.As(err, &ce) || ce.Code != ErrCodeInvalidNotification {
		t.Fatalf("expected invalid_notification, got %v", err)
	}
}

func TestHubRejectedCommandReportsError(t *testing.T) {
	hub, ctx := startHub(t)

	a := connect(t, hub, ctx, "a1", alice)
	joinRoom(t, hub, ctx, a, general)

	a.Commands <- &Command{Kind: CommandSendMessage, Room: general, Content: "   "}
	ev := mustEvent(t, a.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeEmptyContent {
		t.Fatalf("unexpected error event: %+v", ev.Error)
	}
}

type panickingPolicy struct{ OpenPolicy }

func (panickingPolicy) AllowJoin(Identity, RoomID) bool { panic("policy backend down") }

func TestHubHandlerPanicReportsInternalError(t *testing.T) {
	hub, ctx := startHub(t, WithStateOptions(WithPolicy(panickingPolicy{})))

	a := connect(t, hub, ctx, "a1", alice)
	a.Commands <- &Command{Kind: CommandJoinRoom, Room: general}

	ev := mustEvent(t, a.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeInternal {
		t.Fatalf("unexpected error event: %+v", ev.Error)
	}

	// the loop survives and later commands from the same client still apply
	a.Commands <- &Command{Kind: CommandSendMessage, Room: UserRoom("alice"), Content: "note to self"}
	if msg := mustEvent(t, a.Events, EventNewMessage); msg.Message.Content != "note to self" {
		t.Fatalf("unexpected message %+v", msg.Message)
	}
}

func TestHubDuplicateRegistration(t *testing.T) {
	hub, ctx := startHub(t)
	connect(t, hub, ctx, "a1", alice)

	err := hub.RegisterClient(ctx, NewClient("a1", alice, 0))
	if !errors.Is(err, ErrAlreadyAdmitted) {
		t.Fatalf("expected ErrAlreadyAdmitted, got %v", err)
	}
}

func TestHubTypingIdleExpiry(t *testing.T) {
	hub, ctx := startHub(t, WithTypingIdleTimeout(100*time.Millisecond))

	a := connect(t, hub, ctx, "a1", alice)
	b := connect(t, hub, ctx, "b1", bob)
	joinRoom(t, hub, ctx, a, general)
	joinRoom(t, hub, ctx, b, general)

	a.Commands <- &Command{Kind: CommandTypingStart, Room: general}
	mustEvent(t, b.Events, EventUserTyping)
	mustEvent(t, b.Events, EventUserStopTyping)
}

func TestHubStopClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	go hub.Run(ctx)

	c := connect(t, hub, ctx, "a1", alice)
	cancel()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client not stopped on hub shutdown")
	}

	if _, err := hub.Presence(context.Background(), "alice"); !errors.Is(err, ErrHubStopped) {
		t.Fatalf("expected ErrHubStopped, got %v", err)
	}
	hub.UnregisterClient(c)
}
