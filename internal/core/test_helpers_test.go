package core

import (
	"context"
	"testing"
	"time"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// noEvent fails if an event of kind shows up within wait.
func noEvent(t *testing.T, ch <-chan *Event, kind EventKind, wait time.Duration) {
	t.Helper()

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event %v", kind)
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func startHub(t *testing.T, opts ...HubOption) (*Hub, context.Context) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil, opts...)
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, ctx
}

func connect(t *testing.T, hub *Hub, ctx context.Context, id string, who Identity) *Client {
	t.Helper()

	c := NewClient(id, who, 0)
	if err := hub.RegisterClient(ctx, c); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	mustEvent(t, c.Events, EventOnlineUsers)
	return c
}

// joinRoom joins c to room and waits until the hub has applied it.
func joinRoom(t *testing.T, hub *Hub, ctx context.Context, c *Client, room RoomID) {
	t.Helper()

	c.Commands <- &Command{Kind: CommandJoinRoom, Room: room}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var member bool
		err := hub.do(ctx, func() error {
			conn, ok := hub.state.registry.Get(c.ID)
			member = ok && conn.InRoom(room)
			return nil
		})
		if err != nil {
			t.Fatalf("inspect hub: %v", err)
		}
		if member {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s did not join %s", c.ID, room)
}
