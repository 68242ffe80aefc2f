package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Hub serializes every state mutation on a single goroutine. Clients are
// registered after authentication; their commands are forwarded in order
// into the hub inbox, and the deliveries produced by State are pushed into
// each recipient's Events queue without blocking.
type Hub struct {
	state   *State
	inbox   chan func()
	clients map[string]*Client

	typingIdle time.Duration
	log        *zerolog.Logger
	stopped    chan struct{}
}

// HubOption customizes a Hub.
type HubOption func(*Hub)

// WithStateOptions passes options to the hub's State.
func WithStateOptions(opts ...StateOption) HubOption {
	return func(h *Hub) {
		for _, opt := range opts {
			opt(h.state)
		}
	}
}

// WithTypingIdleTimeout enables expiry of typing marks that were not refreshed.
func WithTypingIdleTimeout(d time.Duration) HubOption {
	return func(h *Hub) { h.typingIdle = d }
}

// Stats is a point-in-time summary of the hub.
type Stats struct {
	Connections int `json:"connections"`
	Users       int `json:"users"`
	Rooms       int `json:"rooms"`
}

// NewHub creates a hub. Call Run to start processing.
func NewHub(logger *zerolog.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	h := &Hub{
		state:   NewState(),
		inbox:   make(chan func(), 256),
		clients: make(map[string]*Client),
		log:     logger,
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run processes hub operations until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	var sweep <-chan time.Time
	if h.typingIdle > 0 {
		ticker := time.NewTicker(sweepInterval(h.typingIdle))
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			for _, c := range h.clients {
				c.stop()
			}
			h.log.Info().Int("clients", len(h.clients)).Msg("hub stopped")
			return
		case op := <-h.inbox:
			h.run(op)
		case <-sweep:
			h.deliver(h.state.ExpireTyping(h.typingIdle))
		}
	}
}

// RegisterClient admits the client and starts forwarding its commands.
func (h *Hub) RegisterClient(ctx context.Context, c *Client) error {
	err := h.do(ctx, func() error {
		deliveries, err := h.state.Admit(c.ID, c.Identity)
		if err != nil {
			return err
		}
		h.clients[c.ID] = c
		h.deliver(deliveries)
		return nil
	})
	if err != nil {
		return fmt.Errorf("register client: %w", err)
	}

	h.log.Debug().Str("conn_id", c.ID).Str("user_id", c.Identity.ID).Msg("client admitted")
	go h.forward(c)
	return nil
}

// UnregisterClient releases the client and returns once its state is gone.
func (h *Hub) UnregisterClient(c *Client) {
	c.stop()
	err := h.do(context.Background(), func() error {
		deliveries := h.state.Release(c.ID)
		delete(h.clients, c.ID)
		h.deliver(deliveries)
		return nil
	})
	if err != nil && !errors.Is(err, ErrHubStopped) {
		h.log.Warn().Err(err).Str("conn_id", c.ID).Msg("release client")
		return
	}
	h.log.Debug().Str("conn_id", c.ID).Str("user_id", c.Identity.ID).Msg("client released")
}

// Notify delivers a notification on behalf of server-side business logic.
// It returns the number of connections the notification was queued for.
func (h *Hub) Notify(ctx context.Context, n *Notification) (int, error) {
	var delivered int
	err := h.do(ctx, func() error {
		deliveries, err := h.state.SendNotification(n)
		if err != nil {
			return err
		}
		delivered = h.deliver(deliveries)
		return nil
	})
	return delivered, err
}

// Presence returns the number of live connections of a user.
func (h *Hub) Presence(ctx context.Context, userID string) (int, error) {
	var count int
	err := h.do(ctx, func() error {
		count = h.state.Presence(userID)
		return nil
	})
	return count, err
}

// Stats reports connection, user and room counts.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := h.do(ctx, func() error {
		st = Stats{
			Connections: h.state.registry.Len(),
			Users:       len(h.state.registry.OnlineUsers()),
			Rooms:       h.state.router.RoomCount(),
		}
		return nil
	})
	return st, err
}

func (h *Hub) forward(c *Client) {
	for {
		select {
		case cmd := <-c.Commands:
			op := func() { h.apply(c, cmd) }
			select {
			case h.inbox <- op:
			case <-c.done:
				return
			case <-h.stopped:
				return
			}
		case <-c.done:
			return
		case <-h.stopped:
			return
		}
	}
}

func (h *Hub) apply(c *Client, cmd *Command) {
	var deliveries []Delivery
	err := h.safely(func() error {
		var err error
		deliveries, err = h.state.Apply(c.ID, cmd)
		return err
	})
	if err == nil {
		h.deliver(deliveries)
		return
	}

	var ce *CoreError
	switch {
	case errors.As(err, &ce):
		h.log.Debug().Str("conn_id", c.ID).Str("code", ce.Code).Msg("command rejected")
		h.deliver([]Delivery{{ConnID: c.ID, Event: &Event{Kind: EventError, Error: ce}}})
	case errors.Is(err, ErrUnknownConnection):
		// command raced with release
	default:
		h.log.Error().Err(err).Str("conn_id", c.ID).Msg("command failed")
		h.deliver([]Delivery{{ConnID: c.ID, Event: &Event{
			Kind:  EventError,
			Error: coreError(ErrCodeInternal, "internal error"),
		}}})
	}
}

// deliver queues events on recipients and returns how many were queued.
func (h *Hub) deliver(deliveries []Delivery) int {
	queued := 0
	for _, d := range deliveries {
		client, ok := h.clients[d.ConnID]
		if !ok {
			continue
		}
		select {
		case client.Events <- d.Event:
			queued++
		default:
			h.log.Warn().Str("conn_id", d.ConnID).Str("event", d.Event.Kind.String()).Msg("dropping event for slow consumer")
		}
	}
	return queued
}

// do runs fn on the hub goroutine and waits for its result.
func (h *Hub) do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	op := func() { result <- h.safely(fn) }

	select {
	case h.inbox <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.stopped:
		return ErrHubStopped
	}

	select {
	case err := <-result:
		return err
	case <-h.stopped:
		select {
		case err := <-result:
			return err
		default:
			return ErrHubStopped
		}
	}
}

// run executes a queued operation; a panic is logged and the loop carries on.
func (h *Hub) run(op func()) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Msg("recovered from panic in hub loop")
		}
	}()
	op()
}

func (h *Hub) safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Msg("recovered from panic in hub handler")
			err = fmt.Errorf("hub handler panic: %v", r)
		}
	}()
	return fn()
}

func sweepInterval(idle time.Duration) time.Duration {
	interval := idle / 4
	if interval < 50*time.Millisecond {
		interval = 50 * time.Millisecond
	}
	if interval > time.Second {
		interval = time.Second
	}
	return interval
}
