package core

import "sync"

// DefaultBuffer is the capacity of a client's command and event queues.
const DefaultBuffer = 32

// Client is one connection as seen by the core layer.
type Client struct {
	ID       string
	Identity Identity
	Commands chan *Command
	Events   chan *Event

	done     chan struct{}
	stopOnce sync.Once
}

// NewClient constructs a client with initialized queues of the given capacity.
func NewClient(id string, identity Identity, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if identity.DisplayName == "" {
		identity.DisplayName = identity.ID
	}
	return &Client{
		ID:       id,
		Identity: identity,
		Commands: make(chan *Command, buffer),
		Events:   make(chan *Event, buffer),
		done:     make(chan struct{}),
	}
}

// Done is closed once the client has been unregistered or the hub stopped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}
