package core

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// State is the complete realtime state of one gateway process: registry,
// room membership and typing marks. It is not safe for concurrent use; the
// Hub confines it to a single goroutine. Every mutation returns the
// deliveries it produced instead of sending them, so handlers can be tested
// without a network.
type State struct {
	registry *Registry
	router   *Router
	typing   *TypingTracker
	policy   Policy

	now              func() time.Time
	newID            func() string
	maxContentLength int
}

// StateOption customizes a State.
type StateOption func(*State)

// WithClock overrides the time source used for timestamps and typing expiry.
func WithClock(now func() time.Time) StateOption {
	return func(s *State) { s.now = now }
}

// WithIDGenerator overrides the message id generator.
func WithIDGenerator(newID func() string) StateOption {
	return func(s *State) { s.newID = newID }
}

// WithMaxContentLength caps message content, in runes. Zero disables the cap.
func WithMaxContentLength(n int) StateOption {
	return func(s *State) { s.maxContentLength = n }
}

// WithPolicy installs a join/notify policy.
func WithPolicy(p Policy) StateOption {
	return func(s *State) {
		if p != nil {
			s.policy = p
		}
	}
}

// NewState builds an empty state.
func NewState(opts ...StateOption) *State {
	s := &State{
		registry: NewRegistry(),
		router:   NewRouter(),
		typing:   NewTypingTracker(),
		policy:   OpenPolicy{},
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Admit registers an authenticated connection and joins it to its private room.
// The new connection receives the online-users snapshot; everyone else is told
// user-online when this is the user's first connection.
func (s *State) Admit(connID string, identity Identity) ([]Delivery, error) {
	conn, first, err := s.registry.Admit(connID, identity)
	if err != nil {
		return nil, err
	}
	s.router.Join(conn, UserRoom(identity.ID))

	out := []Delivery{{
		ConnID: connID,
		Event:  &Event{Kind: EventOnlineUsers, Users: s.registry.OnlineUsers()},
	}}
	if first {
		out = append(out, deliverTo(s.othersThan(connID), &Event{
			Kind:   EventUserOnline,
			UserID: identity.ID,
		})...)
	}
	return out, nil
}

// Release tears down everything the connection was part of: typing marks,
// room memberships (private room included) and the registry record. Unknown
// ids are a no-op so a disconnect during the handshake is harmless.
func (s *State) Release(connID string) []Delivery {
	conn, ok := s.registry.Get(connID)
	if !ok {
		return nil
	}

	var out []Delivery
	for _, room := range sortedRooms(conn.Rooms) {
		out = append(out, s.leaveRoom(conn, room)...)
	}

	_, last := s.registry.Release(connID)
	if last {
		out = append(out, deliverTo(s.registry.All(), &Event{
			Kind:   EventUserOffline,
			UserID: conn.Identity.ID,
		})...)
	}
	return out
}

// Join subscribes the connection to a chat room. Joining twice is a no-op.
func (s *State) Join(connID string, room RoomID) ([]Delivery, error) {
	conn, ok := s.registry.Get(connID)
	if !ok {
		return nil, ErrUnknownConnection
	}
	if room.IsPrivate() {
		return nil, coreError(ErrCodeReservedRoom, "private rooms are joined automatically")
	}
	if !s.policy.AllowJoin(conn.Identity, room) {
		return nil, coreError(ErrCodeForbidden, "not allowed to join this room")
	}
	s.router.Join(conn, room)
	return nil, nil
}

// Leave unsubscribes the connection from a chat room. Leaving a room the
// connection is not in is a no-op; the private room cannot be left.
func (s *State) Leave(connID string, room RoomID) ([]Delivery, error) {
	conn, ok := s.registry.Get(connID)
	if !ok {
		return nil, ErrUnknownConnection
	}
	if room.IsPrivate() {
		return nil, coreError(ErrCodeReservedRoom, "private room cannot be left")
	}
	if !conn.InRoom(room) {
		return nil, nil
	}
	return s.leaveRoom(conn, room), nil
}

// StartTyping marks the connection's user as typing in room and tells the
// other members. A repeated start is not re-broadcast.
func (s *State) StartTyping(connID string, room RoomID) ([]Delivery, error) {
	conn, ok := s.registry.Get(connID)
	if !ok {
		return nil, ErrUnknownConnection
	}
	if !conn.InRoom(room) {
		return nil, coreError(ErrCodeNotInRoom, "join the room before typing in it")
	}
	user := conn.Identity
	if !s.typing.Start(user.ID, user.DisplayName, room, s.now()) {
		return nil, nil
	}
	return deliverTo(s.router.Members(room, connID), &Event{
		Kind:     EventUserTyping,
		Room:     room,
		UserID:   user.ID,
		UserName: user.DisplayName,
	}), nil
}

// StopTyping clears the typing mark. Stopping when not typing is a silent no-op.
func (s *State) StopTyping(connID string, room RoomID) ([]Delivery, error) {
	conn, ok := s.registry.Get(connID)
	if !ok {
		return nil, ErrUnknownConnection
	}
	if !s.typing.Stop(conn.Identity.ID, room) {
		return nil, nil
	}
	return deliverTo(s.router.Members(room, connID), &Event{
		Kind:   EventUserStopTyping,
		Room:   room,
		UserID: conn.Identity.ID,
	}), nil
}

// ExpireTyping drops typing marks not refreshed since now-idle.
func (s *State) ExpireTyping(idle time.Duration) []Delivery {
	var out []Delivery
	for _, entry := range s.typing.Expire(s.now().Add(-idle)) {
		out = append(out, deliverTo(s.router.Members(entry.room, ""), &Event{
			Kind:   EventUserStopTyping,
			Room:   entry.room,
			UserID: entry.userID,
		})...)
	}
	return out
}

// Notify is SendNotification issued by a connected client; the policy gets a say.
func (s *State) Notify(connID string, n *Notification) ([]Delivery, error) {
	conn, ok := s.registry.Get(connID)
	if !ok {
		return nil, ErrUnknownConnection
	}
	if n != nil && !s.policy.AllowNotify(conn.Identity, n) {
		return nil, coreError(ErrCodeForbidden, "not allowed to send this notification")
	}
	return s.SendNotification(n)
}

// Presence returns the number of live connections of a user.
func (s *State) Presence(userID string) int {
	return len(s.registry.ConnectionsForUser(userID))
}

// leaveRoom removes conn from room. When no other connection of the same user
// remains in the room, the user's typing mark there is cleared and the
// remaining members are told.
func (s *State) leaveRoom(conn *Connection, room RoomID) []Delivery {
	s.router.Leave(conn, room)

	userID := conn.Identity.ID
	if s.userStillIn(userID, conn.ID, room) || !s.typing.Stop(userID, room) {
		return nil
	}
	return deliverTo(s.router.Members(room, ""), &Event{
		Kind:   EventUserStopTyping,
		Room:   room,
		UserID: userID,
	})
}

func (s *State) userStillIn(userID, exceptConn string, room RoomID) bool {
	for _, id := range s.registry.ConnectionsForUser(userID) {
		if id == exceptConn {
			continue
		}
		if other, ok := s.registry.Get(id); ok && other.InRoom(room) {
			return true
		}
	}
	return false
}

func (s *State) othersThan(connID string) []string {
	all := s.registry.All()
	out := all[:0]
	for _, id := range all {
		if id != connID {
			out = append(out, id)
		}
	}
	return out
}

type handlerFunc func(s *State, connID string, cmd *Command) ([]Delivery, error)

// dispatchTable maps each inbound command to its handler.
var dispatchTable = map[CommandKind]handlerFunc{
	CommandJoinRoom: func(s *State, connID string, cmd *Command) ([]Delivery, error) {
		return s.Join(connID, cmd.Room)
	},
	CommandLeaveRoom: func(s *State, connID string, cmd *Command) ([]Delivery, error) {
		return s.Leave(connID, cmd.Room)
	},
	CommandSendMessage: func(s *State, connID string, cmd *Command) ([]Delivery, error) {
		return s.SendMessage(connID, cmd.Room, cmd.Content)
	},
	CommandTypingStart: func(s *State, connID string, cmd *Command) ([]Delivery, error) {
		return s.StartTyping(connID, cmd.Room)
	},
	CommandTypingStop: func(s *State, connID string, cmd *Command) ([]Delivery, error) {
		return s.StopTyping(connID, cmd.Room)
	},
	CommandSendNotification: func(s *State, connID string, cmd *Command) ([]Delivery, error) {
		return s.Notify(connID, cmd.Notification)
	},
}

// Apply runs the handler registered for cmd.Kind.
func (s *State) Apply(connID string, cmd *Command) ([]Delivery, error) {
	if cmd == nil {
		return nil, coreError(ErrCodeBadRequest, "command is required")
	}
	handler, ok := dispatchTable[cmd.Kind]
	if !ok {
		return nil, coreError(ErrCodeUnknownEvent, "unknown command")
	}
	return handler(s, connID, cmd)
}

func sortedRooms(set map[RoomID]struct{}) []RoomID {
	rooms := make([]RoomID, 0, len(set))
	for room := range set {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	return rooms
}
