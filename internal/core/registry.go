package core

import "sort"

// Connection is one live transport session of an identity.
type Connection struct {
	ID       string
	Identity Identity
	// Rooms is kept in lockstep with the Router's member index.
	Rooms map[RoomID]struct{}
}

// InRoom reports whether the connection is a member of room.
func (c *Connection) InRoom(room RoomID) bool {
	_, ok := c.Rooms[room]
	return ok
}

// Registry tracks live connections and the connections of each user.
type Registry struct {
	conns  map[string]*Connection
	byUser map[string]map[string]struct{}
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*Connection),
		byUser: make(map[string]map[string]struct{}),
	}
}

// Admit registers a connection. firstForUser is true on the user's 0->1 transition.
func (r *Registry) Admit(connID string, identity Identity) (conn *Connection, firstForUser bool, err error) {
	if _, exists := r.conns[connID]; exists {
		return nil, false, ErrAlreadyAdmitted
	}

	conn = &Connection{
		ID:       connID,
		Identity: identity,
		Rooms:    make(map[RoomID]struct{}),
	}
	r.conns[connID] = conn

	set, ok := r.byUser[identity.ID]
	if !ok {
		set = make(map[string]struct{})
		r.byUser[identity.ID] = set
	}
	set[connID] = struct{}{}

	return conn, len(set) == 1, nil
}

// Release deletes the connection record. lastForUser is true on the user's
// 1->0 transition. Room memberships must be dropped by the caller first.
func (r *Registry) Release(connID string) (conn *Connection, lastForUser bool) {
	conn, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	delete(r.conns, connID)

	set := r.byUser[conn.Identity.ID]
	delete(set, connID)
	if len(set) == 0 {
		delete(r.byUser, conn.Identity.ID)
		return conn, true
	}
	return conn, false
}

// Get returns the live connection with the given id.
func (r *Registry) Get(connID string) (*Connection, bool) {
	conn, ok := r.conns[connID]
	return conn, ok
}

// ConnectionsForUser returns the ids of the user's live connections, sorted.
func (r *Registry) ConnectionsForUser(userID string) []string {
	return sortedKeys(r.byUser[userID])
}

// All returns the ids of every live connection, sorted.
func (r *Registry) All() []string {
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OnlineUsers returns the ids of users with at least one live connection, sorted.
func (r *Registry) OnlineUsers() []string {
	users := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	return len(r.conns)
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
