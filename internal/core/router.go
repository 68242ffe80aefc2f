package core

// Router owns the room membership index: room -> member connection ids.
// Rooms are created on first join and dropped as soon as they are empty.
type Router struct {
	members map[RoomID]map[string]struct{}
}

// NewRouter constructs a router with no rooms.
func NewRouter() *Router {
	return &Router{members: make(map[RoomID]map[string]struct{})}
}

// Join adds the connection to the room. Returns true if newly added.
func (r *Router) Join(conn *Connection, room RoomID) bool {
	if conn.InRoom(room) {
		return false
	}
	set, ok := r.members[room]
	if !ok {
		set = make(map[string]struct{})
		r.members[room] = set
	}
	set[conn.ID] = struct{}{}
	conn.Rooms[room] = struct{}{}
	return true
}

// Leave removes the connection from the room. Returns true if removed.
func (r *Router) Leave(conn *Connection, room RoomID) bool {
	if !conn.InRoom(room) {
		return false
	}
	delete(conn.Rooms, room)
	if set, ok := r.members[room]; ok {
		delete(set, conn.ID)
		if len(set) == 0 {
			delete(r.members, room)
		}
	}
	return true
}

// Members returns a sorted snapshot of the room's connections minus exclude.
// An unknown room is an empty set.
func (r *Router) Members(room RoomID, exclude string) []string {
	set := r.members[room]
	if len(set) == 0 {
		return nil
	}
	ids := make([]string, 0, len(set))
	for _, id := range sortedKeys(set) {
		if id != exclude {
			ids = append(ids, id)
		}
	}
	return ids
}

// Size returns the number of connections in the room.
func (r *Router) Size(room RoomID) int {
	return len(r.members[room])
}

// RoomCount returns the number of non-empty rooms.
func (r *Router) RoomCount() int {
	return len(r.members)
}
