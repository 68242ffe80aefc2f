package core

import (
	"sort"
	"time"
)

type typist struct {
	name  string
	since time.Time
}

// TypingTracker holds who is composing in which room. Several connections of
// one user collapse into a single entry.
type TypingTracker struct {
	rooms map[RoomID]map[string]*typist
}

// NewTypingTracker constructs an empty tracker.
func NewTypingTracker() *TypingTracker {
	return &TypingTracker{rooms: make(map[RoomID]map[string]*typist)}
}

// Start marks the user as typing. Returns true if the user was not typing
// before; a repeated start only refreshes the timestamp.
func (t *TypingTracker) Start(userID, name string, room RoomID, now time.Time) bool {
	users, ok := t.rooms[room]
	if !ok {
		users = make(map[string]*typist)
		t.rooms[room] = users
	}
	if existing, ok := users[userID]; ok {
		existing.since = now
		return false
	}
	users[userID] = &typist{name: name, since: now}
	return true
}

// Stop clears the user's typing mark. Returns true if the user was typing.
func (t *TypingTracker) Stop(userID string, room RoomID) bool {
	users, ok := t.rooms[room]
	if !ok {
		return false
	}
	if _, ok := users[userID]; !ok {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.rooms, room)
	}
	return true
}

// IsTyping reports whether the user is marked as typing in room.
func (t *TypingTracker) IsTyping(userID string, room RoomID) bool {
	_, ok := t.rooms[room][userID]
	return ok
}

// Typists returns the sorted ids of users typing in room.
func (t *TypingTracker) Typists(room RoomID) []string {
	users := t.rooms[room]
	ids := make([]string, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// expiredEntry is a typing mark removed by Expire.
type expiredEntry struct {
	room   RoomID
	userID string
}

// Expire removes every mark older than cutoff and returns what was removed,
// ordered by room then user.
func (t *TypingTracker) Expire(cutoff time.Time) []expiredEntry {
	var out []expiredEntry
	for room, users := range t.rooms {
		for id, entry := range users {
			if entry.since.Before(cutoff) {
				out = append(out, expiredEntry{room: room, userID: id})
				delete(users, id)
			}
		}
		if len(users) == 0 {
			delete(t.rooms, room)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].room != out[j].room {
			return out[i].room < out[j].room
		}
		return out[i].userID < out[j].userID
	})
	return out
}

// Len returns the number of rooms with at least one typist.
func (t *TypingTracker) Len() int {
	return len(t.rooms)
}
