package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventNewMessage delivers a chat message to room members.
	EventNewMessage EventKind = iota
	// EventNotification delivers a user-facing notification.
	EventNotification
	// EventUserTyping reports that a user started composing in a room.
	EventUserTyping
	// EventUserStopTyping reports that a user stopped composing in a room.
	EventUserStopTyping
	// EventUserOnline reports a user's first live connection.
	EventUserOnline
	// EventUserOffline reports that a user's last connection went away.
	EventUserOffline
	// EventOnlineUsers delivers the online user snapshot to a new connection.
	EventOnlineUsers
	// EventError notifies a client about a rejected command.
	EventError
)

var eventKindNames = map[EventKind]string{
	EventNewMessage:     "new-message",
	EventNotification:   "notification",
	EventUserTyping:     "user-typing",
	EventUserStopTyping: "user-stop-typing",
	EventUserOnline:     "user-online",
	EventUserOffline:    "user-offline",
	EventOnlineUsers:    "online-users",
	EventError:          "error",
}

// String returns the wire name of the event.
func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind         EventKind
	Room         RoomID
	UserID       string
	UserName     string
	Message      *Message
	Notification *Notification
	Users        []string // for EventOnlineUsers
	Error        *CoreError
}

// Delivery addresses an event to a single connection.
type Delivery struct {
	ConnID string
	Event  *Event
}

func deliverTo(connIDs []string, ev *Event) []Delivery {
	if len(connIDs) == 0 {
		return nil
	}
	out := make([]Delivery, 0, len(connIDs))
	for _, id := range connIDs {
		out = append(out, Delivery{ConnID: id, Event: ev})
	}
	return out
}
