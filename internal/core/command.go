package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom subscribes the connection to a room.
	CommandJoinRoom CommandKind = iota
	// CommandLeaveRoom unsubscribes the connection from a room.
	CommandLeaveRoom
	// CommandSendMessage delivers a chat message to room members.
	CommandSendMessage
	// CommandTypingStart marks the user as composing in a room.
	CommandTypingStart
	// CommandTypingStop clears the composing mark.
	CommandTypingStop
	// CommandSendNotification delivers a notification to a user or everyone.
	CommandSendNotification
)

// Command represents an action requested by a client.
type Command struct {
	Kind         CommandKind
	Room         RoomID
	Content      string
	Notification *Notification
}
