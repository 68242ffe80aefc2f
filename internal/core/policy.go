package core

// Policy decides whether an identity may join a room or send a notification.
// The gateway ships with OpenPolicy: any authenticated connection may join
// any chat room and notify anyone. Entitlement checks (enrollment, admin
// role) plug in here.
type Policy interface {
	AllowJoin(who Identity, room RoomID) bool
	AllowNotify(who Identity, n *Notification) bool
}

// OpenPolicy allows everything.
type OpenPolicy struct{}

func (OpenPolicy) AllowJoin(Identity, RoomID) bool { return true }

func (OpenPolicy) AllowNotify(Identity, *Notification) bool { return true }
