// Structure of the messages exchanged between instances over the relay bus.

package entity

// RelayTopic is one of the fixed bus channels every instance subscribes to.
type RelayTopic string

const (
	TopicInventory     RelayTopic = "inventory-updates"
	TopicUsers         RelayTopic = "user-updates"
	TopicNotifications RelayTopic = "notifications"
)

// RelayTopics lists every topic an instance subscribes to at startup.
var RelayTopics = []RelayTopic{TopicInventory, TopicUsers, TopicNotifications}

// TargetKind selects which local Broadcast API call a receiving instance makes.
type TargetKind string

const (
	TargetRoom   TargetKind = "room"
	TargetUser   TargetKind = "user"
	TargetGlobal TargetKind = "global"
)

// Target is the routing part of a broadcast.
type Target struct {
	Kind   TargetKind `json:"kind"`
	Room   string     `json:"room,omitempty"`
	UserID string     `json:"userId,omitempty"`
	// Connection id that must not receive the event, usually the sender's.
	Except string `json:"except,omitempty"`
}

// ToRoom targets every connection in room.
func ToRoom(room string) Target {
	return Target{Kind: TargetRoom, Room: room}
}

// ToUser targets the personal room of userID.
func ToUser(userID string) Target {
	return Target{Kind: TargetUser, UserID: userID}
}

// ToEveryone targets every connection.
func ToEveryone() Target {
	return Target{Kind: TargetGlobal}
}

// Excluding returns t skipping connection connID.
func (t Target) Excluding(connID string) Target {
	t.Except = connID
	return t
}

// Valid reports whether t carries what its kind needs.
func (t Target) Valid() bool {
	switch t.Kind {
	case TargetRoom:
		return t.Room != ""
	case TargetUser:
		return t.UserID != ""
	case TargetGlobal:
		return true
	}
	return false
}

// RelayMessage is the wire form of an Event on the bus.
type RelayMessage struct {
	// Instance that published the message; it already delivered locally.
	Origin string     `json:"origin"`
	Topic  RelayTopic `json:"topic"`
	Target Target     `json:"target"`
	Event  Event      `json:"event"`
}
