package state

import (
	"time"

	"github.com/google/uuid"
	"github.com/zabha5/chatapp/pkg/transport"
)

// representation of a single transport-layer connection.
type Connection struct {
	ID         uuid.UUID
	IPAddress  string
	AuthUserID string           // identity established by the transport-level auth
	Transport  transport.Sender // The actual connection for sending messages
	User       *User            // Pointer to the owning user (nil until announced)
	CreatedAt  time.Time
}

// canonical representation of a user, aggregating all their connections.
// A user is online iff this set is non-empty.
type User struct {
	ID          string
	Connections map[uuid.UUID]*Connection // All active connections for this user
}

// canonical representation of a conversation's live subscriber set.
type Room struct {
	ID          string
	Subscribers map[uuid.UUID]*Connection // Connections currently joined, keyed by connection ID
}

// PresenceTransition reports a genuine online/offline edge for a user, produced
// only when their connection count crosses zero in either direction.
type PresenceTransition struct {
	UserID string
	Online bool
}

// DisconnectResult is everything the disconnect path needs to clean up after a
// connection: the rooms it must be evicted from and, when this was the user's
// last connection, the offline transition to broadcast.
type DisconnectResult struct {
	UserID     string
	Rooms      []string
	Transition *PresenceTransition
}
