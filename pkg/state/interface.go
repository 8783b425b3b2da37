package state

import (
	"github.com/google/uuid"
	"github.com/zabha5/chatapp/pkg/transport"
)

type Manager interface {
	// --- Connection Lifecycle ---
	// RegisterConnection creates a connection record with no associated user.
	// Registering the same connection twice is a no-op.
	RegisterConnection(conn transport.Sender, ipAddr, authUserID string) (*Connection, error)
	// AnnounceUser links a connection to a user, creating the user if they
	// don't exist. The bool result reports whether this was the user's
	// zero-to-one connection edge (they just came online).
	AnnounceUser(connID uuid.UUID, userID string) (*User, bool, error)
	// DeregisterConnection removes a connection and detaches it from its user.
	// The result carries the rooms the connection was subscribed to and the
	// offline transition when this was the user's last connection. Unknown
	// connections yield an empty result, not an error.
	DeregisterConnection(connID uuid.UUID) (DisconnectResult, error)
	GetConnection(connID uuid.UUID) (*Connection, bool)
	// GetAllConnections returns a snapshot of every registered connection,
	// announced or not. Safe to iterate while connections churn.
	GetAllConnections() []*Connection
	// FindOldestUserConnection returns the longest-lived registered connection
	// carrying the given authenticated identity, announced or not.
	FindOldestUserConnection(userID string) (*Connection, bool)
	// GetAuthUserConnectionCount counts registered connections carrying the
	// given authenticated identity, including those that have not announced
	// yet. This is the connection-cap view; presence uses
	// GetUserConnectionCount.
	GetAuthUserConnectionCount(userID string) (int, error)

	// --- Presence ---
	// Resolve returns the user's current live connections; empty when offline.
	Resolve(userID string) []*Connection
	GetUserConnectionCount(userID string) (int, error)
	GetAllUsers() ([]*User, error)

	// --- Room Membership ---
	// Join subscribes a connection to a conversation's events, creating the
	// room if it doesn't exist. Joining twice is a no-op.
	Join(roomID string, connID uuid.UUID) error
	// Leave is idempotent; leaving a room the connection never joined is a no-op.
	Leave(roomID string, connID uuid.UUID) error
	// Subscribers returns a snapshot of the room's current member connections.
	Subscribers(roomID string) []*Connection
	// Evict scrubs a connection from the given rooms; used on disconnect with
	// the room set returned by DeregisterConnection.
	Evict(connID uuid.UUID, roomIDs []string)
	FindRoom(roomID string) (*Room, bool)
}
