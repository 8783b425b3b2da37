package statemanager

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zabha5/chatapp/pkg/state"
	"github.com/zabha5/chatapp/pkg/transport"
)

type InMemoryManager struct {
	conns map[uuid.UUID]*state.Connection
	users map[string]*state.User
	rooms map[string]*state.Room
	// reverse index: which rooms each connection has joined. Guarded by roomMu.
	connRooms map[uuid.UUID]map[string]struct{}
	// registered-connection count per authenticated identity, announced or
	// not. Guarded by connMu.
	authConns map[string]int

	connMu sync.RWMutex
	userMu sync.RWMutex
	roomMu sync.RWMutex

	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger) *InMemoryManager {
	return &InMemoryManager{
		conns:     make(map[uuid.UUID]*state.Connection),
		users:     make(map[string]*state.User),
		rooms:     make(map[string]*state.Room),
		connRooms: make(map[uuid.UUID]map[string]struct{}),
		authConns: make(map[string]int),
		logger:    logger.With(slog.String("component", "state_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

func (m *InMemoryManager) RegisterConnection(conn transport.Sender, ipAddr, authUserID string) (*state.Connection, error) {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	connID := conn.ID()
	if existing, exists := m.conns[connID]; exists {
		// Duplicate registration is a no-op, not an error.
		m.logger.Debug("Connection already registered", slog.String("connID", connID.String()))
		return existing, nil
	}
	newConn := &state.Connection{
		ID:         connID,
		IPAddress:  ipAddr,
		AuthUserID: authUserID,
		Transport:  conn,
		CreatedAt:  time.Now(),
	}
	m.conns[connID] = newConn
	if authUserID != "" {
		m.authConns[authUserID]++
	}
	m.logger.Debug("Connection registered", slog.String("connID", connID.String()))
	return newConn, nil
}

func (m *InMemoryManager) AnnounceUser(connID uuid.UUID, userID string) (*state.User, bool, error) {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.userMu.Lock()
	defer m.userMu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return nil, false, errors.New("cannot announce user on unknown connection")
	}

	// Find or create the user.
	user, exists := m.users[userID]
	if !exists {
		user = &state.User{
			ID:          userID,
			Connections: make(map[uuid.UUID]*state.Connection),
		}
		m.users[userID] = user
		m.logger.Debug("Created new user entry", slog.String("userID", userID))
	}

	cameOnline := len(user.Connections) == 0
	conn.User = user
	user.Connections[connID] = conn

	m.logger.Debug("Announced user on connection",
		slog.String("connID", connID.String()),
		slog.String("userID", userID),
		slog.Bool("cameOnline", cameOnline),
	)
	return user, cameOnline, nil
}

func (m *InMemoryManager) DeregisterConnection(connID uuid.UUID) (state.DisconnectResult, error) {
	var result state.DisconnectResult

	m.connMu.Lock()
	conn, ok := m.conns[connID]
	if !ok {
		// connection is already deregistered
		m.connMu.Unlock()
		return result, nil
	}
	delete(m.conns, connID)
	if conn.AuthUserID != "" {
		m.authConns[conn.AuthUserID]--
		if m.authConns[conn.AuthUserID] <= 0 {
			delete(m.authConns, conn.AuthUserID)
		}
	}
	m.connMu.Unlock()

	// detach conn from user; the last connection going away is the offline edge
	if conn.User != nil {
		m.userMu.Lock()
		user := conn.User
		delete(user.Connections, connID)
		result.UserID = user.ID
		if len(user.Connections) == 0 {
			delete(m.users, user.ID)
			result.Transition = &state.PresenceTransition{UserID: user.ID, Online: false}
		}
		m.userMu.Unlock()
		m.logger.Debug("Detached connection from user",
			slog.String("connID", connID.String()),
			slog.String("userID", user.ID),
			slog.Bool("wentOffline", result.Transition != nil),
		)
	}

	// collect the rooms this connection was subscribed to so the caller can
	// evict it; the membership index entry is consumed here
	m.roomMu.Lock()
	if joined, ok := m.connRooms[connID]; ok {
		result.Rooms = make([]string, 0, len(joined))
		for roomID := range joined {
			result.Rooms = append(result.Rooms, roomID)
		}
		delete(m.connRooms, connID)
	}
	m.roomMu.Unlock()

	m.logger.Debug("Connection deregistered", slog.String("connID", connID.String()))
	return result, nil
}

func (m *InMemoryManager) GetConnection(connID uuid.UUID) (*state.Connection, bool) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	conn, ok := m.conns[connID]
	return conn, ok
}

// GetAllConnections copies the connection table so callers can walk every
// live connection without holding the manager's locks.
func (m *InMemoryManager) GetAllConnections() []*state.Connection {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	conns := make([]*state.Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	return conns
}

// FindOldestUserConnection scans by authenticated identity so that a
// connection that upgraded but never announced is still a cycling candidate.
func (m *InMemoryManager) FindOldestUserConnection(userID string) (*state.Connection, bool) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	var oldestConn *state.Connection
	var oldestTime time.Time

	for _, conn := range m.conns {
		if conn.AuthUserID != userID {
			continue
		}
		if oldestConn == nil || conn.CreatedAt.Before(oldestTime) {
			oldestConn = conn
			oldestTime = conn.CreatedAt
		}
	}

	if oldestConn == nil {
		return nil, false
	}
	return oldestConn, true
}

// --- Presence ---

func (m *InMemoryManager) Resolve(userID string) []*state.Connection {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	user, ok := m.users[userID]
	if !ok {
		return nil // User is offline.
	}
	conns := make([]*state.Connection, 0, len(user.Connections))
	for _, c := range user.Connections {
		conns = append(conns, c)
	}
	return conns
}

func (m *InMemoryManager) GetUserConnectionCount(userID string) (int, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	user, ok := m.users[userID]
	if !ok {
		return 0, nil // User doesn't exist yet, so they have 0 connections.
	}
	return len(user.Connections), nil
}

func (m *InMemoryManager) GetAuthUserConnectionCount(userID string) (int, error) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return m.authConns[userID], nil
}

func (m *InMemoryManager) GetAllUsers() ([]*state.User, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	users := make([]*state.User, len(m.users))
	i := 0
	for _, u := range m.users {
		users[i] = u
		i++
	}
	return users, nil
}

// --- Room Membership ---

func (m *InMemoryManager) Join(roomID string, connID uuid.UUID) error {
	m.connMu.RLock()
	conn, ok := m.conns[connID]
	m.connMu.RUnlock()
	if !ok {
		return errors.New("cannot join room: connection not found")
	}

	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	// Find or create the room.
	room, exists := m.rooms[roomID]
	if !exists {
		room = &state.Room{
			ID:          roomID,
			Subscribers: make(map[uuid.UUID]*state.Connection),
		}
		m.rooms[roomID] = room
	}

	// Idempotent: joining a room twice leaves a single subscription.
	room.Subscribers[connID] = conn

	joined, ok := m.connRooms[connID]
	if !ok {
		joined = make(map[string]struct{})
		m.connRooms[connID] = joined
	}
	joined[roomID] = struct{}{}

	m.logger.Debug("Connection joined room", slog.String("connID", connID.String()), slog.String("roomID", roomID))
	return nil
}

func (m *InMemoryManager) Leave(roomID string, connID uuid.UUID) error {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		// Room doesn't exist; leaving it is a no-op.
		return nil
	}

	delete(room.Subscribers, connID)
	if joined, ok := m.connRooms[connID]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(m.connRooms, connID)
		}
	}

	// For memory hygiene, remove the room if it's now empty.
	if len(room.Subscribers) == 0 {
		delete(m.rooms, roomID)
		m.logger.Debug("Removed empty room", slog.String("roomID", roomID))
	}

	m.logger.Debug("Connection left room", slog.String("connID", connID.String()), slog.String("roomID", roomID))
	return nil
}

func (m *InMemoryManager) Subscribers(roomID string) []*state.Connection {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	// Snapshot: later joins and leaves do not affect the returned slice.
	subs := make([]*state.Connection, 0, len(room.Subscribers))
	for _, c := range room.Subscribers {
		subs = append(subs, c)
	}
	return subs
}

func (m *InMemoryManager) Evict(connID uuid.UUID, roomIDs []string) {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	for _, roomID := range roomIDs {
		room, ok := m.rooms[roomID]
		if !ok {
			continue
		}
		delete(room.Subscribers, connID)
		if len(room.Subscribers) == 0 {
			delete(m.rooms, roomID)
			m.logger.Debug("Removed empty room", slog.String("roomID", roomID))
		}
	}
	delete(m.connRooms, connID)
}

func (m *InMemoryManager) FindRoom(roomID string) (*state.Room, bool) {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()
	room, ok := m.rooms[roomID]
	return room, ok
}
