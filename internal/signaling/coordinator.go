// Package signaling holds the per-call state machine for point-to-point call
// setup. Sessions are ephemeral: they live in memory, are never persisted, and
// are discarded as soon as they reach a terminal state.
package signaling

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zabha5/chatapp/internal/observability"
)

// Outbound call-signaling event names.
const (
	EventIncomingCall = "incoming_call"
	EventCallAccepted = "call_accepted"
	EventCallRejected = "call_rejected"
	EventCallEnded    = "call_ended"
	EventCallFailed   = "call_failed"
)

var (
	ErrCalleeOffline  = errors.New("callee has no live connections")
	ErrUnknownCall    = errors.New("unknown or already-terminal call")
	ErrNotCallee      = errors.New("only the designated callee may respond")
	ErrNotParticipant = errors.New("user is not a participant of this call")
)

type SessionState string

const (
	StateInitiated SessionState = "INITIATED"
	StateRinging   SessionState = "RINGING"
	StateAccepted  SessionState = "ACCEPTED"
	StateRejected  SessionState = "REJECTED"
	StateEnded     SessionState = "ENDED"
)

// Session tracks one call-signaling exchange between two users.
type Session struct {
	ID             uuid.UUID
	CallerID       string
	CalleeID       string
	ConversationID string
	CallType       string // audio, video
	State          SessionState
	CreatedAt      time.Time
}

// Notifier delivers an outbound event to every live connection of a user and
// reports how many connections received it. Satisfied by the event router.
type Notifier interface {
	SendToUser(userID, event string, payload any) int
}

// Presence answers whether a user currently has live connections. Satisfied by
// the state manager.
type Presence interface {
	GetUserConnectionCount(userID string) (int, error)
}

type IncomingCallPayload struct {
	CallID         string `json:"callId"`
	FromUserID     string `json:"fromUserId"`
	ConversationID string `json:"conversationId"`
	CallType       string `json:"callType"`
}

type CallStatePayload struct {
	CallID   string `json:"callId"`
	ByUserID string `json:"byUserId"`
}

// Coordinator owns all live call sessions. A single mutex guards the session
// table; call volume is orders of magnitude below message volume, so per-call
// locking is not warranted.
type Coordinator struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session

	presence Presence
	notifier Notifier
	metrics  *observability.Metrics
	logger   *slog.Logger
}

func NewCoordinator(logger *slog.Logger, presence Presence, notifier Notifier, metrics *observability.Metrics) *Coordinator {
	return &Coordinator{
		sessions: make(map[uuid.UUID]*Session),
		presence: presence,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "signaling_coordinator")),
	}
}

// Initiate starts a call from caller to callee. When the callee is offline it
// fails with ErrCalleeOffline and no session is created. Otherwise the session
// moves straight to RINGING and incoming_call is delivered to every callee
// connection.
func (c *Coordinator) Initiate(callerID, calleeID, conversationID, callType string) (uuid.UUID, error) {
	count, err := c.presence.GetUserConnectionCount(calleeID)
	if err != nil {
		return uuid.Nil, err
	}
	if count == 0 {
		c.logger.Debug("Call to offline callee rejected",
			slog.String("callerID", callerID),
			slog.String("calleeID", calleeID),
		)
		if c.metrics != nil {
			c.metrics.CallsInitiated.WithLabelValues("callee_offline").Inc()
		}
		return uuid.Nil, ErrCalleeOffline
	}

	session := &Session{
		ID:             uuid.New(),
		CallerID:       callerID,
		CalleeID:       calleeID,
		ConversationID: conversationID,
		CallType:       callType,
		State:          StateInitiated,
		CreatedAt:      time.Now(),
	}

	c.mu.Lock()
	session.State = StateRinging
	c.sessions[session.ID] = session
	c.mu.Unlock()

	c.notifier.SendToUser(calleeID, EventIncomingCall, IncomingCallPayload{
		CallID:         session.ID.String(),
		FromUserID:     callerID,
		ConversationID: conversationID,
		CallType:       callType,
	})
	if c.metrics != nil {
		c.metrics.CallsInitiated.WithLabelValues("ringing").Inc()
	}

	c.logger.Info("Call ringing",
		slog.String("callID", session.ID.String()),
		slog.String("callerID", callerID),
		slog.String("calleeID", calleeID),
	)
	return session.ID, nil
}

// Accept moves a ringing call to ACCEPTED and notifies the caller. Only the
// designated callee may accept.
func (c *Coordinator) Accept(callID uuid.UUID, respondingUserID string) error {
	c.mu.Lock()
	session, ok := c.sessions[callID]
	if !ok || session.State != StateRinging {
		c.mu.Unlock()
		return ErrUnknownCall
	}
	if session.CalleeID != respondingUserID {
		c.mu.Unlock()
		return ErrNotCallee
	}
	session.State = StateAccepted
	callerID := session.CallerID
	c.mu.Unlock()

	c.notifier.SendToUser(callerID, EventCallAccepted, CallStatePayload{
		CallID:   callID.String(),
		ByUserID: respondingUserID,
	})
	c.logger.Info("Call accepted", slog.String("callID", callID.String()))
	return nil
}

// Reject moves a ringing call to REJECTED, notifies the caller and discards
// the session.
func (c *Coordinator) Reject(callID uuid.UUID, respondingUserID string) error {
	c.mu.Lock()
	session, ok := c.sessions[callID]
	if !ok || session.State != StateRinging {
		c.mu.Unlock()
		return ErrUnknownCall
	}
	if session.CalleeID != respondingUserID {
		c.mu.Unlock()
		return ErrNotCallee
	}
	session.State = StateRejected
	callerID := session.CallerID
	delete(c.sessions, callID)
	c.mu.Unlock()

	c.notifier.SendToUser(callerID, EventCallRejected, CallStatePayload{
		CallID:   callID.String(),
		ByUserID: respondingUserID,
	})
	c.logger.Info("Call rejected", slog.String("callID", callID.String()))
	return nil
}

// End terminates a ringing or accepted call. Either participant may end it;
// the other party is notified and the session is discarded.
func (c *Coordinator) End(callID uuid.UUID, requestingUserID string) error {
	c.mu.Lock()
	session, ok := c.sessions[callID]
	if !ok || (session.State != StateRinging && session.State != StateAccepted) {
		c.mu.Unlock()
		return ErrUnknownCall
	}
	var otherParty string
	switch requestingUserID {
	case session.CallerID:
		otherParty = session.CalleeID
	case session.CalleeID:
		otherParty = session.CallerID
	default:
		c.mu.Unlock()
		return ErrNotParticipant
	}
	session.State = StateEnded
	delete(c.sessions, callID)
	c.mu.Unlock()

	c.notifier.SendToUser(otherParty, EventCallEnded, CallStatePayload{
		CallID:   callID.String(),
		ByUserID: requestingUserID,
	})
	c.logger.Info("Call ended", slog.String("callID", callID.String()))
	return nil
}

// ActiveSession reports the live session for a call id, if any.
func (c *Coordinator) ActiveSession(callID uuid.UUID) (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session, ok := c.sessions[callID]
	if !ok {
		return Session{}, false
	}
	return *session, true
}
