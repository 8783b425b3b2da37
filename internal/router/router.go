// Package router is the delivery-fanout engine: it dispatches inbound client
// events to their handlers and routes outbound events to the connections
// resolved through the state manager.
package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/zabha5/chatapp/internal/observability"
	"github.com/zabha5/chatapp/internal/signaling"
	"github.com/zabha5/chatapp/internal/store"
	"github.com/zabha5/chatapp/pkg/state"
)

type EventRouter struct {
	logger       *slog.Logger
	stateManager state.Manager
	messages     store.MessageStore
	users        store.UserDirectory
	signaling    *signaling.Coordinator
	metrics      *observability.Metrics
}

func NewEventRouter(logger *slog.Logger, stateManager state.Manager, messages store.MessageStore, users store.UserDirectory, metrics *observability.Metrics) *EventRouter {
	r := &EventRouter{
		logger:       logger.With(slog.String("component", "event_router")),
		stateManager: stateManager,
		messages:     messages,
		users:        users,
		metrics:      metrics,
	}
	r.signaling = signaling.NewCoordinator(logger, stateManager, r, metrics)
	return r
}

// HandleMessage is the single entry point for inbound client traffic. It is
// invoked by the transport's read pump with the raw frame.
func (r *EventRouter) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	var clientMsg ClientMessage
	if err := json.Unmarshal(msg, &clientMsg); err != nil {
		r.logger.Warn("Failed to unmarshal client message", "connID", connID, "error", err)
		return
	}

	conn, ok := r.stateManager.GetConnection(connID)
	if !ok {
		// The connection raced its own disconnect; nothing to do.
		r.logger.Warn("Message from unknown connection", "connID", connID, "event", clientMsg.Event)
		return
	}

	r.logger.Debug("Handling client event", slog.String("event", clientMsg.Event), slog.String("connID", connID.String()))

	if clientMsg.Event == EventUserOnline {
		r.handleUserOnline(ctx, conn, clientMsg.Payload)
		return
	}

	// Every other event requires an announced identity.
	if conn.User == nil {
		r.logger.Warn("Event before user_online announcement", "connID", connID, "event", clientMsg.Event)
		r.sendError(conn, "identity not announced")
		return
	}

	switch clientMsg.Event {
	case EventJoinConversation:
		r.handleJoin(conn, clientMsg.Payload)
	case EventLeaveConversation:
		r.handleLeave(conn, clientMsg.Payload)
	case EventSendMessage:
		r.handleSendMessage(ctx, conn, clientMsg.Payload)
	case EventMarkRead:
		r.handleMarkRead(ctx, conn, clientMsg.Payload)
	case EventTypingStart:
		r.handleTyping(conn, clientMsg.Payload, true)
	case EventTypingStop:
		r.handleTyping(conn, clientMsg.Payload, false)
	case EventInitiateCall:
		r.handleInitiateCall(conn, clientMsg.Payload)
	case EventAcceptCall:
		r.handleCallResponse(conn, clientMsg.Payload, r.signaling.Accept)
	case EventRejectCall:
		r.handleCallResponse(conn, clientMsg.Payload, r.signaling.Reject)
	case EventEndCall:
		r.handleCallResponse(conn, clientMsg.Payload, r.signaling.End)
	default:
		r.logger.Warn("Received unknown event", "event", clientMsg.Event, "connID", connID)
		r.sendError(conn, "unknown event: "+clientMsg.Event)
	}
}

// HandleDisconnect runs the full disconnect cleanup for a connection:
// deregister, evict from every joined room, and broadcast the offline
// transition when this was the user's last connection. It must complete even
// when the underlying transport is already dead.
func (r *EventRouter) HandleDisconnect(connID uuid.UUID) {
	result, err := r.stateManager.DeregisterConnection(connID)
	if err != nil {
		r.logger.Error("Failed to deregister connection", slog.String("connID", connID.String()), slog.Any("error", err))
		return
	}
	if len(result.Rooms) > 0 {
		r.stateManager.Evict(connID, result.Rooms)
	}
	if result.Transition != nil {
		r.broadcastPresence(result.Transition.UserID, false)
	}
}
