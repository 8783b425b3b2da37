package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/zabha5/chatapp/internal/signaling"
	"github.com/zabha5/chatapp/pkg/state"
)

// handleUserOnline associates the announced identity with the connection. The
// announced id must match the transport-level authenticated identity and must
// exist in the user directory; on the user's first connection the online
// transition is broadcast.
func (r *EventRouter) handleUserOnline(ctx context.Context, conn *state.Connection, payload json.RawMessage) {
	userID := gjson.GetBytes(payload, "userId").String()
	if userID == "" {
		r.sendError(conn, "user_online requires userId")
		return
	}
	if conn.AuthUserID != "" && conn.AuthUserID != userID {
		r.logger.Warn("Announced identity does not match authenticated identity",
			slog.String("connID", conn.ID.String()),
			slog.String("announced", userID),
			slog.String("authenticated", conn.AuthUserID),
		)
		r.sendError(conn, "announced identity does not match token")
		return
	}
	if r.users != nil {
		exists, err := r.users.Exists(ctx, userID)
		if err != nil {
			r.logger.Error("User directory lookup failed", slog.String("userID", userID), slog.Any("error", err))
			r.sendError(conn, "identity verification unavailable")
			return
		}
		if !exists {
			r.sendError(conn, "unknown user")
			return
		}
	}

	_, cameOnline, err := r.stateManager.AnnounceUser(conn.ID, userID)
	if err != nil {
		// Disconnect races are expected; log, never crash.
		r.logger.Warn("Failed to announce user", slog.String("connID", conn.ID.String()), slog.Any("error", err))
		return
	}
	if cameOnline {
		r.broadcastPresence(userID, true)
	}
}

func (r *EventRouter) handleJoin(conn *state.Connection, payload json.RawMessage) {
	roomID := gjson.GetBytes(payload, "conversationId").String()
	if roomID == "" {
		r.sendError(conn, "join_conversation requires conversationId")
		return
	}
	if err := r.stateManager.Join(roomID, conn.ID); err != nil {
		r.logger.Warn("Join failed", slog.String("roomID", roomID), slog.Any("error", err))
		r.sendError(conn, "failed to join conversation")
	}
}

func (r *EventRouter) handleLeave(conn *state.Connection, payload json.RawMessage) {
	roomID := gjson.GetBytes(payload, "conversationId").String()
	if roomID == "" {
		r.sendError(conn, "leave_conversation requires conversationId")
		return
	}
	// Leave is idempotent; there is nothing to report on a no-op.
	if err := r.stateManager.Leave(roomID, conn.ID); err != nil {
		r.logger.Warn("Leave failed", slog.String("roomID", roomID), slog.Any("error", err))
	}
}

// handleSendMessage persists the message and only then fans it out to the
// conversation. A store failure is reported to the origin and nothing is
// broadcast: clients must never see content the store did not commit.
func (r *EventRouter) handleSendMessage(ctx context.Context, conn *state.Connection, payload json.RawMessage) {
	roomID := gjson.GetBytes(payload, "conversationId").String()
	content := gjson.GetBytes(payload, "content").String()
	if roomID == "" || content == "" {
		r.sendError(conn, "send_message requires conversationId and content")
		return
	}

	record, err := r.messages.Append(ctx, roomID, conn.User.ID, content)
	if err != nil {
		r.logger.Error("Failed to persist message",
			slog.String("conversationID", roomID),
			slog.String("senderID", conn.User.ID),
			slog.Any("error", err),
		)
		if r.metrics != nil {
			r.metrics.MessagesPersisted.WithLabelValues("error").Inc()
		}
		r.sendError(conn, "message could not be saved")
		return
	}
	if r.metrics != nil {
		r.metrics.MessagesPersisted.WithLabelValues("success").Inc()
	}

	r.SendToRoom(roomID, EventNewMessage, record, conn.ID)
}

func (r *EventRouter) handleMarkRead(ctx context.Context, conn *state.Connection, payload json.RawMessage) {
	messageID := gjson.GetBytes(payload, "messageId").Int()
	if messageID == 0 {
		r.sendError(conn, "mark_read requires messageId")
		return
	}
	if err := r.messages.MarkRead(ctx, messageID, conn.User.ID); err != nil {
		r.logger.Error("Failed to mark message read", slog.Int64("messageID", messageID), slog.Any("error", err))
		r.sendError(conn, "failed to mark message read")
	}
}

// handleTyping relays a typing indicator to the conversation, excluding the
// typist's own connection.
func (r *EventRouter) handleTyping(conn *state.Connection, payload json.RawMessage, start bool) {
	roomID := gjson.GetBytes(payload, "conversationId").String()
	if roomID == "" {
		r.sendError(conn, "typing events require conversationId")
		return
	}
	event := EventTypingStop
	out := TypingPayload{UserID: conn.User.ID, ConversationID: roomID}
	if start {
		event = EventTypingStart
		out.UserName = gjson.GetBytes(payload, "userName").String()
	}
	r.SendToRoom(roomID, event, out, conn.ID)
}

func (r *EventRouter) handleInitiateCall(conn *state.Connection, payload json.RawMessage) {
	calleeID := gjson.GetBytes(payload, "toUserId").String()
	conversationID := gjson.GetBytes(payload, "conversationId").String()
	callType := gjson.GetBytes(payload, "callType").String()
	if calleeID == "" {
		r.sendError(conn, "initiate_call requires toUserId")
		return
	}

	callID, err := r.signaling.Initiate(conn.User.ID, calleeID, conversationID, callType)
	if errors.Is(err, signaling.ErrCalleeOffline) {
		r.sendToOrigin(conn, signaling.EventCallFailed, CallFailedPayload{Reason: "callee_offline"})
		return
	}
	if err != nil {
		r.logger.Error("Failed to initiate call", slog.String("calleeID", calleeID), slog.Any("error", err))
		r.sendError(conn, "failed to initiate call")
		return
	}
	// Hand the generated call id back to the caller so they can reference the
	// session in accept/end traffic.
	r.sendToOrigin(conn, EventCallInitiated, signaling.CallStatePayload{
		CallID:   callID.String(),
		ByUserID: conn.User.ID,
	})
}

// handleCallResponse covers accept_call, reject_call and end_call, which share
// a payload shape and an error taxonomy.
func (r *EventRouter) handleCallResponse(conn *state.Connection, payload json.RawMessage, respond func(uuid.UUID, string) error) {
	rawCallID := gjson.GetBytes(payload, "callId").String()
	callID, err := uuid.Parse(rawCallID)
	if err != nil {
		r.sendError(conn, "invalid callId")
		return
	}

	switch err := respond(callID, conn.User.ID); {
	case err == nil:
	case errors.Is(err, signaling.ErrUnknownCall):
		r.sendError(conn, "unknown call")
	case errors.Is(err, signaling.ErrNotCallee), errors.Is(err, signaling.ErrNotParticipant):
		r.sendError(conn, "not a participant of this call")
	default:
		r.logger.Error("Call response failed", slog.String("callID", rawCallID), slog.Any("error", err))
		r.sendError(conn, "call operation failed")
	}
}
