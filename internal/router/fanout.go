package router

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/zabha5/chatapp/pkg/state"
)

// SendToUser resolves all live connections for a user and dispatches the event
// to each. Returns the delivery count; zero when the user is offline — the
// event is simply dropped (fire-and-forget, durable content is the store's
// concern).
func (r *EventRouter) SendToUser(userID, event string, payload any) int {
	msg, err := encodeServerMessage(event, payload)
	if err != nil {
		r.logger.Error("Failed to encode outbound event", slog.String("event", event), slog.Any("error", err))
		return 0
	}
	return r.dispatch(r.stateManager.Resolve(userID), event, msg, uuid.Nil)
}

// SendToRoom dispatches the event to every connection subscribed to the
// conversation, optionally excluding one connection (the sender, so they do
// not receive an echo of their own event). Pass uuid.Nil to exclude nobody.
func (r *EventRouter) SendToRoom(roomID, event string, payload any, exclude uuid.UUID) int {
	msg, err := encodeServerMessage(event, payload)
	if err != nil {
		r.logger.Error("Failed to encode outbound event", slog.String("event", event), slog.Any("error", err))
		return 0
	}
	return r.dispatch(r.stateManager.Subscribers(roomID), event, msg, exclude)
}

// dispatch fans the encoded frame out to the given connections. A write
// failure on one connection never aborts delivery to the rest.
func (r *EventRouter) dispatch(conns []*state.Connection, event string, msg []byte, exclude uuid.UUID) int {
	delivered := 0
	for _, conn := range conns {
		if conn.ID == exclude {
			continue
		}
		if err := conn.Transport.Send(msg); err != nil {
			r.logger.Warn("Failed to deliver event to connection",
				slog.String("event", event),
				slog.String("connID", conn.ID.String()),
				slog.Any("error", err),
			)
			if r.metrics != nil {
				r.metrics.DeliveryFailures.WithLabelValues(event).Inc()
			}
			continue
		}
		delivered++
	}
	if r.metrics != nil && delivered > 0 {
		r.metrics.EventsDelivered.WithLabelValues(event).Add(float64(delivered))
	}
	return delivered
}

func encodeServerMessage(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload for '%s': %w", event, err)
	}
	msg, err := json.Marshal(ServerMessage{Event: event, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope for '%s': %w", event, err)
	}
	return msg, nil
}

func (r *EventRouter) sendError(conn *state.Connection, message string) {
	msg, err := encodeServerMessage(EventError, ErrorPayload{Message: message})
	if err != nil {
		return
	}
	if err := conn.Transport.Send(msg); err != nil {
		r.logger.Warn("Failed to deliver error to origin", slog.String("connID", conn.ID.String()), slog.Any("error", err))
	}
}

func (r *EventRouter) sendToOrigin(conn *state.Connection, event string, payload any) {
	msg, err := encodeServerMessage(event, payload)
	if err != nil {
		r.logger.Error("Failed to encode outbound event", slog.String("event", event), slog.Any("error", err))
		return
	}
	if err := conn.Transport.Send(msg); err != nil {
		r.logger.Warn("Failed to deliver event to origin",
			slog.String("event", event),
			slog.String("connID", conn.ID.String()),
			slog.Any("error", err),
		)
	}
}
