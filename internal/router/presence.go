package router

import "log/slog"

// broadcastPresence announces a genuine online/offline transition to every
// *other* currently-connected user. The callers (user_online handling and the
// disconnect path) only invoke it on a zero-crossing of the user's connection
// count, so each transition is broadcast exactly once.
//
// Presence is deliberately global rather than friend-scoped: this layer has no
// friend-list collaborator, so every connected user learns of every
// transition.
func (r *EventRouter) broadcastPresence(userID string, online bool) {
	status := "offline"
	if online {
		status = "online"
	}
	payload := StatusChangePayload{UserID: userID, Status: status}

	users, err := r.stateManager.GetAllUsers()
	if err != nil {
		r.logger.Error("Failed to enumerate users for presence broadcast", slog.Any("error", err))
		return
	}

	notified := 0
	for _, u := range users {
		if u.ID == userID {
			continue
		}
		notified += r.SendToUser(u.ID, EventUserStatusChange, payload)
	}

	if r.metrics != nil {
		r.metrics.PresenceBroadcasts.WithLabelValues(status).Inc()
		if online {
			r.metrics.OnlineUsers.Inc()
		} else {
			r.metrics.OnlineUsers.Dec()
		}
	}

	r.logger.Debug("Presence transition broadcast",
		slog.String("userID", userID),
		slog.String("status", status),
		slog.Int("connections_notified", notified),
	)
}
