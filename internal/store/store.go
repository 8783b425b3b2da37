package store

import (
	"context"
	"time"
)

// MessageRecord is the durable form of a chat message, as persisted before any
// realtime broadcast.
type MessageRecord struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessageStore is the durable message collaborator. The realtime core appends
// before broadcasting and never broadcasts unpersisted content.
type MessageStore interface {
	Append(ctx context.Context, conversationID, senderID, content string) (*MessageRecord, error)
	MarkRead(ctx context.Context, messageID int64, userID string) error
}

// UserDirectory answers identity lookups for the realtime core.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}
