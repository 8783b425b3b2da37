package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
)

// PostgresStore implements MessageStore and UserDirectory over a relational
// schema owned by the CRUD side of the application.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var (
	_ MessageStore  = (*PostgresStore)(nil)
	_ UserDirectory = (*PostgresStore)(nil)
)

// NewPostgresStore opens a connection pool for the given DSN and verifies it.
func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{
		db:     db,
		logger: logger.With(slog.String("component", "postgres_store")),
	}, nil
}

// NewPostgresStoreWithDB wraps an existing pool; used by tests.
func NewPostgresStoreWithDB(db *sql.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger.With(slog.String("component", "postgres_store")),
	}
}

func (s *PostgresStore) Append(ctx context.Context, conversationID, senderID, content string) (*MessageRecord, error) {
	record := &MessageRecord{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, content)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		conversationID, senderID, content,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	s.logger.Debug("Message persisted",
		slog.Int64("messageID", record.ID),
		slog.String("conversationID", conversationID),
	)
	return record, nil
}

func (s *PostgresStore) MarkRead(ctx context.Context, messageID int64, userID string) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO message_reads (message_id, user_id)
		 VALUES ($1, $2)
		 ON CONFLICT (message_id, user_id) DO NOTHING`,
		messageID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}
	if _, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to read mark-read result: %w", err)
	}
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`,
		userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to look up user: %w", err)
	}
	return exists, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
