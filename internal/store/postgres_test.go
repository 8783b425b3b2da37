package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

// setupMockDB creates a new mock database for testing.
func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresStore) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	return db, mock, NewPostgresStoreWithDB(db, newTestLogger())
}

func TestPostgresStore_Append(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("INSERT INTO messages").
		WithArgs("conv-1", "user-1", "hello").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(42), now))

	record, err := s.Append(context.Background(), "conv-1", "user-1", "hello")
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if record.ID != 42 {
		t.Errorf("Expected message ID 42, got %d", record.ID)
	}
	if record.ConversationID != "conv-1" || record.SenderID != "user-1" || record.Content != "hello" {
		t.Errorf("Record fields not carried through: %+v", record)
	}
	if !record.CreatedAt.Equal(now) {
		t.Errorf("Expected created_at %v, got %v", now, record.CreatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestPostgresStore_AppendError(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO messages").
		WithArgs("conv-1", "user-1", "hello").
		WillReturnError(errors.New("connection refused"))

	if _, err := s.Append(context.Background(), "conv-1", "user-1", "hello"); err == nil {
		t.Fatal("Expected Append to surface the database error")
	}
}

func TestPostgresStore_MarkRead(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec("INSERT INTO message_reads").
		WithArgs(int64(42), "user-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.MarkRead(context.Background(), 42, "user-2"); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestPostgresStore_MarkReadIdempotent(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	// ON CONFLICT DO NOTHING: zero rows affected is still success.
	mock.ExpectExec("INSERT INTO message_reads").
		WithArgs(int64(42), "user-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.MarkRead(context.Background(), 42, "user-2"); err != nil {
		t.Fatalf("Duplicate MarkRead should not error: %v", err)
	}
}

func TestPostgresStore_Exists(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.Exists(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !ok {
		t.Error("Expected user to exist")
	}

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err = s.Exists(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if ok {
		t.Error("Expected user not to exist")
	}
}
