package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/feedline/feedline/internal/models"
)

func TestTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)

	failure := errors.New("boom")
	err := database.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, author_id, created_at, read)
			VALUES ('tx-1', 'conv-1', 'user-1', '2026-03-01T12:00:00.000000000Z', 0)
		`); err != nil {
			t.Fatalf("insert inside tx: %v", err)
		}
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected the callback error back, got %v", err)
	}

	var count int
	if err := database.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback to discard the insert, found %d rows", count)
	}
}

func TestTransactionWithRetryRetriesBusyErrors(t *testing.T) {
	database := openTestDB(t)

	attempts := 0
	err := database.TransactionWithRetry(context.Background(), func(*sql.Tx) error {
		attempts++
		return errors.New("database is locked (5) (SQLITE_BUSY)")
	})
	if err == nil {
		t.Fatal("expected the busy error to surface after retries")
	}
	if attempts != defaultRetryAttempts {
		t.Fatalf("expected %d attempts, got %d", defaultRetryAttempts, attempts)
	}
}

func TestTransactionWithRetryDoesNotRetryOtherErrors(t *testing.T) {
	database := openTestDB(t)

	attempts := 0
	failure := errors.New("constraint violated")
	err := database.TransactionWithRetry(context.Background(), func(*sql.Tx) error {
		attempts++
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected the callback error back, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestTransactionWithRetryHonorsCancelledContext(t *testing.T) {
	database := openTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := database.TransactionWithRetry(ctx, func(*sql.Tx) error {
		t.Fatal("callback must not run with a cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWritePathsCommitThroughRetry(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(openTestDB(t))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	stored, err := repo.InsertMessage(ctx, models.FeedItem{
		ConversationID: "conv-1",
		AuthorID:       "user-1",
		CreatedAt:      base,
		Body:           "hello",
	})
	if err != nil {
		t.Fatalf("InsertMessage: %v", err)
	}

	if err := repo.MarkRead(ctx, []string{stored.ID}); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	got, err := repo.GetMessage(ctx, "conv-1", stored.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if !got.Read {
		t.Fatal("expected the committed read flag to persist")
	}

	if _, err := repo.InsertMessage(ctx, models.FeedItem{
		ID:             stored.ID,
		ConversationID: "conv-1",
		AuthorID:       "user-1",
		CreatedAt:      base,
		Body:           "duplicate",
	}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID through the transaction wrapper, got %v", err)
	}
}
