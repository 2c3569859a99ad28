package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feedline/feedline/internal/models"
)

// Message repository errors.
var (
	ErrMessageNotFound = errors.New("message not found")
	ErrDuplicateID     = errors.New("message id already exists")
)

const defaultQueryLimit = 100

// storedTimeFormat is RFC3339 with a fixed-width fraction. Timestamps
// are compared as strings inside the cursor SQL, so the width must not
// vary with trailing zeros.
const storedTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// MessageRepository handles message persistence and range queries.
type MessageRepository struct {
	db *DB
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// QueryMessages returns items in the conversation beyond the query's
// cursor. The (created_at, id) tuple comparison keeps equal-timestamp
// items on the correct side of the boundary.
func (r *MessageRepository) QueryMessages(ctx context.Context, conversationID string, q models.ItemQuery) ([]models.FeedItem, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	query := `SELECT id, conversation_id, author_id, created_at, body, attachment_ref, attachment_kind, reply_to_id, read
		FROM messages WHERE conversation_id = ?`
	args := []any{conversationID}

	if q.After != nil {
		query += ` AND (created_at, id) > (?, ?)`
		args = append(args, q.After.CreatedAt.UTC().Format(storedTimeFormat), q.After.ID)
	}
	if q.Before != nil {
		query += ` AND (created_at, id) < (?, ?)`
		args = append(args, q.Before.CreatedAt.UTC().Format(storedTimeFormat), q.Before.ID)
	}

	if q.Descending {
		query += ` ORDER BY created_at DESC, id DESC`
	} else {
		query += ` ORDER BY created_at, id`
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var items []models.FeedItem
	for rows.Next() {
		item, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return items, nil
}

// CountMessages returns how many items lie beyond the query's cursor.
// Pagination uses this for an exact has-more flag instead of inferring
// it from a full page.
func (r *MessageRepository) CountMessages(ctx context.Context, conversationID string, q models.ItemQuery) (int, error) {
	query := `SELECT COUNT(*) FROM messages WHERE conversation_id = ?`
	args := []any{conversationID}

	if q.After != nil {
		query += ` AND (created_at, id) > (?, ?)`
		args = append(args, q.After.CreatedAt.UTC().Format(storedTimeFormat), q.After.ID)
	}
	if q.Before != nil {
		query += ` AND (created_at, id) < (?, ?)`
		args = append(args, q.Before.CreatedAt.UTC().Format(storedTimeFormat), q.Before.ID)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// GetMessage retrieves one item by id within a conversation.
func (r *MessageRepository) GetMessage(ctx context.Context, conversationID, id string) (*models.FeedItem, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, author_id, created_at, body, attachment_ref, attachment_kind, reply_to_id, read
		FROM messages WHERE conversation_id = ? AND id = ?
	`, conversationID, id)

	item, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return item, nil
}

// InsertMessage persists a new item. A client-generated id is kept as the
// permanent id so optimistic senders can match the confirmed item; when
// the id is empty one is assigned.
func (r *MessageRepository) InsertMessage(ctx context.Context, item models.FeedItem) (*models.FeedItem, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	} else {
		item.CreatedAt = item.CreatedAt.UTC()
	}
	item.DeliveryState = ""

	if err := item.Validate(); err != nil {
		return nil, err
	}

	var attachmentRef, attachmentKind sql.NullString
	if item.Attachment != nil {
		attachmentRef = sql.NullString{String: item.Attachment.Ref, Valid: true}
		attachmentKind = sql.NullString{String: string(item.Attachment.Kind), Valid: true}
	}

	err := r.db.TransactionWithRetry(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, author_id, created_at, body, attachment_ref, attachment_kind, reply_to_id, read)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			item.ID,
			item.ConversationID,
			item.AuthorID,
			item.CreatedAt.Format(storedTimeFormat),
			nullIfEmpty(item.Body),
			attachmentRef,
			attachmentKind,
			nullIfEmpty(item.ReplyToID),
			boolToInt(item.Read),
		)
		return err
	})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return nil, ErrDuplicateID
		}
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	stored := item
	return &stored, nil
}

// MarkRead flags the given items as read in a single batch.
func (r *MessageRepository) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`UPDATE messages SET read = 1 WHERE id IN (%s)`, strings.Join(placeholders, ","))
	err := r.db.TransactionWithRetry(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to mark messages read: %w", err)
	}
	return nil
}

// CountUnread returns how many items in the conversation are unread and
// not authored by the viewer.
func (r *MessageRepository) CountUnread(ctx context.Context, conversationID, viewerID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE conversation_id = ? AND read = 0 AND author_id != ?
	`, conversationID, viewerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

// FirstUnread returns the oldest unread item not authored by the viewer,
// or nil when everything is read.
func (r *MessageRepository) FirstUnread(ctx context.Context, conversationID, viewerID string) (*models.FeedItem, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, author_id, created_at, body, attachment_ref, attachment_kind, reply_to_id, read
		FROM messages
		WHERE conversation_id = ? AND read = 0 AND author_id != ?
		ORDER BY created_at, id LIMIT 1
	`, conversationID, viewerID)

	item, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*models.FeedItem, error) {
	var item models.FeedItem
	var createdAt string
	var body, attachmentRef, attachmentKind, replyToID sql.NullString
	var read int

	if err := row.Scan(
		&item.ID,
		&item.ConversationID,
		&item.AuthorID,
		&createdAt,
		&body,
		&attachmentRef,
		&attachmentKind,
		&replyToID,
		&read,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}

	t, err := time.Parse(storedTimeFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message timestamp: %w", err)
	}
	item.CreatedAt = t
	item.Body = body.String
	item.ReplyToID = replyToID.String
	item.Read = read != 0
	if attachmentRef.Valid {
		item.Attachment = &models.Attachment{
			Ref:  attachmentRef.String,
			Kind: models.AttachmentKind(attachmentKind.String),
		}
	}
	return &item, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
