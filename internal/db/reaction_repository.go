package db

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/feedline/feedline/internal/models"
)

// ReactionRepository handles emoji reaction persistence.
type ReactionRepository struct {
	db *DB
}

// NewReactionRepository creates a new ReactionRepository.
func NewReactionRepository(db *DB) *ReactionRepository {
	return &ReactionRepository{db: db}
}

// AddReaction records a reaction. Adding the same reaction twice is a
// no-op so at-least-once callers stay idempotent.
func (r *ReactionRepository) AddReaction(ctx context.Context, itemID, userID, emoji string) error {
	if itemID == "" || userID == "" || emoji == "" {
		return fmt.Errorf("item id, user id and emoji are required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO reactions (item_id, user_id, emoji) VALUES (?, ?, ?)
	`, itemID, userID, emoji)
	if err != nil {
		return fmt.Errorf("failed to add reaction: %w", err)
	}
	return nil
}

// RemoveReaction deletes a reaction. Removing an absent reaction is a no-op.
func (r *ReactionRepository) RemoveReaction(ctx context.Context, itemID, userID, emoji string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM reactions WHERE item_id = ? AND user_id = ? AND emoji = ?
	`, itemID, userID, emoji)
	if err != nil {
		return fmt.Errorf("failed to remove reaction: %w", err)
	}
	return nil
}

// ReactionSummaries returns per-item, per-emoji aggregates for the given
// items. Used to rehydrate reactions when a page is loaded.
func (r *ReactionRepository) ReactionSummaries(ctx context.Context, itemIDs []string, viewerID string) (map[string]map[string]models.ReactionSummary, error) {
	out := make(map[string]map[string]models.ReactionSummary)
	if len(itemIDs) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(itemIDs))
	args := make([]any, len(itemIDs))
	for i, id := range itemIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT item_id, emoji, user_id FROM reactions
		WHERE item_id IN (%s)
		ORDER BY item_id, emoji, user_id
	`, strings.Join(placeholders, ","))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var itemID, emoji, userID string
		if err := rows.Scan(&itemID, &emoji, &userID); err != nil {
			return nil, fmt.Errorf("failed to scan reaction: %w", err)
		}

		byEmoji := out[itemID]
		if byEmoji == nil {
			byEmoji = make(map[string]models.ReactionSummary)
			out[itemID] = byEmoji
		}
		summary := byEmoji[emoji]
		summary.Count++
		summary.ReactorIDs = append(summary.ReactorIDs, userID)
		if userID == viewerID {
			summary.ReactedByViewer = true
		}
		byEmoji[emoji] = summary
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reactions: %w", err)
	}

	for _, byEmoji := range out {
		for emoji, summary := range byEmoji {
			sort.Strings(summary.ReactorIDs)
			byEmoji[emoji] = summary
		}
	}
	return out, nil
}
