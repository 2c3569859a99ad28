package models

import (
	"errors"
	"fmt"
)

// Validation errors.
var (
	ErrMissingID           = errors.New("missing id")
	ErrMissingConversation = errors.New("missing conversation id")
	ErrMissingAuthor       = errors.New("missing author id")
	ErrMissingTimestamp    = errors.New("missing created_at")
	ErrEmptyItem           = errors.New("item has neither body nor attachment")
)

// Validate checks that an item carries the fields every feed operation
// relies on. Delivery state is intentionally not checked: items arriving
// from the server carry none.
func (a *FeedItem) Validate() error {
	if a == nil {
		return fmt.Errorf("item: %w", ErrEmptyItem)
	}
	if a.ID == "" {
		return ErrMissingID
	}
	if a.ConversationID == "" {
		return ErrMissingConversation
	}
	if a.AuthorID == "" {
		return ErrMissingAuthor
	}
	if a.CreatedAt.IsZero() {
		return ErrMissingTimestamp
	}
	if a.Body == "" && a.Attachment == nil {
		return ErrEmptyItem
	}
	return nil
}

// Validate checks a live event before it is applied to a window.
func (e *FeedEvent) Validate() error {
	if e.Type != FeedEventInsert && e.Type != FeedEventUpdate {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.Type == FeedEventInsert {
		return e.Item.Validate()
	}
	// Updates may be sparse, but must at least address an item.
	if e.Item.ID == "" {
		return ErrMissingID
	}
	return nil
}
