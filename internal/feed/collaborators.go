// Package feed implements the conversation feed synchronization engine:
// a bounded, ordered window of items kept consistent across pagination,
// a live event stream, and optimistic local writes.
package feed

import (
	"context"

	"github.com/feedline/feedline/internal/models"
)

// MessageQuerier is the read side of the external message store.
type MessageQuerier interface {
	// QueryMessages returns items beyond the query cursor in feed order.
	QueryMessages(ctx context.Context, conversationID string, q models.ItemQuery) ([]models.FeedItem, error)

	// CountMessages returns how many items lie beyond the query cursor,
	// for exact has-more flags.
	CountMessages(ctx context.Context, conversationID string, q models.ItemQuery) (int, error)

	// GetMessage fetches a single item by id.
	GetMessage(ctx context.Context, conversationID, id string) (*models.FeedItem, error)
}

// MessageWriter is the write side of the external message store. The
// store keeps a client-generated id, so the returned item's id matches
// the optimistic placeholder's.
type MessageWriter interface {
	InsertMessage(ctx context.Context, item models.FeedItem) (*models.FeedItem, error)
}

// ReadMarker persists read receipts in batches.
type ReadMarker interface {
	MarkRead(ctx context.Context, ids []string) error
}

// ProfileResolver looks up author display identities.
type ProfileResolver interface {
	GetProfiles(ctx context.Context, ids []string) ([]models.Profile, error)
}

// ReactionStore persists emoji reactions and rehydrates summaries for
// loaded pages.
type ReactionStore interface {
	AddReaction(ctx context.Context, itemID, userID, emoji string) error
	RemoveReaction(ctx context.Context, itemID, userID, emoji string) error
	ReactionSummaries(ctx context.Context, itemIDs []string, viewerID string) (map[string]map[string]models.ReactionSummary, error)
}

// EventSource delivers a conversation's live events. Delivery is
// at-least-once, unordered, and may gap; the engine's merge absorbs
// duplicates and reordering.
type EventSource interface {
	Subscribe(conversationID string) (<-chan models.FeedEvent, func())
}

// Backend bundles the collaborators a Controller needs. The engine
// consumes these interfaces and never implements them.
type Backend struct {
	Querier    MessageQuerier
	Writer     MessageWriter
	ReadMarker ReadMarker
	Profiles   ProfileResolver
	Reactions  ReactionStore
	Events     EventSource
}

// Viewport abstracts renderer geometry so anchor and pagination logic
// stay testable without a real renderer.
type Viewport interface {
	// FirstVisible returns the id and offset (px from viewport top) of
	// the first partially-or-fully visible item.
	FirstVisible() (id string, offset int, ok bool)

	// ElementOffset returns an item's current offset from the viewport
	// top, if rendered.
	ElementOffset(id string) (offset int, ok bool)

	// ScrollBy adjusts the scroll position by a pixel delta.
	ScrollBy(delta int)

	// ScrollToItem brings an item into view.
	ScrollToItem(id string)
}
