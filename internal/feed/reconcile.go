package feed

import (
	"context"

	"github.com/feedline/feedline/internal/models"
)

// applyEvent folds one live event into the window. Events are applied
// in arrival order; the window re-derives (CreatedAt, id) order itself,
// so out-of-order arrival relative to creation time is harmless. The
// merge is idempotent, so duplicate delivery is absorbed silently.
func (c *Controller) applyEvent(ctx context.Context, event models.FeedEvent) {
	if err := event.Validate(); err != nil {
		c.logger.Debug().Err(err).Msg("dropping malformed event")
		return
	}
	if event.Item.ConversationID != "" && event.Item.ConversationID != c.conversationID {
		return
	}

	switch event.Type {
	case models.FeedEventInsert:
		c.applyInsert(ctx, event.Item)
	case models.FeedEventUpdate:
		c.applyUpdate(event.Item)
	}
}

// applyInsert merges a newly created item. Duplicate ids are dropped;
// an insert carrying the id of a pending local item is its confirmation
// echoing back over the stream.
func (c *Controller) applyInsert(ctx context.Context, item models.FeedItem) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	if _, pending := c.outbox[item.ID]; pending {
		// The echo of our own send. When the placeholder was dropped by
		// a context-jump splice, the send settles without rejoining the
		// disjoint window.
		c.confirmLocked(item)
		c.mu.Unlock()
		return
	}
	if c.window.Contains(item.ID) {
		// Duplicate delivery: already merged, drop.
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	// Resolve author and reply context before the item becomes visible.
	page := []models.FeedItem{item}
	c.hydrate(ctx, page)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.window.Contains(item.ID) {
		// Raced with a pagination merge while hydrating.
		return
	}

	c.window.Merge(page)

	if item.AuthorID != c.viewerID && !item.Read {
		c.unread++
		// The banner pin is set once and never chased by later arrivals.
		if c.bannerID == "" {
			c.bannerID = item.ID
		}
	}

	// An insert older than the oldest cursor still joins the window, but
	// boundaries only move through explicit pagination.
}

// applyUpdate replaces changed fields on an existing item, preserving
// locally-held fields the update omits. Updates for items outside the
// loaded window are ignored; pagination will fetch the fresh row.
func (c *Controller) applyUpdate(item models.FeedItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if !c.window.Apply(item) {
		c.logger.Debug().Str("item_id", item.ID).Msg("update for unloaded item ignored")
	}
}
