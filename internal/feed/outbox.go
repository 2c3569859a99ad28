package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/feedline/feedline/internal/models"
)

// Outbox errors.
var (
	ErrNotPending  = errors.New("item is not a failed pending send")
	ErrItemMissing = errors.New("item not loaded")
)

// SendInput is the author-provided content of a new item.
type SendInput struct {
	Body       string
	Attachment *models.Attachment
	ReplyToID  string
}

// Send inserts an optimistic pending item and writes it through. The
// client assigns the id up front and the store echoes it back, so the
// live insert for our own send is matched by id alone, never by
// content. Returns the assigned id.
func (c *Controller) Send(ctx context.Context, input SendInput) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}

	item := &models.FeedItem{
		ID:             c.idGen(),
		ConversationID: c.conversationID,
		AuthorID:       c.viewerID,
		CreatedAt:      c.now(),
		Body:           input.Body,
		Attachment:     input.Attachment,
		ReplyToID:      input.ReplyToID,
		// Own sends never count as unread.
		Read:          true,
		DeliveryState: models.DeliveryPending,
	}
	if input.ReplyToID != "" {
		if target, ok := c.window.Get(input.ReplyToID); ok {
			item.ReplySnippet = snippetOf(target, c.profileNameLocked(target.AuthorID))
		}
	}

	c.outbox[item.ID] = item
	c.window.Merge([]models.FeedItem{*item})
	c.mu.Unlock()

	return item.ID, c.writeThrough(ctx, item.ID)
}

// RetrySend re-submits a failed pending item under its original id and
// timestamp. The placeholder already in the window is reused, so a
// retry never shows a second copy.
func (c *Controller) RetrySend(ctx context.Context, localID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	item, ok := c.outbox[localID]
	if !ok || item.DeliveryState != models.DeliveryFailed {
		c.mu.Unlock()
		return ErrNotPending
	}
	item.DeliveryState = models.DeliveryPending
	c.window.SetDeliveryState(localID, models.DeliveryPending)
	c.mu.Unlock()

	return c.writeThrough(ctx, localID)
}

// writeThrough persists one pending outbox item and settles its
// delivery state.
func (c *Controller) writeThrough(ctx context.Context, localID string) error {
	c.mu.Lock()
	pending, ok := c.outbox[localID]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	toWrite := pending.Clone()
	c.mu.Unlock()

	stored, err := c.backend.Writer.InsertMessage(ctx, *toWrite)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if err != nil {
		if item, still := c.outbox[localID]; still {
			item.DeliveryState = models.DeliveryFailed
			c.window.SetDeliveryState(localID, models.DeliveryFailed)
		}
		return c.surface(fmt.Errorf("failed to send message: %w", err))
	}
	if stored != nil {
		c.confirmLocked(*stored)
	} else {
		c.confirmLocked(*toWrite)
	}
	return nil
}

// confirmLocked settles a pending outbox item against its stored form:
// the store-assigned fields replace the optimistic ones and the item
// leaves the outbox. Callers hold c.mu. Confirming an already-settled
// id is a no-op, so the write-through response and the echoed live
// insert can both land. A placeholder no longer in the window was
// discarded by a context-jump splice; the send still settles, but the
// confirmed item is not merged into the now-disjoint window.
func (c *Controller) confirmLocked(stored models.FeedItem) {
	if _, pending := c.outbox[stored.ID]; !pending {
		return
	}
	delete(c.outbox, stored.ID)
	if !c.window.Contains(stored.ID) {
		return
	}

	stored.DeliveryState = models.DeliveryConfirmed
	stored.Read = true
	c.window.Merge([]models.FeedItem{stored})
	c.window.SetDeliveryState(stored.ID, models.DeliveryConfirmed)
}

// PendingCount returns how many sends await confirmation or retry.
func (c *Controller) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outbox)
}

func (c *Controller) profileNameLocked(authorID string) string {
	if profile, ok := c.profiles[authorID]; ok {
		return profile.DisplayName
	}
	return ""
}

// MarkItemViewed records that an item became visible: the local read
// flag and unread counter update immediately, and the backend write is
// debounced through the read-receipt batcher.
func (c *Controller) MarkItemViewed(itemID string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	item, ok := c.window.Get(itemID)
	if !ok || item.Read || item.AuthorID == c.viewerID {
		c.mu.Unlock()
		return
	}
	c.window.MarkRead([]string{itemID})
	if c.unread > 0 {
		c.unread--
	}
	if c.unread == 0 {
		c.bannerID = ""
	}
	c.mu.Unlock()

	c.receipts.MarkViewed(itemID)
}

// MarkConversationRead flags every loaded unread item as read and
// flushes the receipt batch immediately, bypassing the debounce.
func (c *Controller) MarkConversationRead(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	var ids []string
	for _, item := range c.window.Items() {
		if !item.Read && item.AuthorID != c.viewerID {
			ids = append(ids, item.ID)
		}
	}
	c.window.MarkRead(ids)
	c.unread = 0
	c.bannerID = ""
	c.mu.Unlock()

	for _, id := range ids {
		c.receipts.MarkViewed(id)
	}
	return c.receipts.Flush(ctx)
}

// ToggleReaction optimistically adds or removes the viewer's reaction
// on a loaded item, then writes through. A failed write rolls the
// summary back to the pre-toggle state.
func (c *Controller) ToggleReaction(ctx context.Context, itemID, emoji string) error {
	if c.backend.Reactions == nil {
		return ErrBackendMissing
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	item, ok := c.window.Get(itemID)
	if !ok {
		c.mu.Unlock()
		return ErrItemMissing
	}

	previous := item.Reactions
	adding := true
	if summary, ok := previous[emoji]; ok && summary.ReactedByViewer {
		adding = false
	}
	c.window.SetReactions(itemID, toggleSummary(previous, emoji, c.viewerID, adding))
	c.mu.Unlock()

	var err error
	if adding {
		err = c.backend.Reactions.AddReaction(ctx, itemID, c.viewerID, emoji)
	} else {
		err = c.backend.Reactions.RemoveReaction(ctx, itemID, c.viewerID, emoji)
	}
	if err != nil {
		c.mu.Lock()
		if !c.closed {
			c.window.SetReactions(itemID, previous)
		}
		c.mu.Unlock()
		return c.surface(fmt.Errorf("failed to toggle reaction: %w", err))
	}
	return nil
}

// toggleSummary returns a copy of the reaction map with the viewer's
// reaction applied or withdrawn.
func toggleSummary(reactions map[string]models.ReactionSummary, emoji, viewerID string, adding bool) map[string]models.ReactionSummary {
	out := make(map[string]models.ReactionSummary, len(reactions)+1)
	for key, summary := range reactions {
		if summary.ReactorIDs != nil {
			summary.ReactorIDs = append([]string(nil), summary.ReactorIDs...)
		}
		out[key] = summary
	}

	summary := out[emoji]
	if adding {
		if !summary.ReactedByViewer {
			summary.Count++
			summary.ReactedByViewer = true
			summary.ReactorIDs = append(summary.ReactorIDs, viewerID)
		}
	} else {
		if summary.ReactedByViewer {
			summary.Count--
			summary.ReactedByViewer = false
			filtered := summary.ReactorIDs[:0]
			for _, id := range summary.ReactorIDs {
				if id != viewerID {
					filtered = append(filtered, id)
				}
			}
			summary.ReactorIDs = filtered
		}
	}

	if summary.Count <= 0 {
		delete(out, emoji)
	} else {
		out[emoji] = summary
	}
	return out
}
