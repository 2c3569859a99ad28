package feed

import (
	"sort"
	"time"

	"github.com/feedline/feedline/internal/models"
)

// Window is the in-memory ordered item store for one conversation:
// a sorted slice keyed by id, ordered by (CreatedAt, id).
//
// Window is not safe for concurrent use; the owning Controller
// serializes access.
type Window struct {
	items []*models.FeedItem
	byID  map[string]*models.FeedItem
}

// MergeResult reports what a merge changed.
type MergeResult struct {
	Added   int
	Updated int
}

// NewWindow creates an empty window.
func NewWindow() *Window {
	return &Window{byID: make(map[string]*models.FeedItem)}
}

// Len returns the number of loaded items.
func (w *Window) Len() int {
	return len(w.items)
}

// Get returns the loaded item with the given id.
func (w *Window) Get(id string) (*models.FeedItem, bool) {
	item, ok := w.byID[id]
	if !ok {
		return nil, false
	}
	return item.Clone(), true
}

// Contains reports whether an id is loaded.
func (w *Window) Contains(id string) bool {
	_, ok := w.byID[id]
	return ok
}

// Items returns a copy of the loaded items in feed order.
func (w *Window) Items() []models.FeedItem {
	out := make([]models.FeedItem, len(w.items))
	for i, item := range w.items {
		out[i] = *item.Clone()
	}
	return out
}

// IDs returns the loaded ids in feed order.
func (w *Window) IDs() []string {
	out := make([]string, len(w.items))
	for i, item := range w.items {
		out[i] = item.ID
	}
	return out
}

// First returns the oldest loaded item.
func (w *Window) First() (*models.FeedItem, bool) {
	if len(w.items) == 0 {
		return nil, false
	}
	return w.items[0].Clone(), true
}

// Last returns the newest loaded item.
func (w *Window) Last() (*models.FeedItem, bool) {
	if len(w.items) == 0 {
		return nil, false
	}
	return w.items[len(w.items)-1].Clone(), true
}

// insertionIndex finds where a new item belongs: after the last existing
// item whose timestamp is not later than the new one. Equal-timestamp
// items therefore keep their arrival order, which keeps bursty sends
// stable.
func (w *Window) insertionIndex(item *models.FeedItem) int {
	return sort.Search(len(w.items), func(i int) bool {
		return w.items[i].CreatedAt.After(item.CreatedAt)
	})
}

// Merge inserts new ids in sort order and updates matching ids in
// place. Merging is idempotent and order-independent: any interleaving
// of pagination pages, live events, and optimistic inserts converges to
// the same sorted, deduplicated set.
func (w *Window) Merge(incoming []models.FeedItem) MergeResult {
	var result MergeResult
	for i := range incoming {
		item := incoming[i]
		existing, ok := w.byID[item.ID]
		if !ok {
			clone := item.Clone()
			idx := w.insertionIndex(clone)
			w.items = append(w.items, nil)
			copy(w.items[idx+1:], w.items[idx:])
			w.items[idx] = clone
			w.byID[clone.ID] = clone
			result.Added++
			continue
		}
		if w.updateInPlace(existing, &item) {
			result.Updated++
		}
	}
	return result
}

// Apply updates an already-loaded item with changed fields, preserving
// locally-held fields the update omits. Returns false when the id is
// not loaded.
func (w *Window) Apply(update models.FeedItem) bool {
	existing, ok := w.byID[update.ID]
	if !ok {
		return false
	}
	w.updateInPlace(existing, &update)
	return true
}

// updateInPlace shallow-merges incoming server fields over the existing
// item. Client-only data the incoming payload lacks (reply snippet,
// reaction summaries) is carried over rather than overwritten with
// nothing. Items whose sort key is unchanged are never re-sorted.
func (w *Window) updateInPlace(existing *models.FeedItem, incoming *models.FeedItem) bool {
	changed := false

	if !incoming.CreatedAt.IsZero() && !incoming.CreatedAt.Equal(existing.CreatedAt) {
		w.reposition(existing, incoming.CreatedAt)
		changed = true
	}
	if incoming.Body != "" && incoming.Body != existing.Body {
		existing.Body = incoming.Body
		changed = true
	}
	if incoming.AuthorID != "" && incoming.AuthorID != existing.AuthorID {
		existing.AuthorID = incoming.AuthorID
		changed = true
	}
	if incoming.ConversationID != "" {
		existing.ConversationID = incoming.ConversationID
	}
	if incoming.Attachment != nil {
		att := *incoming.Attachment
		existing.Attachment = &att
		changed = true
	}
	if incoming.ReplyToID != "" && incoming.ReplyToID != existing.ReplyToID {
		existing.ReplyToID = incoming.ReplyToID
		changed = true
	}
	if incoming.ReplySnippet != nil {
		snip := *incoming.ReplySnippet
		existing.ReplySnippet = &snip
		changed = true
	}
	if incoming.Read && !existing.Read {
		existing.Read = true
		changed = true
	}
	if incoming.DeliveryState != "" && incoming.DeliveryState != existing.DeliveryState {
		existing.DeliveryState = incoming.DeliveryState
		changed = true
	}
	if incoming.Reactions != nil {
		existing.Reactions = make(map[string]models.ReactionSummary, len(incoming.Reactions))
		for emoji, summary := range incoming.Reactions {
			if summary.ReactorIDs != nil {
				summary.ReactorIDs = append([]string(nil), summary.ReactorIDs...)
			}
			existing.Reactions[emoji] = summary
		}
		changed = true
	}
	return changed
}

// reposition moves an item whose timestamp changed to its new slot.
// Happens when a pending item's local timestamp is replaced by the
// server-assigned one.
func (w *Window) reposition(item *models.FeedItem, newCreatedAt time.Time) {
	for i, candidate := range w.items {
		if candidate == item {
			w.items = append(w.items[:i], w.items[i+1:]...)
			break
		}
	}
	item.CreatedAt = newCreatedAt
	idx := w.insertionIndex(item)
	w.items = append(w.items, nil)
	copy(w.items[idx+1:], w.items[idx:])
	w.items[idx] = item
}

// Remove deletes an item from the window.
func (w *Window) Remove(id string) bool {
	item, ok := w.byID[id]
	if !ok {
		return false
	}
	delete(w.byID, id)
	for i, candidate := range w.items {
		if candidate == item {
			w.items = append(w.items[:i], w.items[i+1:]...)
			break
		}
	}
	return true
}

// SetDeliveryState updates the delivery state of a loaded item.
func (w *Window) SetDeliveryState(id string, state models.DeliveryState) bool {
	item, ok := w.byID[id]
	if !ok {
		return false
	}
	item.DeliveryState = state
	return true
}

// SetReactions replaces the reaction summaries of a loaded item.
func (w *Window) SetReactions(id string, reactions map[string]models.ReactionSummary) bool {
	item, ok := w.byID[id]
	if !ok {
		return false
	}
	item.Reactions = reactions
	return true
}

// MarkRead flags loaded items as read, returning how many changed.
func (w *Window) MarkRead(ids []string) int {
	changed := 0
	for _, id := range ids {
		if item, ok := w.byID[id]; ok && !item.Read {
			item.Read = true
			changed++
		}
	}
	return changed
}

// Clear tears the window down.
func (w *Window) Clear() {
	w.items = nil
	w.byID = make(map[string]*models.FeedItem)
}
