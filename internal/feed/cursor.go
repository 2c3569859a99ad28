package feed

import "github.com/feedline/feedline/internal/models"

// Cursors tracks the oldest and newest loaded window edges and whether
// more items exist beyond each. Cursors only move through explicit
// pagination or a context-jump reset; live inserts never widen the
// boundary flags.
type Cursors struct {
	oldest   *models.Cursor
	newest   *models.Cursor
	hasOlder bool
	hasNewer bool
}

// NewCursors creates an empty tracker for a freshly opened window.
func NewCursors() *Cursors {
	return &Cursors{}
}

// Oldest returns the oldest-edge cursor, or nil before the first load.
func (c *Cursors) Oldest() *models.Cursor {
	return c.oldest
}

// Newest returns the newest-edge cursor, or nil before the first load.
func (c *Cursors) Newest() *models.Cursor {
	return c.newest
}

// HasOlder reports whether items older than the window exist.
func (c *Cursors) HasOlder() bool {
	return c.hasOlder
}

// HasNewer reports whether items newer than the window exist.
func (c *Cursors) HasNewer() bool {
	return c.hasNewer
}

// AdvanceOlder moves the oldest edge after a successful older-page
// merge. Called only by the pagination controller.
func (c *Cursors) AdvanceOlder(newOldest models.Cursor, stillMore bool) {
	c.oldest = &newOldest
	c.hasOlder = stillMore
}

// AdvanceNewer moves the newest edge after a successful newer-page
// merge. Called only by the pagination controller.
func (c *Cursors) AdvanceNewer(newNewest models.Cursor, stillMore bool) {
	c.newest = &newNewest
	c.hasNewer = stillMore
}

// Reset replaces both edges, used on initial load and after a context
// jump splices in a disjoint block.
func (c *Cursors) Reset(oldest, newest models.Cursor, hasOlder, hasNewer bool) {
	c.oldest = &oldest
	c.newest = &newest
	c.hasOlder = hasOlder
	c.hasNewer = hasNewer
}

// Clear tears the tracker down on conversation close.
func (c *Cursors) Clear() {
	c.oldest = nil
	c.newest = nil
	c.hasOlder = false
	c.hasNewer = false
}
