package feed

import (
	"context"
	"fmt"

	"github.com/feedline/feedline/internal/models"
)

// JumpEntry records one traversed reply link so the viewer can return
// to where they jumped from.
type JumpEntry struct {
	SourceID string
	TargetID string
}

// JumpTo navigates to a reply target. A loaded target is scrolled to
// directly; an unloaded one is fetched with surrounding context and
// spliced in as the new window island, resetting both cursors around
// the block. Either way the traversal is pushed for JumpBack.
func (c *Controller) JumpTo(ctx context.Context, sourceID, targetID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.window.Contains(targetID) {
		c.jumpStack = append(c.jumpStack, JumpEntry{SourceID: sourceID, TargetID: targetID})
		viewport := c.viewport
		c.mu.Unlock()
		if viewport != nil {
			viewport.ScrollToItem(targetID)
		}
		return nil
	}
	c.mu.Unlock()

	req := PendingFetch{
		Direction: DirectionContext,
		TargetID:  targetID,
		Radius:    c.cfg.JumpContextRadius,
	}
	if err := c.gate.acquire(req); err != nil {
		return err
	}

	err := c.jumpFetchLocked(ctx, req, sourceID)

	queued := c.gate.release()
	if queued != nil {
		c.runQueued(ctx, *queued)
	}
	return err
}

// jumpFetch runs a queued context fetch drained from the gate slot. The
// source of the traversal was lost with the queue slot, so the jump
// stack records the jump as starting from the current window.
func (c *Controller) jumpFetch(ctx context.Context, req PendingFetch) error {
	if err := c.gate.acquire(req); err != nil {
		return err
	}
	err := c.jumpFetchLocked(ctx, req, "")
	queued := c.gate.release()
	if queued != nil {
		c.runQueued(ctx, *queued)
	}
	return err
}

// jumpFetchLocked performs the context fetch while holding the gate.
// A missing target fails without mutating the window.
func (c *Controller) jumpFetchLocked(ctx context.Context, req PendingFetch, sourceID string) error {
	target, err := c.backend.Querier.GetMessage(ctx, c.conversationID, req.TargetID)
	if err != nil {
		// Covers deleted targets too; the window is left untouched.
		return c.surface(fmt.Errorf("failed to load jump target %s: %w", req.TargetID, err))
	}

	radius := req.Radius
	if radius <= 0 {
		radius = c.cfg.JumpContextRadius
	}
	block, err := c.contextBlock(ctx, target, radius)
	if err != nil {
		return c.surface(fmt.Errorf("failed to load jump context: %w", err))
	}
	c.hydrate(ctx, block)

	c.gate.beginUpdate()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}

	// The block replaces the old window rather than extending it; the
	// regions are usually disjoint and the gap between them must not
	// render as contiguous history.
	c.window.Clear()
	c.window.Merge(block)

	first, _ := c.window.First()
	last, _ := c.window.Last()
	c.cursors.Reset(
		models.Cursor{ID: first.ID, CreatedAt: first.CreatedAt},
		models.Cursor{ID: last.ID, CreatedAt: last.CreatedAt},
		true,
		true,
	)

	c.jumpStack = append(c.jumpStack, JumpEntry{SourceID: sourceID, TargetID: req.TargetID})
	// The island is not laid out yet; the scroll is applied by Reanchor
	// once the renderer has geometry for it.
	c.pendingAnchor = nil
	c.pendingScroll = req.TargetID
	return nil
}

// JumpBack pops the most recent traversal and returns to its source.
// A source that left the window (or was recorded without one) jumps
// back through the context path.
func (c *Controller) JumpBack(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if len(c.jumpStack) == 0 {
		c.mu.Unlock()
		return nil
	}
	entry := c.jumpStack[len(c.jumpStack)-1]
	c.jumpStack = c.jumpStack[:len(c.jumpStack)-1]

	if entry.SourceID == "" {
		c.mu.Unlock()
		return nil
	}
	if c.window.Contains(entry.SourceID) {
		viewport := c.viewport
		c.mu.Unlock()
		if viewport != nil {
			viewport.ScrollToItem(entry.SourceID)
		}
		return nil
	}
	c.mu.Unlock()

	req := PendingFetch{
		Direction: DirectionContext,
		TargetID:  entry.SourceID,
		Radius:    c.cfg.JumpContextRadius,
	}
	if err := c.gate.acquire(req); err != nil {
		return err
	}
	// The back traversal itself is not re-recorded.
	err := c.jumpFetchBack(ctx, req)
	queued := c.gate.release()
	if queued != nil {
		c.runQueued(ctx, *queued)
	}
	return err
}

// jumpFetchBack is jumpFetchLocked without pushing a stack entry.
func (c *Controller) jumpFetchBack(ctx context.Context, req PendingFetch) error {
	err := c.jumpFetchLocked(ctx, req, "")
	if err != nil {
		return err
	}
	c.mu.Lock()
	if n := len(c.jumpStack); n > 0 {
		c.jumpStack = c.jumpStack[:n-1]
	}
	c.mu.Unlock()
	return nil
}

// JumpDepth returns how many traversals JumpBack can unwind.
func (c *Controller) JumpDepth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jumpStack)
}
