package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/feedline/feedline/internal/models"
)

// FetchState is the pagination state machine's current phase.
type FetchState string

const (
	// FetchIdle means no fetch is in flight; triggers are accepted.
	FetchIdle FetchState = "idle"

	// FetchFetching means the store query is in flight.
	FetchFetching FetchState = "fetching"

	// FetchUpdating means the merge and cursor/viewport commit is in
	// progress.
	FetchUpdating FetchState = "updating"
)

// FetchDirection identifies what a pending fetch extends.
type FetchDirection string

const (
	DirectionOlder   FetchDirection = "older"
	DirectionNewer   FetchDirection = "newer"
	DirectionContext FetchDirection = "context"
)

// Fetch gate errors. Both are treated as no-ops by UI callers.
var (
	ErrFetchInFlight = errors.New("fetch already in flight")
	ErrFetchCooldown = errors.New("fetch cooling down")
)

// PendingFetch describes one in-flight or queued fetch request. Owned
// exclusively by the fetch gate; at most one is active at a time.
type PendingFetch struct {
	Direction FetchDirection
	TargetID  string
	Radius    int

	// fromQueue marks a request drained from the gate's queued slot; it
	// already waited out the active fetch, so the cooldown is waived.
	fromQueue bool
}

// fetchGate is the engine's sole concurrency-control primitive: a
// three-state machine with a single queued slot. It guarantees at most
// one pagination or context fetch is in flight, and damps retriggering
// with a cooldown.
type fetchGate struct {
	mu       sync.Mutex
	state    FetchState
	active   *PendingFetch
	queued   *PendingFetch
	lastDone time.Time
	cooldown time.Duration
	now      func() time.Time
}

func newFetchGate(cooldown time.Duration, now func() time.Time) *fetchGate {
	return &fetchGate{
		state:    FetchIdle,
		cooldown: cooldown,
		now:      now,
	}
}

// acquire claims the fetch slot. While busy, a request for the same
// work as the active fetch is dropped; a different request occupies the
// single queued slot and runs after the active fetch completes.
func (g *fetchGate) acquire(req PendingFetch) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != FetchIdle {
		duplicate := g.active != nil &&
			g.active.Direction == req.Direction &&
			g.active.TargetID == req.TargetID
		if g.queued == nil && !duplicate {
			g.queued = &req
		}
		return ErrFetchInFlight
	}

	if !req.fromQueue && req.Direction != DirectionContext && g.cooldown > 0 && !g.lastDone.IsZero() {
		if g.now().Sub(g.lastDone) < g.cooldown {
			return ErrFetchCooldown
		}
	}

	g.state = FetchFetching
	g.active = &req
	return nil
}

// beginUpdate transitions fetching -> updating once the query resolved
// and the merge/commit phase starts.
func (g *fetchGate) beginUpdate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == FetchFetching {
		g.state = FetchUpdating
	}
}

// release frees the slot and returns any queued follow-up request.
func (g *fetchGate) release() *PendingFetch {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state = FetchIdle
	g.active = nil
	g.lastDone = g.now()

	queued := g.queued
	g.queued = nil
	return queued
}

// State returns the current phase.
func (g *fetchGate) State() FetchState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// FetchState exposes the pagination state machine's phase.
func (c *Controller) FetchState() FetchState {
	return c.gate.State()
}

// FetchOlder extends the window with the next older page. It is a no-op
// when no older items exist, when a fetch is already in flight or
// cooling down, or when the oldest cursor is unset.
func (c *Controller) FetchOlder(ctx context.Context) error {
	return c.fetchPage(ctx, PendingFetch{Direction: DirectionOlder})
}

// FetchNewer extends the window with the next newer page, under the
// same guards as FetchOlder.
func (c *Controller) FetchNewer(ctx context.Context) error {
	return c.fetchPage(ctx, PendingFetch{Direction: DirectionNewer})
}

func (c *Controller) fetchPage(ctx context.Context, req PendingFetch) error {
	cursor, ok := c.resolveEdge(req.Direction)
	if !ok {
		return nil
	}

	if err := c.gate.acquire(req); err != nil {
		return err
	}

	err := c.runFetch(ctx, req, cursor)

	queued := c.gate.release()
	if queued != nil {
		c.runQueued(ctx, *queued)
	}
	return err
}

// resolveEdge re-derives the fetch cursor from the tracked edge id at
// call time, so a fetch never acts on a cursor pagination has since
// moved past. Returns false when the direction has nothing to fetch.
func (c *Controller) resolveEdge(direction FetchDirection) (models.Cursor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return models.Cursor{}, false
	}

	var edge *models.Cursor
	switch direction {
	case DirectionOlder:
		if !c.cursors.HasOlder() {
			return models.Cursor{}, false
		}
		edge = c.cursors.Oldest()
	case DirectionNewer:
		if !c.cursors.HasNewer() {
			return models.Cursor{}, false
		}
		edge = c.cursors.Newest()
	default:
		return models.Cursor{}, false
	}
	if edge == nil {
		return models.Cursor{}, false
	}

	// Prefer the loaded item's timestamp over the recorded one; when the
	// cursor points at an item no longer loaded, fall back to the
	// window boundary itself.
	if item, ok := c.window.Get(edge.ID); ok {
		return models.Cursor{ID: item.ID, CreatedAt: item.CreatedAt}, true
	}
	var boundary *models.FeedItem
	if direction == DirectionOlder {
		boundary, _ = c.window.First()
	} else {
		boundary, _ = c.window.Last()
	}
	if boundary == nil {
		return *edge, true
	}
	return models.Cursor{ID: boundary.ID, CreatedAt: boundary.CreatedAt}, true
}

// runFetch performs the query, hydration, and commit for one page.
// Partial progress is kept on failure; merges are append-only so partial
// data is always valid.
func (c *Controller) runFetch(ctx context.Context, req PendingFetch, cursor models.Cursor) error {
	query := models.ItemQuery{Limit: c.cfg.PageSize}
	if req.Direction == DirectionOlder {
		query.Before = &cursor
		query.Descending = true
	} else {
		query.After = &cursor
	}

	items, err := c.backend.Querier.QueryMessages(ctx, c.conversationID, query)
	if err != nil {
		// Direction flag keeps its last-known value; the next trigger
		// retries.
		return c.surface(fmt.Errorf("failed to load messages: %w", err))
	}

	stillMore, countErr := c.countBeyond(ctx, req.Direction, cursor, items)
	if countErr != nil {
		c.logger.Warn().Err(countErr).Msg("has-more count failed, keeping last-known flag")
	}

	c.hydrate(ctx, items)

	c.gate.beginUpdate()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		// Late result after teardown: discard rather than apply.
		return nil
	}

	var anchor *AnchorSnapshot
	if req.Direction == DirectionOlder && c.viewport != nil {
		anchor = CaptureAnchor(c.viewport)
	}

	c.window.Merge(items)

	switch req.Direction {
	case DirectionOlder:
		if first, ok := c.window.First(); ok {
			newEdge := models.Cursor{ID: first.ID, CreatedAt: first.CreatedAt}
			if countErr != nil {
				stillMore = c.cursors.HasOlder()
			}
			c.cursors.AdvanceOlder(newEdge, stillMore)
		}
		// Restoration must wait for the renderer to lay the merged
		// window out; against pre-merge geometry the delta is zero and
		// the restore would no-op. Reanchor applies it post-layout.
		c.pendingAnchor = anchor
	case DirectionNewer:
		if last, ok := c.window.Last(); ok {
			newEdge := models.Cursor{ID: last.ID, CreatedAt: last.CreatedAt}
			if countErr != nil {
				stillMore = c.cursors.HasNewer()
			}
			c.cursors.AdvanceNewer(newEdge, stillMore)
		}
	}
	return nil
}

// countBeyond computes the exact has-more flag for the direction, using
// the far edge of the fetched page as the new boundary.
func (c *Controller) countBeyond(ctx context.Context, direction FetchDirection, cursor models.Cursor, page []models.FeedItem) (bool, error) {
	boundary := cursor
	if len(page) > 0 {
		// Pages arrive ordered toward the window, so the last element is
		// the new far edge.
		far := page[len(page)-1]
		boundary = models.Cursor{ID: far.ID, CreatedAt: far.CreatedAt}
	}

	query := models.ItemQuery{}
	if direction == DirectionOlder {
		query.Before = &boundary
	} else {
		query.After = &boundary
	}
	count, err := c.backend.Querier.CountMessages(ctx, c.conversationID, query)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// runQueued executes a follow-up request that waited in the gate's
// single slot while another fetch was active.
func (c *Controller) runQueued(ctx context.Context, req PendingFetch) {
	req.fromQueue = true
	var err error
	switch req.Direction {
	case DirectionContext:
		err = c.jumpFetch(ctx, req)
	default:
		err = c.fetchPage(ctx, req)
	}
	if err != nil && !errors.Is(err, ErrFetchInFlight) && !errors.Is(err, ErrFetchCooldown) {
		c.logger.Debug().Err(err).Str("direction", string(req.Direction)).Msg("queued fetch failed")
	}
}
