package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/feedline/feedline/internal/logging"
	"github.com/feedline/feedline/internal/models"
)

// Controller errors.
var (
	ErrClosed         = errors.New("feed controller closed")
	ErrBackendMissing = errors.New("backend collaborator missing")
)

// Config contains the engine tunables for one Controller.
type Config struct {
	// PageSize is how many items each pagination fetch requests.
	PageSize int

	// FetchCooldown is the minimum delay between consecutive pagination
	// fetches.
	FetchCooldown time.Duration

	// ReadFlushDebounce is how long the read-receipt batcher waits after
	// the last visibility signal before flushing.
	ReadFlushDebounce time.Duration

	// JumpContextRadius is how many items to load on each side of a
	// context-jump target.
	JumpContextRadius int

	// AnchorJitterPx is the scroll delta below which anchor restoration
	// is skipped.
	AnchorJitterPx int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		PageSize:          50,
		FetchCooldown:     500 * time.Millisecond,
		ReadFlushDebounce: 200 * time.Millisecond,
		JumpContextRadius: 5,
		AnchorJitterPx:    2,
	}
}

// UnreadQuerier is an optional backend capability. When the querier
// implements it, opening a conversation anchors at the first unread item
// instead of the newest page.
type UnreadQuerier interface {
	CountUnread(ctx context.Context, conversationID, viewerID string) (int, error)
	FirstUnread(ctx context.Context, conversationID, viewerID string) (*models.FeedItem, error)
}

// Controller owns the feed state for one open conversation: the item
// window, cursors, fetch state machine, optimistic outbox, and
// read-receipt batcher. One instance per open conversation; switching
// conversations tears the instance down and creates a new one.
//
// All mutations are serialized under an internal mutex. Fetches run in
// the calling goroutine; the live event loop runs in its own goroutine
// and takes the same mutex, so merges from either side never interleave.
type Controller struct {
	conversationID string
	viewerID       string
	cfg            Config
	backend        Backend
	logger         zerolog.Logger

	now   func() time.Time
	idGen func() string

	mu        sync.Mutex
	window    *Window
	cursors   *Cursors
	gate      *fetchGate
	outbox    map[string]*models.FeedItem
	profiles  map[string]models.Profile
	unread    int
	bannerID  string
	jumpStack []JumpEntry
	viewport  Viewport
	closed    bool

	// Viewport corrections deferred until the renderer has laid out the
	// merged window; consumed by Reanchor.
	pendingAnchor *AnchorSnapshot
	pendingScroll string

	receipts  *ReadBatcher
	events    <-chan models.FeedEvent
	cancelSub func()
	loopDone  chan struct{}
	errs      chan error
}

// Option configures a Controller.
type Option func(*Controller)

// WithNow overrides the clock, used by tests.
func WithNow(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator overrides client id generation, used by tests.
func WithIDGenerator(gen func() string) Option {
	return func(c *Controller) {
		if gen != nil {
			c.idGen = gen
		}
	}
}

// WithViewport attaches renderer geometry so older-page merges preserve
// the visual scroll position. Without a viewport, anchor handling is
// skipped.
func WithViewport(viewport Viewport) Option {
	return func(c *Controller) {
		c.viewport = viewport
	}
}

// NewController creates a controller for one conversation. Open must be
// called before use.
func NewController(conversationID, viewerID string, backend Backend, cfg Config, opts ...Option) (*Controller, error) {
	if backend.Querier == nil || backend.Writer == nil || backend.ReadMarker == nil || backend.Events == nil {
		return nil, ErrBackendMissing
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultConfig().PageSize
	}
	if cfg.JumpContextRadius <= 0 {
		cfg.JumpContextRadius = DefaultConfig().JumpContextRadius
	}

	c := &Controller{
		conversationID: conversationID,
		viewerID:       viewerID,
		cfg:            cfg,
		backend:        backend,
		logger:         logging.Component("feed").With().Str("conversation_id", conversationID).Logger(),
		now:            func() time.Time { return time.Now().UTC() },
		idGen:          func() string { return uuid.New().String() },
		window:         NewWindow(),
		cursors:        NewCursors(),
		outbox:         make(map[string]*models.FeedItem),
		profiles:       make(map[string]models.Profile),
		errs:           make(chan error, 16),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.gate = newFetchGate(cfg.FetchCooldown, c.now)
	c.receipts = NewReadBatcher(backend.ReadMarker, cfg.ReadFlushDebounce)
	return c, nil
}

// Open performs the initial load and starts consuming live events. The
// window anchors at the first unread item when the backend can locate
// one, otherwise at the newest page.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	if err := c.initialLoad(ctx); err != nil {
		return err
	}

	events, cancel := c.backend.Events.Subscribe(c.conversationID)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return ErrClosed
	}
	c.events = events
	c.cancelSub = cancel
	c.loopDone = make(chan struct{})
	c.mu.Unlock()

	go c.eventLoop()
	return nil
}

func (c *Controller) initialLoad(ctx context.Context) error {
	var anchor *models.FeedItem
	if unreads, ok := c.backend.Querier.(UnreadQuerier); ok {
		count, err := unreads.CountUnread(ctx, c.conversationID, c.viewerID)
		if err != nil {
			c.logger.Warn().Err(err).Msg("unread count unavailable, anchoring at newest")
		} else if count > 0 {
			first, err := unreads.FirstUnread(ctx, c.conversationID, c.viewerID)
			if err == nil && first != nil {
				anchor = first
				c.mu.Lock()
				c.unread = count
				c.bannerID = first.ID
				c.mu.Unlock()
			}
		}
	}

	if anchor != nil {
		return c.loadAround(ctx, anchor, c.cfg.PageSize/2)
	}
	return c.loadNewest(ctx)
}

// loadNewest populates an empty window with the newest page.
func (c *Controller) loadNewest(ctx context.Context) error {
	items, err := c.backend.Querier.QueryMessages(ctx, c.conversationID, models.ItemQuery{
		Limit:      c.cfg.PageSize,
		Descending: true,
	})
	if err != nil {
		return c.surface(fmt.Errorf("failed to load messages: %w", err))
	}
	c.hydrate(ctx, items)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.window.Merge(items)
	c.resetCursorsToWindow(ctx, false)
	return nil
}

// loadAround populates the window with a symmetric block around an
// anchor item.
func (c *Controller) loadAround(ctx context.Context, anchor *models.FeedItem, radius int) error {
	block, err := c.contextBlock(ctx, anchor, radius)
	if err != nil {
		return c.surface(fmt.Errorf("failed to load messages: %w", err))
	}
	c.hydrate(ctx, block)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.window.Merge(block)
	c.resetCursorsToWindow(ctx, true)
	return nil
}

// contextBlock fetches an item plus up to radius items on each side.
func (c *Controller) contextBlock(ctx context.Context, target *models.FeedItem, radius int) ([]models.FeedItem, error) {
	cursor := models.Cursor{ID: target.ID, CreatedAt: target.CreatedAt}

	before, err := c.backend.Querier.QueryMessages(ctx, c.conversationID, models.ItemQuery{
		Before:     &cursor,
		Limit:      radius,
		Descending: true,
	})
	if err != nil {
		return nil, err
	}
	after, err := c.backend.Querier.QueryMessages(ctx, c.conversationID, models.ItemQuery{
		After: &cursor,
		Limit: radius,
	})
	if err != nil {
		return nil, err
	}

	block := make([]models.FeedItem, 0, len(before)+len(after)+1)
	block = append(block, before...)
	block = append(block, *target)
	block = append(block, after...)
	return block, nil
}

// resetCursorsToWindow derives both cursors from the current window
// boundaries and computes exact has-more flags. Callers hold c.mu.
// When exact counting fails the flags fall back to optimistic.
func (c *Controller) resetCursorsToWindow(ctx context.Context, optimistic bool) {
	first, ok := c.window.First()
	if !ok {
		c.cursors.Clear()
		return
	}
	last, _ := c.window.Last()

	oldest := models.Cursor{ID: first.ID, CreatedAt: first.CreatedAt}
	newest := models.Cursor{ID: last.ID, CreatedAt: last.CreatedAt}

	hasOlder, hasNewer := optimistic, optimistic
	if olderCount, err := c.backend.Querier.CountMessages(ctx, c.conversationID, models.ItemQuery{Before: &oldest}); err == nil {
		hasOlder = olderCount > 0
	}
	if newerCount, err := c.backend.Querier.CountMessages(ctx, c.conversationID, models.ItemQuery{After: &newest}); err == nil {
		hasNewer = newerCount > 0
	}
	c.cursors.Reset(oldest, newest, hasOlder, hasNewer)
}

// eventLoop consumes the live stream until the subscription closes.
func (c *Controller) eventLoop() {
	defer close(c.loopDone)
	for event := range c.events {
		c.applyEvent(context.Background(), event)
	}
}

// Close tears the controller down: cancels the subscription, flushes
// outstanding read receipts, and discards the window. Safe to call more
// than once; fetches completing after Close are discarded.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancelSub
	done := c.loopDone
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	err := c.receipts.Close()

	c.mu.Lock()
	c.window.Clear()
	c.cursors.Clear()
	c.jumpStack = nil
	c.bannerID = ""
	c.unread = 0
	c.pendingAnchor = nil
	c.pendingScroll = ""
	c.mu.Unlock()

	return err
}

// Items returns the loaded window in feed order.
func (c *Controller) Items() []models.FeedItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window.Items()
}

// Item returns one loaded item by id.
func (c *Controller) Item(id string) (*models.FeedItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window.Get(id)
}

// Profile returns a resolved author profile.
func (c *Controller) Profile(authorID string) (models.Profile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	profile, ok := c.profiles[authorID]
	return profile, ok
}

// HasOlder reports whether older items can be paginated in.
func (c *Controller) HasOlder() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursors.HasOlder()
}

// HasNewer reports whether newer items can be paginated in.
func (c *Controller) HasNewer() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursors.HasNewer()
}

// UnreadCount returns the live unread counter.
func (c *Controller) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

// UnreadBannerID returns the id the unread banner is pinned to, or ""
// when no banner is shown. The pin does not move as further unread
// items arrive; it clears when the conversation is marked read.
func (c *Controller) UnreadBannerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bannerID
}

// Errors exposes the generic error channel surfaced to the UI layer.
func (c *Controller) Errors() <-chan error {
	return c.errs
}

// Reanchor applies deferred viewport corrections: a context-jump target
// is scrolled into view, or an older-page anchor is restored to its
// captured offset. The renderer must call this immediately after it has
// recomputed item geometry for the merged window and before painting;
// against stale geometry the corrections would land in the wrong place.
func (c *Controller) Reanchor() {
	c.mu.Lock()
	viewport := c.viewport
	scroll := c.pendingScroll
	anchor := c.pendingAnchor
	jitter := c.cfg.AnchorJitterPx
	c.pendingScroll = ""
	c.pendingAnchor = nil
	c.mu.Unlock()

	if viewport == nil {
		return
	}
	if scroll != "" {
		viewport.ScrollToItem(scroll)
		return
	}
	RestoreAnchor(viewport, anchor, jitter)
}

// surface pushes an error onto the UI error channel and returns it.
func (c *Controller) surface(err error) error {
	if err == nil {
		return nil
	}
	select {
	case c.errs <- err:
	default:
		// UI is not draining; drop rather than block the engine.
	}
	return err
}

// hydrate resolves author profiles and reaction summaries for a page of
// items before it is merged. Hydration failures degrade to unhydrated
// items rather than failing the page.
func (c *Controller) hydrate(ctx context.Context, items []models.FeedItem) {
	if len(items) == 0 {
		return
	}

	if c.backend.Profiles != nil {
		ids := make([]string, 0, len(items))
		seen := make(map[string]struct{}, len(items))
		for i := range items {
			author := items[i].AuthorID
			if _, ok := seen[author]; ok {
				continue
			}
			seen[author] = struct{}{}
			c.mu.Lock()
			_, cached := c.profiles[author]
			c.mu.Unlock()
			if !cached {
				ids = append(ids, author)
			}
		}
		if len(ids) > 0 {
			profiles, err := c.backend.Profiles.GetProfiles(ctx, ids)
			if err != nil {
				c.logger.Warn().Err(err).Msg("profile resolution failed")
			} else {
				c.mu.Lock()
				for _, profile := range profiles {
					c.profiles[profile.ID] = profile
				}
				c.mu.Unlock()
			}
		}
	}

	if c.backend.Reactions != nil {
		itemIDs := make([]string, len(items))
		for i := range items {
			itemIDs[i] = items[i].ID
		}
		summaries, err := c.backend.Reactions.ReactionSummaries(ctx, itemIDs, c.viewerID)
		if err != nil {
			c.logger.Warn().Err(err).Msg("reaction rehydration failed")
		} else {
			for i := range items {
				if byEmoji, ok := summaries[items[i].ID]; ok {
					items[i].Reactions = byEmoji
				}
			}
		}
	}

	c.attachReplySnippets(ctx, items)
}

// attachReplySnippets fills missing reply previews: from the loaded
// window when the target is present, otherwise by fetching the target.
func (c *Controller) attachReplySnippets(ctx context.Context, items []models.FeedItem) {
	for i := range items {
		if items[i].ReplyToID == "" || items[i].ReplySnippet != nil {
			continue
		}

		var target *models.FeedItem
		c.mu.Lock()
		if loaded, ok := c.window.Get(items[i].ReplyToID); ok {
			target = loaded
		}
		c.mu.Unlock()

		if target == nil {
			fetched, err := c.backend.Querier.GetMessage(ctx, c.conversationID, items[i].ReplyToID)
			if err != nil {
				c.logger.Debug().Err(err).Str("item_id", items[i].ID).Msg("reply snippet target unavailable")
				continue
			}
			target = fetched
		}

		items[i].ReplySnippet = snippetOf(target, c.profileName(target.AuthorID))
	}
}

func (c *Controller) profileName(authorID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if profile, ok := c.profiles[authorID]; ok {
		return profile.DisplayName
	}
	return ""
}

// snippetOf builds the denormalized reply preview for a target item.
func snippetOf(target *models.FeedItem, authorName string) *models.ReplySnippet {
	snippet := &models.ReplySnippet{
		ItemID:     target.ID,
		AuthorID:   target.AuthorID,
		AuthorName: authorName,
		Body:       target.Body,
	}
	if target.Attachment != nil {
		snippet.AttachmentKind = target.Attachment.Kind
	}
	return snippet
}
