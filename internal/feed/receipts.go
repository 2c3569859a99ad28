package feed

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/feedline/feedline/internal/logging"
)

// ReadBatcher accumulates viewed-item ids and flushes them to the
// backend as one batch after a debounce window. Every visibility signal
// restarts the window, so a continuous scroll produces a single write
// once the user pauses. Failed flushes re-queue their ids, so a later
// batch carries them along.
type ReadBatcher struct {
	marker   ReadMarker
	debounce time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	order   []string
	timer   *time.Timer
	closed  bool

	// onFlush is a test hook invoked after each flush attempt.
	onFlush func(ids []string, err error)
}

// NewReadBatcher creates a batcher writing through the given marker.
func NewReadBatcher(marker ReadMarker, debounce time.Duration) *ReadBatcher {
	return &ReadBatcher{
		marker:   marker,
		debounce: debounce,
		logger:   logging.Component("receipts"),
		pending:  make(map[string]struct{}),
	}
}

// MarkViewed queues an item id for the next flush and restarts the
// debounce timer. Duplicate ids within one window collapse.
func (b *ReadBatcher) MarkViewed(itemID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	if _, ok := b.pending[itemID]; !ok {
		b.pending[itemID] = struct{}{}
		b.order = append(b.order, itemID)
	}

	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.debounce, func() {
		b.Flush(context.Background())
	})
}

// Flush writes the accumulated batch immediately. On failure the ids
// are re-queued ahead of anything marked since, preserving view order.
func (b *ReadBatcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.order) == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := b.order
	b.order = nil
	b.pending = make(map[string]struct{})
	b.mu.Unlock()

	err := b.marker.MarkRead(ctx, batch)

	if err != nil {
		b.logger.Warn().Err(err).Int("count", len(batch)).Msg("read receipt flush failed, re-queueing")
		b.mu.Lock()
		if !b.closed {
			requeued := make([]string, 0, len(batch)+len(b.order))
			seen := make(map[string]struct{}, len(batch)+len(b.order))
			for _, id := range batch {
				if _, ok := seen[id]; !ok {
					seen[id] = struct{}{}
					requeued = append(requeued, id)
				}
			}
			for _, id := range b.order {
				if _, ok := seen[id]; !ok {
					seen[id] = struct{}{}
					requeued = append(requeued, id)
				}
			}
			b.order = requeued
			b.pending = seen
		}
		b.mu.Unlock()
	}

	if b.onFlush != nil {
		b.onFlush(batch, err)
	}
	return err
}

// Pending returns how many ids await the next flush.
func (b *ReadBatcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}

// Close stops the timer and drops anything still queued. Receipts are
// best-effort; items stay unread server-side and re-batch on next open.
func (b *ReadBatcher) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.order = nil
	b.pending = make(map[string]struct{})
	return nil
}
