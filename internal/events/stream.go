// Package events provides the live feed event stream for Feedline.
package events

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/feedline/feedline/internal/logging"
	"github.com/feedline/feedline/internal/models"
)

const defaultSubscribeBuffer = 256

// Stream errors.
var (
	ErrStreamClosed = errors.New("event stream closed")
)

// Subscription is one consumer of a conversation's events. Events are
// delivered on a bounded channel; when the consumer falls behind, the
// oldest undelivered event is dropped. Consumers must treat the stream
// as at-least-once with possible gaps.
type subscription struct {
	id             string
	conversationID string
	ch             chan models.FeedEvent
}

// Publisher is an in-process event stream with per-conversation fanout.
//
// It stands in for whatever transport carries server events; the feed
// engine only sees the channel.
type Publisher struct {
	mu     sync.RWMutex
	subs   map[string]*subscription
	buffer int
	closed bool
	logger zerolog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithBuffer sets the per-subscription channel capacity.
func WithBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.buffer = n
		}
	}
}

// NewPublisher creates an in-process feed event publisher.
func NewPublisher(opts ...Option) *Publisher {
	p := &Publisher{
		subs:   make(map[string]*subscription),
		buffer: defaultSubscribeBuffer,
		logger: logging.Component("events"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe registers a consumer for one conversation's events and
// returns the event channel plus a cancel function. The channel is
// closed when cancelled or when the publisher shuts down.
func (p *Publisher) Subscribe(conversationID string) (<-chan models.FeedEvent, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sub := &subscription{
		id:             uuid.New().String(),
		conversationID: conversationID,
		ch:             make(chan models.FeedEvent, p.buffer),
	}
	if p.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	p.subs[sub.id] = sub

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if existing, ok := p.subs[sub.id]; ok {
			delete(p.subs, sub.id)
			close(existing.ch)
		}
	}
	return sub.ch, cancel
}

// Publish fans an event out to every subscriber of its conversation.
// Slow subscribers lose their oldest buffered event rather than blocking
// the publisher.
func (p *Publisher) Publish(event models.FeedEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrStreamClosed
	}

	for _, sub := range p.subs {
		if sub.conversationID != event.Item.ConversationID {
			continue
		}
		for {
			select {
			case sub.ch <- event:
			default:
				// Buffer full: drop the oldest and retry. Models the
				// "may gap on reconnect" delivery contract.
				select {
				case dropped := <-sub.ch:
					p.logger.Warn().
						Str("conversation_id", sub.conversationID).
						Str("dropped_item_id", dropped.Item.ID).
						Msg("subscriber lagging, dropping oldest event")
					continue
				default:
				}
			}
			break
		}
	}
	return nil
}

// SubscriberCount returns the number of active subscriptions.
func (p *Publisher) SubscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}

// Close shuts the publisher down and closes all subscriber channels.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for id, sub := range p.subs {
		delete(p.subs, id)
		close(sub.ch)
	}
}
