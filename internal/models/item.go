package models

import (
	"time"
)

// DeliveryState tracks the lifecycle of a locally-originated item.
type DeliveryState string

const (
	// DeliveryPending means the item exists only locally and is awaiting
	// server confirmation.
	DeliveryPending DeliveryState = "pending"

	// DeliveryConfirmed means the server has accepted and persisted the item.
	DeliveryConfirmed DeliveryState = "confirmed"

	// DeliveryFailed means the write was rejected or timed out; the item
	// stays visible and can be retried.
	DeliveryFailed DeliveryState = "failed"
)

// AttachmentKind identifies the media type of an attachment.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentVideo AttachmentKind = "video"
	AttachmentFile  AttachmentKind = "file"
)

// Attachment is a reference to stored media. Upload and storage are
// handled elsewhere; the feed only carries the reference.
type Attachment struct {
	Ref  string         `json:"ref"`
	Kind AttachmentKind `json:"kind"`
}

// ReplySnippet is the denormalized preview of a replied-to item. It is
// attached client-side when available so replies render without an extra
// round trip; when missing, it can be backfilled by fetching the target.
type ReplySnippet struct {
	ItemID         string         `json:"item_id"`
	AuthorID       string         `json:"author_id"`
	AuthorName     string         `json:"author_name,omitempty"`
	Body           string         `json:"body,omitempty"`
	AttachmentKind AttachmentKind `json:"attachment_kind,omitempty"`
}

// ReactionSummary aggregates reactions for one emoji on one item.
type ReactionSummary struct {
	Count           int      `json:"count"`
	ReactedByViewer bool     `json:"reacted_by_viewer"`
	ReactorIDs      []string `json:"reactor_ids,omitempty"`
}

// FeedItem is one message in a conversation feed.
//
// ID is server-assigned once confirmed; before confirmation it holds a
// client-generated id which the server echoes back, so the id is stable
// across the pending -> confirmed transition.
type FeedItem struct {
	ID             string                     `json:"id"`
	ConversationID string                     `json:"conversation_id"`
	AuthorID       string                     `json:"author_id"`
	CreatedAt      time.Time                  `json:"created_at"`
	Body           string                     `json:"body,omitempty"`
	Attachment     *Attachment                `json:"attachment,omitempty"`
	ReplyToID      string                     `json:"reply_to_id,omitempty"`
	ReplySnippet   *ReplySnippet              `json:"reply_snippet,omitempty"`
	Read           bool                       `json:"read"`
	DeliveryState  DeliveryState              `json:"delivery_state,omitempty"`
	Reactions      map[string]ReactionSummary `json:"reactions,omitempty"`
}

// Before reports whether a sorts strictly before b in feed order.
// Feed order is (CreatedAt, ID); the id tie-break keeps equal-timestamp
// bursts in a deterministic total order.
func (a *FeedItem) Before(b *FeedItem) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// Pending reports whether the item is an unconfirmed local placeholder.
func (a *FeedItem) Pending() bool {
	return a.DeliveryState == DeliveryPending
}

// Clone returns a deep copy of the item. The feed hands copies to
// callers so the sorted window is never aliased.
func (a *FeedItem) Clone() *FeedItem {
	if a == nil {
		return nil
	}
	out := *a
	if a.Attachment != nil {
		att := *a.Attachment
		out.Attachment = &att
	}
	if a.ReplySnippet != nil {
		snip := *a.ReplySnippet
		out.ReplySnippet = &snip
	}
	if a.Reactions != nil {
		out.Reactions = make(map[string]ReactionSummary, len(a.Reactions))
		for emoji, summary := range a.Reactions {
			if summary.ReactorIDs != nil {
				summary.ReactorIDs = append([]string(nil), summary.ReactorIDs...)
			}
			out.Reactions[emoji] = summary
		}
	}
	return &out
}
