package models

import (
	"errors"
	"testing"
	"time"
)

func TestFeedItemValidate(t *testing.T) {
	item := FeedItem{
		ID:             "itm-1",
		ConversationID: "conv-1",
		AuthorID:       "user-1",
		CreatedAt:      time.Now().UTC(),
		Body:           "hello",
	}
	if err := item.Validate(); err != nil {
		t.Fatalf("valid item rejected: %v", err)
	}

	missing := item
	missing.Body = ""
	if err := missing.Validate(); !errors.Is(err, ErrEmptyItem) {
		t.Fatalf("expected ErrEmptyItem, got %v", err)
	}

	attachmentOnly := item
	attachmentOnly.Body = ""
	attachmentOnly.Attachment = &Attachment{Ref: "media/1", Kind: AttachmentImage}
	if err := attachmentOnly.Validate(); err != nil {
		t.Fatalf("attachment-only item rejected: %v", err)
	}

	noTime := item
	noTime.CreatedAt = time.Time{}
	if err := noTime.Validate(); !errors.Is(err, ErrMissingTimestamp) {
		t.Fatalf("expected ErrMissingTimestamp, got %v", err)
	}
}

func TestFeedEventValidate(t *testing.T) {
	update := FeedEvent{Type: FeedEventUpdate, Item: FeedItem{ID: "itm-1"}}
	if err := update.Validate(); err != nil {
		t.Fatalf("sparse update rejected: %v", err)
	}

	if err := (&FeedEvent{Type: "delete"}).Validate(); err == nil {
		t.Fatal("unknown event type accepted")
	}

	insert := FeedEvent{Type: FeedEventInsert, Item: FeedItem{ID: "itm-1"}}
	if err := insert.Validate(); err == nil {
		t.Fatal("insert without required fields accepted")
	}
}

func TestFeedItemOrderingAndClone(t *testing.T) {
	base := time.Now().UTC()
	a := &FeedItem{ID: "a", CreatedAt: base}
	b := &FeedItem{ID: "b", CreatedAt: base}
	c := &FeedItem{ID: "c", CreatedAt: base.Add(time.Second)}

	if !a.Before(b) || b.Before(a) {
		t.Fatal("id tie-break broken for equal timestamps")
	}
	if !a.Before(c) || c.Before(a) {
		t.Fatal("timestamp ordering broken")
	}

	a.Reactions = map[string]ReactionSummary{
		"👍": {Count: 1, ReactorIDs: []string{"user-1"}},
	}
	clone := a.Clone()
	clone.Reactions["👍"] = ReactionSummary{Count: 2}
	if a.Reactions["👍"].Count != 1 {
		t.Fatal("clone shares reaction map with original")
	}
}
