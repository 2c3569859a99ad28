package models

// FeedEventType categorizes live feed events.
type FeedEventType string

const (
	// FeedEventInsert announces a newly created item.
	FeedEventInsert FeedEventType = "insert"

	// FeedEventUpdate announces changed fields on an existing item.
	FeedEventUpdate FeedEventType = "update"
)

// FeedEvent is one message on a conversation's live event stream.
//
// Delivery is at-least-once and not strictly ordered: consumers must
// deduplicate inserts by id and tolerate updates arriving before the
// insert they modify.
type FeedEvent struct {
	Type FeedEventType `json:"type"`
	Item FeedItem      `json:"item"`
}
