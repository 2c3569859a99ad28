package models

import "time"

// Cursor marks one edge of a loaded window: the id and timestamp of the
// boundary item. Tuple comparison on (CreatedAt, ID) matches feed order.
type Cursor struct {
	ID        string
	CreatedAt time.Time
}

// ItemQuery describes one range query against the message store.
// At most one of After/Before is set; both nil means "from the end".
type ItemQuery struct {
	// After selects items strictly after the cursor in feed order.
	After *Cursor

	// Before selects items strictly before the cursor in feed order.
	Before *Cursor

	// Limit caps the number of returned items. Zero means store default.
	Limit int

	// Descending returns items newest-first. Used when paginating older
	// items so the rows nearest the window come first.
	Descending bool
}
