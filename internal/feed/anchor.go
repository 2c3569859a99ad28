package feed

// AnchorSnapshot records the topmost visible item and its offset from
// the viewport top, captured immediately before an older-page merge
// changes the content height above it.
type AnchorSnapshot struct {
	ItemID string
	Offset int
}

// CaptureAnchor snapshots the current anchor, or nil when the viewport
// has no visible item to anchor on.
func CaptureAnchor(viewport Viewport) *AnchorSnapshot {
	id, offset, ok := viewport.FirstVisible()
	if !ok {
		return nil
	}
	return &AnchorSnapshot{ItemID: id, Offset: offset}
}

// RestoreAnchor scrolls so the anchored item sits at its captured
// offset again. Deltas at or below jitterPx are left alone so restores
// after a same-height merge do not cause visible wobble.
func RestoreAnchor(viewport Viewport, snapshot *AnchorSnapshot, jitterPx int) {
	if snapshot == nil {
		return
	}
	offset, ok := viewport.ElementOffset(snapshot.ItemID)
	if !ok {
		// Anchor fell out of the rendered set; nothing to restore against.
		return
	}
	delta := offset - snapshot.Offset
	if delta < 0 {
		delta = -delta
	}
	if delta <= jitterPx {
		return
	}
	viewport.ScrollBy(offset - snapshot.Offset)
}
