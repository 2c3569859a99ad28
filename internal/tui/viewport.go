package tui

import "sync"

// lineViewport is the terminal-geometry side of the feed's viewport
// contract: offsets are measured in rendered lines rather than pixels.
// The engine captures and restores scroll anchors through it, so an
// older-page merge never moves what the user is looking at.
type lineViewport struct {
	mu         sync.Mutex
	order      []string
	tops       map[string]int
	totalLines int
	pageLines  int
	scrollTop  int
}

func newLineViewport() *lineViewport {
	return &lineViewport{tops: make(map[string]int)}
}

// relayout replaces the layout after a render pass. heights holds the
// rendered line count per item, in feed order.
func (v *lineViewport) relayout(order []string, heights []int, pageLines int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.order = append(v.order[:0], order...)
	v.tops = make(map[string]int, len(order))
	top := 0
	for i, id := range order {
		v.tops[id] = top
		top += heights[i]
	}
	v.totalLines = top
	v.pageLines = pageLines
	v.clampLocked()
}

func (v *lineViewport) clampLocked() {
	max := v.totalLines - v.pageLines
	if max < 0 {
		max = 0
	}
	if v.scrollTop > max {
		v.scrollTop = max
	}
	if v.scrollTop < 0 {
		v.scrollTop = 0
	}
}

// FirstVisible returns the topmost item intersecting the viewport.
func (v *lineViewport) FirstVisible() (string, int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, id := range v.order {
		bottom := v.totalLines
		if i+1 < len(v.order) {
			bottom = v.tops[v.order[i+1]]
		}
		if bottom-v.scrollTop > 0 {
			return id, v.tops[id] - v.scrollTop, true
		}
	}
	return "", 0, false
}

// ElementOffset returns an item's line offset from the viewport top.
func (v *lineViewport) ElementOffset(id string) (int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	top, ok := v.tops[id]
	if !ok {
		return 0, false
	}
	return top - v.scrollTop, true
}

// ScrollBy adjusts the scroll position by a line delta, clamped to the
// content bounds.
func (v *lineViewport) ScrollBy(delta int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scrollTop += delta
	v.clampLocked()
}

// ScrollToItem brings an item to the top of the viewport.
func (v *lineViewport) ScrollToItem(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if top, ok := v.tops[id]; ok {
		v.scrollTop = top
		v.clampLocked()
	}
}

// ScrollToBottom pins the view to the newest content.
func (v *lineViewport) ScrollToBottom() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scrollTop = v.totalLines
	v.clampLocked()
}

// AtTop reports whether the viewport shows the oldest loaded line.
func (v *lineViewport) AtTop() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.scrollTop == 0
}

// AtBottom reports whether the viewport shows the newest loaded line.
func (v *lineViewport) AtBottom() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.scrollTop >= v.totalLines-v.pageLines
}

// visibleRange returns the ids currently intersecting the viewport.
func (v *lineViewport) visibleRange() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	var visible []string
	for i, id := range v.order {
		bottom := v.totalLines
		if i+1 < len(v.order) {
			bottom = v.tops[v.order[i+1]]
		}
		if bottom <= v.scrollTop {
			continue
		}
		if v.tops[id] >= v.scrollTop+v.pageLines {
			break
		}
		visible = append(visible, id)
	}
	return visible
}

// window slices the rendered content to the visible page.
func (v *lineViewport) window(lines []string) []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(lines) == 0 || v.pageLines <= 0 {
		return nil
	}
	start := v.scrollTop
	if start > len(lines) {
		start = len(lines)
	}
	end := start + v.pageLines
	if end > len(lines) {
		end = len(lines)
	}
	return lines[start:end]
}
