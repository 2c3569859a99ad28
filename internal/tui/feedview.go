// Package tui renders one conversation feed in the terminal, driving
// the synchronization engine from key input and painting its window.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/feedline/feedline/internal/feed"
	"github.com/feedline/feedline/internal/models"
)

const defaultRefreshInterval = 250 * time.Millisecond

type refreshMsg struct{}

type engineErrMsg struct {
	err error
}

// Config carries the view settings.
type Config struct {
	ConversationID  string
	Viewer          string
	RefreshInterval time.Duration
}

// Model is the bubbletea model for a single open conversation.
type Model struct {
	controller *feed.Controller
	viewport   *lineViewport
	cfg        Config

	width  int
	height int

	composing bool
	replyToID string
	input     string

	status     string
	lastErr    error
	followTail bool
	quitting   bool
}

// NewModel wires a view around an already-opened controller. The
// controller must have been created with the model's Viewport (see
// NewViewport) so anchor restoration reaches the rendered layout.
func NewModel(controller *feed.Controller, viewport *lineViewport, cfg Config) *Model {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}
	return &Model{
		controller: controller,
		viewport:   viewport,
		cfg:        cfg,
		followTail: true,
	}
}

// NewViewport returns the viewport to hand to feed.WithViewport when
// building the controller this model will render.
func NewViewport() *lineViewport {
	return newLineViewport()
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.scheduleRefresh(), m.watchErrors())
}

func (m *Model) scheduleRefresh() tea.Cmd {
	return tea.Tick(m.cfg.RefreshInterval, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

func (m *Model) watchErrors() tea.Cmd {
	return func() tea.Msg {
		err, ok := <-m.controller.Errors()
		if !ok {
			return nil
		}
		return engineErrMsg{err: err}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case refreshMsg:
		m.markVisibleViewed()
		return m, m.scheduleRefresh()

	case engineErrMsg:
		m.lastErr = msg.err
		return m, m.watchErrors()

	case tea.KeyMsg:
		if m.composing {
			return m.updateCompose(msg)
		}
		return m.updateFeed(msg)
	}
	return m, nil
}

func (m *Model) updateFeed(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "up", "k":
		m.followTail = false
		if m.viewport.AtTop() {
			m.triggerFetch(m.controller.FetchOlder)
		} else {
			m.viewport.ScrollBy(-1)
		}

	case "down", "j":
		if m.viewport.AtBottom() {
			m.triggerFetch(m.controller.FetchNewer)
		} else {
			m.viewport.ScrollBy(1)
		}

	case "pgup":
		m.followTail = false
		if m.viewport.AtTop() {
			m.triggerFetch(m.controller.FetchOlder)
		} else {
			m.viewport.ScrollBy(-m.pageLines())
		}

	case "pgdown":
		m.viewport.ScrollBy(m.pageLines())

	case "G":
		m.followTail = true
		m.viewport.ScrollToBottom()

	case "R":
		if err := m.controller.MarkConversationRead(context.Background()); err != nil {
			m.lastErr = err
		} else {
			m.status = "conversation marked read"
		}

	case "u":
		if id := m.controller.UnreadBannerID(); id != "" {
			m.followTail = false
			m.viewport.ScrollToItem(id)
		}

	case "b":
		m.followTail = false
		if err := m.controller.JumpBack(context.Background()); err != nil && !fetchBusy(err) {
			m.lastErr = err
		}

	case "g":
		// Jump to the reply target of the first visible item.
		if id, _, ok := m.viewport.FirstVisible(); ok {
			if item, loaded := m.controller.Item(id); loaded && item.ReplyToID != "" {
				m.followTail = false
				if err := m.controller.JumpTo(context.Background(), id, item.ReplyToID); err != nil && !fetchBusy(err) {
					m.lastErr = err
				}
			}
		}

	case "t":
		// Toggle a thumbs-up on the first visible item.
		if id, _, ok := m.viewport.FirstVisible(); ok {
			if err := m.controller.ToggleReaction(context.Background(), id, "👍"); err != nil {
				m.lastErr = err
			}
		}

	case "x":
		// Retry the first visible failed send.
		for _, id := range m.viewport.visibleRange() {
			item, ok := m.controller.Item(id)
			if !ok || item.DeliveryState != models.DeliveryFailed {
				continue
			}
			if err := m.controller.RetrySend(context.Background(), id); err != nil {
				m.lastErr = err
			} else {
				m.status = "resent"
			}
			break
		}

	case "enter":
		m.composing = true
		m.replyToID = ""
		m.input = ""

	case "r":
		if id, _, ok := m.viewport.FirstVisible(); ok {
			m.composing = true
			m.replyToID = id
			m.input = ""
		}
	}
	return m, nil
}

func (m *Model) updateCompose(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.composing = false
		m.input = ""
		m.replyToID = ""

	case "enter":
		body := strings.TrimSpace(m.input)
		m.composing = false
		m.input = ""
		replyTo := m.replyToID
		m.replyToID = ""
		if body == "" {
			return m, nil
		}
		if _, err := m.controller.Send(context.Background(), feed.SendInput{Body: body, ReplyToID: replyTo}); err != nil {
			m.lastErr = err
			m.status = "send failed, press x on the message to retry"
		} else {
			m.status = "sent"
			m.followTail = true
		}

	case "backspace":
		if len(m.input) > 0 {
			runes := []rune(m.input)
			m.input = string(runes[:len(runes)-1])
		}

	default:
		if msg.Type == tea.KeyRunes {
			m.input += string(msg.Runes)
		} else if msg.Type == tea.KeySpace {
			m.input += " "
		}
	}
	return m, nil
}

// triggerFetch runs a pagination trigger, treating gate rejections as
// the no-ops they are.
func (m *Model) triggerFetch(fetch func(context.Context) error) {
	if err := fetch(context.Background()); err != nil && !fetchBusy(err) {
		m.lastErr = err
	}
}

func fetchBusy(err error) bool {
	return errors.Is(err, feed.ErrFetchInFlight) || errors.Is(err, feed.ErrFetchCooldown)
}

// markVisibleViewed reports currently visible unread items to the
// read-receipt batcher.
func (m *Model) markVisibleViewed() {
	for _, id := range m.viewport.visibleRange() {
		m.controller.MarkItemViewed(id)
	}
}

func (m *Model) pageLines() int {
	lines := m.height - 2 // status bar and spacer
	if m.composing {
		lines -= 2
	}
	if lines < 1 {
		lines = 1
	}
	return lines
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	width := m.width
	if width <= 0 {
		width = 80
	}

	items := m.controller.Items()
	bannerID := m.controller.UnreadBannerID()

	order := make([]string, len(items))
	heights := make([]int, len(items))
	var content []string
	for i := range items {
		block := m.renderItem(&items[i], width, items[i].ID == bannerID)
		lines := strings.Split(block, "\n")
		order[i] = items[i].ID
		heights[i] = len(lines)
		content = append(content, lines...)
	}

	m.viewport.relayout(order, heights, m.pageLines())
	// Anchor restoration and jump scrolls need the fresh layout; they
	// must land in the same render pass as the merge they follow.
	m.controller.Reanchor()
	if m.followTail {
		m.viewport.ScrollToBottom()
	}

	body := strings.Join(m.viewport.window(content), "\n")

	sections := []string{body}
	if m.composing {
		sections = append(sections, m.renderCompose(width))
	}
	sections = append(sections, m.renderStatusBar(width))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderItem(item *models.FeedItem, width int, banner bool) string {
	var b strings.Builder

	if banner {
		rule := strings.Repeat("─", max(0, (width-16)/2))
		b.WriteString(styleBanner.Render(rule+" new messages "+rule) + "\n")
	}

	author := item.AuthorID
	if profile, ok := m.controller.Profile(item.AuthorID); ok && profile.DisplayName != "" {
		author = profile.DisplayName
	}
	authorStyle := styleAuthor
	if item.AuthorID == m.cfg.Viewer {
		authorStyle = styleOwn
	}

	header := authorStyle.Render(author) + " " + styleTime.Render(item.CreatedAt.Local().Format("15:04"))
	switch item.DeliveryState {
	case models.DeliveryPending:
		header += " " + stylePending.Render("…sending")
	case models.DeliveryFailed:
		header += " " + styleFailed.Render("✗ failed (x to retry)")
	}
	if !item.Read && item.AuthorID != m.cfg.Viewer {
		header = styleUnread.Render("•") + " " + header
	}
	b.WriteString(header + "\n")

	if snip := item.ReplySnippet; snip != nil {
		label := snip.AuthorName
		if label == "" {
			label = snip.AuthorID
		}
		preview := snip.Body
		if preview == "" && snip.AttachmentKind != "" {
			preview = "[" + string(snip.AttachmentKind) + "]"
		}
		b.WriteString(styleSnippet.Render(truncate(label+": "+preview, width-4)) + "\n")
	}

	if item.Body != "" {
		b.WriteString(lipgloss.NewStyle().Width(width).Render(item.Body) + "\n")
	}
	if item.Attachment != nil {
		b.WriteString(styleTime.Render(fmt.Sprintf("[%s] %s", item.Attachment.Kind, item.Attachment.Ref)) + "\n")
	}

	if len(item.Reactions) > 0 {
		var parts []string
		for emoji, summary := range item.Reactions {
			part := fmt.Sprintf("%s %d", emoji, summary.Count)
			if summary.ReactedByViewer {
				part = "[" + part + "]"
			}
			parts = append(parts, part)
		}
		b.WriteString(styleReactions.Render(strings.Join(parts, "  ")) + "\n")
	}

	return strings.TrimSuffix(b.String(), "\n")
}

func (m *Model) renderCompose(width int) string {
	prompt := "> "
	if m.replyToID != "" {
		prompt = "reply> "
	}
	return styleCompose.Width(width).Render(prompt + m.input + "█")
}

func (m *Model) renderStatusBar(width int) string {
	left := m.cfg.ConversationID
	if unread := m.controller.UnreadCount(); unread > 0 {
		left += fmt.Sprintf("  %d unread", unread)
	}
	if pending := m.controller.PendingCount(); pending > 0 {
		left += fmt.Sprintf("  %d sending", pending)
	}
	if m.controller.HasOlder() {
		left += "  ↑ more"
	}
	if state := m.controller.FetchState(); state != feed.FetchIdle {
		left += "  loading…"
	}

	right := m.status
	if m.lastErr != nil {
		right = styleError.Render(truncate(m.lastErr.Error(), width/2))
	}

	gap := width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return styleStatusBar.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
