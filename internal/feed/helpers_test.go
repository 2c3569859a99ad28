package feed

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/feedline/feedline/internal/events"
	"github.com/feedline/feedline/internal/models"
)

const (
	testConversation = "conv-1"
	testViewer       = "viewer"
)

// fakeClock is a manually advanced clock shared by the controller and
// the tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeStore is an in-memory message store implementing the backend
// read, write, receipt, profile, and reaction interfaces with the same
// cursor semantics as the SQLite repositories.
type fakeStore struct {
	mu       sync.Mutex
	items    []models.FeedItem
	profiles map[string]models.Profile

	reactions map[string]map[string]map[string]bool // itemID -> emoji -> userID

	insertErr   error
	markReadErr error
	reactionErr error
	queryErr    error

	markedBatches [][]string
	queryCalls    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles:  make(map[string]models.Profile),
		reactions: make(map[string]map[string]map[string]bool),
	}
}

func (s *fakeStore) add(items ...models.FeedItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, items...)
	s.sortLocked()
}

func (s *fakeStore) sortLocked() {
	sort.SliceStable(s.items, func(i, j int) bool {
		return s.items[i].Before(&s.items[j])
	})
}

func beyond(item *models.FeedItem, cursor *models.Cursor, before bool) bool {
	probe := models.FeedItem{ID: cursor.ID, CreatedAt: cursor.CreatedAt}
	if before {
		return item.Before(&probe)
	}
	return probe.Before(item)
}

func (s *fakeStore) QueryMessages(_ context.Context, conversationID string, q models.ItemQuery) ([]models.FeedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryCalls++
	if s.queryErr != nil {
		return nil, s.queryErr
	}

	var matched []models.FeedItem
	for i := range s.items {
		item := s.items[i]
		if item.ConversationID != conversationID {
			continue
		}
		if q.Before != nil && !beyond(&item, q.Before, true) {
			continue
		}
		if q.After != nil && !beyond(&item, q.After, false) {
			continue
		}
		matched = append(matched, *item.Clone())
	}
	if q.Descending {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (s *fakeStore) CountMessages(_ context.Context, conversationID string, q models.ItemQuery) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return 0, s.queryErr
	}
	count := 0
	for i := range s.items {
		item := s.items[i]
		if item.ConversationID != conversationID {
			continue
		}
		if q.Before != nil && !beyond(&item, q.Before, true) {
			continue
		}
		if q.After != nil && !beyond(&item, q.After, false) {
			continue
		}
		count++
	}
	return count, nil
}

func (s *fakeStore) GetMessage(_ context.Context, conversationID, id string) (*models.FeedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ConversationID == conversationID && s.items[i].ID == id {
			return s.items[i].Clone(), nil
		}
	}
	return nil, fmt.Errorf("message %s not found", id)
}

func (s *fakeStore) InsertMessage(_ context.Context, item models.FeedItem) (*models.FeedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	item.DeliveryState = ""
	s.items = append(s.items, item)
	s.sortLocked()
	return item.Clone(), nil
}

func (s *fakeStore) MarkRead(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markReadErr != nil {
		return s.markReadErr
	}
	s.markedBatches = append(s.markedBatches, append([]string(nil), ids...))
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	for i := range s.items {
		if _, ok := want[s.items[i].ID]; ok {
			s.items[i].Read = true
		}
	}
	return nil
}

func (s *fakeStore) CountUnread(_ context.Context, conversationID, viewerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for i := range s.items {
		item := &s.items[i]
		if item.ConversationID == conversationID && !item.Read && item.AuthorID != viewerID {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) FirstUnread(_ context.Context, conversationID, viewerID string) (*models.FeedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		item := &s.items[i]
		if item.ConversationID == conversationID && !item.Read && item.AuthorID != viewerID {
			return item.Clone(), nil
		}
	}
	return nil, nil
}

func (s *fakeStore) GetProfiles(_ context.Context, ids []string) ([]models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Profile
	for _, id := range ids {
		if profile, ok := s.profiles[id]; ok {
			out = append(out, profile)
		}
	}
	return out, nil
}

func (s *fakeStore) AddReaction(_ context.Context, itemID, userID, emoji string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reactionErr != nil {
		return s.reactionErr
	}
	if s.reactions[itemID] == nil {
		s.reactions[itemID] = make(map[string]map[string]bool)
	}
	if s.reactions[itemID][emoji] == nil {
		s.reactions[itemID][emoji] = make(map[string]bool)
	}
	s.reactions[itemID][emoji][userID] = true
	return nil
}

func (s *fakeStore) RemoveReaction(_ context.Context, itemID, userID, emoji string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reactionErr != nil {
		return s.reactionErr
	}
	if byEmoji, ok := s.reactions[itemID]; ok {
		delete(byEmoji[emoji], userID)
	}
	return nil
}

func (s *fakeStore) ReactionSummaries(_ context.Context, itemIDs []string, viewerID string) (map[string]map[string]models.ReactionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]map[string]models.ReactionSummary)
	for _, itemID := range itemIDs {
		byEmoji, ok := s.reactions[itemID]
		if !ok {
			continue
		}
		summaries := make(map[string]models.ReactionSummary)
		for emoji, users := range byEmoji {
			if len(users) == 0 {
				continue
			}
			summary := models.ReactionSummary{Count: len(users)}
			for userID := range users {
				summary.ReactorIDs = append(summary.ReactorIDs, userID)
				if userID == viewerID {
					summary.ReactedByViewer = true
				}
			}
			sort.Strings(summary.ReactorIDs)
			summaries[emoji] = summary
		}
		if len(summaries) > 0 {
			out[itemID] = summaries
		}
	}
	return out, nil
}

// fakeViewport is a flat-geometry viewport: every item is itemHeight
// pixels tall, stacked in feed order.
type fakeViewport struct {
	mu         sync.Mutex
	order      []string
	itemHeight int
	scrollTop  int
	scrolledTo []string
}

func newFakeViewport(height int) *fakeViewport {
	return &fakeViewport{itemHeight: height}
}

func (v *fakeViewport) setOrder(ids []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.order = append([]string(nil), ids...)
}

func (v *fakeViewport) FirstVisible() (string, int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, id := range v.order {
		top := i*v.itemHeight - v.scrollTop
		if top+v.itemHeight > 0 {
			return id, top, true
		}
	}
	return "", 0, false
}

func (v *fakeViewport) ElementOffset(id string) (int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, candidate := range v.order {
		if candidate == id {
			return i*v.itemHeight - v.scrollTop, true
		}
	}
	return 0, false
}

func (v *fakeViewport) ScrollBy(delta int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scrollTop += delta
}

func (v *fakeViewport) ScrollToItem(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scrolledTo = append(v.scrolledTo, id)
	for i, candidate := range v.order {
		if candidate == id {
			v.scrollTop = i * v.itemHeight
			return
		}
	}
}

// seedItems builds n read items from "alice" spaced one minute apart,
// ids msg-001 .. msg-n.
func seedItems(base time.Time, n int) []models.FeedItem {
	items := make([]models.FeedItem, n)
	for i := 0; i < n; i++ {
		items[i] = models.FeedItem{
			ID:             fmt.Sprintf("msg-%03d", i+1),
			ConversationID: testConversation,
			AuthorID:       "alice",
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
			Body:           fmt.Sprintf("message %d", i+1),
			Read:           true,
		}
	}
	return items
}

// testBackend bundles a fake store and a real event publisher.
func testBackend(store *fakeStore) (Backend, *events.Publisher) {
	publisher := events.NewPublisher()
	return Backend{
		Querier:    store,
		Writer:     store,
		ReadMarker: store,
		Profiles:   store,
		Reactions:  store,
		Events:     publisher,
	}, publisher
}
