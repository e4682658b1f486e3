package ingestor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
	"github.com/lueurxax/ticker-sentiment-bot/internal/ingest/feed"
)

var testNow = time.Date(2025, 1, 28, 12, 0, 0, 0, time.UTC)

type fakeFeed struct {
	mu       sync.Mutex
	pages    map[int64]*feed.Page
	pageFn   func(cursor int64) (*feed.Page, error)
	gate     chan struct{}
	calls    []int64
	watchers int
	wErr     error
	wCalls   int
}

func (f *fakeFeed) FetchPage(ctx context.Context, _ string, maxID int64) (*feed.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, maxID)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if f.pageFn != nil {
		return f.pageFn(maxID)
	}

	page, ok := f.pages[maxID]
	if !ok {
		return &feed.Page{}, nil
	}

	return page, nil
}

func (f *fakeFeed) FetchWatchers(_ context.Context, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.wCalls++

	return f.watchers, f.wErr
}

func (f *fakeFeed) pageCalls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]int64(nil), f.calls...)
}

func (f *fakeFeed) watcherCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.wCalls
}

type memPosts struct {
	mu        sync.Mutex
	posts     map[int64]domain.Post
	raceIDs   map[int64]bool
	saveCalls int
}

func newMemPosts() *memPosts {
	return &memPosts{posts: make(map[int64]domain.Post), raceIDs: make(map[int64]bool)}
}

func (m *memPosts) PostExists(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.posts[id]

	return ok, nil
}

func (m *memPosts) SavePost(_ context.Context, p *domain.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saveCalls++

	if m.raceIDs[p.ID] {
		return fmt.Errorf("insert post %d: %w", p.ID, coreerrors.ErrDuplicatePost)
	}

	if _, ok := m.posts[p.ID]; ok {
		return coreerrors.ErrDuplicatePost
	}

	m.posts[p.ID] = *p

	return nil
}

func (m *memPosts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.posts)
}

func (m *memPosts) get(id int64) (domain.Post, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.posts[id]

	return p, ok
}

type memWatchers struct {
	mu    sync.Mutex
	snaps []domain.WatcherSnapshot
}

func (m *memWatchers) SaveWatcherSnapshot(_ context.Context, s domain.WatcherSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snaps = append(m.snaps, s)

	return nil
}

func (m *memWatchers) GetWatcherHistory(_ context.Context, symbol string, since time.Time) ([]domain.WatcherSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.WatcherSnapshot

	for _, s := range m.snaps {
		if s.Symbol == symbol && !s.RecordedAt.Before(since) {
			out = append(out, s)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })

	return out, nil
}

func (m *memWatchers) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.snaps)
}

func post(id int64, age time.Duration) domain.Post {
	return domain.Post{
		ID:       id,
		Symbol:   "AAPL",
		Author:   "user",
		Body:     fmt.Sprintf("post %d", id),
		PostedAt: testNow.Add(-age),
	}
}

func page(more bool, posts ...domain.Post) *feed.Page {
	return &feed.Page{Posts: posts, Cursor: feed.Cursor{More: more}, Watchers: -1}
}
