package ingestor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
	"github.com/lueurxax/ticker-sentiment-bot/internal/ingest/feed"
)

func newTestEngine(f Feed, posts PostStore, watchers WatcherStore) *Engine {
	logger := zerolog.Nop()

	e := New(f, posts, watchers, Options{RunTimeout: 5 * time.Second}, &logger)
	e.now = func() time.Time { return testNow }

	return e
}

func twoPageFeed() *fakeFeed {
	return &fakeFeed{pages: map[int64]*feed.Page{
		0:   page(true, post(300, time.Hour), post(299, 2*time.Hour)),
		299: page(false, post(298, 3*time.Hour), post(297, 4*time.Hour)),
	}}
}

func TestIngestPostsIsIdempotent(t *testing.T) {
	f := twoPageFeed()
	store := newMemPosts()
	e := newTestEngine(f, store, &memWatchers{})

	first := e.IngestPosts(context.Background(), "aapl", 10)
	assert.Equal(t, "AAPL", first.Symbol)
	assert.Equal(t, 4, first.Saved)
	assert.Equal(t, 2, first.Pages)
	assert.Equal(t, StopNoMorePages, first.StopReason)
	assert.Equal(t, []int64{0, 299}, f.pageCalls())

	second := e.IngestPosts(context.Background(), "AAPL", 10)
	assert.Equal(t, 0, second.Saved)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, StopHistoryBoundary, second.StopReason)
	assert.Equal(t, 4, store.count())
}

func TestIngestPostsStopConditions(t *testing.T) {
	blocked := &fakeFeed{pageFn: func(int64) (*feed.Page, error) {
		return nil, coreerrors.ErrUpstreamExhausted
	}}

	endless := &fakeFeed{pageFn: func(cursor int64) (*feed.Page, error) {
		top := cursor - 1
		if cursor == 0 {
			top = 1000
		}

		return page(true, post(top, time.Minute), post(top-1, time.Minute)), nil
	}}

	old := &fakeFeed{pages: map[int64]*feed.Page{
		0:   page(true, post(10, time.Hour), post(9, 40*24*time.Hour)),
		9:   page(true, post(8, 41*24*time.Hour)),
		100: page(true),
	}}

	stalled := &fakeFeed{pageFn: func(int64) (*feed.Page, error) {
		return page(true, post(50, time.Minute)), nil
	}}

	empty := &fakeFeed{pages: map[int64]*feed.Page{}}

	tests := []struct {
		name      string
		feed      *fakeFeed
		maxPages  int
		wantStop  StopReason
		wantPages int
		wantErr   bool
	}{
		{name: "upstream_exhausted", feed: blocked, maxPages: 5, wantStop: StopUpstreamBlocked, wantPages: 0, wantErr: true},
		{name: "max_pages", feed: endless, maxPages: 3, wantStop: StopMaxPages, wantPages: 3},
		{name: "retention_horizon", feed: old, maxPages: 5, wantStop: StopRetentionHorizon, wantPages: 1},
		{name: "empty_page", feed: empty, maxPages: 5, wantStop: StopEmptyPage, wantPages: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(tt.feed, newMemPosts(), &memWatchers{})

			res := e.IngestPosts(context.Background(), "AAPL", tt.maxPages)
			assert.Equal(t, tt.wantStop, res.StopReason)
			assert.Equal(t, tt.wantPages, res.Pages)
			assert.Equal(t, tt.wantErr, res.Err != nil)
		})
	}

	t.Run("repeated_page", func(t *testing.T) {
		// The upstream ignores the cursor; the second page has nothing new.
		e := newTestEngine(stalled, newMemPosts(), &memWatchers{})

		res := e.IngestPosts(context.Background(), "AAPL", 5)
		assert.Equal(t, StopHistoryBoundary, res.StopReason)
		assert.Equal(t, 2, res.Pages)
	})

	t.Run("cursor_stall", func(t *testing.T) {
		var next int64

		rising := &fakeFeed{pageFn: func(int64) (*feed.Page, error) {
			next++

			return page(true, post(next, time.Minute)), nil
		}}
		e := newTestEngine(rising, newMemPosts(), &memWatchers{})

		res := e.IngestPosts(context.Background(), "AAPL", 5)
		assert.Equal(t, StopCursorStall, res.StopReason)
		assert.Equal(t, 2, res.Pages)
	})
}

func TestIngestPostsDuplicateRaceIsSkip(t *testing.T) {
	store := newMemPosts()
	store.raceIDs[299] = true

	e := newTestEngine(twoPageFeed(), store, &memWatchers{})

	res := e.IngestPosts(context.Background(), "AAPL", 10)
	assert.Nil(t, res.Err)
	assert.Equal(t, 3, res.Saved)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, StopNoMorePages, res.StopReason)
}

func TestIngestPostsSanitizesBody(t *testing.T) {
	dirty := post(7, time.Hour)
	dirty.Body = "moon\x00 soon\x07"

	f := &fakeFeed{pages: map[int64]*feed.Page{0: page(false, dirty)}}
	store := newMemPosts()

	newTestEngine(f, store, &memWatchers{}).IngestPosts(context.Background(), "AAPL", 1)

	got, ok := store.get(7)
	require.True(t, ok)
	assert.Equal(t, "moon soon", got.Body)
}

func TestIngestPostsConcurrentCallsShareOneCrawl(t *testing.T) {
	f := twoPageFeed()
	f.gate = make(chan struct{})

	store := newMemPosts()
	e := newTestEngine(f, store, &memWatchers{})

	var wg sync.WaitGroup

	results := make([]IngestResult, 2)

	for i := range results {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			results[i] = e.IngestPosts(context.Background(), "AAPL", 10)
		}(i)
	}

	require.Eventually(t, func() bool { return len(f.pageCalls()) == 1 }, time.Second, 5*time.Millisecond)
	// Give the second caller time to reach the in-flight map.
	time.Sleep(50 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	assert.Equal(t, []int64{0, 299}, f.pageCalls(), "exactly one fetch sequence")
	assert.Equal(t, 4, store.count())
	assert.Equal(t, results[0].Saved, results[1].Saved)
	assert.NotEqual(t, results[0].Joined, results[1].Joined, "one leader, one joiner")
	assert.False(t, e.postRuns.inFlight("AAPL"), "entry released after completion")
}

func TestIngestPostsCanceledCallerDoesNotCancelCrawl(t *testing.T) {
	f := twoPageFeed()
	f.gate = make(chan struct{})

	store := newMemPosts()
	e := newTestEngine(f, store, &memWatchers{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan IngestResult, 1)

	go func() { done <- e.IngestPosts(ctx, "AAPL", 10) }()

	require.Eventually(t, func() bool { return len(f.pageCalls()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	res := <-done
	assert.Equal(t, StopError, res.StopReason)
	require.ErrorIs(t, res.Err, context.Canceled)

	close(f.gate)

	require.Eventually(t, func() bool { return store.count() == 4 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !e.postRuns.inFlight("AAPL") }, time.Second, 5*time.Millisecond)
}
