package feed

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
)

const samplePage = `{
  "response": {"status": 200},
  "symbol": {"id": 686, "symbol": "AAPL", "watchlist_count": 612345},
  "cursor": {"more": true, "since": 5003, "max": 5001},
  "messages": [
    {"id": 5003, "body": "Breaking out $AAPL", "created_at": "2025-01-27T14:30:00Z",
     "user": {"username": "bull1", "followers": 120}, "likes": {"total": 7}},
    {"id": 5002, "body": "bad ts", "created_at": "not a time", "user": {"username": "x"}},
    {"id": 5001, "body": "Selling into strength", "created_at": "2025-01-27T14:00:00Z",
     "user": {"username": "bear1", "followers": 5}}
  ]
}`

func TestClientFetchPage(t *testing.T) {
	logger := zerolog.Nop()
	transport := &stubTransport{name: "stub", body: samplePage}
	client := NewClient("https://api.example.com/api/2/", transport, &logger)
	client.now = func() time.Time { return time.Date(2025, 1, 28, 0, 0, 0, 0, time.UTC) }

	page, err := client.FetchPage(context.Background(), " aapl ", 0)
	require.NoError(t, err)

	require.Len(t, page.Posts, 2)
	assert.Equal(t, int64(5003), page.Posts[0].ID)
	assert.Equal(t, "AAPL", page.Posts[0].Symbol)
	assert.Equal(t, 7, page.Posts[0].Likes)
	assert.Equal(t, 120, page.Posts[0].AuthorFollower)
	assert.Equal(t, 0, page.Posts[1].Likes)
	assert.Equal(t, int64(5001), page.OldestID())
	assert.Equal(t, 612345, page.Watchers)
	assert.True(t, page.Cursor.More)
	assert.Equal(t, int64(5001), page.Cursor.Max)
}

func TestClientStreamURL(t *testing.T) {
	logger := zerolog.Nop()
	client := NewClient("https://api.example.com/api/2/", nil, &logger)

	assert.Equal(t, "https://api.example.com/api/2/streams/symbol/TSLA.json", client.StreamURL("tsla", 0))
	assert.Equal(t, "https://api.example.com/api/2/streams/symbol/TSLA.json?max=42", client.StreamURL("TSLA", 42))
}

func TestClientMalformed(t *testing.T) {
	logger := zerolog.Nop()
	client := NewClient("https://x", &stubTransport{name: "stub", body: "<html>blocked</html>"}, &logger)

	_, err := client.FetchPage(context.Background(), "AAPL", 0)
	assert.ErrorIs(t, err, coreerrors.ErrMalformedUpstream)
}

func TestClientFetchWatchers(t *testing.T) {
	logger := zerolog.Nop()

	count, err := NewClient("https://x", &stubTransport{name: "stub", body: samplePage}, &logger).FetchWatchers(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 612345, count)

	_, err = NewClient("https://x", &stubTransport{name: "stub", body: `{"messages":[]}`}, &logger).FetchWatchers(context.Background(), "AAPL")
	assert.ErrorIs(t, err, coreerrors.ErrMalformedUpstream)
}

func TestPageOldestIDEmpty(t *testing.T) {
	assert.Equal(t, int64(0), (&Page{}).OldestID())
}
