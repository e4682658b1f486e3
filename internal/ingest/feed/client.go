package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/rs/zerolog"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
)

// Log keys.
const (
	logKeySymbol    = "symbol"
	logKeyTransport = "transport"
	logKeyURL       = "url"
	logKeyMessageID = "message_id"
)

// Cursor is the pagination state returned with a page.
type Cursor struct {
	More  bool
	Max   int64
	Since int64
}

// Page is one decoded page of a symbol stream, newest post first.
type Page struct {
	Posts  []domain.Post
	Cursor Cursor
	// Watchers is the symbol's watchlist count; -1 when the page did not carry it.
	Watchers int
}

// OldestID returns the smallest post ID on the page, or 0 for an empty page.
func (p *Page) OldestID() int64 {
	var oldest int64

	for _, post := range p.Posts {
		if oldest == 0 || post.ID < oldest {
			oldest = post.ID
		}
	}

	return oldest
}

// Client reads the upstream symbol stream API.
type Client struct {
	baseURL   string
	transport FetchTransport
	logger    *zerolog.Logger
	now       func() time.Time
}

// NewClient creates a feed client over transport.
func NewClient(baseURL string, transport FetchTransport, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		transport: transport,
		logger:    logger,
		now:       time.Now,
	}
}

type streamResponse struct {
	Symbol *struct {
		Symbol         string `json:"symbol"`
		WatchlistCount *int   `json:"watchlist_count"`
	} `json:"symbol"`
	Cursor struct {
		More  bool   `json:"more"`
		Max   *int64 `json:"max"`
		Since *int64 `json:"since"`
	} `json:"cursor"`
	Messages []streamMessage `json:"messages"`
}

type streamMessage struct {
	ID        int64  `json:"id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
	User      struct {
		Username  string `json:"username"`
		Followers int    `json:"followers"`
	} `json:"user"`
	Likes *struct {
		Total int `json:"total"`
	} `json:"likes"`
}

// StreamURL builds the symbol stream URL. A positive maxID pages to posts older than it.
func (c *Client) StreamURL(symbol string, maxID int64) string {
	u := c.baseURL + "/streams/symbol/" + url.PathEscape(domain.NormalizeSymbol(symbol)) + ".json"
	if maxID > 0 {
		u += "?max=" + strconv.FormatInt(maxID, 10)
	}

	return u
}

// FetchPage fetches one page of posts older than maxID (0 for the newest page).
func (c *Client) FetchPage(ctx context.Context, symbol string, maxID int64) (*Page, error) {
	body, err := c.transport.Fetch(ctx, c.StreamURL(symbol, maxID))
	if err != nil {
		return nil, err
	}

	return c.decodePage(symbol, body)
}

// FetchWatchers returns the current watcher count for symbol.
func (c *Client) FetchWatchers(ctx context.Context, symbol string) (int, error) {
	page, err := c.FetchPage(ctx, symbol, 0)
	if err != nil {
		return 0, err
	}

	if page.Watchers < 0 {
		return 0, fmt.Errorf("watchlist count missing for %s: %w", symbol, coreerrors.ErrMalformedUpstream)
	}

	return page.Watchers, nil
}

func (c *Client) decodePage(symbol string, body []byte) (*Page, error) {
	var resp streamResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode stream for %s: %w: %w", symbol, coreerrors.ErrMalformedUpstream, err)
	}

	sym := domain.NormalizeSymbol(symbol)
	ingestedAt := c.now().UTC()

	page := &Page{
		Posts:    make([]domain.Post, 0, len(resp.Messages)),
		Cursor:   Cursor{More: resp.Cursor.More},
		Watchers: -1,
	}

	if resp.Cursor.Max != nil {
		page.Cursor.Max = *resp.Cursor.Max
	}

	if resp.Cursor.Since != nil {
		page.Cursor.Since = *resp.Cursor.Since
	}

	if resp.Symbol != nil && resp.Symbol.WatchlistCount != nil {
		page.Watchers = *resp.Symbol.WatchlistCount
	}

	for _, m := range resp.Messages {
		post, ok := c.toPost(sym, m, ingestedAt)
		if !ok {
			continue
		}

		page.Posts = append(page.Posts, post)
	}

	return page, nil
}

func (c *Client) toPost(symbol string, m streamMessage, ingestedAt time.Time) (domain.Post, bool) {
	if m.ID <= 0 {
		return domain.Post{}, false
	}

	postedAt, err := dateparse.ParseAny(m.CreatedAt)
	if err != nil {
		c.logger.Debug().Err(err).Str(logKeySymbol, symbol).Int64(logKeyMessageID, m.ID).Msg("skipping message with unparseable timestamp")

		return domain.Post{}, false
	}

	post := domain.Post{
		ID:             m.ID,
		Symbol:         symbol,
		Author:         m.User.Username,
		Body:           m.Body,
		AuthorFollower: m.User.Followers,
		PostedAt:       postedAt.UTC(),
		IngestedAt:     ingestedAt,
	}

	if m.Likes != nil {
		post.Likes = m.Likes.Total
	}

	return post, true
}
