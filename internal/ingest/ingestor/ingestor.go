// Package ingestor implements the ingestion engine: paged post crawling with a
// per-symbol in-flight guard, and watcher-count tracking.
package ingestor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
	"github.com/lueurxax/ticker-sentiment-bot/internal/core/text"
	"github.com/lueurxax/ticker-sentiment-bot/internal/ingest/feed"
	"github.com/lueurxax/ticker-sentiment-bot/internal/platform/observability"
)

// Log keys.
const (
	logKeySymbol     = "symbol"
	logKeyPostID     = "post_id"
	logKeyStopReason = "stop_reason"
	logKeyTrigger    = "trigger"
)

// Defaults.
const (
	defaultMaxPages          = 10
	defaultRetentionDays     = 30
	defaultWatcherStaleAfter = 6 * time.Hour
	defaultRunTimeout        = 10 * time.Minute
	hoursPerDay              = 24
)

// Skip reasons.
const (
	skipReasonExists    = "exists"
	skipReasonDuplicate = "duplicate_race"
	skipReasonSaveError = "save_error"
)

// StopReason explains why a crawl ended.
type StopReason string

// Stop reasons.
const (
	StopHistoryBoundary  StopReason = "history_boundary"
	StopRetentionHorizon StopReason = "retention_horizon"
	StopMaxPages         StopReason = "max_pages"
	StopEmptyPage        StopReason = "empty_page"
	StopNoMorePages      StopReason = "no_more_pages"
	StopCursorStall      StopReason = "cursor_stall"
	StopUpstreamBlocked  StopReason = "upstream_blocked"
	StopError            StopReason = "error"
)

// Feed is the upstream read API.
type Feed interface {
	FetchPage(ctx context.Context, symbol string, maxID int64) (*feed.Page, error)
	FetchWatchers(ctx context.Context, symbol string) (int, error)
}

// PostStore persists posts.
type PostStore interface {
	PostExists(ctx context.Context, id int64) (bool, error)
	SavePost(ctx context.Context, p *domain.Post) error
}

// WatcherStore persists watcher snapshots.
type WatcherStore interface {
	SaveWatcherSnapshot(ctx context.Context, s domain.WatcherSnapshot) error
	GetWatcherHistory(ctx context.Context, symbol string, since time.Time) ([]domain.WatcherSnapshot, error)
}

// Options tunes the engine. Zero values fall back to defaults.
type Options struct {
	MaxPages          int
	RetentionDays     int
	WatcherStaleAfter time.Duration
	RunTimeout        time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxPages <= 0 {
		o.MaxPages = defaultMaxPages
	}

	if o.RetentionDays <= 0 {
		o.RetentionDays = defaultRetentionDays
	}

	if o.WatcherStaleAfter <= 0 {
		o.WatcherStaleAfter = defaultWatcherStaleAfter
	}

	if o.RunTimeout <= 0 {
		o.RunTimeout = defaultRunTimeout
	}

	return o
}

// IngestResult summarizes one crawl.
type IngestResult struct {
	Symbol     string
	Pages      int
	Fetched    int
	Saved      int
	Skipped    int
	StopReason StopReason
	// Joined is true when the caller waited on a crawl started by another caller.
	Joined bool
	// Err holds the failure that ended the crawl, if any. It is informational.
	Err error
}

// Engine is the ingestion engine.
type Engine struct {
	feed     Feed
	posts    PostStore
	watchers WatcherStore
	opts     Options
	logger   *zerolog.Logger
	now      func() time.Time

	postRuns    *group[IngestResult]
	watcherRuns *group[bool]
}

// New creates an ingestion engine.
func New(f Feed, posts PostStore, watchers WatcherStore, opts Options, logger *zerolog.Logger) *Engine {
	return &Engine{
		feed:        f,
		posts:       posts,
		watchers:    watchers,
		opts:        opts.withDefaults(),
		logger:      logger,
		now:         time.Now,
		postRuns:    newGroup[IngestResult](),
		watcherRuns: newGroup[bool](),
	}
}

func (e *Engine) retentionHorizon() time.Time {
	return e.now().Add(-time.Duration(e.opts.RetentionDays) * hoursPerDay * time.Hour)
}

// IngestPosts fetches and stores up to maxPages pages of posts for symbol,
// newest first. Concurrent calls for the same symbol share one crawl.
// Failures are logged and reported in the result, never returned.
func (e *Engine) IngestPosts(ctx context.Context, symbol string, maxPages int) IngestResult {
	sym := domain.NormalizeSymbol(symbol)
	if maxPages <= 0 {
		maxPages = e.opts.MaxPages
	}

	res, joined, err := e.postRuns.do(ctx, sym, e.opts.RunTimeout, func(runCtx context.Context) (IngestResult, error) {
		observability.IngestInFlight.Inc()
		defer observability.IngestInFlight.Dec()

		r := e.crawl(runCtx, sym, maxPages)

		return r, nil
	})

	if joined {
		observability.IngestJoins.Inc()
		e.logger.Debug().Str(logKeySymbol, sym).Msg("joined in-flight ingestion")
	}

	if err != nil {
		e.logger.Error().Err(err).Str(logKeySymbol, sym).Msg("post ingestion failed")

		return IngestResult{Symbol: sym, StopReason: StopError, Joined: joined, Err: err}
	}

	res.Joined = joined

	return res
}

func (e *Engine) crawl(ctx context.Context, symbol string, maxPages int) IngestResult {
	res := IngestResult{Symbol: symbol}
	horizon := e.retentionHorizon()

	var cursor int64

	for res.StopReason == "" {
		if res.Pages >= maxPages {
			res.StopReason = StopMaxPages

			break
		}

		page, err := e.feed.FetchPage(ctx, symbol, cursor)
		if err != nil {
			res.Err = err
			res.StopReason = StopError

			if errors.Is(err, coreerrors.ErrUpstreamExhausted) {
				res.StopReason = StopUpstreamBlocked
			}

			e.logger.Warn().Err(err).Str(logKeySymbol, symbol).Int("page", res.Pages).Msg("post fetch stopped")

			break
		}

		res.Pages++
		res.Fetched += len(page.Posts)

		if len(page.Posts) == 0 {
			res.StopReason = StopEmptyPage

			break
		}

		saved := e.savePage(ctx, page.Posts, &res)
		if saved > 0 {
			observability.PostsIngested.WithLabelValues(symbol).Add(float64(saved))
		}

		res.StopReason = nextStop(page, saved, cursor, horizon)
		cursor = page.OldestID()
	}

	observability.IngestRuns.WithLabelValues(string(res.StopReason)).Inc()

	e.logger.Info().
		Str(logKeySymbol, symbol).
		Int("pages", res.Pages).
		Int("saved", res.Saved).
		Int("skipped", res.Skipped).
		Str(logKeyStopReason, string(res.StopReason)).
		Msg("post ingestion finished")

	return res
}

// nextStop decides whether the crawl ends after a processed page. Empty means continue.
func nextStop(page *feed.Page, saved int, cursor int64, horizon time.Time) StopReason {
	if saved == 0 {
		return StopHistoryBoundary
	}

	if oldestPostedAt(page.Posts).Before(horizon) {
		return StopRetentionHorizon
	}

	next := page.OldestID()
	if cursor != 0 && next >= cursor {
		return StopCursorStall
	}

	if !page.Cursor.More {
		return StopNoMorePages
	}

	return ""
}

func oldestPostedAt(posts []domain.Post) time.Time {
	var oldest time.Time

	for _, p := range posts {
		if oldest.IsZero() || p.PostedAt.Before(oldest) {
			oldest = p.PostedAt
		}
	}

	return oldest
}

// savePage stores unseen posts and returns how many were newly saved.
func (e *Engine) savePage(ctx context.Context, posts []domain.Post, res *IngestResult) int {
	saved := 0

	for i := range posts {
		post := posts[i]

		exists, err := e.posts.PostExists(ctx, post.ID)
		if err != nil {
			e.logger.Warn().Err(err).Str(logKeySymbol, post.Symbol).Int64(logKeyPostID, post.ID).Msg("post existence check failed")
			observability.PostsSkipped.WithLabelValues(skipReasonSaveError).Inc()

			res.Skipped++

			continue
		}

		if exists {
			observability.PostsSkipped.WithLabelValues(skipReasonExists).Inc()

			res.Skipped++

			continue
		}

		post.Body = text.SanitizeBody(post.Body)
		post.Author = text.SanitizeBody(post.Author)

		if err := e.posts.SavePost(ctx, &post); err != nil {
			res.Skipped++

			if errors.Is(err, coreerrors.ErrDuplicatePost) {
				// A concurrent writer stored it first; the post is seen.
				observability.PostsSkipped.WithLabelValues(skipReasonDuplicate).Inc()

				continue
			}

			observability.PostsSkipped.WithLabelValues(skipReasonSaveError).Inc()
			e.logger.Warn().Err(err).Str(logKeySymbol, post.Symbol).Int64(logKeyPostID, post.ID).Msg("failed to save post")

			continue
		}

		saved++
		res.Saved++
	}

	return saved
}
