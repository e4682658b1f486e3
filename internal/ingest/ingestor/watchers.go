package ingestor

import (
	"context"
	"fmt"
	"time"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
	"github.com/lueurxax/ticker-sentiment-bot/internal/platform/observability"
	"github.com/lueurxax/ticker-sentiment-bot/internal/platform/worker"
)

// Watcher refresh triggers, used as metric labels.
const (
	TriggerSchedule  = "schedule"
	TriggerManual    = "manual"
	TriggerFirstView = "first_view"
	TriggerStale     = "stale"
)

const watcherRefreshTimeout = time.Minute

// TrackWatchers records the current watcher count for symbol. Missing or
// malformed upstream data is logged and reported as false.
func (e *Engine) TrackWatchers(ctx context.Context, symbol string) bool {
	return e.refreshWatchers(ctx, domain.NormalizeSymbol(symbol), TriggerManual)
}

// TrackWatchersScheduled is TrackWatchers labelled for the cron job.
func (e *Engine) TrackWatchersScheduled(ctx context.Context, symbol string) bool {
	return e.refreshWatchers(ctx, domain.NormalizeSymbol(symbol), TriggerSchedule)
}

func (e *Engine) refreshWatchers(ctx context.Context, symbol, trigger string) bool {
	recorded, _, err := e.watcherRuns.do(ctx, symbol, watcherRefreshTimeout, func(runCtx context.Context) (bool, error) {
		count, err := e.feed.FetchWatchers(runCtx, symbol)
		if err != nil {
			return false, fmt.Errorf("fetch watchers: %w", err)
		}

		snap := domain.WatcherSnapshot{Symbol: symbol, Count: count, RecordedAt: e.now().UTC()}
		if err := e.watchers.SaveWatcherSnapshot(runCtx, snap); err != nil {
			return false, fmt.Errorf("save watcher snapshot: %w", err)
		}

		return true, nil
	})
	if err != nil {
		e.logger.Warn().Err(err).Str(logKeySymbol, symbol).Str(logKeyTrigger, trigger).Msg("watcher refresh skipped")

		return false
	}

	if recorded {
		observability.WatcherSnapshots.WithLabelValues(trigger).Inc()
	}

	return recorded
}

// GetWatcherHistory returns snapshots within the retention horizon, oldest first.
// Empty history is refreshed synchronously; stale history is returned as is
// while a background refresh runs.
func (e *Engine) GetWatcherHistory(ctx context.Context, symbol string) ([]domain.WatcherSnapshot, error) {
	sym := domain.NormalizeSymbol(symbol)
	since := e.retentionHorizon()

	history, err := e.watchers.GetWatcherHistory(ctx, sym, since)
	if err != nil {
		return nil, fmt.Errorf("load watcher history: %w", err)
	}

	if len(history) == 0 {
		if !e.refreshWatchers(ctx, sym, TriggerFirstView) {
			return history, nil
		}

		history, err = e.watchers.GetWatcherHistory(ctx, sym, since)
		if err != nil {
			return nil, fmt.Errorf("reload watcher history: %w", err)
		}

		return history, nil
	}

	newest := history[len(history)-1].RecordedAt
	if e.now().Sub(newest) > e.opts.WatcherStaleAfter && !e.watcherRuns.inFlight(sym) {
		worker.Detach(ctx, watcherRefreshTimeout, e.logger, "watcher refresh", func(bgCtx context.Context) error {
			e.refreshWatchers(bgCtx, sym, TriggerStale)

			return nil
		})
	}

	return history, nil
}
