// Package app provides the main application bootstrap and runtime orchestration.
//
// The App type wires together all dependencies and exposes methods to run
// different operational modes:
//
//   - Server mode: HTTP API, admin triggers and the cron schedule
//   - Batch mode: one pre-market analysis run over every enabled ticker
//   - Sync mode: post and watcher refresh for one symbol
//   - Analyze mode: refresh and synthesis for one symbol
//   - Cleanup mode: retention cleanup of analyses and posts
//
// Each mode can be run independently or combined based on deployment needs.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/ticker-sentiment-bot/internal/api"
	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
	"github.com/lueurxax/ticker-sentiment-bot/internal/core/llm"
	"github.com/lueurxax/ticker-sentiment-bot/internal/ingest/feed"
	"github.com/lueurxax/ticker-sentiment-bot/internal/ingest/ingestor"
	"github.com/lueurxax/ticker-sentiment-bot/internal/output/notify"
	"github.com/lueurxax/ticker-sentiment-bot/internal/platform/config"
	"github.com/lueurxax/ticker-sentiment-bot/internal/platform/marketcal"
	"github.com/lueurxax/ticker-sentiment-bot/internal/platform/observability"
	"github.com/lueurxax/ticker-sentiment-bot/internal/platform/scheduler"
	"github.com/lueurxax/ticker-sentiment-bot/internal/process/batch"
	"github.com/lueurxax/ticker-sentiment-bot/internal/process/events"
	"github.com/lueurxax/ticker-sentiment-bot/internal/process/synthesis"
	db "github.com/lueurxax/ticker-sentiment-bot/internal/storage"
)

const (
	jobBatch    = "premarket_batch"
	jobWatchers = "watcher_snapshots"
	jobCleanup  = "retention_cleanup"

	watcherJobTimeout = 30 * time.Minute
	cleanupJobTimeout = 10 * time.Minute
	stopTimeout       = 30 * time.Second

	logFieldSymbol = "symbol"
)

// App holds the application dependencies and provides methods to run different modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger

	llmClient llm.Client
	ingest    *ingestor.Engine
	synth     *synthesis.Engine
	batch     *batch.Orchestrator
}

// New wires every component on top of database.
func New(ctx context.Context, cfg *config.Config, database *db.DB, logger *zerolog.Logger) (*App, error) {
	a := &App{cfg: cfg, database: database, logger: logger}

	feedClient, err := a.newFeedClient()
	if err != nil {
		return nil, err
	}

	a.ingest = ingestor.New(feedClient, database, database, ingestor.Options{
		MaxPages:          cfg.IngestMaxPages,
		RetentionDays:     cfg.RetentionDays,
		WatcherStaleAfter: cfg.WatcherStaleAfter,
	}, logger)

	a.llmClient = llm.New(ctx, cfg, database, logger)

	costs, err := synthesis.ParseCosts(cfg.CreditCostLow, cfg.CreditCostStandard, cfg.CreditCostHigh)
	if err != nil {
		return nil, fmt.Errorf("credit costs: %w", err)
	}

	a.synth = synthesis.New(synthesis.Deps{
		Repo:      database,
		Tickers:   database,
		Credits:   database,
		Generator: a.llmClient,
		Ingest:    a.ingest,
		Events:    events.NewSaver(database, logger),
		Costs:     costs,
		Logger:    logger,
	}, synthesis.Config{
		RefreshPages:     cfg.IngestAnalysisPages,
		RetentionDays:    cfg.RetentionDays,
		TopPosts:         cfg.AnalysisTopPosts,
		RetryPosts:       cfg.AnalysisRetryPosts,
		ShallowThreshold: cfg.AnalysisShallowThreshold,
		MinPosts:         cfg.AnalysisMinPosts,
	})

	calendar, err := marketcal.New(cfg.Location(), cfg.MarketHolidays)
	if err != nil {
		return nil, fmt.Errorf("market calendar: %w", err)
	}

	batchDeps := batch.Deps{
		Tickers:  database,
		Credits:  database,
		Calendar: calendar,
		Ingest:   a.ingest,
		Analyzer: a.synth,
		Locker:   database,
		Costs:    costs,
		Logger:   logger,
	}

	notifier, err := notify.NewTelegram(cfg.NotifyBotToken, cfg.NotifyChatID, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("operator notifications disabled")
	} else if notifier != nil {
		batchDeps.Notifier = notifier
	}

	a.batch = batch.New(batchDeps, batch.Config{
		IngestPages: cfg.IngestAnalysisPages,
		LockID:      db.BatchLockID,
	})

	return a, nil
}

func (a *App) newFeedClient() (*feed.Client, error) {
	primary, err := feed.NewHTTPTransport(a.cfg.FeedTimeout, a.cfg.FeedRPS, a.cfg.FeedUserAgent)
	if err != nil {
		return nil, fmt.Errorf("feed transport: %w", err)
	}

	transports := []feed.FetchTransport{primary}

	if a.cfg.FeedFallbackEnabled {
		transports = append(transports, feed.NewCommandTransport(a.cfg.FeedFallbackBinary, a.cfg.FeedTimeout, a.cfg.FeedUserAgent, nil))
	}

	return feed.NewClient(a.cfg.FeedBaseURL, feed.NewFallbackChain(a.logger, transports...), a.logger), nil
}

// StartHealthServer serves health, metrics, read API and admin triggers.
func (a *App) StartHealthServer(ctx context.Context) error {
	readHandler := api.NewHandler(a.database, a.ingest, a.llmClient, a.logger)
	adminHandler := api.NewAdminHandler(api.AdminDeps{
		Secret:             a.cfg.AdminSecret,
		Batch:              a.batch,
		Sync:               a.ingest,
		Analyzer:           a.synth,
		Cleaner:            a.database,
		DefaultCleanupDays: a.cfg.CleanupAnalysisDays,
		PostRetentionDays:  a.cfg.PostRetentionDays,
		Logger:             a.logger,
	})

	if a.cfg.AdminSecret == "" {
		a.logger.Warn().Msg("ADMIN_SECRET is empty, admin triggers are disabled")
	}

	srv := observability.NewServer(a.database, a.cfg.HTTPPort, a.logger,
		observability.Mount{Prefix: "/api/", Handler: readHandler},
		observability.Mount{Prefix: "/admin/", Handler: adminHandler},
	)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

// RunServer serves HTTP and runs the cron schedule until ctx is canceled.
func (a *App) RunServer(ctx context.Context) error {
	a.logger.Info().Msg("Starting server mode")

	if a.cfg.SchedulerEnable {
		runner := scheduler.New(ctx, a.cfg.Location(), a.logger)

		if err := a.schedule(runner); err != nil {
			return err
		}

		runner.Start()

		defer func() {
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
			defer cancel()

			runner.Stop(stopCtx)
		}()
	}

	return a.StartHealthServer(ctx)
}

func (a *App) schedule(runner *scheduler.Runner) error {
	jobs := []struct {
		name string
		spec string
		job  scheduler.Job
	}{
		{jobBatch, a.cfg.BatchCron, a.runBatchJob},
		{jobWatchers, a.cfg.WatcherCron, a.snapshotWatchers},
		{jobCleanup, a.cfg.CleanupCron, a.cleanupJob},
	}

	for _, j := range jobs {
		if j.spec == "" {
			continue
		}

		if _, err := runner.Add(j.name, j.spec, j.job); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
	}

	return nil
}

func (a *App) runBatchJob(ctx context.Context) error {
	_, err := a.batch.RunScheduledAnalysis(ctx)
	if errors.Is(err, batch.ErrAlreadyRunning) {
		a.logger.Info().Msg("batch already running on another instance")

		return nil
	}

	return err
}

func (a *App) snapshotWatchers(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, watcherJobTimeout)
	defer cancel()

	tickers, err := a.database.ListTickersWithAnalysisEnabled(ctx)
	if err != nil {
		return fmt.Errorf("list tickers: %w", err)
	}

	failed := 0

	for _, t := range tickers {
		if !a.ingest.TrackWatchersScheduled(ctx, t.Symbol) {
			failed++
		}
	}

	a.logger.Info().Int("tickers", len(tickers)).Int("failed", failed).Msg("watcher snapshots recorded")

	return nil
}

func (a *App) cleanupJob(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, cleanupJobTimeout)
	defer cancel()

	return a.RunCleanup(ctx, a.cfg.CleanupAnalysisDays)
}

// RunBatch runs one scheduled analysis pass and returns.
func (a *App) RunBatch(ctx context.Context) error {
	a.logger.Info().Msg("Starting batch mode")

	sum, err := a.batch.RunScheduledAnalysis(ctx)
	if err != nil {
		return fmt.Errorf("batch run: %w", err)
	}

	if !sum.TradingDay {
		a.logger.Info().Msg("market closed today, nothing to do")
	}

	return nil
}

// RunSync refreshes posts and watchers for symbol.
func (a *App) RunSync(ctx context.Context, symbol string, pages int) error {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return errSymbolRequired
	}

	res := a.ingest.IngestPosts(ctx, symbol, pages)
	watchers := a.ingest.TrackWatchers(ctx, symbol)

	a.logger.Info().
		Str(logFieldSymbol, symbol).
		Int("pages", res.Pages).
		Int("saved", res.Saved).
		Str("stop_reason", string(res.StopReason)).
		Bool("watchers_updated", watchers).
		Msg("sync finished")

	if res.Err != nil {
		return fmt.Errorf("sync %s: %w", symbol, res.Err)
	}

	return nil
}

// RunAnalyze refreshes and analyzes symbol, charging userID when set.
func (a *App) RunAnalyze(ctx context.Context, symbol, userID string, opts synthesis.Options) error {
	if domain.NormalizeSymbol(symbol) == "" {
		return errSymbolRequired
	}

	res, err := a.synth.Analyze(ctx, symbol, userID, opts)
	if err != nil {
		return fmt.Errorf("analyze %s: %w", symbol, err)
	}

	ev := a.logger.Info().Str(logFieldSymbol, symbol).Str("outcome", string(res.Outcome)).Str("mode", string(res.Mode))
	if res.Analysis != nil {
		ev = ev.Str("analysis_id", res.Analysis.ID).
			Float64("score", res.Analysis.SentimentScore).
			Str("label", string(res.Analysis.SentimentLabel)).
			Int("posts", res.Analysis.PostsAnalyzed)
	}

	ev.Msg("analysis finished")

	return nil
}

// RunCleanup deletes analyses older than days and posts past the post retention window.
func (a *App) RunCleanup(ctx context.Context, days int) error {
	if days <= 0 {
		return errInvalidDays
	}

	now := time.Now().UTC()

	analyses, err := a.database.DeleteAnalysesOlderThan(ctx, now.AddDate(0, 0, -days))
	if err != nil {
		return fmt.Errorf("cleanup analyses: %w", err)
	}

	var posts int64

	if a.cfg.PostRetentionDays > 0 {
		posts, err = a.database.DeletePostsOlderThan(ctx, now.AddDate(0, 0, -a.cfg.PostRetentionDays))
		if err != nil {
			return fmt.Errorf("cleanup posts: %w", err)
		}
	}

	a.logger.Info().Int("days", days).Int64("analyses_deleted", analyses).Int64("posts_deleted", posts).Msg("retention cleanup completed")

	return nil
}
