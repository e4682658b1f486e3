package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/ticker-sentiment-bot/internal/app"
	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
	"github.com/lueurxax/ticker-sentiment-bot/internal/platform/config"
	"github.com/lueurxax/ticker-sentiment-bot/internal/process/synthesis"
	db "github.com/lueurxax/ticker-sentiment-bot/internal/storage"
)

type flags struct {
	mode    string
	symbol  string
	user    string
	quality string
	model   string
	days    int
	pages   int
}

func main() {
	var f flags

	flag.StringVar(&f.mode, "mode", "", "Service mode (server, batch, sync, analyze, cleanup, migrate)")
	flag.StringVar(&f.symbol, "symbol", "", "Ticker symbol (sync, analyze)")
	flag.StringVar(&f.user, "user", "", "User charged for the analysis (analyze)")
	flag.StringVar(&f.quality, "quality", string(domain.QualityStandard), "Quality tier: low, standard, high (analyze)")
	flag.StringVar(&f.model, "model", "", "Model override (analyze)")
	flag.IntVar(&f.days, "days", 0, "Delete analyses older than this many days (cleanup)")
	flag.IntVar(&f.pages, "pages", 10, "Feed pages to crawl (sync)")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolOpts := db.PoolOptions{
		MaxConns:          cfg.DBMaxConnections,
		MinConns:          cfg.DBMinConnections,
		MaxConnIdleTime:   cfg.DBMaxConnIdleTime,
		MaxConnLifetime:   cfg.DBMaxConnLifetime,
		HealthCheckPeriod: cfg.DBHealthCheckPeriod,
	}

	database, err := db.NewWithOptions(ctx, cfg.PostgresDSN, poolOpts, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	if f.mode == "migrate" {
		logger.Info().Msg("migrations applied")

		return
	}

	application, err := app.New(ctx, cfg, database, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}

	if err := runMode(ctx, application, cfg, f); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("application stopped")
			return
		}

		logger.Fatal().Err(err).Msg("application error")
	}
}

func newLogger(appEnv, level string) zerolog.Logger {
	var logger zerolog.Logger

	if appEnv == "local" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return logger.Level(lvl)
}

func runMode(ctx context.Context, application *app.App, cfg *config.Config, f flags) error {
	switch f.mode {
	case "server":
		return application.RunServer(ctx)
	case "batch":
		return application.RunBatch(ctx)
	case "sync":
		return application.RunSync(ctx, f.symbol, f.pages)
	case "analyze":
		quality, ok := domain.ParseQualityTier(f.quality)
		if !ok {
			log.Fatalf("unknown --quality %q", f.quality)
		}

		return application.RunAnalyze(ctx, f.symbol, f.user, synthesis.Options{Quality: quality, Model: f.model})
	case "cleanup":
		days := f.days
		if days == 0 {
			days = cfg.CleanupAnalysisDays
		}

		return application.RunCleanup(ctx, days)
	default:
		log.Fatalf("Usage: %s --mode=[server|batch|sync|analyze|cleanup|migrate]", os.Args[0])

		return nil
	}
}
