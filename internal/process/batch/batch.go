// Package batch runs the scheduled pre-market analysis over every ticker with
// analysis enabled.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
	"github.com/lueurxax/ticker-sentiment-bot/internal/core/ports"
	"github.com/lueurxax/ticker-sentiment-bot/internal/ingest/ingestor"
	"github.com/lueurxax/ticker-sentiment-bot/internal/platform/observability"
	"github.com/lueurxax/ticker-sentiment-bot/internal/platform/worker"
	"github.com/lueurxax/ticker-sentiment-bot/internal/process/synthesis"
)

// Log fields.
const (
	LogFieldSymbol    = "symbol"
	LogFieldTickerID  = "ticker_id"
	LogFieldUserID    = "user_id"
	LogFieldProcessed = "processed"
	LogFieldSkipped   = "skipped"
	LogFieldErrors    = "errors"
	LogFieldTotal     = "total"
)

// Ticker results.
const (
	resultProcessed = "processed"
	resultSkipped   = "skipped"
	resultError     = "error"
)

// CreditReasonScheduled is the ledger reason for a paid scheduled run.
const CreditReasonScheduled = "scheduled_analysis"

const (
	defaultIngestPages   = 50
	defaultTickerTimeout = 10 * time.Minute
)

// ErrAlreadyRunning is returned when another instance holds the batch lock.
var ErrAlreadyRunning = errors.New("batch already running")

// Analyzer runs synthesis for one symbol.
type Analyzer interface {
	Analyze(ctx context.Context, symbol, userID string, opts synthesis.Options) (synthesis.Result, error)
}

// Ingestor refreshes posts for one symbol.
type Ingestor interface {
	IngestPosts(ctx context.Context, symbol string, maxPages int) ingestor.IngestResult
}

// Locker takes a cluster-wide lock. Release must be called when acquired.
type Locker interface {
	TryAcquireAdvisoryLock(ctx context.Context, lockID int64) (bool, func(), error)
}

// Notifier receives the summary of each completed run.
type Notifier interface {
	NotifyBatch(ctx context.Context, s Summary) error
}

// Summary aggregates one run.
type Summary struct {
	TradingDay bool
	Total      int
	Processed  int
	Skipped    int
	Errors     int
	Duration   time.Duration
}

// Deps are the collaborators of an Orchestrator. Locker and Notifier may be nil.
type Deps struct {
	Tickers  ports.TickerDirectory
	Credits  ports.CreditLedger
	Calendar ports.MarketCalendar
	Ingest   Ingestor
	Analyzer Analyzer
	Locker   Locker
	Notifier Notifier
	Costs    synthesis.Costs
	Logger   *zerolog.Logger
}

// Config tunes a run.
type Config struct {
	Quality       domain.QualityTier
	IngestPages   int
	TickerTimeout time.Duration
	LockID        int64
}

// Orchestrator processes tickers one after another.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *zerolog.Logger
	now    func() time.Time
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.IngestPages <= 0 {
		cfg.IngestPages = defaultIngestPages
	}

	if cfg.TickerTimeout <= 0 {
		cfg.TickerTimeout = defaultTickerTimeout
	}

	if cfg.Quality == "" {
		cfg.Quality = domain.QualityStandard
	}

	return &Orchestrator{deps: deps, cfg: cfg, logger: deps.Logger, now: time.Now}
}

// RunScheduledAnalysis refreshes and analyzes every enabled ticker once.
// Non-trading days return a zero summary. Per-ticker failures are counted,
// never returned.
func (o *Orchestrator) RunScheduledAnalysis(ctx context.Context) (Summary, error) {
	start := o.now()

	if !o.deps.Calendar.IsTradingDay(start) {
		o.logger.Info().Msg("not a trading day, skipping scheduled analysis")

		return Summary{}, nil
	}

	if o.deps.Locker != nil {
		acquired, release, err := o.deps.Locker.TryAcquireAdvisoryLock(ctx, o.cfg.LockID)
		if err != nil {
			return Summary{}, fmt.Errorf("batch lock: %w", err)
		}

		if !acquired {
			return Summary{}, ErrAlreadyRunning
		}

		defer release()
	}

	tickers, err := o.deps.Tickers.ListTickersWithAnalysisEnabled(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list tickers: %w", err)
	}

	sum := Summary{TradingDay: true, Total: len(tickers)}

	for _, t := range tickers {
		if ctx.Err() != nil {
			break
		}

		switch o.processTicker(ctx, t) {
		case resultProcessed:
			sum.Processed++
		case resultSkipped:
			sum.Skipped++
		default:
			sum.Errors++
		}
	}

	sum.Duration = o.now().Sub(start)
	observability.BatchDuration.Observe(sum.Duration.Seconds())

	o.logger.Info().
		Int(LogFieldProcessed, sum.Processed).
		Int(LogFieldSkipped, sum.Skipped).
		Int(LogFieldErrors, sum.Errors).
		Int(LogFieldTotal, sum.Total).
		Dur("duration", sum.Duration).
		Msg("scheduled analysis completed")

	if o.deps.Notifier != nil {
		if err := o.deps.Notifier.NotifyBatch(ctx, sum); err != nil {
			o.logger.Warn().Err(err).Msg("failed to send batch summary")
		}
	}

	return sum, nil
}

func (o *Orchestrator) processTicker(ctx context.Context, t domain.Ticker) string {
	log := o.logger.With().Str(LogFieldSymbol, t.Symbol).Str(LogFieldTickerID, t.ID).Logger()

	result, err := o.chargeOwner(ctx, t, &log)
	if err == nil && result == "" {
		err = worker.Capture(func() error {
			return worker.RunWithTimeout(ctx, o.cfg.TickerTimeout, func(ctx context.Context) error {
				return o.refreshAndAnalyze(ctx, t, &log)
			})
		})
		result = resultProcessed
	}

	if err != nil {
		log.Warn().Err(err).Msg("ticker analysis failed")

		result = resultError
	}

	observability.BatchTickers.WithLabelValues(result).Inc()

	return result
}

// chargeOwner bills the enabling user when their plan pays per run. It returns
// resultSkipped when the balance does not cover the cost.
func (o *Orchestrator) chargeOwner(ctx context.Context, t domain.Ticker, log *zerolog.Logger) (string, error) {
	owner, err := o.deps.Tickers.GetAnalysisOwner(ctx, t.ID)
	if err != nil {
		return "", fmt.Errorf("resolve owner: %w", err)
	}

	if owner == nil || !owner.PlanTier.RequiresPayment() {
		return "", nil
	}

	cost := o.deps.Costs.For(o.cfg.Quality)
	if !cost.IsPositive() {
		return "", nil
	}

	balance, err := o.deps.Credits.GetBalance(ctx, owner.UserID)
	if err != nil {
		return "", fmt.Errorf("get balance: %w", err)
	}

	if balance.LessThan(cost) {
		log.Info().Str(LogFieldUserID, owner.UserID).
			Str("balance", balance.String()).
			Str("cost", cost.String()).
			Msg("insufficient credits, skipping ticker")

		return resultSkipped, nil
	}

	meta := map[string]any{"symbol": t.Symbol, "ticker_id": t.ID, "quality": string(o.cfg.Quality)}

	if err := o.deps.Credits.Deduct(ctx, owner.UserID, cost, CreditReasonScheduled, meta); err != nil {
		if errors.Is(err, coreerrors.ErrInsufficientCredit) {
			return resultSkipped, nil
		}

		return "", fmt.Errorf("deduct credits: %w", err)
	}

	observability.CreditsDeducted.WithLabelValues(CreditReasonScheduled).Inc()

	return "", nil
}

func (o *Orchestrator) refreshAndAnalyze(ctx context.Context, t domain.Ticker, log *zerolog.Logger) error {
	ing := o.deps.Ingest.IngestPosts(ctx, t.Symbol, o.cfg.IngestPages)
	if ing.Err != nil {
		log.Warn().Err(ing.Err).Str("stop_reason", string(ing.StopReason)).Msg("post refresh incomplete")
	}

	res, err := o.deps.Analyzer.Analyze(ctx, t.Symbol, "", synthesis.Options{Quality: o.cfg.Quality, SkipRefresh: true})
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	log.Info().
		Int("posts_saved", ing.Saved).
		Str("outcome", string(res.Outcome)).
		Str("mode", string(res.Mode)).
		Msg("ticker analyzed")

	return nil
}
