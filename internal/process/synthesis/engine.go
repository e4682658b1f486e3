// Package synthesis implements the synthesis engine: window selection, prompt
// construction, generation with a degraded retry, result parsing and
// persistence of the analysis chain.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
	"github.com/lueurxax/ticker-sentiment-bot/internal/core/llm"
	"github.com/lueurxax/ticker-sentiment-bot/internal/core/ports"
	"github.com/lueurxax/ticker-sentiment-bot/internal/ingest/ingestor"
	"github.com/lueurxax/ticker-sentiment-bot/internal/platform/observability"
	"github.com/lueurxax/ticker-sentiment-bot/internal/process/events"
)

// Log keys.
const (
	logKeySymbol   = "symbol"
	logKeyMode     = "mode"
	logKeyAttempt  = "attempt"
	logKeyPosts    = "posts"
	logKeyAnalysis = "analysis_id"
)

// Defaults.
const (
	defaultRefreshPages     = 50
	defaultRetentionDays    = 30
	defaultTopPosts         = 150
	defaultRetryPosts       = 50
	defaultShallowThreshold = 20
	defaultMinPosts         = 1
	defaultMaxPostRunes     = 280
	hoursPerDay             = 24
)

// Retry causes.
const (
	causeBackend = "backend_error"
	causeParse   = "parse"
)

// CreditReasonAnalysis is the ledger reason for an on-demand analysis.
const CreditReasonAnalysis = "sentiment_analysis"

// Mode is the kind of analysis window.
type Mode string

// Window modes.
const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// Outcome describes what Analyze did.
type Outcome string

// Outcomes.
const (
	OutcomeCreated          Outcome = "created"
	OutcomeUnchanged        Outcome = "unchanged"
	OutcomeInsufficientData Outcome = "insufficient_data"
)

// Ingestor refreshes stored posts before an analysis.
type Ingestor interface {
	IngestPosts(ctx context.Context, symbol string, maxPages int) ingestor.IngestResult
}

// EventSaver persists the events extracted by an analysis.
type EventSaver interface {
	Save(ctx context.Context, ticker domain.Ticker, analysisID string, extracted []domain.ExtractedEvent) (events.SaveResult, error)
}

// Config tunes window selection and prompt size.
type Config struct {
	RefreshPages     int
	RetentionDays    int
	TopPosts         int
	RetryPosts       int
	ShallowThreshold int
	MinPosts         int
	MaxPostRunes     int
}

func (c Config) withDefaults() Config {
	if c.RefreshPages <= 0 {
		c.RefreshPages = defaultRefreshPages
	}

	if c.RetentionDays <= 0 {
		c.RetentionDays = defaultRetentionDays
	}

	if c.TopPosts <= 0 {
		c.TopPosts = defaultTopPosts
	}

	if c.RetryPosts <= 0 {
		c.RetryPosts = defaultRetryPosts
	}

	if c.ShallowThreshold <= 0 {
		c.ShallowThreshold = defaultShallowThreshold
	}

	if c.MinPosts <= 0 {
		c.MinPosts = defaultMinPosts
	}

	if c.MaxPostRunes <= 0 {
		c.MaxPostRunes = defaultMaxPostRunes
	}

	return c
}

// Deps are the collaborators of an Engine. Ingest and Events may be nil.
type Deps struct {
	Repo      ports.AnalysisRepository
	Tickers   ports.TickerDirectory
	Credits   ports.CreditLedger
	Generator llm.Client
	Ingest    Ingestor
	Events    EventSaver
	Costs     Costs
	Logger    *zerolog.Logger
}

// Options are per-call overrides.
type Options struct {
	Model    string
	Quality  domain.QualityTier
	Provider llm.ProviderName
	// SkipRefresh skips the post refresh, for callers that just ingested.
	SkipRefresh bool
}

// Result is the outcome of Analyze. Analysis is nil for OutcomeInsufficientData.
type Result struct {
	Analysis *domain.Analysis
	Outcome  Outcome
	Mode     Mode
	Events   events.SaveResult
}

// Engine runs sentiment synthesis for one symbol at a time.
type Engine struct {
	deps   Deps
	cfg    Config
	logger *zerolog.Logger
	now    func() time.Time
}

// New creates an Engine.
func New(deps Deps, cfg Config) *Engine {
	return &Engine{
		deps:   deps,
		cfg:    cfg.withDefaults(),
		logger: deps.Logger,
		now:    time.Now,
	}
}

type window struct {
	mode  Mode
	start time.Time
	end   time.Time
	prev  *domain.Analysis
}

// Analyze refreshes posts, picks a full or incremental window and, when the
// window has posts, generates and stores a new analysis.
//
// An incremental window without posts returns the previous analysis with
// OutcomeUnchanged. A full window without posts returns OutcomeInsufficientData
// and a nil analysis. A second generation failure is returned as an error.
func (e *Engine) Analyze(ctx context.Context, symbol, userID string, opts Options) (Result, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return Result{}, fmt.Errorf("%w: empty symbol", coreerrors.ErrInvalidInput)
	}

	log := e.logger.With().Str(logKeySymbol, symbol).Logger()

	if !opts.SkipRefresh && e.deps.Ingest != nil {
		res := e.deps.Ingest.IngestPosts(ctx, symbol, e.cfg.RefreshPages)
		if res.Err != nil {
			log.Warn().Err(res.Err).Str("stop_reason", string(res.StopReason)).Msg("post refresh incomplete, analyzing stored posts")
		}
	}

	ticker, err := e.resolveTicker(ctx, symbol)
	if err != nil {
		return Result{}, err
	}

	w, err := e.decideWindow(ctx, symbol)
	if err != nil {
		return Result{}, err
	}

	log = log.With().Str(logKeyMode, string(w.mode)).Logger()

	stats, err := e.deps.Repo.GetWindowStats(ctx, symbol, w.start, w.end)
	if err != nil {
		return Result{}, fmt.Errorf("window stats: %w", err)
	}

	if stats.Count < e.cfg.MinPosts {
		return e.emptyWindow(w, &log), nil
	}

	posts, err := e.deps.Repo.GetPostsInWindow(ctx, symbol, w.start, w.end, e.cfg.TopPosts)
	if err != nil {
		return Result{}, fmt.Errorf("select posts: %w", err)
	}

	if len(posts) == 0 {
		return e.emptyWindow(w, &log), nil
	}

	quality := llm.ResolveQuality(opts.Quality, opts.Model)

	if err := e.charge(ctx, userID, symbol, quality, opts.Model); err != nil {
		return Result{}, err
	}

	out, resp, err := e.generateWithRetry(ctx, symbol, w, posts, quality, opts, &log)
	if err != nil {
		observability.Analyses.WithLabelValues(string(w.mode), "error").Inc()

		return Result{}, err
	}

	a := e.buildAnalysis(ticker, w, stats, out, resp)

	if err := e.deps.Repo.SaveAnalysis(ctx, a); err != nil {
		observability.Analyses.WithLabelValues(string(w.mode), "error").Inc()

		return Result{}, fmt.Errorf("save analysis: %w", err)
	}

	observability.Analyses.WithLabelValues(string(w.mode), string(OutcomeCreated)).Inc()

	res := Result{Analysis: a, Outcome: OutcomeCreated, Mode: w.mode}

	if e.deps.Events != nil {
		saved, err := e.deps.Events.Save(ctx, ticker, a.ID, out.Events)
		if err != nil {
			log.Warn().Err(err).Str(logKeyAnalysis, a.ID).Msg("event save failed, analysis kept")
		}

		res.Events = saved
	}

	log.Info().
		Str(logKeyAnalysis, a.ID).
		Int(logKeyPosts, a.PostsAnalyzed).
		Float64("score", a.SentimentScore).
		Str("model", a.Model).
		Int("events_inserted", res.Events.Inserted).
		Msg("analysis created")

	return res, nil
}

func (e *Engine) resolveTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	if e.deps.Tickers == nil {
		return domain.Ticker{Symbol: symbol}, nil
	}

	t, err := e.deps.Tickers.FindTickerBySymbol(ctx, symbol)
	if err != nil {
		if errors.Is(err, coreerrors.ErrTickerNotFound) {
			return domain.Ticker{Symbol: symbol}, nil
		}

		return domain.Ticker{}, fmt.Errorf("find ticker: %w", err)
	}

	return *t, nil
}

// decideWindow chooses incremental continuation only from a recent analysis
// that covered at least ShallowThreshold posts.
func (e *Engine) decideWindow(ctx context.Context, symbol string) (window, error) {
	now := e.now().UTC()
	horizon := now.Add(-time.Duration(e.cfg.RetentionDays) * hoursPerDay * time.Hour)
	full := window{mode: ModeFull, start: horizon, end: now}

	prev, err := e.deps.Repo.GetLatestAnalysis(ctx, symbol)
	if err != nil {
		if errors.Is(err, coreerrors.ErrNotFound) {
			return full, nil
		}

		return window{}, fmt.Errorf("latest analysis: %w", err)
	}

	if prev.CreatedAt.Before(horizon) || prev.PostsAnalyzed < e.cfg.ShallowThreshold {
		return full, nil
	}

	return window{mode: ModeIncremental, start: prev.CreatedAt, end: now, prev: prev}, nil
}

func (e *Engine) emptyWindow(w window, log *zerolog.Logger) Result {
	if w.mode == ModeIncremental {
		observability.Analyses.WithLabelValues(string(w.mode), string(OutcomeUnchanged)).Inc()
		log.Debug().Str(logKeyAnalysis, w.prev.ID).Msg("no new posts, keeping previous analysis")

		return Result{Analysis: w.prev, Outcome: OutcomeUnchanged, Mode: w.mode}
	}

	observability.Analyses.WithLabelValues(string(w.mode), string(OutcomeInsufficientData)).Inc()
	log.Info().Msg("no posts in window, insufficient data")

	return Result{Outcome: OutcomeInsufficientData, Mode: w.mode}
}

// charge deducts the tier price from userID before generation. It is not
// refunded when generation fails.
func (e *Engine) charge(ctx context.Context, userID, symbol string, quality domain.QualityTier, model string) error {
	if userID == "" || e.deps.Credits == nil {
		return nil
	}

	cost := e.deps.Costs.For(quality)
	if !cost.IsPositive() {
		return nil
	}

	meta := map[string]any{"symbol": symbol, "quality": string(quality)}
	if model != "" {
		meta["model"] = model
	}

	if err := e.deps.Credits.Deduct(ctx, userID, cost, CreditReasonAnalysis, meta); err != nil {
		return fmt.Errorf("deduct credits: %w", err)
	}

	observability.CreditsDeducted.WithLabelValues(CreditReasonAnalysis).Inc()

	return nil
}

func (e *Engine) generateWithRetry(
	ctx context.Context,
	symbol string,
	w window,
	posts []domain.Post,
	quality domain.QualityTier,
	opts Options,
	log *zerolog.Logger,
) (parsed, llm.Response, error) {
	out, resp, cause, err := e.generate(ctx, symbol, w, posts, quality, opts)
	if err == nil {
		return out, resp, nil
	}

	subset := retrySubset(posts, e.cfg.RetryPosts)

	observability.BackendRetries.WithLabelValues(cause).Inc()
	log.Warn().Err(err).
		Int(logKeyPosts, len(posts)).
		Int("retry_posts", len(subset)).
		Msg("generation failed, retrying with fewer posts")

	out, retryResp, _, err := e.generate(ctx, symbol, w, subset, quality, opts)
	if err != nil {
		return parsed{}, llm.Response{}, fmt.Errorf("synthesis failed after retry: %w", err)
	}

	retryResp.TokensIn += resp.TokensIn
	retryResp.TokensOut += resp.TokensOut

	return out, retryResp, nil
}

func (e *Engine) generate(
	ctx context.Context,
	symbol string,
	w window,
	posts []domain.Post,
	quality domain.QualityTier,
	opts Options,
) (parsed, llm.Response, string, error) {
	in := promptInput{
		Symbol:       symbol,
		Mode:         w.mode,
		Today:        w.end,
		WindowStart:  w.start,
		WindowEnd:    w.end,
		Posts:        posts,
		MaxPostRunes: e.cfg.MaxPostRunes,
	}

	if w.prev != nil {
		in.PriorSummary = w.prev.Summary
	}

	observability.AnalysisPostsSelected.Observe(float64(len(posts)))

	resp, err := e.deps.Generator.Generate(ctx, llm.Request{
		Prompt:   buildPrompt(in),
		Tickers:  []string{symbol},
		Quality:  quality,
		Provider: opts.Provider,
		Model:    opts.Model,
		Task:     llm.TaskSentiment,
	})
	if err != nil {
		return parsed{}, llm.Response{}, causeBackend, fmt.Errorf("generate: %w", err)
	}

	out, err := parseResult(resp.Text, domain.HighlightKindTopics)
	if err != nil {
		return parsed{}, resp, causeParse, err
	}

	return out, resp, "", nil
}

// retrySubset returns the top of posts, always strictly fewer than len(posts)
// when more than one post is available.
func retrySubset(posts []domain.Post, retryPosts int) []domain.Post {
	n := min(retryPosts, len(posts))
	if n >= len(posts) {
		n = len(posts) / 2
	}

	if n < 1 {
		n = 1
	}

	return posts[:n]
}

func (e *Engine) buildAnalysis(ticker domain.Ticker, w window, stats domain.WindowStats, out parsed, resp llm.Response) *domain.Analysis {
	a := &domain.Analysis{
		ID:                     uuid.NewString(),
		Symbol:                 domain.NormalizeSymbol(ticker.Symbol),
		TickerID:               ticker.ID,
		AnalysisStart:          w.start,
		AnalysisEnd:            stats.Newest,
		SentimentScore:         out.Score,
		SentimentLabel:         out.Label,
		PostsAnalyzed:          stats.Count,
		WeightedSentimentScore: out.Score,
		Summary:                out.Summary,
		Highlights:             out.Highlights,
		ExtractedEvents:        out.Events,
		Tokens:                 domain.TokenUsage{Input: resp.TokensIn, Output: resp.TokensOut},
		CreatedAt:              e.now().UTC(),
	}

	if n := len(resp.ModelsUsed); n > 0 {
		a.Model = resp.ModelsUsed[n-1]
	}

	if w.mode == ModeIncremental && w.prev != nil {
		total := w.prev.PostsAnalyzed + stats.Count
		a.AnalysisStart = w.prev.AnalysisStart
		a.PostsAnalyzed = total
		a.WeightedSentimentScore = (w.prev.WeightedSentimentScore*float64(w.prev.PostsAnalyzed) +
			out.Score*float64(stats.Count)) / float64(total)
	}

	if a.AnalysisEnd.IsZero() {
		a.AnalysisEnd = w.end
	}

	return a
}
