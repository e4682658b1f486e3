package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
	"github.com/lueurxax/ticker-sentiment-bot/internal/ingest/ingestor"
	"github.com/lueurxax/ticker-sentiment-bot/internal/process/batch"
	"github.com/lueurxax/ticker-sentiment-bot/internal/process/synthesis"
)

const (
	// AdminSecretHeader carries the shared admin secret.
	AdminSecretHeader = "X-Admin-Secret"

	routeRunBatch = "run-batch"
	routeCleanup  = "cleanup"
	routeSync     = "sync"
	routeAnalyze  = "analyze"

	paramUserID  = "user_id"
	paramQuality = "quality"
	paramModel   = "model"
	paramPages   = "pages"

	defaultSyncPages = 10
	maxSyncPages     = 100
)

// BatchRunner runs the scheduled analysis on demand.
type BatchRunner interface {
	RunScheduledAnalysis(ctx context.Context) (batch.Summary, error)
}

// Syncer refreshes posts and watchers for one symbol.
type Syncer interface {
	IngestPosts(ctx context.Context, symbol string, maxPages int) ingestor.IngestResult
	TrackWatchers(ctx context.Context, symbol string) bool
}

// Analyzer runs synthesis for one symbol.
type Analyzer interface {
	Analyze(ctx context.Context, symbol, userID string, opts synthesis.Options) (synthesis.Result, error)
}

// Cleaner deletes old analyses and posts.
type Cleaner interface {
	DeleteAnalysesOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeletePostsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AdminDeps are the collaborators of AdminHandler.
type AdminDeps struct {
	Secret             string
	Batch              BatchRunner
	Sync               Syncer
	Analyzer           Analyzer
	Cleaner            Cleaner
	DefaultCleanupDays int
	PostRetentionDays  int
	Logger             *zerolog.Logger
}

// AdminHandler serves operator triggers under /admin/. Every request must carry
// the shared secret in AdminSecretHeader.
type AdminHandler struct {
	deps AdminDeps
	now  func() time.Time
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(deps AdminDeps) *AdminHandler {
	return &AdminHandler{deps: deps, now: time.Now}
}

type syncResponse struct {
	Symbol          string              `json:"symbol"`
	Pages           int                 `json:"pages"`
	Saved           int                 `json:"saved"`
	Skipped         int                 `json:"skipped"`
	StopReason      ingestor.StopReason `json:"stop_reason"`
	WatchersUpdated bool                `json:"watchers_updated"`
	Error           string              `json:"error,omitempty"`
}

type analyzeResponse struct {
	Outcome  synthesis.Outcome `json:"outcome"`
	Mode     synthesis.Mode    `json:"mode"`
	Analysis *analysisView     `json:"analysis,omitempty"`
	Events   eventCounts       `json:"events"`
}

type eventCounts struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
}

type batchResponse struct {
	TradingDay bool   `json:"trading_day"`
	Total      int    `json:"total"`
	Processed  int    `json:"processed"`
	Skipped    int    `json:"skipped"`
	Errors     int    `json:"errors"`
	Duration   string `json:"duration"`
}

type cleanupResponse struct {
	Days            int   `json:"days"`
	AnalysesDeleted int64 `json:"analyses_deleted"`
	PostsDeleted    int64 `json:"posts_deleted"`
}

// ServeHTTP authenticates and routes admin requests.
func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	route, status := h.dispatch(w, r)

	recordMetrics("admin_"+route, status, start)
}

func (h *AdminHandler) dispatch(w http.ResponseWriter, r *http.Request) (route string, status int) {
	logger := h.deps.Logger

	if !h.authorized(r) {
		logger.Warn().Str("remote", r.RemoteAddr).Msg("admin request rejected")

		return "unauthorized", writeError(w, logger, http.StatusUnauthorized, "unauthorized")
	}

	if r.Method != http.MethodPost {
		return "method_not_allowed", writeError(w, logger, http.StatusMethodNotAllowed, "POST only")
	}

	// Triggers outlive a disconnected client.
	ctx := context.WithoutCancel(r.Context())

	switch strings.Trim(strings.TrimPrefix(r.URL.Path, "/admin"), "/") {
	case routeRunBatch:
		return routeRunBatch, h.handleRunBatch(ctx, w)
	case routeCleanup:
		return routeCleanup, h.handleCleanup(ctx, w, r)
	case routeSync:
		return routeSync, h.handleSync(ctx, w, r)
	case routeAnalyze:
		return routeAnalyze, h.handleAnalyze(ctx, w, r)
	default:
		return "not_found", writeError(w, logger, http.StatusNotFound, "unknown admin endpoint")
	}
}

// authorized compares the header in constant time. An empty configured secret
// disables every admin route.
func (h *AdminHandler) authorized(r *http.Request) bool {
	if h.deps.Secret == "" {
		return false
	}

	got := r.Header.Get(AdminSecretHeader)

	return subtle.ConstantTimeCompare([]byte(got), []byte(h.deps.Secret)) == 1
}

func (h *AdminHandler) handleRunBatch(ctx context.Context, w http.ResponseWriter) int {
	logger := h.deps.Logger

	sum, err := h.deps.Batch.RunScheduledAnalysis(ctx)
	if err != nil {
		if errors.Is(err, batch.ErrAlreadyRunning) {
			return writeError(w, logger, http.StatusConflict, err.Error())
		}

		logger.Error().Err(err).Msg("admin batch run failed")

		return writeError(w, logger, http.StatusInternalServerError, "batch run failed")
	}

	return writeJSON(w, logger, http.StatusOK, batchResponse{
		TradingDay: sum.TradingDay,
		Total:      sum.Total,
		Processed:  sum.Processed,
		Skipped:    sum.Skipped,
		Errors:     sum.Errors,
		Duration:   sum.Duration.String(),
	})
}

func (h *AdminHandler) handleCleanup(ctx context.Context, w http.ResponseWriter, r *http.Request) int {
	logger := h.deps.Logger

	days, err := optionalInt(r, paramDays, h.deps.DefaultCleanupDays)
	if err != nil || days <= 0 {
		return writeError(w, logger, http.StatusBadRequest, "days must be a positive integer")
	}

	now := h.now().UTC()
	res := cleanupResponse{Days: days}

	res.AnalysesDeleted, err = h.deps.Cleaner.DeleteAnalysesOlderThan(ctx, now.AddDate(0, 0, -days))
	if err != nil {
		logger.Error().Err(err).Msg("analysis cleanup failed")

		return writeError(w, logger, http.StatusInternalServerError, "cleanup failed")
	}

	if h.deps.PostRetentionDays > 0 {
		res.PostsDeleted, err = h.deps.Cleaner.DeletePostsOlderThan(ctx, now.AddDate(0, 0, -h.deps.PostRetentionDays))
		if err != nil {
			logger.Error().Err(err).Msg("post cleanup failed")

			return writeError(w, logger, http.StatusInternalServerError, "cleanup failed")
		}
	}

	logger.Info().Int(paramDays, days).
		Int64("analyses_deleted", res.AnalysesDeleted).
		Int64("posts_deleted", res.PostsDeleted).
		Msg("retention cleanup completed")

	return writeJSON(w, logger, http.StatusOK, res)
}

func (h *AdminHandler) handleSync(ctx context.Context, w http.ResponseWriter, r *http.Request) int {
	logger := h.deps.Logger

	symbol, err := symbolParam(r)
	if err != nil {
		return writeError(w, logger, http.StatusBadRequest, err.Error())
	}

	pages, err := optionalInt(r, paramPages, defaultSyncPages)
	if err != nil {
		return writeError(w, logger, http.StatusBadRequest, err.Error())
	}

	res := h.deps.Sync.IngestPosts(ctx, symbol, min(pages, maxSyncPages))
	watchers := h.deps.Sync.TrackWatchers(ctx, symbol)

	out := syncResponse{
		Symbol:          symbol,
		Pages:           res.Pages,
		Saved:           res.Saved,
		Skipped:         res.Skipped,
		StopReason:      res.StopReason,
		WatchersUpdated: watchers,
	}

	status := http.StatusOK

	if res.Err != nil {
		out.Error = res.Err.Error()

		if errors.Is(res.Err, coreerrors.ErrUpstreamExhausted) {
			status = http.StatusBadGateway
		}
	}

	return writeJSON(w, logger, status, out)
}

func (h *AdminHandler) handleAnalyze(ctx context.Context, w http.ResponseWriter, r *http.Request) int {
	logger := h.deps.Logger

	symbol, err := symbolParam(r)
	if err != nil {
		return writeError(w, logger, http.StatusBadRequest, err.Error())
	}

	q := r.URL.Query()
	opts := synthesis.Options{Model: strings.TrimSpace(q.Get(paramModel))}

	if raw := strings.TrimSpace(q.Get(paramQuality)); raw != "" {
		tier, ok := domain.ParseQualityTier(raw)
		if !ok {
			return writeError(w, logger, http.StatusBadRequest, "unknown quality tier")
		}

		opts.Quality = tier
	}

	res, err := h.deps.Analyzer.Analyze(ctx, symbol, strings.TrimSpace(q.Get(paramUserID)), opts)
	if err != nil {
		switch {
		case errors.Is(err, coreerrors.ErrInsufficientCredit):
			return writeError(w, logger, http.StatusPaymentRequired, err.Error())
		case errors.Is(err, coreerrors.ErrInvalidInput):
			return writeError(w, logger, http.StatusBadRequest, err.Error())
		}

		logger.Error().Err(err).Str(logFieldSymbol, symbol).Msg("manual analysis failed")

		return writeError(w, logger, http.StatusBadGateway, "analysis failed")
	}

	out := analyzeResponse{
		Outcome: res.Outcome,
		Mode:    res.Mode,
		Events: eventCounts{
			Inserted:   res.Events.Inserted,
			Duplicates: res.Events.Duplicates,
			Rejected:   res.Events.Rejected,
		},
	}

	if res.Analysis != nil {
		v := toAnalysisView(res.Analysis)
		out.Analysis = &v
	}

	return writeJSON(w, logger, http.StatusOK, out)
}
