// Package api serves the JSON read endpoints and the secret-protected admin
// triggers mounted on the health server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
	"github.com/lueurxax/ticker-sentiment-bot/internal/core/llm"
	db "github.com/lueurxax/ticker-sentiment-bot/internal/storage"
)

const (
	// Route path constants.
	routePosts     = "posts"
	routeWatchers  = "watchers"
	routeAnalysis  = "analysis"
	routeEvents    = "events"
	routeVolume    = "volume"
	routeUsage     = "usage"
	routeProviders = "providers"

	// Query parameters.
	paramSymbol = "symbol"
	paramBefore = "before"
	paramLimit  = "limit"
	paramDays   = "days"

	defaultVolumeDays = 30
	maxVolumeDays     = 365
	hoursPerDay       = 24

	// Content type constants.
	contentTypeHeader = "Content-Type"
	contentTypeJSON   = "application/json; charset=utf-8"

	// Log field names.
	logFieldRoute  = "route"
	logFieldSymbol = "symbol"
)

// Static errors for err113 compliance.
var (
	errSymbolRequired = errors.New("symbol is required")
	errInvalidNumber  = errors.New("must be a positive integer")
)

// ReadStore is the storage used by read endpoints.
type ReadStore interface {
	ListPosts(ctx context.Context, symbol string, beforeID int64, limit int) ([]domain.Post, error)
	GetLatestAnalysis(ctx context.Context, symbol string) (*domain.Analysis, error)
	GetEventsFrom(ctx context.Context, symbol string, from time.Time) ([]domain.CalendarEvent, error)
	GetDailyPostVolume(ctx context.Context, symbol string, days int) ([]domain.DailyVolume, error)
	GetDailyLLMUsage(ctx context.Context) (*db.LLMUsageSummary, error)
	GetMonthlyLLMUsage(ctx context.Context) (*db.LLMUsageSummary, error)
}

// WatcherReader returns watcher history, refreshing it when stale.
type WatcherReader interface {
	GetWatcherHistory(ctx context.Context, symbol string) ([]domain.WatcherSnapshot, error)
}

// ProviderStatusReader reports generative backend health.
type ProviderStatusReader interface {
	GetProviderStatuses() []llm.ProviderStatus
}

// Handler serves read-only JSON endpoints under /api/.
type Handler struct {
	store     ReadStore
	watchers  WatcherReader
	providers ProviderStatusReader
	logger    *zerolog.Logger
	now       func() time.Time
}

// NewHandler creates a read handler. providers may be nil.
func NewHandler(store ReadStore, watchers WatcherReader, providers ProviderStatusReader, logger *zerolog.Logger) *Handler {
	return &Handler{
		store:     store,
		watchers:  watchers,
		providers: providers,
		logger:    logger,
		now:       time.Now,
	}
}

// ServeHTTP routes requests to read endpoints.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	route, status := h.dispatch(w, r)

	recordMetrics(route, status, start)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) (route string, status int) {
	if r.Method != http.MethodGet {
		return "method_not_allowed", writeError(w, h.logger, http.StatusMethodNotAllowed, "GET only")
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api"), "/")

	switch path {
	case routePosts:
		return routePosts, h.handlePosts(w, r)
	case routeWatchers:
		return routeWatchers, h.handleWatchers(w, r)
	case routeAnalysis:
		return routeAnalysis, h.handleAnalysis(w, r)
	case routeEvents:
		return routeEvents, h.handleEvents(w, r)
	case routeVolume:
		return routeVolume, h.handleVolume(w, r)
	case routeUsage:
		return routeUsage, h.handleUsage(w, r)
	case routeProviders:
		return routeProviders, h.handleProviders(w)
	default:
		return "not_found", writeError(w, h.logger, http.StatusNotFound, "unknown endpoint")
	}
}

func (h *Handler) handlePosts(w http.ResponseWriter, r *http.Request) int {
	symbol, err := symbolParam(r)
	if err != nil {
		return writeError(w, h.logger, http.StatusBadRequest, err.Error())
	}

	before, err := optionalInt(r, paramBefore, 0)
	if err != nil {
		return writeError(w, h.logger, http.StatusBadRequest, err.Error())
	}

	limit, err := optionalInt(r, paramLimit, 0)
	if err != nil {
		return writeError(w, h.logger, http.StatusBadRequest, err.Error())
	}

	posts, err := h.store.ListPosts(r.Context(), symbol, int64(before), limit)
	if err != nil {
		return h.internalError(w, routePosts, symbol, err)
	}

	page := postsPage{Posts: toPostViews(posts)}
	if n := len(posts); n > 0 {
		page.NextBefore = posts[n-1].ID
	}

	return writeJSON(w, h.logger, http.StatusOK, page)
}

func (h *Handler) handleWatchers(w http.ResponseWriter, r *http.Request) int {
	symbol, err := symbolParam(r)
	if err != nil {
		return writeError(w, h.logger, http.StatusBadRequest, err.Error())
	}

	history, err := h.watchers.GetWatcherHistory(r.Context(), symbol)
	if err != nil {
		return h.internalError(w, routeWatchers, symbol, err)
	}

	return writeJSON(w, h.logger, http.StatusOK, toWatcherViews(history))
}

func (h *Handler) handleAnalysis(w http.ResponseWriter, r *http.Request) int {
	symbol, err := symbolParam(r)
	if err != nil {
		return writeError(w, h.logger, http.StatusBadRequest, err.Error())
	}

	a, err := h.store.GetLatestAnalysis(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, coreerrors.ErrNotFound) {
			return writeError(w, h.logger, http.StatusNotFound, "no analysis for "+symbol)
		}

		return h.internalError(w, routeAnalysis, symbol, err)
	}

	return writeJSON(w, h.logger, http.StatusOK, toAnalysisView(a))
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) int {
	symbol, err := symbolParam(r)
	if err != nil {
		return writeError(w, h.logger, http.StatusBadRequest, err.Error())
	}

	today := h.now().UTC().Truncate(hoursPerDay * time.Hour)

	events, err := h.store.GetEventsFrom(r.Context(), symbol, today)
	if err != nil {
		return h.internalError(w, routeEvents, symbol, err)
	}

	return writeJSON(w, h.logger, http.StatusOK, toEventViews(events))
}

func (h *Handler) handleVolume(w http.ResponseWriter, r *http.Request) int {
	symbol, err := symbolParam(r)
	if err != nil {
		return writeError(w, h.logger, http.StatusBadRequest, err.Error())
	}

	days, err := optionalInt(r, paramDays, defaultVolumeDays)
	if err != nil {
		return writeError(w, h.logger, http.StatusBadRequest, err.Error())
	}

	days = min(days, maxVolumeDays)

	volume, err := h.store.GetDailyPostVolume(r.Context(), symbol, days)
	if err != nil {
		return h.internalError(w, routeVolume, symbol, err)
	}

	return writeJSON(w, h.logger, http.StatusOK, toVolumeViews(volume))
}

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) int {
	daily, err := h.store.GetDailyLLMUsage(r.Context())
	if err != nil {
		return h.internalError(w, routeUsage, "", err)
	}

	monthly, err := h.store.GetMonthlyLLMUsage(r.Context())
	if err != nil {
		return h.internalError(w, routeUsage, "", err)
	}

	return writeJSON(w, h.logger, http.StatusOK, usageResponse{Daily: toUsageView(daily), Monthly: toUsageView(monthly)})
}

func (h *Handler) handleProviders(w http.ResponseWriter) int {
	if h.providers == nil {
		return writeJSON(w, h.logger, http.StatusOK, []llm.ProviderStatus{})
	}

	return writeJSON(w, h.logger, http.StatusOK, h.providers.GetProviderStatuses())
}

func (h *Handler) internalError(w http.ResponseWriter, route, symbol string, err error) int {
	h.logger.Error().Err(err).Str(logFieldRoute, route).Str(logFieldSymbol, symbol).Msg("api request failed")

	return writeError(w, h.logger, http.StatusInternalServerError, "internal error")
}

func symbolParam(r *http.Request) (string, error) {
	symbol := domain.NormalizeSymbol(r.URL.Query().Get(paramSymbol))
	if symbol == "" {
		return "", errSymbolRequired
	}

	return symbol, nil
}

func optionalInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s %w", name, errInvalidNumber)
	}

	return v, nil
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, logger *zerolog.Logger, status int, payload any) int {
	w.Header().Set(contentTypeHeader, contentTypeJSON)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error().Err(err).Msg("write json failed")
	}

	return status
}

func writeError(w http.ResponseWriter, logger *zerolog.Logger, status int, message string) int {
	return writeJSON(w, logger, status, errorBody{Error: message})
}

func recordMetrics(route string, status int, start time.Time) {
	latencyHistogram.WithLabelValues(route).Observe(time.Since(start).Seconds())
	requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
