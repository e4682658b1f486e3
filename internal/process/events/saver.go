package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
	"github.com/lueurxax/ticker-sentiment-bot/internal/platform/observability"
)

// Log keys.
const (
	logKeySymbol = "symbol"
	logKeyTitle  = "title"
	logKeyDate   = "date"
)

// Metric results.
const (
	resultInserted  = "inserted"
	resultDuplicate = "duplicate"
	resultRejected  = "rejected"
)

// Store persists calendar events. ReplaceEvents must delete and insert atomically.
type Store interface {
	GetEventsFrom(ctx context.Context, symbol string, from time.Time) ([]domain.CalendarEvent, error)
	ReplaceEvents(ctx context.Context, symbol string, source domain.EventSource, from time.Time, events []domain.CalendarEvent) (int64, error)
}

// SaveResult counts what happened to each extracted event.
type SaveResult struct {
	Replaced   int64
	Inserted   int
	Duplicates int
	Rejected   int
}

// Saver replaces a symbol's pipeline-sourced future events with a fresh,
// deduplicated set.
type Saver struct {
	store      Store
	source     domain.EventSource
	thresholds Thresholds
	logger     *zerolog.Logger
	now        func() time.Time
}

// NewSaver creates a Saver writing events under EventSourceSocial.
func NewSaver(store Store, logger *zerolog.Logger) *Saver {
	return &Saver{
		store:      store,
		source:     domain.EventSourceSocial,
		thresholds: DefaultThresholds(),
		logger:     logger,
		now:        time.Now,
	}
}

type sourceRef struct {
	AnalysisID string `json:"analysis_id,omitempty"`
}

// Save validates extracted, drops candidates similar to any event that
// survives the replace or to an already accepted one, then swaps this
// pipeline's events for ticker dated today or later with the rest. Invalid
// events are skipped individually. On error nothing is replaced.
func (s *Saver) Save(ctx context.Context, ticker domain.Ticker, analysisID string, extracted []domain.ExtractedEvent) (SaveResult, error) {
	var res SaveResult

	symbol := domain.NormalizeSymbol(ticker.Symbol)
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	ref, err := json.Marshal(sourceRef{AnalysisID: analysisID})
	if err != nil {
		return res, fmt.Errorf("marshal event source ref: %w", err)
	}

	candidates := make([]domain.CalendarEvent, 0, len(extracted))

	for _, ev := range extracted {
		c, err := s.toCandidate(symbol, ticker.ID, ev, ref, now)
		if err != nil {
			res.Rejected++

			observability.EventsProcessed.WithLabelValues(resultRejected).Inc()
			s.logger.Warn().Err(err).Str(logKeySymbol, symbol).Str(logKeyTitle, ev.Title).Str(logKeyDate, ev.Date).Msg("skipping extracted event")

			continue
		}

		candidates = append(candidates, c)
	}

	existing, err := s.store.GetEventsFrom(ctx, symbol, today.AddDate(0, 0, -s.thresholds.MaxDateGapDays))
	if err != nil {
		return res, fmt.Errorf("load existing events: %w", err)
	}

	seen := make([]Dated, 0, len(existing)+len(candidates))

	for _, e := range existing {
		if e.EventDate == nil || s.replaced(e, today) {
			continue
		}

		seen = append(seen, Dated{Title: e.Title, Date: *e.EventDate})
	}

	accepted := make([]domain.CalendarEvent, 0, len(candidates))

	for _, c := range candidates {
		d := Dated{Title: c.Title, Date: *c.EventDate}

		if s.isDuplicate(d, seen) {
			res.Duplicates++

			observability.EventsProcessed.WithLabelValues(resultDuplicate).Inc()
			s.logger.Info().Str(logKeySymbol, symbol).Str(logKeyTitle, c.Title).Time(logKeyDate, d.Date).Msg("skipping duplicate event")

			continue
		}

		seen = append(seen, d)
		accepted = append(accepted, c)
	}

	res.Replaced, err = s.store.ReplaceEvents(ctx, symbol, s.source, today, accepted)
	if err != nil {
		return res, fmt.Errorf("replace %s events: %w", s.source, err)
	}

	res.Inserted = len(accepted)
	observability.EventsProcessed.WithLabelValues(resultInserted).Add(float64(len(accepted)))

	return res, nil
}

// replaced reports whether e is one of this pipeline's events about to be swapped out.
func (s *Saver) replaced(e domain.CalendarEvent, today time.Time) bool {
	return e.Source == s.source && !e.EventDate.Before(today)
}

func (s *Saver) isDuplicate(candidate Dated, seen []Dated) bool {
	for _, other := range seen {
		if Similar(candidate, other, s.thresholds) {
			return true
		}
	}

	return false
}

func (s *Saver) toCandidate(symbol, tickerID string, ev domain.ExtractedEvent, ref []byte, now time.Time) (domain.CalendarEvent, error) {
	title := strings.TrimSpace(ev.Title)
	if title == "" {
		return domain.CalendarEvent{}, fmt.Errorf("%w: missing title", coreerrors.ErrInvalidEvent)
	}

	date, err := ParseEventDate(ev.Date)
	if err != nil {
		return domain.CalendarEvent{}, err
	}

	return domain.CalendarEvent{
		ID:             uuid.NewString(),
		Symbol:         symbol,
		TickerID:       tickerID,
		Title:          title,
		Description:    strings.TrimSpace(ev.Description),
		EventDate:      &date,
		Confidence:     clampConfidence(ev.Confidence),
		ImpactScore:    NormalizeImpact(ev.Impact),
		ExpectedImpact: strings.TrimSpace(ev.ExpectedImpact),
		Type:           domain.ParseEventType(strings.ToLower(strings.TrimSpace(ev.Type))),
		Source:         s.source,
		SourceRef:      ref,
		CreatedAt:      now,
	}, nil
}
