package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
)

// SaveAnalysis persists an analysis row. Analyses are immutable once written.
func (db *DB) SaveAnalysis(ctx context.Context, a *domain.Analysis) error {
	highlights, err := json.Marshal(a.Highlights)
	if err != nil {
		return fmt.Errorf("marshal highlights: %w", err)
	}

	events, err := json.Marshal(a.ExtractedEvents)
	if err != nil {
		return fmt.Errorf("marshal extracted events: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO sentiment_analyses (
			id, symbol, ticker_id, analysis_start, analysis_end,
			sentiment_score, sentiment_label, posts_analyzed, weighted_sentiment_score,
			summary, highlights, extracted_events, model, tokens_in, tokens_out, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, toUUID(a.ID), a.Symbol, toUUID(a.TickerID), a.AnalysisStart, a.AnalysisEnd,
		a.SentimentScore, string(a.SentimentLabel), safeIntToInt32(a.PostsAnalyzed), a.WeightedSentimentScore,
		SanitizeUTF8(a.Summary), highlights, events, a.Model,
		safeIntToInt32(a.Tokens.Input), safeIntToInt32(a.Tokens.Output), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}

	return nil
}

// GetLatestAnalysis returns the most recent analysis for a symbol or ErrNotFound.
func (db *DB) GetLatestAnalysis(ctx context.Context, symbol string) (*domain.Analysis, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, symbol, ticker_id, analysis_start, analysis_end,
		       sentiment_score, sentiment_label, posts_analyzed, weighted_sentiment_score,
		       summary, highlights, extracted_events, model, tokens_in, tokens_out, created_at
		FROM sentiment_analyses
		WHERE symbol = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, symbol)

	a, err := scanAnalysis(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coreerrors.ErrNotFound
		}

		return nil, fmt.Errorf("get latest analysis: %w", err)
	}

	return a, nil
}

// DeleteAnalysesOlderThan removes analyses created before cutoff.
func (db *DB) DeleteAnalysesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM sentiment_analyses WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old analyses: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanAnalysis(row pgx.Row) (*domain.Analysis, error) {
	var (
		a          domain.Analysis
		id         pgtype.UUID
		tickerID   pgtype.UUID
		label      string
		posts      int32
		highlights []byte
		events     []byte
		tokensIn   int32
		tokensOut  int32
	)

	if err := row.Scan(&id, &a.Symbol, &tickerID, &a.AnalysisStart, &a.AnalysisEnd,
		&a.SentimentScore, &label, &posts, &a.WeightedSentimentScore,
		&a.Summary, &highlights, &events, &a.Model, &tokensIn, &tokensOut, &a.CreatedAt); err != nil {
		return nil, err //nolint:wrapcheck // wrapped by caller
	}

	a.ID = fromUUID(id)
	a.TickerID = fromUUID(tickerID)
	a.SentimentLabel = domain.SentimentLabel(label)
	a.PostsAnalyzed = int(posts)
	a.Tokens = domain.TokenUsage{Input: int(tokensIn), Output: int(tokensOut)}

	if len(highlights) > 0 {
		if err := json.Unmarshal(highlights, &a.Highlights); err != nil {
			return nil, fmt.Errorf("decode highlights: %w", err)
		}
	}

	if len(events) > 0 {
		if err := json.Unmarshal(events, &a.ExtractedEvents); err != nil {
			return nil, fmt.Errorf("decode extracted events: %w", err)
		}
	}

	return &a, nil
}
