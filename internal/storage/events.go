package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
)

const eventColumns = `id, symbol, ticker_id, title, description, event_date, date_hint, confidence,
	impact_score, expected_impact, event_type, source, source_ref, created_at`

// GetEventsFrom returns events of any source for a symbol dated on or after from.
func (db *DB) GetEventsFrom(ctx context.Context, symbol string, from time.Time) ([]domain.CalendarEvent, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM calendar_events
		WHERE symbol = $1 AND event_date >= $2
		ORDER BY event_date, created_at
	`, symbol, pgtype.Date{Time: from, Valid: true})
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}

	return collectEvents(rows)
}

// ReplaceEvents deletes the symbol's events from source dated on or after from
// and inserts events, all in one transaction. It returns the number of deleted rows.
func (db *DB) ReplaceEvents(ctx context.Context, symbol string, source domain.EventSource, from time.Time, events []domain.CalendarEvent) (int64, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin replace events: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck // no-op after commit
	}()

	tag, err := tx.Exec(ctx, `
		DELETE FROM calendar_events
		WHERE symbol = $1 AND source = $2 AND event_date >= $3
	`, symbol, string(source), pgtype.Date{Time: from, Valid: true})
	if err != nil {
		return 0, fmt.Errorf("delete future events: %w", err)
	}

	if len(events) > 0 {
		if err := tx.SendBatch(ctx, insertEventsBatch(events)).Close(); err != nil {
			return 0, fmt.Errorf("insert events: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit replace events: %w", err)
	}

	return tag.RowsAffected(), nil
}

func insertEventsBatch(events []domain.CalendarEvent) *pgx.Batch {
	batch := &pgx.Batch{}

	for i := range events {
		e := &events[i]
		batch.Queue(`
			INSERT INTO calendar_events (
				id, symbol, ticker_id, title, description, event_date, date_hint, confidence,
				impact_score, expected_impact, event_type, source, source_ref, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`, toUUID(e.ID), e.Symbol, toUUID(e.TickerID), SanitizeUTF8(e.Title), toText(e.Description),
			toDate(e.EventDate), toText(e.DateHint), e.Confidence, int16(e.ImpactScore),
			toText(e.ExpectedImpact), string(e.Type), string(e.Source), e.SourceRef, e.CreatedAt)
	}

	return batch
}

func collectEvents(rows pgx.Rows) ([]domain.CalendarEvent, error) {
	defer rows.Close()

	var out []domain.CalendarEvent

	for rows.Next() {
		var (
			e              domain.CalendarEvent
			id, tickerID   pgtype.UUID
			description    pgtype.Text
			eventDate      pgtype.Date
			dateHint       pgtype.Text
			impact         int16
			expectedImpact pgtype.Text
			eventType      string
			source         string
		)

		if err := rows.Scan(&id, &e.Symbol, &tickerID, &e.Title, &description, &eventDate, &dateHint,
			&e.Confidence, &impact, &expectedImpact, &eventType, &source, &e.SourceRef, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf(errFmtScan, "calendar event", err)
		}

		e.ID = fromUUID(id)
		e.TickerID = fromUUID(tickerID)
		e.Description = fromText(description)
		e.EventDate = fromDate(eventDate)
		e.DateHint = fromText(dateHint)
		e.ImpactScore = int(impact)
		e.ExpectedImpact = fromText(expectedImpact)
		e.Type = domain.EventType(eventType)
		e.Source = domain.EventSource(source)
		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf(errFmtIterate, "calendar events", err)
	}

	return out, nil
}
