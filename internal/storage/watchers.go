package db

import (
	"context"
	"fmt"
	"time"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
)

// SaveWatcherSnapshot appends one snapshot.
func (db *DB) SaveWatcherSnapshot(ctx context.Context, s domain.WatcherSnapshot) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO watcher_snapshots (symbol, count, recorded_at)
		VALUES ($1, $2, $3)
	`, s.Symbol, safeIntToInt32(s.Count), s.RecordedAt)
	if err != nil {
		return fmt.Errorf("save watcher snapshot: %w", err)
	}

	return nil
}

// GetWatcherHistory returns snapshots for a symbol recorded at or after since, oldest first.
func (db *DB) GetWatcherHistory(ctx context.Context, symbol string, since time.Time) ([]domain.WatcherSnapshot, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT symbol, count, recorded_at
		FROM watcher_snapshots
		WHERE symbol = $1 AND recorded_at >= $2
		ORDER BY recorded_at
	`, symbol, since)
	if err != nil {
		return nil, fmt.Errorf("get watcher history: %w", err)
	}
	defer rows.Close()

	var out []domain.WatcherSnapshot

	for rows.Next() {
		var (
			s     domain.WatcherSnapshot
			count int32
		)

		if err := rows.Scan(&s.Symbol, &count, &s.RecordedAt); err != nil {
			return nil, fmt.Errorf(errFmtScan, "watcher snapshot", err)
		}

		s.Count = int(count)
		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf(errFmtIterate, "watcher snapshots", err)
	}

	return out, nil
}
