package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
)

const postColumns = `id, symbol, author, body, likes, author_followers, posted_at, ingested_at`

// PostExists reports whether a post with the upstream ID is stored.
func (db *DB) PostExists(ctx context.Context, id int64) (bool, error) {
	var exists bool

	if err := db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM social_posts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check post exists: %w", err)
	}

	return exists, nil
}

// SavePost inserts a post. A concurrent insert of the same ID returns ErrDuplicatePost.
func (db *DB) SavePost(ctx context.Context, p *domain.Post) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO social_posts (id, symbol, author, body, likes, author_followers, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.Symbol, SanitizeUTF8(p.Author), SanitizeUTF8(p.Body),
		safeIntToInt32(p.Likes), safeIntToInt32(p.AuthorFollower), p.PostedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("save post %d: %w", p.ID, coreerrors.ErrDuplicatePost)
		}

		return fmt.Errorf("save post %d: %w", p.ID, err)
	}

	return nil
}

// ListPosts returns posts for a symbol newest first. When beforeID is non-zero
// only posts with a smaller ID are returned, which pages backwards through history.
func (db *DB) ListPosts(ctx context.Context, symbol string, beforeID int64, limit int) ([]domain.Post, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+postColumns+`
		FROM social_posts
		WHERE symbol = $1 AND ($2::bigint = 0 OR id < $2::bigint)
		ORDER BY posted_at DESC, id DESC
		LIMIT $3
	`, symbol, beforeID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	return collectPosts(rows)
}

// GetPostsInWindow returns posts for a symbol posted in (start, end], ordered by
// engagement then recency, capped at limit.
func (db *DB) GetPostsInWindow(ctx context.Context, symbol string, start, end time.Time, limit int) ([]domain.Post, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+postColumns+`
		FROM social_posts
		WHERE symbol = $1 AND posted_at > $2 AND posted_at <= $3
		ORDER BY likes DESC, posted_at DESC
		LIMIT $4
	`, symbol, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("get posts in window: %w", err)
	}

	return collectPosts(rows)
}

// GetWindowStats counts posts in (start, end] and returns the newest post time.
func (db *DB) GetWindowStats(ctx context.Context, symbol string, start, end time.Time) (domain.WindowStats, error) {
	var (
		stats  domain.WindowStats
		newest *time.Time
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*), MAX(posted_at)
		FROM social_posts
		WHERE symbol = $1 AND posted_at > $2 AND posted_at <= $3
	`, symbol, start, end).Scan(&stats.Count, &newest)
	if err != nil {
		return domain.WindowStats{}, fmt.Errorf("get window stats: %w", err)
	}

	if newest != nil {
		stats.Newest = *newest
	}

	return stats, nil
}

// GetDailyPostVolume aggregates post counts per UTC day for the last days days.
func (db *DB) GetDailyPostVolume(ctx context.Context, symbol string, days int) ([]domain.DailyVolume, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT date_trunc('day', posted_at AT TIME ZONE 'UTC') AS day, COUNT(*)
		FROM social_posts
		WHERE symbol = $1 AND posted_at >= now() - make_interval(days => $2)
		GROUP BY day
		ORDER BY day
	`, symbol, days)
	if err != nil {
		return nil, fmt.Errorf("get daily post volume: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyVolume

	for rows.Next() {
		var v domain.DailyVolume

		if err := rows.Scan(&v.Day, &v.Posts); err != nil {
			return nil, fmt.Errorf(errFmtScan, "daily volume", err)
		}

		out = append(out, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf(errFmtIterate, "daily volume", err)
	}

	return out, nil
}

// DeletePostsOlderThan prunes posts older than cutoff and returns the count removed.
func (db *DB) DeletePostsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM social_posts WHERE posted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old posts: %w", err)
	}

	return tag.RowsAffected(), nil
}

func collectPosts(rows pgx.Rows) ([]domain.Post, error) {
	defer rows.Close()

	var posts []domain.Post

	for rows.Next() {
		var (
			p         domain.Post
			likes     int32
			followers int32
		)

		if err := rows.Scan(&p.ID, &p.Symbol, &p.Author, &p.Body, &likes, &followers, &p.PostedAt, &p.IngestedAt); err != nil {
			return nil, fmt.Errorf(errFmtScan, "post", err)
		}

		p.Likes = int(likes)
		p.AuthorFollower = int(followers)
		posts = append(posts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf(errFmtIterate, "posts", err)
	}

	return posts, nil
}
