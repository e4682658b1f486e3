package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
)

// AnalysisRepository is a thread-safe in-memory implementation of ports.AnalysisRepository.
type AnalysisRepository struct {
	mu       sync.RWMutex
	posts    []domain.Post
	analyses []domain.Analysis

	// SaveAnalysisFn allows overriding SaveAnalysis behavior.
	SaveAnalysisFn func(ctx context.Context, a *domain.Analysis) error
}

// NewAnalysisRepository creates an empty repository.
func NewAnalysisRepository() *AnalysisRepository {
	return &AnalysisRepository{}
}

// AddPosts stores posts for window queries.
func (r *AnalysisRepository) AddPosts(posts ...domain.Post) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.posts = append(r.posts, posts...)
}

// AddAnalysis stores a prior analysis.
func (r *AnalysisRepository) AddAnalysis(a domain.Analysis) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.analyses = append(r.analyses, a)
}

// Analyses returns a copy of every stored analysis in insertion order.
func (r *AnalysisRepository) Analyses() []domain.Analysis {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]domain.Analysis(nil), r.analyses...)
}

// GetLatestAnalysis returns the analysis with the newest CreatedAt.
func (r *AnalysisRepository) GetLatestAnalysis(_ context.Context, symbol string) (*domain.Analysis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *domain.Analysis

	for i := range r.analyses {
		a := r.analyses[i]
		if a.Symbol != symbol {
			continue
		}

		if latest == nil || a.CreatedAt.After(latest.CreatedAt) {
			latest = &a
		}
	}

	if latest == nil {
		return nil, coreerrors.ErrNotFound
	}

	return latest, nil
}

// SaveAnalysis appends a copy of a.
func (r *AnalysisRepository) SaveAnalysis(ctx context.Context, a *domain.Analysis) error {
	if r.SaveAnalysisFn != nil {
		return r.SaveAnalysisFn(ctx, a)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.analyses = append(r.analyses, *a)

	return nil
}

// GetWindowStats counts posts in (start, end].
func (r *AnalysisRepository) GetWindowStats(_ context.Context, symbol string, start, end time.Time) (domain.WindowStats, error) {
	var stats domain.WindowStats

	for _, p := range r.window(symbol, start, end) {
		stats.Count++

		if p.PostedAt.After(stats.Newest) {
			stats.Newest = p.PostedAt
		}
	}

	return stats, nil
}

// GetPostsInWindow returns posts in (start, end] by likes then recency.
func (r *AnalysisRepository) GetPostsInWindow(_ context.Context, symbol string, start, end time.Time, limit int) ([]domain.Post, error) {
	posts := r.window(symbol, start, end)

	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].Likes != posts[j].Likes {
			return posts[i].Likes > posts[j].Likes
		}

		return posts[i].PostedAt.After(posts[j].PostedAt)
	})

	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}

	return posts, nil
}

func (r *AnalysisRepository) window(symbol string, start, end time.Time) []domain.Post {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Post

	for _, p := range r.posts {
		if p.Symbol == symbol && p.PostedAt.After(start) && !p.PostedAt.After(end) {
			out = append(out, p)
		}
	}

	return out
}
