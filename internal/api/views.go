package api

import (
	"time"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
	db "github.com/lueurxax/ticker-sentiment-bot/internal/storage"
)

type postView struct {
	ID             int64     `json:"id"`
	Symbol         string    `json:"symbol"`
	Author         string    `json:"author"`
	Body           string    `json:"body"`
	Likes          int       `json:"likes"`
	AuthorFollower int       `json:"author_followers"`
	PostedAt       time.Time `json:"posted_at"`
}

type postsPage struct {
	Posts      []postView `json:"posts"`
	NextBefore int64      `json:"next_before,omitempty"`
}

type watcherView struct {
	Count      int       `json:"count"`
	RecordedAt time.Time `json:"recorded_at"`
}

type analysisView struct {
	ID                     string                  `json:"id"`
	Symbol                 string                  `json:"symbol"`
	AnalysisStart          time.Time               `json:"analysis_start"`
	AnalysisEnd            time.Time               `json:"analysis_end"`
	SentimentScore         float64                 `json:"sentiment_score"`
	SentimentLabel         domain.SentimentLabel   `json:"sentiment_label"`
	PostsAnalyzed          int                     `json:"posts_analyzed"`
	WeightedSentimentScore float64                 `json:"weighted_sentiment_score"`
	Summary                string                  `json:"summary"`
	Highlights             domain.Highlights       `json:"highlights"`
	ExtractedEvents        []domain.ExtractedEvent `json:"extracted_events,omitempty"`
	Model                  string                  `json:"model"`
	Tokens                 domain.TokenUsage       `json:"tokens"`
	CreatedAt              time.Time               `json:"created_at"`
}

type eventView struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	Description    string           `json:"description,omitempty"`
	EventDate      string           `json:"event_date,omitempty"`
	DateHint       string           `json:"date_hint,omitempty"`
	Confidence     float64          `json:"confidence"`
	ImpactScore    int              `json:"impact_score"`
	ExpectedImpact string           `json:"expected_impact,omitempty"`
	Type           domain.EventType `json:"type"`
	Source         string           `json:"source"`
}

type volumeView struct {
	Day   string `json:"day"`
	Posts int    `json:"posts"`
}

type usageCounts struct {
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	Requests         int64   `json:"requests"`
	CostUSD          float64 `json:"cost_usd"`
}

type usageView struct {
	Since string `json:"since,omitempty"`
	usageCounts
	ByProvider map[string]usageCounts `json:"by_provider,omitempty"`
	ByModel    map[string]usageCounts `json:"by_model,omitempty"`
}

type usageResponse struct {
	Daily   usageView `json:"daily"`
	Monthly usageView `json:"monthly"`
}

const dayLayout = "2006-01-02"

func toPostViews(posts []domain.Post) []postView {
	out := make([]postView, 0, len(posts))

	for _, p := range posts {
		out = append(out, postView{
			ID:             p.ID,
			Symbol:         p.Symbol,
			Author:         p.Author,
			Body:           p.Body,
			Likes:          p.Likes,
			AuthorFollower: p.AuthorFollower,
			PostedAt:       p.PostedAt,
		})
	}

	return out
}

func toWatcherViews(snaps []domain.WatcherSnapshot) []watcherView {
	out := make([]watcherView, 0, len(snaps))

	for _, s := range snaps {
		out = append(out, watcherView{Count: s.Count, RecordedAt: s.RecordedAt})
	}

	return out
}

func toAnalysisView(a *domain.Analysis) analysisView {
	return analysisView{
		ID:                     a.ID,
		Symbol:                 a.Symbol,
		AnalysisStart:          a.AnalysisStart,
		AnalysisEnd:            a.AnalysisEnd,
		SentimentScore:         a.SentimentScore,
		SentimentLabel:         a.SentimentLabel,
		PostsAnalyzed:          a.PostsAnalyzed,
		WeightedSentimentScore: a.WeightedSentimentScore,
		Summary:                a.Summary,
		Highlights:             a.Highlights,
		ExtractedEvents:        a.ExtractedEvents,
		Model:                  a.Model,
		Tokens:                 a.Tokens,
		CreatedAt:              a.CreatedAt,
	}
}

func toEventViews(events []domain.CalendarEvent) []eventView {
	out := make([]eventView, 0, len(events))

	for _, e := range events {
		v := eventView{
			ID:             e.ID,
			Title:          e.Title,
			Description:    e.Description,
			DateHint:       e.DateHint,
			Confidence:     e.Confidence,
			ImpactScore:    e.ImpactScore,
			ExpectedImpact: e.ExpectedImpact,
			Type:           e.Type,
			Source:         string(e.Source),
		}

		if e.EventDate != nil {
			v.EventDate = e.EventDate.Format(dayLayout)
		}

		out = append(out, v)
	}

	return out
}

func toVolumeViews(days []domain.DailyVolume) []volumeView {
	out := make([]volumeView, 0, len(days))

	for _, d := range days {
		out = append(out, volumeView{Day: d.Day.Format(dayLayout), Posts: d.Posts})
	}

	return out
}

func toUsageView(s *db.LLMUsageSummary) usageView {
	if s == nil {
		return usageView{}
	}

	v := usageView{
		usageCounts: toUsageCounts(s.UsageCounters),
		ByProvider:  toUsageCountsMap(s.ByProvider),
		ByModel:     toUsageCountsMap(s.ByModel),
	}

	if !s.Since.IsZero() {
		v.Since = s.Since.Format(dayLayout)
	}

	return v
}

func toUsageCounts(c db.UsageCounters) usageCounts {
	return usageCounts{
		PromptTokens:     c.PromptTokens,
		CompletionTokens: c.CompletionTokens,
		Requests:         c.Requests,
		CostUSD:          c.CostUSD,
	}
}

func toUsageCountsMap(m map[string]db.UsageCounters) map[string]usageCounts {
	if len(m) == 0 {
		return nil
	}

	out := make(map[string]usageCounts, len(m))
	for k, c := range m {
		out[k] = toUsageCounts(c)
	}

	return out
}
