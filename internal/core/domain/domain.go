package domain

import (
	"strings"
	"time"
)

// Post represents a single social post about a symbol, keyed by its upstream message ID.
type Post struct {
	ID             int64
	Symbol         string
	Author         string
	Body           string
	Likes          int
	AuthorFollower int
	PostedAt       time.Time
	IngestedAt     time.Time
}

// NormalizeSymbol trims and upper-cases a ticker symbol.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// WatcherSnapshot is a point-in-time count of accounts watching a symbol.
type WatcherSnapshot struct {
	Symbol     string
	Count      int
	RecordedAt time.Time
}

// SentimentLabel buckets a sentiment score.
type SentimentLabel string

// Sentiment label constants.
const (
	SentimentVeryBearish SentimentLabel = "very_bearish"
	SentimentBearish     SentimentLabel = "bearish"
	SentimentNeutral     SentimentLabel = "neutral"
	SentimentBullish     SentimentLabel = "bullish"
	SentimentVeryBullish SentimentLabel = "very_bullish"
)

// Sentiment label thresholds on the -1..1 scale.
const (
	veryBearishBelow = -0.6
	bearishBelow     = -0.2
	bullishAbove     = 0.2
	veryBullishAbove = 0.6
)

// LabelForScore derives the label bucket for a score in the -1..1 range.
func LabelForScore(score float64) SentimentLabel {
	switch {
	case score <= veryBearishBelow:
		return SentimentVeryBearish
	case score <= bearishBelow:
		return SentimentBearish
	case score >= veryBullishAbove:
		return SentimentVeryBullish
	case score >= bullishAbove:
		return SentimentBullish
	default:
		return SentimentNeutral
	}
}

// ParseSentimentLabel maps free-form backend labels onto the known buckets.
// Unknown labels return false.
func ParseSentimentLabel(s string) (SentimentLabel, bool) {
	switch SentimentLabel(s) {
	case SentimentVeryBearish, SentimentBearish, SentimentNeutral, SentimentBullish, SentimentVeryBullish:
		return SentimentLabel(s), true
	}

	switch s {
	case "very bearish", "strongly_bearish", "strongly bearish":
		return SentimentVeryBearish, true
	case "very bullish", "strongly_bullish", "strongly bullish":
		return SentimentVeryBullish, true
	case "mixed":
		return SentimentNeutral, true
	}

	return "", false
}

// TokenUsage records backend token consumption for one run.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Analysis is the persisted result of one sentiment-synthesis run.
type Analysis struct {
	ID                     string
	Symbol                 string
	TickerID               string
	AnalysisStart          time.Time
	AnalysisEnd            time.Time
	SentimentScore         float64
	SentimentLabel         SentimentLabel
	PostsAnalyzed          int
	WeightedSentimentScore float64
	Summary                string
	Highlights             Highlights
	ExtractedEvents        []ExtractedEvent
	Model                  string
	Tokens                 TokenUsage
	CreatedAt              time.Time
}

// EventType classifies a calendar event.
type EventType string

// Event type constants.
const (
	EventTypeEarnings           EventType = "earnings"
	EventTypeRegulatoryDecision EventType = "regulatory_decision"
	EventTypeConference         EventType = "conference"
	EventTypeProductLaunch      EventType = "product_launch"
	EventTypeLegal              EventType = "legal"
	EventTypeRegulatory         EventType = "regulatory"
	EventTypeAnalyst            EventType = "analyst"
	EventTypeInsiderTrading     EventType = "insider_trading"
	EventTypeOther              EventType = "other"
)

// ParseEventType normalizes a backend-provided type, falling back to EventTypeOther.
func ParseEventType(s string) EventType {
	switch t := EventType(s); t {
	case EventTypeEarnings, EventTypeRegulatoryDecision, EventTypeConference, EventTypeProductLaunch,
		EventTypeLegal, EventTypeRegulatory, EventTypeAnalyst, EventTypeInsiderTrading, EventTypeOther:
		return t
	}

	return EventTypeOther
}

// EventSource identifies which pipeline produced a calendar event.
type EventSource string

// Event source constants.
const (
	EventSourceSocial       EventSource = "social"
	EventSourceAISearch     EventSource = "ai_search"
	EventSourceRiskAnalysis EventSource = "risk_analysis"
	EventSourceManual       EventSource = "manual"
)

// CalendarEvent is a dated event tied to a symbol.
type CalendarEvent struct {
	ID             string
	Symbol         string
	TickerID       string
	Title          string
	Description    string
	EventDate      *time.Time
	DateHint       string
	Confidence     float64
	ImpactScore    int
	ExpectedImpact string
	Type           EventType
	Source         EventSource
	SourceRef      []byte
	CreatedAt      time.Time
}

// ExtractedEvent is an event as reported by the generative backend, before validation.
type ExtractedEvent struct {
	Title          string  `json:"title"`
	Date           string  `json:"date"`
	Type           string  `json:"type"`
	Impact         float64 `json:"impact"`
	ExpectedImpact string  `json:"expected_impact"`
	Confidence     float64 `json:"confidence"`
	Description    string  `json:"description,omitempty"`
}

// Ticker is the directory entry for a tracked symbol.
type Ticker struct {
	ID     string
	Symbol string
	Name   string
}

// PlanTier is a user's billing plan.
type PlanTier string

// Plan tier constants.
const (
	PlanFree       PlanTier = "free"
	PlanPayAsYouGo PlanTier = "pay_as_you_go"
	PlanPro        PlanTier = "pro"
	PlanEnterprise PlanTier = "enterprise"
)

// RequiresPayment reports whether scheduled runs on this plan are paid from credits.
// Subscription plans include scheduled analysis.
func (p PlanTier) RequiresPayment() bool {
	switch p {
	case PlanPro, PlanEnterprise:
		return false
	default:
		return true
	}
}

// AnalysisOwner is the user who enabled scheduled analysis for a ticker.
type AnalysisOwner struct {
	UserID   string
	PlanTier PlanTier
}

// QualityTier selects the backend model class.
type QualityTier string

// Quality tier constants.
const (
	QualityLow      QualityTier = "low"
	QualityStandard QualityTier = "standard"
	QualityHigh     QualityTier = "high"
)

// ParseQualityTier returns the tier for s, or false when s is not a known tier.
func ParseQualityTier(s string) (QualityTier, bool) {
	switch q := QualityTier(s); q {
	case QualityLow, QualityStandard, QualityHigh:
		return q, true
	}

	return "", false
}

// DailyVolume is the number of posts for a symbol on one calendar day.
type DailyVolume struct {
	Day   time.Time
	Posts int
}

// WindowStats describes the posts in an analysis window.
type WindowStats struct {
	Count  int
	Newest time.Time
}
