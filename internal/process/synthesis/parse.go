package synthesis

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
	"github.com/lueurxax/ticker-sentiment-bot/internal/core/llm"
)

// parsed is a validated backend result.
type parsed struct {
	Score      float64
	Label      domain.SentimentLabel
	Summary    string
	Highlights domain.Highlights
	Events     []domain.ExtractedEvent
	// SkippedEvents counts event entries that could not be decoded.
	SkippedEvents int
}

type backendResult struct {
	SentimentScore *float64          `json:"sentiment_score"`
	Bullishness    *float64          `json:"bullishness"`
	SentimentLabel string            `json:"sentiment_label"`
	Summary        string            `json:"summary"`
	Highlights     json.RawMessage   `json:"highlights"`
	Events         []json.RawMessage `json:"events"`
}

// parseResult extracts and validates the first JSON object in raw.
// Highlights must have the want shape.
func parseResult(raw string, want domain.HighlightKind) (parsed, error) {
	obj, ok := llm.ExtractJSONObject(raw)
	if !ok {
		return parsed{}, fmt.Errorf("%w: no JSON object in response", coreerrors.ErrBackendParse)
	}

	var br backendResult
	if err := json.Unmarshal([]byte(obj), &br); err != nil {
		return parsed{}, fmt.Errorf("%w: %w", coreerrors.ErrBackendParse, err)
	}

	score, err := canonicalScore(br)
	if err != nil {
		return parsed{}, err
	}

	highlights, err := domain.DecodeHighlights(br.Highlights, want)
	if err != nil {
		return parsed{}, err
	}

	label, ok := domain.ParseSentimentLabel(strings.ToLower(strings.TrimSpace(br.SentimentLabel)))
	if !ok {
		label = domain.LabelForScore(score)
	}

	out := parsed{
		Score:      score,
		Label:      label,
		Summary:    strings.TrimSpace(br.Summary),
		Highlights: highlights,
	}

	for _, rawEvent := range br.Events {
		var ev domain.ExtractedEvent
		if err := json.Unmarshal(rawEvent, &ev); err != nil {
			out.SkippedEvents++

			continue
		}

		out.Events = append(out.Events, ev)
	}

	return out, nil
}

// canonicalScore returns the score on the -1..1 scale. A 0..1 bullishness
// value converts as 2b-1.
func canonicalScore(br backendResult) (float64, error) {
	var score float64

	switch {
	case br.SentimentScore != nil:
		score = *br.SentimentScore
	case br.Bullishness != nil:
		score = 2*clamp(*br.Bullishness, 0, 1) - 1
	default:
		return 0, fmt.Errorf("%w: missing sentiment score", coreerrors.ErrBackendParse)
	}

	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, fmt.Errorf("%w: invalid sentiment score", coreerrors.ErrBackendParse)
	}

	return clamp(score, -1, 1), nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
