package synthesis

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
	"github.com/lueurxax/ticker-sentiment-bot/internal/core/text"
)

const promptDateLayout = "2006-01-02"

const promptInstructions = `You analyze retail investor chatter about one stock ticker.
Score the overall sentiment of the posts from -1.0 (very bearish) to 1.0 (very bullish).

Rules for events:
- Merge mentions of the same real-world event into one entry with a canonical name (e.g. "Q4 2024 Earnings Call").
- "date" must be an exact calendar date formatted YYYY-MM-DD. If the date is not known, omit the event entirely.
- "type" is one of: earnings, regulatory_decision, conference, product_launch, legal, regulatory, analyst, insider_trading, other.
- "impact" is an integer 1-10. "confidence" is 0.0-1.0.

Respond with ONLY one JSON object of this shape:
{"sentiment_score": 0.0, "sentiment_label": "very_bearish|bearish|neutral|bullish|very_bullish", "summary": "...",
 "highlights": {"topics": ["..."], "bullish": ["..."], "bearish": ["..."]},
 "events": [{"title": "...", "date": "YYYY-MM-DD", "type": "...", "impact": 5, "expected_impact": "...", "confidence": 0.5, "description": "..."}]}`

// promptInput is everything a prompt is built from.
type promptInput struct {
	Symbol       string
	Mode         Mode
	Today        time.Time
	WindowStart  time.Time
	WindowEnd    time.Time
	PriorSummary string
	Posts        []domain.Post
	MaxPostRunes int
}

// buildPrompt renders posts in a compact one-line-per-post form:
// likes|author|text. Links and redundant whitespace are dropped.
func buildPrompt(in promptInput) string {
	var sb strings.Builder

	sb.WriteString(promptInstructions)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Ticker: %s\nToday: %s\nWindow: %s to %s\n",
		in.Symbol,
		in.Today.Format(promptDateLayout),
		in.WindowStart.Format(promptDateLayout),
		in.WindowEnd.Format(promptDateLayout))

	if in.Mode == ModeIncremental && in.PriorSummary != "" {
		sb.WriteString("\nPrevious summary (update it with the new posts; keep still-relevant points):\n")
		sb.WriteString(text.Compact(in.PriorSummary, 0))
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "\nPosts (%d, format likes|author|text):\n", len(in.Posts))

	for _, p := range in.Posts {
		body := text.Compact(p.Body, in.MaxPostRunes)
		if body == "" {
			continue
		}

		sb.WriteString(strconv.Itoa(p.Likes))
		sb.WriteByte('|')
		sb.WriteString(p.Author)
		sb.WriteByte('|')
		sb.WriteString(body)
		sb.WriteByte('\n')
	}

	return sb.String()
}
