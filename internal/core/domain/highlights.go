package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
)

// HighlightKind tags which highlights shape an analysis carries.
type HighlightKind string

// Highlight kinds.
const (
	HighlightKindTopics HighlightKind = "topics"
	HighlightKindPosts  HighlightKind = "posts"
)

// TopicHighlights groups discussion themes with bullish and bearish points.
type TopicHighlights struct {
	Topics  []string `json:"topics"`
	Bullish []string `json:"bullish"`
	Bearish []string `json:"bearish"`
}

// PostHighlight calls out a single notable post.
type PostHighlight struct {
	PostID int64  `json:"post_id,omitempty"`
	Author string `json:"author,omitempty"`
	Text   string `json:"text"`
	Reason string `json:"reason,omitempty"`
}

// Highlights is a tagged union of the known highlight shapes.
// Exactly one of Topics or Posts is set, matching Kind.
type Highlights struct {
	Kind   HighlightKind
	Topics *TopicHighlights
	Posts  []PostHighlight
}

// NewTopicHighlights builds a topics-shaped value.
func NewTopicHighlights(t TopicHighlights) Highlights {
	return Highlights{Kind: HighlightKindTopics, Topics: &t}
}

// NewPostHighlights builds a posts-shaped value.
func NewPostHighlights(p []PostHighlight) Highlights {
	return Highlights{Kind: HighlightKindPosts, Posts: p}
}

type highlightsEnvelope struct {
	Kind   HighlightKind    `json:"kind"`
	Topics *TopicHighlights `json:"topics,omitempty"`
	Posts  []PostHighlight  `json:"posts,omitempty"`
}

// MarshalJSON stores the union with an explicit kind tag.
func (h Highlights) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(highlightsEnvelope(h))
	if err != nil {
		return nil, fmt.Errorf("marshal highlights: %w", err)
	}

	return data, nil
}

// UnmarshalJSON reads the tagged form written by MarshalJSON.
func (h *Highlights) UnmarshalJSON(data []byte) error {
	var env highlightsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("unmarshal highlights: %w", err)
	}

	*h = Highlights(env)

	return nil
}

// DecodeHighlights interprets a raw backend highlights block as the expected shape.
// A block of the wrong shape returns ErrHighlightsShape.
func DecodeHighlights(raw json.RawMessage, want HighlightKind) (Highlights, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Highlights{}, fmt.Errorf("%w: missing highlights", coreerrors.ErrHighlightsShape)
	}

	switch want {
	case HighlightKindTopics:
		if trimmed[0] != '{' {
			return Highlights{}, fmt.Errorf("%w: expected object", coreerrors.ErrHighlightsShape)
		}

		var t TopicHighlights
		if err := json.Unmarshal(trimmed, &t); err != nil {
			return Highlights{}, fmt.Errorf("%w: %w", coreerrors.ErrHighlightsShape, err)
		}

		return NewTopicHighlights(t), nil
	case HighlightKindPosts:
		if trimmed[0] != '[' {
			return Highlights{}, fmt.Errorf("%w: expected array", coreerrors.ErrHighlightsShape)
		}

		var p []PostHighlight
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return Highlights{}, fmt.Errorf("%w: %w", coreerrors.ErrHighlightsShape, err)
		}

		return NewPostHighlights(p), nil
	default:
		return Highlights{}, fmt.Errorf("%w: unknown kind %q", coreerrors.ErrHighlightsShape, want)
	}
}
