package events

import (
	"fmt"
	"math"
	"strings"
	"time"

	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
)

// Impact score bounds.
const (
	MinImpact = 1
	MaxImpact = 10

	fractionalScale = 10
	eventDateLayout = "2006-01-02"
)

// NormalizeImpact maps a backend impact onto 1..10. Values strictly between 0
// and 1 are treated as fractions of 10.
func NormalizeImpact(v float64) int {
	if math.IsNaN(v) {
		return MinImpact
	}

	if v > 0 && v < 1 {
		v *= fractionalScale
	}

	r := int(math.Round(v))

	switch {
	case r < MinImpact:
		return MinImpact
	case r > MaxImpact:
		return MaxImpact
	default:
		return r
	}
}

// ParseEventDate accepts only YYYY-MM-DD calendar dates.
func ParseEventDate(s string) (time.Time, error) {
	d, err := time.Parse(eventDateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q: %w", coreerrors.ErrInvalidEvent, s, err)
	}

	return d, nil
}

func clampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c), c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
