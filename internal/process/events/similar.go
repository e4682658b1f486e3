// Package events validates extracted calendar events, deduplicates them against
// stored events by keyword similarity and persists the survivors.
package events

import (
	"math"
	"time"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/text"
)

// Default similarity thresholds.
const (
	DefaultMaxDateGapDays    = 2
	DefaultMinOverlapRatio   = 0.6
	DefaultMinSharedKeywords = 3

	hoursPerDay = 24
)

// Thresholds controls when two events count as the same event.
type Thresholds struct {
	// MaxDateGapDays is the largest calendar-day distance between matching events.
	MaxDateGapDays int
	// MinOverlapRatio is the share of the candidate's keywords found in the other title.
	MinOverlapRatio float64
	// MinSharedKeywords matches regardless of ratio once this many keywords are shared.
	MinSharedKeywords int
}

// DefaultThresholds returns the standard dedup thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxDateGapDays:    DefaultMaxDateGapDays,
		MinOverlapRatio:   DefaultMinOverlapRatio,
		MinSharedKeywords: DefaultMinSharedKeywords,
	}
}

// Dated is a title on a calendar date.
type Dated struct {
	Title string
	Date  time.Time
}

// Similar reports whether candidate duplicates existing. Both the date gap and
// the keyword overlap must match. Overlap is measured against the candidate's keywords.
func Similar(candidate, existing Dated, th Thresholds) bool {
	if dayGap(candidate.Date, existing.Date) > th.MaxDateGapDays {
		return false
	}

	return keywordsOverlap(text.Keywords(candidate.Title), text.Keywords(existing.Title), th)
}

func keywordsOverlap(candidate, existing []string, th Thresholds) bool {
	if len(candidate) == 0 {
		return false
	}

	set := make(map[string]struct{}, len(existing))
	for _, k := range existing {
		set[k] = struct{}{}
	}

	shared := 0

	for _, k := range candidate {
		if _, ok := set[k]; ok {
			shared++
		}
	}

	if th.MinSharedKeywords > 0 && shared >= th.MinSharedKeywords {
		return true
	}

	return float64(shared)/float64(len(candidate)) >= th.MinOverlapRatio
}

// dayGap is the absolute distance in calendar days, ignoring time of day.
func dayGap(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)

	return int(math.Abs(da.Sub(db).Hours()) / hoursPerDay)
}
