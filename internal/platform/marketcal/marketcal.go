// Package marketcal answers whether a given day is a trading session.
package marketcal

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Calendar treats weekdays as trading days except for configured holidays.
type Calendar struct {
	loc      *time.Location
	holidays map[string]struct{}
}

// New builds a calendar in loc. Holidays are YYYY-MM-DD dates.
func New(loc *time.Location, holidays []string) (*Calendar, error) {
	if loc == nil {
		loc = time.UTC
	}

	c := &Calendar{loc: loc, holidays: make(map[string]struct{}, len(holidays))}

	for _, h := range holidays {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}

		if _, err := time.ParseInLocation(dateLayout, h, loc); err != nil {
			return nil, fmt.Errorf("parse holiday %q: %w", h, err)
		}

		c.holidays[h] = struct{}{}
	}

	return c, nil
}

// IsTradingDay reports whether the market is open on the calendar day containing t.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	local := t.In(c.loc)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	_, closed := c.holidays[local.Format(dateLayout)]

	return !closed
}

// Location returns the calendar's timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}
