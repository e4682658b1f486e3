package mocks

import "time"

// MarketCalendar is a fixed-answer implementation of ports.MarketCalendar.
type MarketCalendar struct {
	Open bool
}

// IsTradingDay returns Open for every day.
func (m MarketCalendar) IsTradingDay(time.Time) bool {
	return m.Open
}
