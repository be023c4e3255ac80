package workitem

import (
	"fmt"
	"time"

	"github.com/target/mmk-crawlsync/internal/domain/model"
)

// Calendar decides which days a target publishes on.
type Calendar interface {
	IsTradingDay(day time.Time) bool
}

// TradingCalendar excludes weekends and an optional set of holidays.
type TradingCalendar struct {
	holidays map[string]struct{}
}

// NewTradingCalendar builds a calendar from YYYY-MM-DD holiday dates.
func NewTradingCalendar(holidays []string) (*TradingCalendar, error) {
	c := &TradingCalendar{holidays: make(map[string]struct{}, len(holidays))}
	for _, h := range holidays {
		d, err := time.Parse(model.DateLayout, h)
		if err != nil {
			return nil, fmt.Errorf("parse holiday %q: %w", h, err)
		}
		c.holidays[d.Format(model.DateLayout)] = struct{}{}
	}
	return c, nil
}

// IsTradingDay reports whether day is a weekday that is not a holiday.
func (c *TradingCalendar) IsTradingDay(day time.Time) bool {
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	if c == nil {
		return true
	}
	_, holiday := c.holidays[day.Format(model.DateLayout)]
	return !holiday
}
