// Package markethours approximates US equity trading hours for display.
// It is not a full exchange calendar.
package markethours

import (
	"fmt"
	"time"
	_ "time/tzdata" // America/New_York without a system zoneinfo

	"pricestream/internal/domain"
)

const (
	openHour, openMinute   = 9, 30
	closeHour, closeMinute = 16, 0
	dateLayout             = "2006-01-02"
)

// Oracle answers market open/closed questions from a fixed table.
type Oracle struct {
	loc      *time.Location
	holidays map[string]struct{}
}

var _ domain.MarketHoursOracle = (*Oracle)(nil)

// NewOracle builds an oracle. extraHolidays are YYYY-MM-DD dates in New York
// time; January 1st is always a holiday.
func NewOracle(extraHolidays []string) (*Oracle, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	o := &Oracle{loc: loc, holidays: make(map[string]struct{}, len(extraHolidays))}
	for _, d := range extraHolidays {
		if _, err := time.ParseInLocation(dateLayout, d, loc); err != nil {
			return nil, &domain.ConfigError{Field: "market_hours.holidays", Err: err}
		}
		o.holidays[d] = struct{}{}
	}
	return o, nil
}

// IsOpen reports whether the market is open at now, with a status line.
func (o *Oracle) IsOpen(now time.Time) (bool, string) {
	et := now.In(o.loc)

	if isWeekend(et) {
		return false, "Market is closed (weekend)"
	}
	if o.isHoliday(et) {
		return false, "Market is closed (holiday)"
	}

	open, closing := o.session(et)
	switch {
	case et.Before(open):
		return false, "Market opens at 9:30 AM ET"
	case et.After(closing):
		next := o.NextOpen(now).In(o.loc)
		if next.YearDay() == et.AddDate(0, 0, 1).YearDay() {
			return false, "Market closed. Opens tomorrow at 9:30 AM ET"
		}
		return false, fmt.Sprintf("Market closed. Opens %s at 9:30 AM ET", next.Weekday())
	default:
		return true, "Market is open"
	}
}

// NextOpen returns the next session start strictly after now, skipping
// weekends and holidays.
func (o *Oracle) NextOpen(now time.Time) time.Time {
	et := now.In(o.loc)
	open, _ := o.session(et)
	if !open.After(et) {
		open = o.sessionOn(et.AddDate(0, 0, 1))
	}
	for isWeekend(open) || o.isHoliday(open) {
		open = o.sessionOn(open.AddDate(0, 0, 1))
	}
	return open
}

func (o *Oracle) session(et time.Time) (time.Time, time.Time) {
	y, m, d := et.Date()
	return time.Date(y, m, d, openHour, openMinute, 0, 0, o.loc),
		time.Date(y, m, d, closeHour, closeMinute, 0, 0, o.loc)
}

func (o *Oracle) sessionOn(day time.Time) time.Time {
	open, _ := o.session(day)
	return open
}

func (o *Oracle) isHoliday(et time.Time) bool {
	if et.Month() == time.January && et.Day() == 1 {
		return true
	}
	_, ok := o.holidays[et.Format(dateLayout)]
	return ok
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
