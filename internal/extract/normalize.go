package extract

import (
	"strings"
	"time"

	"snap2sched/internal/model"
)

// DefaultDuration is the length given to a timed event with no end time.
const DefaultDuration = 45 * time.Minute

var monthNumbers = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

// MonthNumber maps a month name, by its first three letters or in full, to a
// month. Case and a trailing period are ignored.
func MonthNumber(name string) (time.Month, bool) {
	n := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))
	if len(n) >= 3 {
		if m, ok := monthNumbers[n[:3]]; ok {
			return m, true
		}
	}
	m, ok := monthNumbers[n]
	return m, ok
}

// calendarDate builds a naive midnight, refusing values that time.Date would
// silently normalize (Feb 30, month 13).
func calendarDate(year int, month time.Month, day int) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 {
		return time.Time{}, false
	}
	t := model.Date(year, month, day)
	if t.Month() != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// Resolve turns the date into a calendar day of year.
func (d SingleDate) Resolve(year int) (time.Time, bool) {
	if d.Form == DateNumeric {
		return calendarDate(year, time.Month(d.Month), d.Day)
	}
	m, ok := MonthNumber(d.MonthName)
	if !ok {
		return time.Time{}, false
	}
	return calendarDate(year, m, d.Day)
}

// Resolve returns the first day and the exclusive end (the day after EndDay).
// A range whose end precedes its start, or names a day the month lacks, does
// not resolve.
func (r DateRange) Resolve(year int) (start, end time.Time, ok bool) {
	m, ok := MonthNumber(r.MonthName)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	start, ok = calendarDate(year, m, r.Day)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	last, ok := calendarDate(year, m, r.EndDay)
	if !ok || last.Before(start) {
		return time.Time{}, time.Time{}, false
	}
	return start, last.AddDate(0, 0, 1), true
}

// To24h converts to hour and minute on a 24 hour clock. Without a meridiem
// the hour is taken literally.
func (c Clock) To24h() (int, int) {
	h := c.Hour
	switch c.Meridiem {
	case MeridiemPM:
		if h != 12 {
			h += 12
		}
	case MeridiemAM:
		if h == 12 {
			h = 0
		}
	}
	return h, c.Minute
}

// On places the clock on the given day.
func (c Clock) On(day time.Time) time.Time {
	h, m := c.To24h()
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
}

func (c Clock) minutes() int {
	h, m := c.To24h()
	return h*60 + m
}

func (m Meridiem) opposite() Meridiem {
	if m == MeridiemAM {
		return MeridiemPM
	}
	return MeridiemAM
}

// Resolve places the range on day. A meridiem written on one side only is
// shared with the bare side when that keeps the bare start before the end,
// or lands the bare end after the start. The end is then rolled forward: one
// hour when it does not follow the start, a full day when that is still not
// enough (overnight ranges such as "10pm-1").
//
// The first version of the service read a bare hour literally, so "1-3pm"
// came out as 01:00-15:00. Sharing the meridiem gives 13:00-15:00 instead,
// which is what schedules mean by it.
func (r TimeRange) Resolve(day time.Time) (start, end time.Time) {
	s, e := r.Start, r.End

	switch {
	case s.Meridiem == MeridiemNone && e.Meridiem != MeridiemNone && s.Hour >= 1 && s.Hour <= 12:
		cand := Clock{Hour: s.Hour, Minute: s.Minute, Meridiem: e.Meridiem}
		if cand.minutes() < e.minutes() {
			s = cand
		}
	case e.Meridiem == MeridiemNone && s.Meridiem != MeridiemNone && e.Hour >= 1 && e.Hour <= 12:
		for _, m := range []Meridiem{s.Meridiem, s.Meridiem.opposite()} {
			cand := Clock{Hour: e.Hour, Minute: e.Minute, Meridiem: m}
			if cand.minutes() > s.minutes() {
				e = cand
				break
			}
		}
	}

	start = s.On(day)
	return start, rollover(start, e.On(day))
}

func rollover(start, end time.Time) time.Time {
	if end.After(start) {
		return end
	}
	if bumped := end.Add(time.Hour); bumped.After(start) {
		return bumped
	}
	return end.AddDate(0, 0, 1)
}
