package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Recurrence is a weekly repetition on a set of weekdays with no end
// condition. Weekdays keeps the order chosen by the synthesizer.
type Recurrence struct {
	Weekdays []time.Weekday
}

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// Option converts the descriptor into rrule-go options anchored at dtstart.
func (r *Recurrence) Option(dtstart time.Time) rrule.ROption {
	days := make([]rrule.Weekday, 0, len(r.Weekdays))
	for _, d := range r.Weekdays {
		days = append(days, rruleWeekdays[d])
	}
	return rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   dtstart,
		Byweekday: days,
	}
}

// RRule returns the RFC 5545 rule body, e.g. "FREQ=WEEKLY;BYDAY=TU,TH".
func (r *Recurrence) RRule() string {
	opt := r.Option(time.Time{})
	return opt.RRuleString()
}

// String returns the rule with its property name, the form used on the wire.
func (r *Recurrence) String() string {
	if r == nil || len(r.Weekdays) == 0 {
		return ""
	}
	return "RRULE:" + r.RRule()
}

// ParseRRule reads a weekly rule body (with or without the "RRULE:" prefix)
// back into a descriptor. Weekdays keep the order written in the rule.
func ParseRRule(s string) (*Recurrence, error) {
	opt, err := rrule.StrToROption(strings.TrimPrefix(s, "RRULE:"))
	if err != nil {
		return nil, err
	}
	if opt.Freq != rrule.WEEKLY {
		return nil, fmt.Errorf("unsupported frequency %v", opt.Freq)
	}
	r := &Recurrence{}
	for _, bw := range opt.Byweekday {
		for d, w := range rruleWeekdays {
			if w.Day() == bw.Day() {
				r.Weekdays = append(r.Weekdays, d)
				break
			}
		}
	}
	if len(r.Weekdays) == 0 {
		return nil, fmt.Errorf("rule %q names no weekdays", s)
	}
	return r, nil
}
