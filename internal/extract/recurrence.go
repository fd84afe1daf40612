package extract

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"snap2sched/internal/model"
)

// WeekdayOrder controls the order of weekdays inside a synthesized rule.
type WeekdayOrder int

const (
	// OrderCalendar lists weekdays Monday first.
	OrderCalendar WeekdayOrder = iota
	// OrderAlphabetic sorts by two letter code (FR, MO, SA, SU, TH, TU, WE),
	// matching the output of the first version of the service.
	OrderAlphabetic
)

// ParseWeekdayOrder maps a configuration value to an order; anything other
// than "alphabetic" means calendar order.
func ParseWeekdayOrder(s string) WeekdayOrder {
	if s == "alphabetic" {
		return OrderAlphabetic
	}
	return OrderCalendar
}

// WeekdayPattern is one row of a weekday table before compilation.
type WeekdayPattern struct {
	Pattern string
	Days    []time.Weekday
}

// DefaultWeekdayShorthands are checked first, in order; the first match
// decides the whole set.
var DefaultWeekdayShorthands = []WeekdayPattern{
	{Pattern: `m/?w/?f`, Days: []time.Weekday{time.Monday, time.Wednesday, time.Friday}},
	{Pattern: `t/?th`, Days: []time.Weekday{time.Tuesday, time.Thursday}},
}

// DefaultWeekdayNames are all collected when no shorthand matched. Each
// pattern also accepts a trailing plural "s".
var DefaultWeekdayNames = []WeekdayPattern{
	{Pattern: `mon(?:day)?`, Days: []time.Weekday{time.Monday}},
	{Pattern: `tue(?:s(?:day)?)?`, Days: []time.Weekday{time.Tuesday}},
	{Pattern: `wed(?:nesday)?`, Days: []time.Weekday{time.Wednesday}},
	{Pattern: `thu(?:rs(?:day)?)?`, Days: []time.Weekday{time.Thursday}},
	{Pattern: `fri(?:day)?`, Days: []time.Weekday{time.Friday}},
	{Pattern: `sat(?:urday)?`, Days: []time.Weekday{time.Saturday}},
	{Pattern: `sun(?:day)?`, Days: []time.Weekday{time.Sunday}},
}

type weekdayRule struct {
	re   *regexp.Regexp
	days []time.Weekday
}

// WeekdayTable turns weekday cues on a line into a weekly recurrence.
type WeekdayTable struct {
	shorthands []weekdayRule
	names      []weekdayRule
	order      WeekdayOrder
}

// CompileWeekdayTable compiles shorthand and name patterns.
func CompileWeekdayTable(shorthands, names []WeekdayPattern, order WeekdayOrder) (WeekdayTable, error) {
	t := WeekdayTable{order: order}
	for i, p := range shorthands {
		re, err := regexp.Compile(`(?i)\b(?:` + p.Pattern + `)\b`)
		if err != nil {
			return WeekdayTable{}, fmt.Errorf("weekday shorthand %d: %w", i, err)
		}
		t.shorthands = append(t.shorthands, weekdayRule{re: re, days: p.Days})
	}
	for i, p := range names {
		re, err := regexp.Compile(`(?i)\b(?:` + p.Pattern + `)s?\b`)
		if err != nil {
			return WeekdayTable{}, fmt.Errorf("weekday name %d: %w", i, err)
		}
		t.names = append(t.names, weekdayRule{re: re, days: p.Days})
	}
	return t, nil
}

// DefaultWeekdayTable returns the built-in table with the given ordering.
func DefaultWeekdayTable(order WeekdayOrder) WeekdayTable {
	t, err := CompileWeekdayTable(DefaultWeekdayShorthands, DefaultWeekdayNames, order)
	if err != nil {
		panic(err)
	}
	return t
}

// Synthesize returns a weekly recurrence for the weekday cues on line, or
// nil when there are none.
func (t WeekdayTable) Synthesize(line string) *model.Recurrence {
	var days []time.Weekday
	for _, r := range t.shorthands {
		if r.re.MatchString(line) {
			days = append(days, r.days...)
			break
		}
	}
	if days == nil {
		for _, r := range t.names {
			if r.re.MatchString(line) {
				days = append(days, r.days...)
			}
		}
	}
	days = distinctWeekdays(days)
	if len(days) == 0 {
		return nil
	}
	t.sort(days)
	return &model.Recurrence{Weekdays: days}
}

var weekdayCodes = map[time.Weekday]string{
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
	time.Sunday:    "SU",
}

func (t WeekdayTable) sort(days []time.Weekday) {
	if t.order == OrderAlphabetic {
		sort.Slice(days, func(i, j int) bool { return weekdayCodes[days[i]] < weekdayCodes[days[j]] })
		return
	}
	// Monday first: shift Sunday (0) to the end.
	sort.Slice(days, func(i, j int) bool { return (days[i]+6)%7 < (days[j]+6)%7 })
}

func distinctWeekdays(days []time.Weekday) []time.Weekday {
	seen := make(map[time.Weekday]bool, len(days))
	out := days[:0]
	for _, d := range days {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}
