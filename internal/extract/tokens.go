package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// monthPattern accepts full month names, their three letter forms and "sept".
const monthPattern = `jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?`

const ordinalSuffix = `(?:st|nd|rd|th)?`

var (
	// dateRangeRe matches "Dec 16–20", "Sept. 2-5th".
	dateRangeRe = regexp.MustCompile(`(?i)\b(` + monthPattern + `)\.?\s+(\d{1,2})` + ordinalSuffix + `\s*[–-]\s*(\d{1,2})` + ordinalSuffix + `\b`)

	// namedDateRe matches "Sept 1", "Oct. 3rd".
	namedDateRe = regexp.MustCompile(`(?i)\b(` + monthPattern + `)\.?\s+(\d{1,2})` + ordinalSuffix + `\b`)

	// numericDateRe matches "9/18".
	numericDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})\b`)

	// Clock patterns refuse digits glued to '/', ':', '.' or other digits so
	// that dates and longer numbers are never read as times. The boundary
	// characters are consumed, only the groups are used.
	timeRangeRe  = regexp.MustCompile(`(?i)(?:^|[^\d/:.])(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\s*[–-]\s*(\d{1,2})(?::(\d{2}))?\s*(am|pm)?(?:[^\d/:]|$)`)
	singleTimeRe = regexp.MustCompile(`(?i)(?:^|[^\d/:.])(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
)

type Meridiem int

const (
	MeridiemNone Meridiem = iota
	MeridiemAM
	MeridiemPM
)

func parseMeridiem(s string) Meridiem {
	switch strings.ToLower(s) {
	case "am":
		return MeridiemAM
	case "pm":
		return MeridiemPM
	default:
		return MeridiemNone
	}
}

// Clock is a time of day as written, before 24h conversion.
type Clock struct {
	Hour     int
	Minute   int
	Meridiem Meridiem
}

func (c Clock) valid() bool {
	if c.Minute < 0 || c.Minute > 59 {
		return false
	}
	if c.Meridiem == MeridiemNone {
		return c.Hour >= 0 && c.Hour <= 23
	}
	return c.Hour >= 1 && c.Hour <= 12
}

type DateForm int

const (
	DateNumeric DateForm = iota // 9/18
	DateNamed                   // Sept 18
)

// SingleDate is a month/day pair. MonthName is set for DateNamed, Month for
// DateNumeric.
type SingleDate struct {
	Form      DateForm
	MonthName string
	Month     int
	Day       int
}

// DateRange is an inclusive same-month day range such as "Dec 16–20".
type DateRange struct {
	MonthName string
	Day       int
	EndDay    int
}

type TimeRange struct {
	Start Clock
	End   Clock
}

type SingleTime struct {
	Clock Clock
}

// Tokens holds what each recognizer found on one line. A nil field means
// the recognizer did not fire.
type Tokens struct {
	DateRange *DateRange
	Date      *SingleDate
	TimeRange *TimeRange
	Time      *SingleTime
}

// Recognize runs the four recognizers independently against line.
func Recognize(line string) Tokens {
	return Tokens{
		DateRange: recognizeDateRange(line),
		Date:      recognizeDate(line),
		TimeRange: recognizeTimeRange(line),
		Time:      recognizeTime(line),
	}
}

func recognizeDateRange(line string) *DateRange {
	m := dateRangeRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	return &DateRange{MonthName: m[1], Day: atoi(m[2]), EndDay: atoi(m[3])}
}

// recognizeDate returns the leftmost numeric or named date on the line.
func recognizeDate(line string) *SingleDate {
	num := numericDateRe.FindStringSubmatchIndex(line)
	named := namedDateRe.FindStringSubmatchIndex(line)

	switch {
	case num == nil && named == nil:
		return nil
	case named == nil || (num != nil && num[0] < named[0]):
		return &SingleDate{
			Form:  DateNumeric,
			Month: atoi(line[num[2]:num[3]]),
			Day:   atoi(line[num[4]:num[5]]),
		}
	default:
		return &SingleDate{
			Form:      DateNamed,
			MonthName: line[named[2]:named[3]],
			Day:       atoi(line[named[4]:named[5]]),
		}
	}
}

func recognizeTimeRange(line string) *TimeRange {
	for _, m := range timeRangeRe.FindAllStringSubmatch(line, -1) {
		r := TimeRange{
			Start: Clock{Hour: atoi(m[1]), Minute: atoi(m[2]), Meridiem: parseMeridiem(m[3])},
			End:   Clock{Hour: atoi(m[4]), Minute: atoi(m[5]), Meridiem: parseMeridiem(m[6])},
		}
		if r.Start.valid() && r.End.valid() {
			return &r
		}
	}
	return nil
}

func recognizeTime(line string) *SingleTime {
	for _, m := range singleTimeRe.FindAllStringSubmatch(line, -1) {
		c := Clock{Hour: atoi(m[1]), Minute: atoi(m[2]), Meridiem: parseMeridiem(m[3])}
		if c.valid() {
			return &SingleTime{Clock: c}
		}
	}
	return nil
}

// atoi reads a regexp group; groups are digit-only or empty.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
