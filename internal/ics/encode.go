package ics

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"snap2sched/internal/model"
)

const (
	DefaultProductID = "-//snap2sched//schedule extractor//EN"

	// PropertyConfidence carries Event.Confidence through a calendar file.
	PropertyConfidence = "X-SNAP2SCHED-CONFIDENCE"

	naiveICSLayout = "20060102T150405"
	dateICSLayout  = "20060102"
)

// uidNamespace seeds deterministic event UIDs.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://snap2sched.invalid/events"))

// EncodeOptions controls calendar level properties.
type EncodeOptions struct {
	ProductID    string
	CalendarName string
	// Timezone is written as TZID on timed events. Empty leaves them floating.
	Timezone string
	// Stamp is used for every DTSTAMP so output stays reproducible.
	Stamp time.Time
}

// Encode renders events as an iCalendar document.
func Encode(events []model.Event, opts EncodeOptions) ([]byte, error) {
	if opts.ProductID == "" {
		opts.ProductID = DefaultProductID
	}
	if opts.Stamp.IsZero() {
		return nil, errors.New("ics encode: stamp is required")
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(opts.ProductID)
	if opts.CalendarName != "" {
		cal.SetXWRCalName(opts.CalendarName)
	}
	if opts.Timezone != "" {
		cal.SetXWRTimezone(opts.Timezone)
	}

	for i, ev := range events {
		if ev.Title == "" {
			return nil, fmt.Errorf("ics encode: event %d has no title", i)
		}
		ve := cal.AddEvent(EventUID(ev, i))
		ve.SetDtStampTime(opts.Stamp)
		ve.SetSummary(ev.Title)

		if ev.AllDay {
			ve.SetAllDayStartAt(ev.Start)
			if ev.End != nil {
				ve.SetAllDayEndAt(*ev.End)
			}
		} else {
			ve.SetProperty(ical.ComponentPropertyDtStart, ev.Start.Format(naiveICSLayout), tzParams(opts.Timezone)...)
			if ev.End != nil {
				ve.SetProperty(ical.ComponentPropertyDtEnd, ev.End.Format(naiveICSLayout), tzParams(opts.Timezone)...)
			}
		}

		if ev.Recurrence != nil && len(ev.Recurrence.Weekdays) > 0 {
			ve.AddRrule(ev.Recurrence.RRule())
		}
		// One CATEGORIES per label; a joined value would have its commas
		// escaped into a single category.
		for _, l := range ev.Labels {
			ve.AddProperty(ical.ComponentPropertyCategories, string(l))
		}
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if ev.Notes != "" {
			ve.SetDescription(ev.Notes)
		}
		ve.SetProperty(ical.ComponentProperty(PropertyConfidence), strconv.FormatFloat(ev.Confidence, 'f', 2, 64))
	}

	return []byte(cal.Serialize()), nil
}

// EventUID derives a stable UID from the event's title, start and position.
func EventUID(ev model.Event, index int) string {
	key := fmt.Sprintf("%d|%s|%s", index, ev.Title, model.FormatNaive(ev.Start))
	return uuid.NewSHA1(uidNamespace, []byte(key)).String()
}

func tzParams(tz string) []ical.PropertyParameter {
	if tz == "" {
		return nil
	}
	return []ical.PropertyParameter{
		&ical.KeyValues{Key: string(ical.ParameterTzid), Value: []string{tz}},
	}
}
