package ics

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "snap2sched/internal/log"
	"snap2sched/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// RangeStart / RangeEnd define the inclusive naive window for occurrences.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent is a safety cap for open-ended weekly rules.
	// If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the list of expanded occurrences and information about
// truncation.
type ExpandResult struct {
	Occurrences []model.Occurrence
	// TruncatedEvents records indexes of events that hit the cap.
	TruncatedEvents []int
}

// Expand turns events into concrete occurrences within the configured range,
// ordered by start time. An event's own start always counts as an
// occurrence, even when it does not fall on one of its rule's weekdays.
func Expand(events []model.Event, cfg ExpandConfig) (ExpandResult, error) {
	result := ExpandResult{Occurrences: []model.Occurrence{}}

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	for i, ev := range events {
		occ, hitCap := expandEvent(i, ev, cfg)
		result.Occurrences = append(result.Occurrences, occ...)
		if hitCap {
			result.TruncatedEvents = append(result.TruncatedEvents, i)
			appLog.Warn("expand: truncated occurrences due to cap",
				"event", i,
				"title", ev.Title,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	sort.SliceStable(result.Occurrences, func(a, b int) bool {
		oa, ob := result.Occurrences[a], result.Occurrences[b]
		if !oa.Start.Equal(ob.Start) {
			return oa.Start.Before(ob.Start)
		}
		return oa.EventIndex < ob.EventIndex
	})
	return result, nil
}

func expandEvent(index int, ev model.Event, cfg ExpandConfig) ([]model.Occurrence, bool) {
	dur := eventDuration(ev)

	if ev.Recurrence == nil || len(ev.Recurrence.Weekdays) == 0 {
		end := ev.Start.Add(dur)
		if !timeRangesOverlap(ev.Start, end, cfg.RangeStart, cfg.RangeEnd) {
			return nil, false
		}
		return []model.Occurrence{makeOccurrence(index, ev, ev.Start, end)}, false
	}

	r, err := rrule.NewRRule(ev.Recurrence.Option(ev.Start))
	if err != nil {
		appLog.Error("expand: failed to build RRULE", err, "event", index, "rrule", ev.Recurrence.String())
		return nil, false
	}

	var set rrule.Set
	set.RRule(r)
	set.RDate(ev.Start)

	occTimes := set.Between(cfg.RangeStart, cfg.RangeEnd, true)

	hitCap := false
	if len(occTimes) > cfg.MaxOccurrencesPerEvent {
		occTimes = occTimes[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	out := make([]model.Occurrence, 0, len(occTimes))
	for _, occStart := range occTimes {
		out = append(out, makeOccurrence(index, ev, occStart, occStart.Add(dur)))
	}
	return out, hitCap
}

// eventDuration is End-Start, a full day for an all-day event without an
// end, and zero otherwise.
func eventDuration(ev model.Event) time.Duration {
	if ev.End != nil {
		return ev.End.Sub(ev.Start)
	}
	if ev.AllDay {
		return 24 * time.Hour
	}
	return 0
}

func makeOccurrence(index int, ev model.Event, start, end time.Time) model.Occurrence {
	return model.Occurrence{
		EventIndex:  index,
		InstanceKey: fmt.Sprintf("%d@%s", index, model.FormatNaive(start)),
		Title:       ev.Title,
		Labels:      ev.Labels,
		AllDay:      ev.AllDay,
		Start:       start,
		End:         end,
	}
}

// timeRangesOverlap returns true if [aStart, aEnd) intersects
// [bStart, bEnd]. A zero-length event counts when its start is inside.
func timeRangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Equal(aStart) {
		return !aStart.Before(bStart) && !aStart.After(bEnd)
	}
	if !aEnd.After(bStart) {
		return false
	}
	if aStart.After(bEnd) {
		return false
	}
	return true
}
