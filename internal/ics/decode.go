package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "snap2sched/internal/log"
	"snap2sched/internal/model"
)

// Decode reads a calendar produced by Encode back into events. Times are
// returned naive: TZID parameters are ignored and UTC values keep their
// wall clock. VEVENTs that cannot be read are logged and skipped.
func Decode(body []byte) ([]model.Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics decode: %w", err)
	}

	events := make([]model.Event, 0)
	for _, ve := range cal.Events() {
		ev, perr := decodeVEvent(ve)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "uid", propValue(ve, ical.ComponentPropertyUniqueId), "err", perr)
			continue
		}
		events = append(events, ev)
	}
	appLog.Debug("ics decode completed", "event_count", len(events))
	return events, nil
}

func decodeVEvent(ve *ical.VEvent) (model.Event, error) {
	var out model.Event

	out.Title = unescapeText(propValue(ve, ical.ComponentPropertySummary))
	if out.Title == "" {
		return out, errors.New("missing SUMMARY")
	}
	out.Location = unescapeText(propValue(ve, ical.ComponentPropertyLocation))
	out.Notes = unescapeText(propValue(ve, ical.ComponentPropertyDescription))

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	start, allDay, err := parseICSTime(dtStart)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	out.Start = start
	out.AllDay = allDay

	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		end, _, err := parseICSTime(dtEnd)
		if err != nil {
			return out, fmt.Errorf("DTEND: %w", err)
		}
		out.End = &end
	}

	if raw := propValue(ve, ical.ComponentPropertyRrule); raw != "" {
		rec, err := model.ParseRRule(raw)
		if err != nil {
			return out, fmt.Errorf("RRULE: %w", err)
		}
		out.Recurrence = rec
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyCategories) {
		for _, c := range splitEscaped(p.Value) {
			if c = strings.TrimSpace(c); c != "" {
				out.Labels = append(out.Labels, model.Label(c))
			}
		}
	}

	if raw := propValue(ve, ical.ComponentProperty(PropertyConfidence)); raw != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			out.Confidence = f
		}
	}
	return out, nil
}

func propValue(ve *ical.VEvent, name ical.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return p.Value
	}
	return ""
}

// parseICSTime reads DATE and DATE-TIME values as naive wall clock.
func parseICSTime(p *ical.IANAProperty) (time.Time, bool, error) {
	v := strings.TrimSpace(p.Value)
	if v == "" {
		return time.Time{}, false, errors.New("empty time value")
	}

	isDate := !strings.Contains(v, "T")
	if vs, ok := p.ICalParameters[string(ical.ParameterValue)]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		isDate = true
	}
	if isDate {
		t, err := time.ParseInLocation(dateICSLayout, v, time.UTC)
		return t, true, err
	}

	t, err := time.ParseInLocation(naiveICSLayout, strings.TrimSuffix(v, "Z"), time.UTC)
	return t, false, err
}

// splitEscaped splits a list value on commas that are not escaped.
func splitEscaped(v string) []string {
	var (
		parts []string
		cur   strings.Builder
	)
	for i := 0; i < len(v); i++ {
		switch {
		case v[i] == '\\' && i+1 < len(v):
			cur.WriteByte(v[i])
			cur.WriteByte(v[i+1])
			i++
		case v[i] == ',':
			parts = append(parts, unescapeText(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(v[i])
		}
	}
	return append(parts, unescapeText(cur.String()))
}

var textUnescaper = strings.NewReplacer(`\\`, `\`, `\,`, `,`, `\;`, `;`, `\n`, "\n", `\N`, "\n")

func unescapeText(v string) string {
	return textUnescaper.Replace(v)
}
