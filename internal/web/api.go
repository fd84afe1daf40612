package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"snap2sched/internal/feed"
	"snap2sched/internal/ics"
	appLog "snap2sched/internal/log"
	"snap2sched/internal/model"
	"snap2sched/internal/source"
)

const dateLayout = "2006-01-02"

// parseRequest is the JSON body of the parse endpoints.
type parseRequest struct {
	Text           string                `json:"text"`
	Timezone       string                `json:"timezone,omitempty"`
	DefaultYear    int                   `json:"default_year,omitempty"`
	SemesterWindow *model.SemesterWindow `json:"semester_window,omitempty"`
}

// EventDTO is the wire form of an event. Timestamps are naive ISO 8601.
type EventDTO struct {
	Title          string   `json:"title"`
	StartISO       string   `json:"start_iso"`
	EndISO         *string  `json:"end_iso"`
	AllDay         bool     `json:"all_day"`
	RecurrenceRule *string  `json:"recurrence_rule"`
	Labels         []string `json:"labels"`
	Location       string   `json:"location"`
	Notes          string   `json:"notes"`
	Confidence     float64  `json:"confidence"`
}

// ParseResponse is the JSON body returned by /api/parse.
type ParseResponse struct {
	Events   []EventDTO `json:"events"`
	Warnings []string   `json:"warnings"`
}

// NewParseResponse converts a parse result to its wire form.
func NewParseResponse(res model.Result) ParseResponse {
	warnings := res.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return ParseResponse{Events: toEventDTOs(res.Events), Warnings: warnings}
}

type occurrenceDTO struct {
	EventIndex  int      `json:"event_index"`
	InstanceKey string   `json:"instance_key"`
	Title       string   `json:"title"`
	Labels      []string `json:"labels"`
	AllDay      bool     `json:"all_day"`
	StartISO    string   `json:"start_iso"`
	EndISO      string   `json:"end_iso"`
}

type occurrencesResponse struct {
	RangeStart      string          `json:"range_start"`
	RangeEnd        string          `json:"range_end"`
	Occurrences     []occurrenceDTO `json:"occurrences"`
	TruncatedEvents []int           `json:"truncated_events,omitempty"`
	Warnings        []string        `json:"warnings"`
}

type feedResponse struct {
	UpdatedAt time.Time  `json:"updated_at"`
	Events    []EventDTO `json:"events"`
	Warnings  []string   `json:"warnings"`
	Errors    []string   `json:"errors,omitempty"`
}

// readParseRequest decodes the body and merges it over the configured
// defaults. It writes the error response itself and reports false on failure.
func (s *Server) readParseRequest(w http.ResponseWriter, r *http.Request) (parseRequest, model.ParseConfig, bool) {
	var req parseRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return req, model.ParseConfig{}, false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, model.ParseConfig{}, false
	}
	req.Text = source.NormalizeText(req.Text)
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return req, model.ParseConfig{}, false
	}

	cfg := s.cfg.ParseConfig()
	if req.Timezone != "" {
		cfg.Timezone = req.Timezone
	}
	if req.DefaultYear > 0 {
		cfg.DefaultYear = req.DefaultYear
	}
	if req.SemesterWindow != nil {
		cfg.SemesterWindow = req.SemesterWindow
	}
	return req, cfg, true
}

func (s *Server) parse(r *http.Request, text string, cfg model.ParseConfig) model.Result {
	start := time.Now()
	res := s.engine.Parse(r.Context(), text, cfg)
	if s.metrics != nil {
		s.metrics.ObserveParse(time.Since(start))
	}
	appLog.Debug("api parse", "events", len(res.Events), "warnings", len(res.Warnings), "took", time.Since(start))
	return res
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	req, cfg, ok := s.readParseRequest(w, r)
	if !ok {
		return
	}
	res := s.parse(r, req.Text, cfg)
	writeJSON(w, http.StatusOK, NewParseResponse(res))
}

func (s *Server) handleParseICS(w http.ResponseWriter, r *http.Request) {
	req, cfg, ok := s.readParseRequest(w, r)
	if !ok {
		return
	}
	res := s.parse(r, req.Text, cfg)
	body, err := ics.Encode(res.Events, ics.EncodeOptions{
		CalendarName: s.cfg.CalendarName,
		Timezone:     cfg.Timezone,
		Stamp:        s.now().UTC(),
	})
	if err != nil {
		appLog.Error("api parse.ics: encode failed", err)
		writeError(w, http.StatusInternalServerError, "failed to encode calendar")
		return
	}
	writeCalendar(w, body)
}

// handleOccurrences parses the body and expands recurring events.
//
// POST /api/occurrences?from=2025-09-01&to=2025-12-19
//
// Without from/to the request's semester window is used, and without that
// the whole default year.
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	req, cfg, ok := s.readParseRequest(w, r)
	if !ok {
		return
	}
	from, to, err := expansionWindow(r, cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := s.parse(r, req.Text, cfg)
	expanded, err := ics.Expand(res.Events, ics.ExpandConfig{RangeStart: from, RangeEnd: to})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	dtos := make([]occurrenceDTO, 0, len(expanded.Occurrences))
	for _, occ := range expanded.Occurrences {
		dtos = append(dtos, occurrenceDTO{
			EventIndex:  occ.EventIndex,
			InstanceKey: occ.InstanceKey,
			Title:       occ.Title,
			Labels:      labelStrings(occ.Labels),
			AllDay:      occ.AllDay,
			StartISO:    model.FormatNaive(occ.Start),
			EndISO:      model.FormatNaive(occ.End),
		})
	}
	writeJSON(w, http.StatusOK, occurrencesResponse{
		RangeStart:      model.FormatNaive(from),
		RangeEnd:        model.FormatNaive(to),
		Occurrences:     dtos,
		TruncatedEvents: expanded.TruncatedEvents,
		Warnings:        res.Warnings,
	})
}

// expansionWindow returns an inclusive naive window: the from day at
// midnight through the last second of the to day.
func expansionWindow(r *http.Request, cfg model.ParseConfig) (time.Time, time.Time, error) {
	q := r.URL.Query()
	fromStr, toStr := q.Get("from"), q.Get("to")
	if fromStr == "" && toStr == "" && cfg.SemesterWindow != nil {
		fromStr, toStr = cfg.SemesterWindow.Start, cfg.SemesterWindow.End
	}

	from := model.Date(cfg.DefaultYear, time.January, 1)
	to := model.Date(cfg.DefaultYear, time.December, 31)
	if fromStr != "" {
		t, err := time.ParseInLocation(dateLayout, fromStr, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from date %q", fromStr)
		}
		from = t
	}
	if toStr != "" {
		t, err := time.ParseInLocation(dateLayout, toStr, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date %q", toStr)
		}
		to = t
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to is before from")
	}
	return from, to.AddDate(0, 0, 1).Add(-time.Second), nil
}

func (s *Server) handleFeed(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, feedResponse{
		UpdatedAt: snap.UpdatedAt,
		Events:    toEventDTOs(snap.Events),
		Warnings:  snap.Warnings,
		Errors:    snap.Errors,
	})
}

func (s *Server) handleFeedICS(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	writeCalendar(w, snap.ICS)
}

func (s *Server) snapshot(w http.ResponseWriter) (feed.Snapshot, bool) {
	if s.feed == nil {
		writeError(w, http.StatusServiceUnavailable, "feed is not configured")
		return feed.Snapshot{}, false
	}
	snap, err := s.feed.Snapshot()
	if err != nil {
		if errors.Is(err, feed.ErrNoSnapshot) {
			writeError(w, http.StatusServiceUnavailable, "feed is not ready yet")
			return feed.Snapshot{}, false
		}
		appLog.Error("feed snapshot failed", err)
		writeError(w, http.StatusInternalServerError, "feed unavailable")
		return feed.Snapshot{}, false
	}
	return snap, true
}

func writeCalendar(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		appLog.Error("failed to write calendar response", err)
	}
}

func toEventDTOs(events []model.Event) []EventDTO {
	out := make([]EventDTO, 0, len(events))
	for _, ev := range events {
		dto := EventDTO{
			Title:      ev.Title,
			StartISO:   model.FormatNaive(ev.Start),
			AllDay:     ev.AllDay,
			Labels:     labelStrings(ev.Labels),
			Location:   ev.Location,
			Notes:      ev.Notes,
			Confidence: ev.Confidence,
		}
		if ev.End != nil {
			end := model.FormatNaive(*ev.End)
			dto.EndISO = &end
		}
		if rule := ev.Recurrence.String(); rule != "" {
			dto.RecurrenceRule = &rule
		}
		out = append(out, dto)
	}
	return out
}

func labelStrings(labels []model.Label) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		out = append(out, string(l))
	}
	return out
}
