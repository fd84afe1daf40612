package extract

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	appLog "snap2sched/internal/log"
	"snap2sched/internal/model"
)

// Confidence per matching branch.
const (
	ConfidenceDateRange     = 0.80
	ConfidenceDateTimeRange = 0.88
	ConfidenceDateTime      = 0.83
	ConfidenceDate          = 0.86
)

const maxTitleRunes = 80

// DefaultFuzzyMarkers flag lines that name a timeframe without a usable date.
var DefaultFuzzyMarkers = []string{"week of", "finals week", "tba"}

// Outcome records what happened to one line.
type Outcome int

const (
	OutcomeDateRange Outcome = iota
	OutcomeDateTimeRange
	OutcomeDateTime
	OutcomeDate
	OutcomeAmbiguousDate
	OutcomeAmbiguousTimeframe
	OutcomeDropped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDateRange:
		return "date_range"
	case OutcomeDateTimeRange:
		return "date_time_range"
	case OutcomeDateTime:
		return "date_time"
	case OutcomeDate:
		return "date"
	case OutcomeAmbiguousDate:
		return "ambiguous_date"
	case OutcomeAmbiguousTimeframe:
		return "ambiguous_timeframe"
	case OutcomeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Observer is told the outcome of every line the heuristic pass handles.
// Implementations must be safe for concurrent use.
type Observer interface {
	ObserveLine(Outcome)
}

// Extractor is an alternate extraction pass whose events are placed ahead of
// the heuristic ones.
type Extractor interface {
	Extract(ctx context.Context, text string, cfg model.ParseConfig) ([]model.Event, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, text string, cfg model.ParseConfig) ([]model.Event, error)

func (f ExtractorFunc) Extract(ctx context.Context, text string, cfg model.ParseConfig) ([]model.Event, error) {
	return f(ctx, text, cfg)
}

// Engine is the rule-based schedule extractor. It is immutable once built
// and safe for concurrent use.
type Engine struct {
	labels   LabelTable
	weekdays WeekdayTable
	fuzzy    *regexp.Regexp
	duration time.Duration
	prepass  Extractor
	observer Observer
}

type Option func(*Engine)

func WithLabelTable(t LabelTable) Option {
	return func(e *Engine) { e.labels = t }
}

func WithWeekdayTable(t WeekdayTable) Option {
	return func(e *Engine) { e.weekdays = t }
}

// WithFuzzyMarkers replaces the literal phrases that turn a dateless line
// into a warning. An empty list disables those warnings.
func WithFuzzyMarkers(markers ...string) Option {
	return func(e *Engine) { e.fuzzy = compileMarkers(markers) }
}

// WithDefaultDuration sets the length of events that carry a start time only.
func WithDefaultDuration(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.duration = d
		}
	}
}

func WithPrepass(x Extractor) Option {
	return func(e *Engine) { e.prepass = x }
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// NewEngine builds an engine with the default tables.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		labels:   DefaultLabelTable(),
		weekdays: DefaultWeekdayTable(OrderCalendar),
		fuzzy:    compileMarkers(DefaultFuzzyMarkers),
		duration: DefaultDuration,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func compileMarkers(markers []string) *regexp.Regexp {
	quoted := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.TrimSpace(m); m != "" {
			quoted = append(quoted, regexp.QuoteMeta(m))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// Parse extracts events and warnings from text. It never fails: lines it
// cannot read become warnings or are skipped. ctx is only handed to the
// pre-pass extractor.
func (e *Engine) Parse(ctx context.Context, text string, cfg model.ParseConfig) model.Result {
	res := model.Result{
		Events:   []model.Event{},
		Warnings: []string{},
	}

	if e.prepass != nil {
		events, err := e.prepass.Extract(ctx, text, cfg)
		if err != nil {
			appLog.Error("pre-pass extractor failed; continuing with heuristics", err)
		} else {
			res.Events = append(res.Events, events...)
		}
	}

	for _, line := range SplitLines(text) {
		ev, warning, outcome := e.parseLine(line, cfg.DefaultYear)
		switch {
		case ev != nil:
			res.Events = append(res.Events, *ev)
		case warning != "":
			res.Warnings = append(res.Warnings, warning)
		}
		if e.observer != nil {
			e.observer.ObserveLine(outcome)
		}
	}
	return res
}

// parseLine tries the branches in priority order; the first that applies
// decides the line.
func (e *Engine) parseLine(line string, year int) (*model.Event, string, Outcome) {
	tok := Recognize(line)

	if tok.DateRange != nil {
		start, end, ok := tok.DateRange.Resolve(year)
		if !ok {
			return nil, "Ambiguous date: " + line, OutcomeAmbiguousDate
		}
		return &model.Event{
			Title:      deriveTitle(line),
			Start:      start,
			End:        &end,
			AllDay:     true,
			Labels:     e.labels.Classify(line),
			Confidence: ConfidenceDateRange,
		}, "", OutcomeDateRange
	}

	if tok.Date == nil {
		if e.fuzzy != nil && e.fuzzy.MatchString(line) {
			return nil, "Ambiguous timeframe: " + line, OutcomeAmbiguousTimeframe
		}
		// No date and no fuzzy marker: the line is skipped without a
		// warning. Callers see this only through the observer.
		appLog.Debug("line dropped: no date", "line", line)
		return nil, "", OutcomeDropped
	}

	day, ok := tok.Date.Resolve(year)
	if !ok {
		return nil, "Ambiguous date: " + line, OutcomeAmbiguousDate
	}

	ev := &model.Event{
		Title:      deriveTitle(line),
		Labels:     e.labels.Classify(line),
		Recurrence: e.weekdays.Synthesize(line),
	}

	var outcome Outcome
	var end time.Time
	switch {
	case tok.TimeRange != nil:
		ev.Start, end = tok.TimeRange.Resolve(day)
		ev.Confidence = ConfidenceDateTimeRange
		outcome = OutcomeDateTimeRange
	case tok.Time != nil:
		ev.Start = tok.Time.Clock.On(day)
		end = ev.Start.Add(e.duration)
		ev.Confidence = ConfidenceDateTime
		outcome = OutcomeDateTime
	default:
		ev.Start = day
		end = day.AddDate(0, 0, 1)
		ev.AllDay = true
		ev.Confidence = ConfidenceDate
		outcome = OutcomeDate
	}
	ev.End = &end
	return ev, "", outcome
}

// deriveTitle takes the text before the first colon, or the whole line when
// there is no colon or nothing precedes it, capped at maxTitleRunes.
func deriveTitle(line string) string {
	title := line
	if i := strings.Index(line, ":"); i >= 0 {
		if head := strings.TrimSpace(line[:i]); head != "" {
			title = head
		}
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = strings.TrimSpace(string([]rune(title)[:maxTitleRunes]))
	}
	return title
}
