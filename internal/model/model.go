package model

import "time"

// NaiveLayout is the wall-clock layout used for every timestamp the system
// emits. Timestamps carry no zone; ParseConfig.Timezone travels alongside.
const NaiveLayout = "2006-01-02T15:04:05"

// Label is a category tag attached to an extracted event.
type Label string

const (
	LabelNoSchool   Label = "No School"
	LabelHalfDay    Label = "Half Day"
	LabelExam       Label = "Exam"
	LabelQuiz       Label = "Quiz"
	LabelConference Label = "Parent-Teacher Conference"
	LabelDue        Label = "Due"
	LabelOther      Label = "Other"
)

// SemesterWindow is accepted on input and passed through untouched.
type SemesterWindow struct {
	Start string `json:"start,omitempty" yaml:"start,omitempty"`
	End   string `json:"end,omitempty" yaml:"end,omitempty"`
}

// ParseConfig is the per-call configuration of a parse.
type ParseConfig struct {
	DefaultYear    int
	Timezone       string
	SemesterWindow *SemesterWindow
}

// Event is one structured calendar entry extracted from schedule text.
//
// Start and End are naive wall-clock values: they are built in time.UTC only
// so that arithmetic is free of DST effects, and must be read with
// FormatNaive rather than as instants.
type Event struct {
	Title      string
	Start      time.Time
	End        *time.Time
	AllDay     bool
	Recurrence *Recurrence
	Labels     []Label
	Location   string
	Notes      string
	Confidence float64
}

// Result is the outcome of parsing one text.
type Result struct {
	Events   []Event
	Warnings []string
}

// Occurrence represents a single concrete instance of an event
// (after recurrence expansion).
type Occurrence struct {
	// EventIndex points back into the slice the occurrence was expanded from.
	EventIndex int

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event, derived from the naive start time.
	InstanceKey string

	Title  string
	Labels []Label
	AllDay bool

	Start time.Time
	End   time.Time
}

// FormatNaive renders t as a zone-less wall-clock timestamp.
func FormatNaive(t time.Time) string {
	return t.Format(NaiveLayout)
}

// Date builds a naive midnight timestamp.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
