package extract

import (
	"fmt"
	"regexp"

	"snap2sched/internal/model"
)

// LabelPattern is one row of a label table before compilation. Pattern is a
// regular expression body; it is matched case-insensitively on word
// boundaries.
type LabelPattern struct {
	Pattern string      `yaml:"pattern" json:"pattern"`
	Label   model.Label `yaml:"label" json:"label"`
}

// DefaultLabelPatterns is the built-in category table, in evaluation order.
var DefaultLabelPatterns = []LabelPattern{
	{Pattern: `no school|holiday`, Label: model.LabelNoSchool},
	{Pattern: `half[-\s]?day|early release`, Label: model.LabelHalfDay},
	{Pattern: `midterm|finals?|exam`, Label: model.LabelExam},
	{Pattern: `quiz`, Label: model.LabelQuiz},
	{Pattern: `parent[-\s]?teacher conference`, Label: model.LabelConference},
	{Pattern: `(?:assignment|project)\s+due`, Label: model.LabelDue},
}

type labelRule struct {
	re    *regexp.Regexp
	label model.Label
}

// LabelTable assigns category labels to a line.
type LabelTable struct {
	rules []labelRule
}

// CompileLabelTable compiles patterns into a table, preserving order.
func CompileLabelTable(patterns []LabelPattern) (LabelTable, error) {
	rules := make([]labelRule, 0, len(patterns))
	for i, p := range patterns {
		if p.Label == "" {
			return LabelTable{}, fmt.Errorf("label pattern %d: empty label", i)
		}
		re, err := regexp.Compile(`(?i)\b(?:` + p.Pattern + `)\b`)
		if err != nil {
			return LabelTable{}, fmt.Errorf("label pattern %d (%s): %w", i, p.Label, err)
		}
		rules = append(rules, labelRule{re: re, label: p.Label})
	}
	return LabelTable{rules: rules}, nil
}

// DefaultLabelTable returns the compiled built-in table.
func DefaultLabelTable() LabelTable {
	t, err := CompileLabelTable(DefaultLabelPatterns)
	if err != nil {
		panic(err)
	}
	return t
}

// Classify returns every label whose pattern matches line, in table order.
// A line matching nothing is labeled Other, and Other is never combined with
// a matched label.
func (t LabelTable) Classify(line string) []model.Label {
	var labels []model.Label
	seen := make(map[model.Label]bool, len(t.rules))
	for _, r := range t.rules {
		if seen[r.label] || !r.re.MatchString(line) {
			continue
		}
		seen[r.label] = true
		labels = append(labels, r.label)
	}
	if len(labels) == 0 {
		return []model.Label{model.LabelOther}
	}
	return labels
}
