package extract

import (
	"regexp"
	"strings"
)

// lineDelimiters splits on runs of newlines or semicolons. \r is included so
// CRLF input segments the same way as LF input.
var lineDelimiters = regexp.MustCompile(`[\r\n;]+`)

// SplitLines breaks raw text into trimmed, non-empty candidate lines in
// input order.
func SplitLines(text string) []string {
	parts := lineDelimiters.Split(text, -1)
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			lines = append(lines, p)
		}
	}
	return lines
}
