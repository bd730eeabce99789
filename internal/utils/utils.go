package utils

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var controlChars = regexp.MustCompile(`[^\p{L}\p{N}\p{P}\p{Z}]`)

// Clean strips control characters and collapses newlines in a raw corpus
// line before it is handed to the tokenizer.
func Clean(text string) string {
	text = regexp.MustCompile(`\n+`).ReplaceAllString(text, " ")
	text = controlChars.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// FormatDuration renders a duration at the most readable unit, used by the
// CLI to print stage timings.
func FormatDuration(d time.Duration) string {
	if d < time.Microsecond {
		return fmt.Sprintf("%.3fns", float64(d)/float64(time.Nanosecond))
	} else if d < time.Millisecond {
		return fmt.Sprintf("%.3fµs", float64(d)/float64(time.Microsecond))
	} else if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d)/float64(time.Millisecond))
	}
	return fmt.Sprintf("%.3fs", float64(d)/float64(time.Second))
}
