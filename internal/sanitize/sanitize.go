// Package sanitize cleans assistant output before it is stored or emitted.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	ansiPattern = regexp.MustCompile(`\x1b(?:\[[0-9;?]*[a-zA-Z]|\][^\x07\x1b]*(?:\x07|\x1b\\)|[()][A-Za-z0-9]|[=>])`)

	// Obvious credential shapes that must never reach the client verbatim.
	bearerPattern = regexp.MustCompile(`(?i)\b(bearer|token|api[_-]?key|secret)\s*[:=]\s*[A-Za-z0-9._\-]{16,}`)
	keyPattern    = regexp.MustCompile(`\b(sk|pk|ghp|gho|xox[baprs])[-_][A-Za-z0-9_\-]{16,}\b`)
)

// Cleaner strips terminal escape sequences, control bytes, and obvious
// credentials from generated text.
type Cleaner struct{}

// NewCleaner creates a Cleaner.
func NewCleaner() *Cleaner {
	return &Cleaner{}
}

// Sanitize returns a cleaned copy of text.
func (c *Cleaner) Sanitize(text string) string {
	out := ansiPattern.ReplaceAllString(text, "")
	out = stripControl(out)
	out = bearerPattern.ReplaceAllString(out, "$1: [redacted]")
	out = keyPattern.ReplaceAllString(out, "[redacted]")
	return strings.TrimSpace(out)
}

// stripControl removes control characters except newline, carriage return,
// and tab.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
