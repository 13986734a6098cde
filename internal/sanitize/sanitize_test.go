package sanitize

import (
	"strings"
	"testing"
)

func TestSanitizeStripsTerminalSequences(t *testing.T) {
	t.Parallel()

	c := NewCleaner()
	in := "\x1b[31mred\x1b[0m text\x00 with\x07 noise"
	got := c.Sanitize(in)
	if got != "red text with noise" {
		t.Errorf("Sanitize = %q", got)
	}
}

func TestSanitizeKeepsWhitespaceStructure(t *testing.T) {
	t.Parallel()

	c := NewCleaner()
	in := "line one\n\tindented\nline three"
	if got := c.Sanitize(in); got != in {
		t.Errorf("Sanitize changed clean text: %q", got)
	}
}

func TestSanitizeRedactsCredentials(t *testing.T) {
	t.Parallel()

	c := NewCleaner()
	cases := []string{
		"api_key: abcdef0123456789abcdef0123456789",
		"Authorization uses bearer = supersecrettokenvalue1234",
		"found sk-abcdefghijklmnop1234 in the env",
	}
	for _, in := range cases {
		got := c.Sanitize(in)
		if !strings.Contains(got, "[redacted]") {
			t.Errorf("Sanitize(%q) = %q, credential not redacted", in, got)
		}
	}
}

func TestSanitizeTrims(t *testing.T) {
	t.Parallel()

	c := NewCleaner()
	if got := c.Sanitize("  answer  \n"); got != "answer" {
		t.Errorf("Sanitize = %q", got)
	}
}
