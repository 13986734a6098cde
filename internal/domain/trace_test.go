package domain

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestPreview(t *testing.T) {
	t.Parallel()

	if got := Preview("short"); got != "short" {
		t.Errorf("Preview(short) = %q", got)
	}

	long := strings.Repeat("a", 200)
	if got := Preview(long); len(got) != 120 {
		t.Errorf("len = %d, want 120", len(got))
	}

	// 119 ASCII bytes followed by a multi-byte rune straddling the limit:
	// the cut must back off to the rune boundary, not split it.
	straddle := strings.Repeat("a", 119) + "éxxxx"
	got := Preview(straddle)
	if !utf8.ValidString(got) {
		t.Fatalf("preview split a rune: %q", got)
	}
	if len(got) != 119 {
		t.Errorf("len = %d, want 119", len(got))
	}
}
