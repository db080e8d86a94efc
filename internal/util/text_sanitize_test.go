package util

import "testing"

func TestSanitizeTextRemovesNulAndControls(t *testing.T) {
	in := "ab\x00cd\x01\x02\x7f\n\txy"
	out := SanitizeText(in)
	if out != "abcd\n\txy" {
		t.Fatalf("unexpected sanitized output: %q", out)
	}
}

func TestCollapseWhitespace(t *testing.T) {
	got := CollapseWhitespace("  one\t\ttwo\n\nthree   ")
	if got != "one two three" {
		t.Fatalf("unexpected collapse: %q", got)
	}
	if CollapseWhitespace(" \n\t ") != "" {
		t.Fatalf("whitespace-only input should collapse to empty")
	}
}

func TestFirstRunes(t *testing.T) {
	if got := FirstRunes("héllo wörld", 7); got != "héllo w" {
		t.Fatalf("unexpected prefix: %q", got)
	}
	if got := FirstRunes("short", 30); got != "short" {
		t.Fatalf("unexpected prefix: %q", got)
	}
	if got := FirstRunes("abc", 0); got != "" {
		t.Fatalf("unexpected prefix: %q", got)
	}
}
