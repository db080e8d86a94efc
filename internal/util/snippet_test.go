package util

import (
	"strings"
	"testing"
)

func TestSnippetPrefersMatchingSentence(t *testing.T) {
	content := "Cats sleep most of the day. Edge workloads see lower latency when cached. Appendix follows."
	out := Snippet(content, "what about edge latency?", 200)
	if !strings.HasPrefix(out, "Edge workloads see lower latency") {
		t.Fatalf("expected latency sentence first, got %q", out)
	}
}

func TestSnippetWithoutQueryTruncates(t *testing.T) {
	out := Snippet(strings.Repeat("word ", 100), "", 20)
	if !strings.HasSuffix(out, "...") {
		t.Fatalf("expected truncation marker, got %q", out)
	}
	if RuneLen(strings.TrimSuffix(out, "...")) > 20 {
		t.Fatalf("snippet too long: %q", out)
	}
}

func TestSnippetEmpty(t *testing.T) {
	if Snippet(" \x00 ", "query", 10) != "" {
		t.Fatalf("expected empty snippet")
	}
}
