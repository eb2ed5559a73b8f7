package main

import (
	"strings"
	"testing"
)

func TestReplay_SplitsChannels(t *testing.T) {
	out := replay(`Good start<<<START>>>{"pace":"ok"}<<<END>>>|||Can you **quantify** the impact?`, 5, false, false)
	for _, want := range []string{"Good start", "Can you", "quantify", "the impact?", `{"pace":"ok"}`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "<<<START>>>") || strings.Contains(out, "**") {
		t.Fatalf("markup leaked:\n%s", out)
	}
}

func TestReplay_NoSeparatorNote(t *testing.T) {
	out := replay("Looks good so far.", 4, true, false)
	if !strings.Contains(out, "no separator") {
		t.Fatalf("expected separator note:\n%s", out)
	}
	if !strings.Contains(out, "#01") {
		t.Fatalf("expected step lines:\n%s", out)
	}
}

func TestReplay_Opening(t *testing.T) {
	out := replay("Tell me about a challenging bug you fixed.", 4, false, true)
	if !strings.Contains(out, "Tell me about a challenging bug you fixed.") || strings.Contains(out, "no separator") {
		t.Fatalf("opening output:\n%s", out)
	}
}

func TestFragments(t *testing.T) {
	got := fragments("abcdefg", 3)
	if len(got) != 3 || got[0] != "abc" || got[2] != "g" {
		t.Fatalf("fragments = %q", got)
	}
}
