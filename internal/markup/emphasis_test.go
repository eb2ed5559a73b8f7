package markup

import "testing"

func TestParse_Tiers(t *testing.T) {
	got := Parse("a *b* **c** ***d*** e")
	want := []Span{
		{Text: "a "},
		{Text: "b", Tier: Mild},
		{Text: " "},
		{Text: "c", Tier: Strong},
		{Text: " "},
		{Text: "d", Tier: Critical},
		{Text: " e"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d spans want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("span %d: got %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestParse_UnclosedAndOverlongRunsAreLiteral(t *testing.T) {
	cases := map[string]string{
		"2 * 3 = 6":     "2 * 3 = 6",
		"**open":        "**open",
		"****four****":  "****four****",
		"empty ** here": "empty ** here",
	}
	for in, want := range cases {
		spans := Parse(in)
		if len(spans) != 1 || spans[0].Tier != Plain || spans[0].Text != want {
			t.Fatalf("Parse(%q) = %+v", in, spans)
		}
	}
}

func TestStrip(t *testing.T) {
	if got := Strip("Say **why** it *mattered*."); got != "Say why it mattered." {
		t.Fatalf("Strip = %q", got)
	}
}
