package stream

import (
	"math/rand"
	"strings"
	"testing"
)

const sample = `Lead with the metric. <<<START>>> {"confidence": 0.8, "topics": ["debugging"]} <<<END>>>|||Can you quantify the impact? Ünïcødé ✓`

func feedAll(p *Parser, parts []string) []State {
	var states []State
	for _, part := range parts {
		states = append(states, p.Feed(part))
	}
	return states
}

func splitAt(s string, cuts ...int) []string {
	var parts []string
	prev := 0
	for _, c := range cuts {
		parts = append(parts, s[prev:c])
		prev = c
	}
	return append(parts, s[prev:])
}

func sameChannels(a, b State) bool {
	return a.Suggester == b.Suggester && a.Interviewer == b.Interviewer &&
		string(a.Telemetry) == string(b.Telemetry)
}

func TestDecode_SplitDeterminism(t *testing.T) {
	st := Decode("A|||B", true)
	if st.Suggester != "A" || st.Interviewer != "B" {
		t.Fatalf("got suggester=%q interviewer=%q", st.Suggester, st.Interviewer)
	}
	if !st.SeparatorSeen {
		t.Fatalf("unexpected flags: %+v", st)
	}
}

func TestDecode_NoSeparatorStaysSuggester(t *testing.T) {
	for _, final := range []bool{false, true} {
		st := Decode("Looks good so far.", final)
		if st.Suggester != "Looks good so far." || st.Interviewer != "" {
			t.Fatalf("final=%v: text must stay in the suggester channel: %+v", final, st)
		}
	}
	if empty := Decode("", true); empty.Interviewer != "" || empty.Suggester != "" {
		t.Fatalf("empty stream should decode empty: %+v", empty)
	}
}

func TestOpeningParser_InterviewerOnly(t *testing.T) {
	p := NewOpeningParser()
	var prev string
	for _, frag := range []string{"Tell me ", "about a <<<ST", `ART>>>{"warmup":true}<<<END>>>challenging`, " bug you fixed."} {
		st := p.Feed(frag)
		if st.Suggester != "" {
			t.Fatalf("opening text leaked into suggester: %+v", st)
		}
		if !strings.HasPrefix(st.Interviewer, prev) {
			t.Fatalf("interviewer shrank from %q to %q", prev, st.Interviewer)
		}
		prev = st.Interviewer
	}
	final := p.Finalize()
	if final.Interviewer != "Tell me about a challenging bug you fixed." || final.Suggester != "" {
		t.Fatalf("final = %+v", final)
	}
	if string(final.Telemetry) != `{"warmup":true}` {
		t.Fatalf("telemetry = %s", final.Telemetry)
	}
	if st := DefaultGrammar.DecodeMode("a|||b", true, ModeOpening); st.Interviewer != "a|||b" || st.SeparatorSeen {
		t.Fatalf("separator should be plain text in an opening: %+v", st)
	}
}

func TestParser_ChannelsNeverShrink(t *testing.T) {
	body := "Good start, keep <<<START>>>{\"x\":1}<<<END>>>going|||Can you quantify ✓ the impact?"
	for size := 1; size <= 7; size++ {
		p := NewParser()
		var sugg, inter string
		for i := 0; i < len(body); i += size {
			end := i + size
			if end > len(body) {
				end = len(body)
			}
			st := p.Feed(body[i:end])
			if !strings.HasPrefix(st.Suggester, strings.TrimSpace(sugg)) || !strings.HasPrefix(st.Interviewer, strings.TrimSpace(inter)) {
				t.Fatalf("size %d: channels shrank: %q/%q -> %q/%q", size, sugg, inter, st.Suggester, st.Interviewer)
			}
			sugg, inter = st.Suggester, st.Interviewer
		}
		final := p.Finalize()
		if !strings.HasPrefix(final.Suggester, sugg) || !strings.HasPrefix(final.Interviewer, inter) {
			t.Fatalf("size %d: finalize retracted text", size)
		}
	}
}

func TestDecode_OnlyFirstSeparatorSplits(t *testing.T) {
	st := Decode("hint|||first ||| second", true)
	if st.Suggester != "hint" || st.Interviewer != "first ||| second" {
		t.Fatalf("got %+v", st)
	}
}

func TestParser_ChunkBoundaryInvariance_SingleCut(t *testing.T) {
	whole := NewParser()
	whole.Feed(sample)
	want := whole.Finalize()
	if want.Suggester != "Lead with the metric." {
		t.Fatalf("suggester = %q", want.Suggester)
	}
	if want.Interviewer != "Can you quantify the impact? Ünïcødé ✓" {
		t.Fatalf("interviewer = %q", want.Interviewer)
	}

	for i := 0; i <= len(sample); i++ {
		p := NewParser()
		feedAll(p, splitAt(sample, i))
		if got := p.Finalize(); !sameChannels(got, want) {
			t.Fatalf("cut at %d: got %+v want %+v", i, got, want)
		}
	}
}

func TestParser_ChunkBoundaryInvariance_TwoCuts(t *testing.T) {
	want := Decode(sample, true)
	for i := 0; i <= len(sample); i++ {
		for j := i; j <= len(sample); j++ {
			p := NewParser()
			feedAll(p, splitAt(sample, i, j))
			if got := p.Finalize(); !sameChannels(got, want) {
				t.Fatalf("cuts at %d,%d: got %+v want %+v", i, j, got, want)
			}
		}
	}
}

func TestParser_ChunkBoundaryInvariance_RandomPartitions(t *testing.T) {
	inputs := []string{
		sample,
		"Good start|||Can you quantify the impact?",
		"no separator at all <<<START>>>{bad json}<<<END>>> trailing",
		"<<<START>>>{\"a\":1}<<<END>>><<<START>>>{\"b\":2}<<<END>>>hint|||q",
		"half a sentinel <<<STA and a || pipe",
	}
	rng := rand.New(rand.NewSource(42))
	for _, in := range inputs {
		want := Decode(in, true)
		for trial := 0; trial < 200; trial++ {
			var cuts []int
			for k := 1; k < len(in); k++ {
				if rng.Intn(3) == 0 {
					cuts = append(cuts, k)
				}
			}
			p := NewParser()
			feedAll(p, splitAt(in, cuts...))
			if got := p.Finalize(); !sameChannels(got, want) {
				t.Fatalf("input %q cuts %v: got %+v want %+v", in, cuts, got, want)
			}
		}
	}
}

func TestParser_TelemetryExactlyOnce(t *testing.T) {
	for i := 0; i <= len(sample); i++ {
		for _, parts := range [][]string{splitAt(sample, i), strings.Split(sample, "")} {
			p := NewParser()
			emitted := 0
			for _, st := range feedAll(p, parts) {
				if st.TelemetryJustEmitted {
					emitted++
				}
			}
			if p.Finalize().TelemetryJustEmitted {
				emitted++
			}
			if emitted != 1 {
				t.Fatalf("cut %d: telemetry emitted %d times", i, emitted)
			}
		}
	}
}

func TestParser_TelemetryStrippedFromVisibleText(t *testing.T) {
	st := Decode(sample, true)
	if string(st.Telemetry) != `{"confidence": 0.8, "topics": ["debugging"]}` {
		t.Fatalf("telemetry = %s", st.Telemetry)
	}
	if strings.Contains(st.Suggester+st.Interviewer, "<<<") {
		t.Fatalf("sentinel leaked into channels: %+v", st)
	}
}

func TestParser_MalformedTelemetryIsInert(t *testing.T) {
	in := "hint <<<START>>> {not json} <<<END>>>|||question"
	for i := 0; i <= len(in); i++ {
		p := NewParser()
		for _, st := range feedAll(p, splitAt(in, i)) {
			if st.Telemetry != nil || st.TelemetryJustEmitted {
				t.Fatalf("cut %d: malformed telemetry emitted", i)
			}
		}
		final := p.Finalize()
		if final.Telemetry != nil {
			t.Fatalf("cut %d: malformed telemetry emitted on finalize", i)
		}
		if final.Suggester != "hint <<<START>>> {not json} <<<END>>>" {
			t.Fatalf("cut %d: sentinel text should stay visible, got %q", i, final.Suggester)
		}
		if !final.MalformedTelemetry {
			t.Fatalf("cut %d: expected MalformedTelemetry", i)
		}
	}
}

func TestParser_NonObjectTelemetryIsMalformed(t *testing.T) {
	st := Decode("<<<START>>>[1,2]<<<END>>>x|||y", true)
	if st.Telemetry != nil || !st.MalformedTelemetry {
		t.Fatalf("arrays are not telemetry objects: %+v", st)
	}
}

func TestParser_FirstTelemetryBlockWins(t *testing.T) {
	st := Decode(`<<<START>>>{"a":1}<<<END>>>hint <<<START>>>{"b":2}<<<END>>>|||q`, true)
	if string(st.Telemetry) != `{"a":1}` {
		t.Fatalf("telemetry = %s", st.Telemetry)
	}
	if st.Suggester != `hint <<<START>>>{"b":2}<<<END>>>` {
		t.Fatalf("second block should be visible text, got %q", st.Suggester)
	}
}

func TestParser_MalformedFirstBlockSuppressesLaterBlocks(t *testing.T) {
	st := Decode(`<<<START>>>oops<<<END>>> <<<START>>>{"b":2}<<<END>>>|||q`, true)
	if st.Telemetry != nil {
		t.Fatalf("expected no telemetry, got %s", st.Telemetry)
	}
}

func TestParser_UnclosedTelemetryFlushedOnFinalize(t *testing.T) {
	p := NewParser()
	st := p.Feed(`hint <<<START>>> {"a":`)
	if st.Suggester != "hint" {
		t.Fatalf("pending block should be withheld, got %q", st.Suggester)
	}
	final := p.Finalize()
	if final.Interviewer != `hint <<<START>>> {"a":` {
		t.Fatalf("unclosed block should be flushed as text, got %+v", final)
	}
}

func TestParser_StreamingOutputOnlyGrows(t *testing.T) {
	inputs := []string{
		sample,
		"hint <<<START>>> {not json} <<<END>>>|||question",
		"Good start|||Can you quantify the impact?",
		"a||||b",
	}
	for _, in := range inputs {
		p := NewParser()
		var prev State
		for _, st := range feedAll(p, strings.Split(in, "")) {
			if !strings.HasPrefix(st.Suggester, prev.Suggester) {
				t.Fatalf("%q: suggester retracted %q -> %q", in, prev.Suggester, st.Suggester)
			}
			if !strings.HasPrefix(st.Interviewer, prev.Interviewer) {
				t.Fatalf("%q: interviewer retracted %q -> %q", in, prev.Interviewer, st.Interviewer)
			}
			prev = st
		}
	}
}

func TestParser_PartialSeparatorWithheld(t *testing.T) {
	p := NewParser()
	if st := p.Feed("Good start||"); st.Suggester != "Good start" {
		t.Fatalf("got %q", st.Suggester)
	}
	st := p.Feed("|Can")
	if st.Suggester != "Good start" || st.Interviewer != "Can" || !st.SeparatorSeen {
		t.Fatalf("got %+v", st)
	}
}

func TestParser_SplitRuneWithheld(t *testing.T) {
	in := "ok|||✓"
	p := NewParser()
	st := p.Feed(in[:len(in)-1])
	if st.Interviewer != "" {
		t.Fatalf("partial rune should be withheld, got %q", st.Interviewer)
	}
	st = p.Feed(in[len(in)-1:])
	if st.Interviewer != "✓" {
		t.Fatalf("got %q", st.Interviewer)
	}
}

func TestParser_IdempotentUnderEmptyFeeds(t *testing.T) {
	p := NewParser()
	first := p.Feed("Good start|||Can you")
	again := p.Feed("")
	if !sameChannels(first, again) || again.TelemetryJustEmitted {
		t.Fatalf("empty feed changed state: %+v vs %+v", first, again)
	}
	if p.Buffered() != "Good start|||Can you" {
		t.Fatalf("buffered = %q", p.Buffered())
	}
}

func TestPartialSuffix(t *testing.T) {
	cases := []struct {
		s, tok string
		want   int
	}{
		{"abc<<", "<<<START>>>", 2},
		{"abc", "<<<START>>>", 0},
		{"<<<STA", "<<<START>>>", 6},
		{"x||", "|||", 2},
		{"x|||", "|||", 2},
		{"", "|||", 0},
	}
	for _, tc := range cases {
		if got := partialSuffix(tc.s, tc.tok); got != tc.want {
			t.Fatalf("partialSuffix(%q,%q)=%d want %d", tc.s, tc.tok, got, tc.want)
		}
	}
}
