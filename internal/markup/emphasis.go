// Package markup splits channel text into emphasis spans. A run of one, two
// or three markers around text raises its emphasis tier.
package markup

import "strings"

// Marker wraps emphasised text.
const Marker = '*'

// Tier is the emphasis strength of a span, 0 for plain text.
type Tier int

const (
	Plain Tier = iota
	Mild
	Strong
	Critical
)

// Span is a run of text sharing one tier.
type Span struct {
	Text string
	Tier Tier
}

// Parse splits text into spans. Runs longer than three markers and runs with
// no matching closer are kept as literal text.
func Parse(text string) []Span {
	var spans []Span
	var plain strings.Builder
	flush := func() {
		if plain.Len() > 0 {
			spans = append(spans, Span{Text: plain.String()})
			plain.Reset()
		}
	}

	i := 0
	for i < len(text) {
		if text[i] != Marker {
			plain.WriteByte(text[i])
			i++
			continue
		}
		n := runLength(text, i)
		if n > int(Critical) {
			plain.WriteString(text[i : i+n])
			i += n
			continue
		}
		closer := strings.Repeat(string(Marker), n)
		end := findCloser(text, i+n, closer)
		if end < 0 || end == i+n {
			plain.WriteString(text[i : i+n])
			i += n
			continue
		}
		flush()
		spans = append(spans, Span{Text: text[i+n : end], Tier: Tier(n)})
		i = end + n
	}
	flush()
	return spans
}

// Strip returns text with emphasis markers removed.
func Strip(text string) string {
	var b strings.Builder
	for _, s := range Parse(text) {
		b.WriteString(s.Text)
	}
	return b.String()
}

func runLength(text string, i int) int {
	n := 0
	for i+n < len(text) && text[i+n] == Marker {
		n++
	}
	return n
}

// findCloser finds a marker run of exactly len(closer) starting at or after from.
func findCloser(text string, from int, closer string) int {
	for from < len(text) {
		j := strings.Index(text[from:], closer)
		if j < 0 {
			return -1
		}
		at := from + j
		if runLength(text, at) == len(closer) {
			return at
		}
		from = at + runLength(text, at)
	}
	return -1
}
