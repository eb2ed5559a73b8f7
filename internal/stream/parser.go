// Package stream decodes the streamed turn response into its coach channel,
// interviewer channel and embedded telemetry block.
package stream

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// Grammar holds the protocol sentinels. All three must be multi-character.
type Grammar struct {
	TelemetryStart string
	TelemetryEnd   string
	Separator      string
}

// DefaultGrammar is what the generation backend emits.
var DefaultGrammar = Grammar{
	TelemetryStart: "<<<START>>>",
	TelemetryEnd:   "<<<END>>>",
	Separator:      "|||",
}

// State is the decomposition of everything fed so far.
type State struct {
	Suggester   string
	Interviewer string
	// Telemetry is the first well-formed telemetry object, nil until one is complete.
	Telemetry json.RawMessage
	// TelemetryJustEmitted is true only on the call that first produced Telemetry.
	TelemetryJustEmitted bool
	// MalformedTelemetry reports a closed telemetry block whose body is not a JSON object.
	MalformedTelemetry bool
	SeparatorSeen      bool
	Final              bool
}

// Mode selects how text is assigned to channels.
type Mode int

const (
	// ModeTurn splits at the first separator; text before it, or all text
	// when none arrives, is the suggester channel.
	ModeTurn Mode = iota
	// ModeOpening is for the opening line: the whole response is the
	// interviewer channel and the separator is ordinary text.
	ModeOpening
)

// Parser accumulates fragments and re-decodes the whole buffer on every call.
// It is not safe for concurrent use.
type Parser struct {
	grammar Grammar
	mode    Mode
	buf     strings.Builder
	emitted bool
	last    State
}

// NewParser returns a turn parser for the default grammar.
func NewParser() *Parser { return NewParserWithGrammar(DefaultGrammar, ModeTurn) }

// NewOpeningParser returns an opening-line parser for the default grammar.
func NewOpeningParser() *Parser { return NewParserWithGrammar(DefaultGrammar, ModeOpening) }

// NewParserWithGrammar returns a parser for g in mode m.
func NewParserWithGrammar(g Grammar, m Mode) *Parser {
	return &Parser{grammar: g, mode: m}
}

// Feed appends fragment to the buffer and returns the current decomposition.
func (p *Parser) Feed(fragment string) State {
	p.buf.WriteString(fragment)
	return p.decode(false)
}

// Finalize decodes the buffer as a closed stream. Withheld text is flushed.
func (p *Parser) Finalize() State {
	return p.decode(true)
}

// Buffered returns the raw text fed so far.
func (p *Parser) Buffered() string { return p.buf.String() }

// Last returns the state produced by the most recent Feed or Finalize.
func (p *Parser) Last() State { return p.last }

func (p *Parser) decode(final bool) State {
	st := p.grammar.DecodeMode(p.buf.String(), final, p.mode)
	if st.Telemetry != nil && !p.emitted {
		p.emitted = true
		st.TelemetryJustEmitted = true
	}
	p.last = st
	return st
}

// Decode is the pure turn-mode decomposition of buf. While final is false,
// text that could still change meaning (an open telemetry block, a partial
// sentinel or a split rune at the tail) is withheld so that channel text only
// ever grows. Text is never moved between channels.
func Decode(buf string, final bool) State { return DefaultGrammar.DecodeMode(buf, final, ModeTurn) }

// Decode is Decode for a custom grammar.
func (g Grammar) Decode(buf string, final bool) State { return g.DecodeMode(buf, final, ModeTurn) }

// DecodeMode decomposes buf in mode m.
func (g Grammar) DecodeMode(buf string, final bool, m Mode) State {
	st := State{Final: final}

	visible, telemetry, malformed, pending := g.extractTelemetry(buf)
	st.Telemetry = telemetry
	st.MalformedTelemetry = malformed
	if pending && final {
		visible = buf
	}

	if !final {
		// Only a buffer with no start sentinel yet can end in a partial one.
		if !pending && telemetry == nil && !malformed {
			visible = visible[:len(visible)-partialSuffix(visible, g.TelemetryStart)]
		}
		if m == ModeTurn && !strings.Contains(visible, g.Separator) {
			visible = visible[:len(visible)-partialSuffix(visible, g.Separator)]
		}
		visible = visible[:len(visible)-incompleteRune(visible)]
	}

	if m == ModeOpening {
		st.Interviewer = strings.TrimSpace(visible)
		return st
	}
	if i := strings.Index(visible, g.Separator); i >= 0 {
		st.SeparatorSeen = true
		st.Suggester = strings.TrimSpace(visible[:i])
		st.Interviewer = strings.TrimSpace(visible[i+len(g.Separator):])
		return st
	}

	st.Suggester = strings.TrimSpace(visible)
	return st
}

// extractTelemetry locates the first start sentinel and the first end
// sentinel after it. A well-formed block is cut out of the visible text; a
// malformed one is left in place. pending reports a start sentinel with no
// end yet, in which case visible stops before the start sentinel.
func (g Grammar) extractTelemetry(buf string) (visible string, telemetry json.RawMessage, malformed, pending bool) {
	start := strings.Index(buf, g.TelemetryStart)
	if start < 0 {
		return buf, nil, false, false
	}
	bodyStart := start + len(g.TelemetryStart)
	rel := strings.Index(buf[bodyStart:], g.TelemetryEnd)
	if rel < 0 {
		return buf[:start], nil, false, true
	}
	bodyEnd := bodyStart + rel
	blockEnd := bodyEnd + len(g.TelemetryEnd)

	body := strings.TrimSpace(buf[bodyStart:bodyEnd])
	if !isObject(body) {
		return buf, nil, true, false
	}
	return buf[:start] + buf[blockEnd:], json.RawMessage(body), false, false
}

func isObject(body string) bool {
	if !strings.HasPrefix(body, "{") {
		return false
	}
	var obj map[string]json.RawMessage
	return json.Unmarshal([]byte(body), &obj) == nil
}

// partialSuffix returns the length of the longest proper prefix of token
// that s ends with.
func partialSuffix(s, token string) int {
	n := len(token) - 1
	if n > len(s) {
		n = len(s)
	}
	for ; n > 0; n-- {
		if strings.HasSuffix(s, token[:n]) {
			return n
		}
	}
	return 0
}

// incompleteRune returns the byte length of a truncated UTF-8 sequence at the
// end of s.
func incompleteRune(s string) int {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(s); i++ {
		c := s[len(s)-i]
		if utf8.RuneStart(c) {
			if !utf8.FullRuneInString(s[len(s)-i:]) {
				return i
			}
			return 0
		}
	}
	return 0
}
