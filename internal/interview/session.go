// Package interview runs one mock-interview session: configuration, the
// credit-gated start, the streamed turn loop, termination and scoring.
package interview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chadiek/mock-interview/internal/analysis"
	"github.com/chadiek/mock-interview/internal/credits"
	"github.com/chadiek/mock-interview/internal/llm"
	"github.com/chadiek/mock-interview/internal/scorecard"
	"github.com/chadiek/mock-interview/internal/stream"
)

// FallbackOpening is shown when the opening call fails.
const FallbackOpening = "Thanks for joining. To get us started, could you walk me through a recent project you're proud of and the part you owned?"

// TurnSender issues one streamed turn call. *llm.Transport implements it.
type TurnSender interface {
	Send(ctx context.Context, turn llm.TurnRequest) (*llm.Stream, error)
}

// CreditGate is the atomic start check. *credits.Gate implements it.
type CreditGate interface {
	CheckAndStart(ctx context.Context, userID string) (credits.Outcome, error)
}

// Scorer produces the scorecard. *scorecard.Generator implements it.
type Scorer interface {
	Generate(ctx context.Context, fin scorecard.Finished, hooks scorecard.Hooks) scorecard.Report
}

// Deps are the collaborators shared by every session. NewTransport is called
// once per session so that the one-call-in-flight guard is per session.
type Deps struct {
	Gate         CreditGate
	NewTransport func() TurnSender
	Scorer       Scorer
	Log          logrus.FieldLogger
	Now          func() time.Time
}

// Hooks observe the session. They are called without the session lock held,
// possibly from background goroutines.
type Hooks struct {
	OnState            func(State)
	OnMessage          func(ChannelMessage)
	OnChannelFinalized func(ChannelMessage)
	OnTelemetry        func(requestID string, payload json.RawMessage)
	// OnRollback fires when a failed user turn is withdrawn.
	OnRollback func(requestID string, restoredInput string)
	OnReport   func(scorecard.Report)
	OnWarning  func(scorecard.Warning)
}

// StartResult reports how Start ended. PurchaseRequired is a signal for the
// caller, not an error: the session stays in CONFIGURING.
type StartResult struct {
	Started          bool `json:"started"`
	PurchaseRequired bool `json:"purchase_required"`
	Remaining        int  `json:"remaining"`
}

// Telemetry is a payload extracted from one turn's stream.
type Telemetry struct {
	RequestID string          `json:"requestId"`
	Payload   json.RawMessage `json:"payload"`
}

// Snapshot is a copy of the published session state.
type Snapshot struct {
	ID           string              `json:"id"`
	UserID       string              `json:"userId"`
	State        State               `json:"state"`
	Config       Config              `json:"config"`
	Level        Level               `json:"level"`
	Turns        []Turn              `json:"turns"`
	Messages     []ChannelMessage    `json:"messages"`
	Telemetry    []Telemetry         `json:"telemetry,omitempty"`
	Report       *scorecard.Report   `json:"report,omitempty"`
	Warnings     []scorecard.Warning `json:"warnings,omitempty"`
	PendingInput string              `json:"pendingInput,omitempty"`
	Busy         bool                `json:"busy"`
}

type inflight struct {
	requestID string
	cancel    context.CancelFunc
	done      chan struct{}
}

// Session owns the config, the transcript and the channel message list.
type Session struct {
	id        string
	userID    string
	deps      Deps
	transport TurnSender
	hooks     Hooks
	log       logrus.FieldLogger

	mu          sync.Mutex
	state       State
	config      Config
	starting    bool
	turns       []Turn
	messages    []ChannelMessage
	telemetry   []Telemetry
	nextTurnID  int64
	nextRequest int
	input       string
	current     *inflight
	report      *scorecard.Report
	warnings    []scorecard.Warning
}

// NewSession creates a session in CONFIGURING with the default config.
func NewSession(id, userID string, deps Deps, hooks Hooks) *Session {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	log := deps.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	var transport TurnSender
	if deps.NewTransport != nil {
		transport = deps.NewTransport()
	}
	return &Session{
		id:        id,
		userID:    userID,
		deps:      deps,
		transport: transport,
		hooks:     hooks,
		log:       log.WithFields(logrus.Fields{"session_id": id, "user_id": userID}),
		state:     StateConfiguring,
		config:    DefaultConfig(),
	}
}

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PendingInput returns the text restored after a failed submission.
func (s *Session) PendingInput() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// Configure replaces the config. It is only allowed before Start.
func (s *Session) Configure(cfg Config) error {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConfiguring || s.starting {
		return ErrConfigLocked
	}
	s.config = cfg
	return nil
}

// Start deducts one credit and, on success, enters ACTIVE and runs the
// opening turn before returning.
func (s *Session) Start(ctx context.Context) (StartResult, error) {
	s.mu.Lock()
	if s.state != StateConfiguring {
		s.mu.Unlock()
		return StartResult{}, ErrInvalidState
	}
	if s.starting {
		s.mu.Unlock()
		return StartResult{}, llm.ErrBusy
	}
	if err := s.config.Validate(); err != nil {
		s.mu.Unlock()
		return StartResult{}, err
	}
	s.starting = true
	s.mu.Unlock()

	outcome, err := s.deps.Gate.CheckAndStart(ctx, s.userID)
	if err != nil || !outcome.Granted {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
		if err != nil {
			return StartResult{}, err
		}
		s.log.WithField("remaining", outcome.Remaining).Info("purchase required to start session")
		return StartResult{PurchaseRequired: true, Remaining: outcome.Remaining}, nil
	}

	s.mu.Lock()
	s.starting = false
	s.advanceLocked(StateActive)
	cfg := s.config
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{"role": cfg.TargetRole, "difficulty": cfg.Difficulty, "remaining": outcome.Remaining}).Info("session started")
	s.emitState(StateActive)

	if err := s.runTurn(ctx, "", true); err != nil && !errors.Is(err, context.Canceled) {
		s.log.WithError(err).Warn("opening turn failed")
	}
	return StartResult{Started: true, Remaining: outcome.Remaining}, nil
}

// Submit sends one user answer and streams the reply. On a transport
// failure the answer is withdrawn, restored to PendingInput and the error is
// returned; the session stays ACTIVE.
func (s *Session) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}
	return s.runTurn(ctx, text, false)
}

// End cancels any in-flight turn, freezes the transcript and starts scoring.
// It returns the report visible at that moment, normally the provisional one.
func (s *Session) End(ctx context.Context) (scorecard.Report, error) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return scorecard.Report{}, ErrInvalidState
	}
	s.advanceLocked(StateEnded)
	cur := s.current
	s.mu.Unlock()
	s.emitState(StateEnded)

	if cur != nil {
		cur.cancel()
		<-cur.done
	}

	s.mu.Lock()
	fin := s.finishedLocked()
	s.advanceLocked(StateAnalyzing)
	s.mu.Unlock()
	s.log.WithField("turns", len(fin.Transcript)).Info("session ended; scoring")
	s.emitState(StateAnalyzing)

	prov := s.deps.Scorer.Generate(ctx, fin, scorecard.Hooks{
		OnResolved: s.resolveReport,
		OnWarning:  s.addWarning,
	})

	s.mu.Lock()
	published := false
	if s.report == nil {
		s.report = &prov
		published = true
	}
	current := *s.report
	s.mu.Unlock()
	if published && s.hooks.OnReport != nil {
		s.hooks.OnReport(prov)
	}
	return current, nil
}

// Snapshot copies the published state. Messages with no content are left out.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	level, _ := LevelFor(s.config.Difficulty)
	snap := Snapshot{
		ID:           s.id,
		UserID:       s.userID,
		State:        s.state,
		Config:       s.config,
		Level:        level,
		Turns:        append([]Turn(nil), s.turns...),
		Telemetry:    append([]Telemetry(nil), s.telemetry...),
		Warnings:     append([]scorecard.Warning(nil), s.warnings...),
		PendingInput: s.input,
		Busy:         s.current != nil,
	}
	for _, m := range s.messages {
		if m.Content != "" {
			snap.Messages = append(snap.Messages, m)
		}
	}
	if s.report != nil {
		r := *s.report
		snap.Report = &r
	}
	return snap
}

// Messages returns every channel message, including empty ones.
func (s *Session) Messages() []ChannelMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChannelMessage(nil), s.messages...)
}

// runTurn performs one transport call. answer is empty for the opening turn.
func (s *Session) runTurn(ctx context.Context, answer string, opening bool) error {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return ErrInvalidState
	}
	if s.current != nil {
		s.mu.Unlock()
		return llm.ErrBusy
	}
	prevTurns, prevMsgs := len(s.turns), len(s.messages)
	if !opening {
		s.nextTurnID++
		s.turns = append(s.turns, Turn{ID: s.nextTurnID, Role: "user", Content: answer, At: s.deps.Now()})
		s.input = ""
	}
	s.nextRequest++
	reqID := fmt.Sprintf("%s-r%d", s.id, s.nextRequest)
	for _, ch := range []Channel{ChannelSuggester, ChannelInterviewer} {
		s.messages = append(s.messages, ChannelMessage{
			ID:        reqID + ":" + string(ch),
			RequestID: reqID,
			Persona:   ch,
			AfterTurn: len(s.turns),
		})
	}
	req := s.turnRequestLocked()
	turnCtx, cancel := context.WithCancel(ctx)
	cur := &inflight{requestID: reqID, cancel: cancel, done: make(chan struct{})}
	s.current = cur
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
		cancel()
		close(cur.done)
	}()

	log := s.log.WithFields(logrus.Fields{"request_id": reqID, "opening": opening})
	err := s.stream(turnCtx, req, prevMsgs, opening, log)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return err
	case opening:
		log.WithError(err).Warn("opening call failed; using fallback line")
		s.fallbackOpening(prevMsgs)
		return nil
	default:
		log.WithError(err).Warn("turn failed; rolling back answer")
		s.rollback(reqID, answer, prevTurns, prevMsgs)
		return fmt.Errorf("connection interrupted, please retry: %w", err)
	}
}

// stream feeds the transport's fragments through the parser into the
// message pair at idx and idx+1. The opening reply goes to the interviewer
// channel only. Cancellation keeps what arrived.
func (s *Session) stream(ctx context.Context, req llm.TurnRequest, idx int, opening bool, log logrus.FieldLogger) error {
	if s.transport == nil {
		return &llm.TransportError{Err: errors.New("no turn transport configured")}
	}
	st, err := s.transport.Send(ctx, req)
	if err != nil {
		return err
	}
	parser := stream.NewParser()
	if opening {
		parser = stream.NewOpeningParser()
	}
	malformedLogged := false
	for frag := range st.Fragments() {
		state := parser.Feed(frag)
		if state.MalformedTelemetry && !malformedLogged {
			malformedLogged = true
			log.Debug("malformed telemetry block left in visible text")
		}
		s.apply(idx, state, false)
	}
	werr := st.Wait()
	if werr != nil && !errors.Is(werr, context.Canceled) {
		return werr
	}
	s.apply(idx, parser.Finalize(), true)
	return werr
}

// apply writes a decoded state into the message pair and fires hooks.
func (s *Session) apply(idx int, st stream.State, final bool) {
	s.mu.Lock()
	sugg, inter := &s.messages[idx], &s.messages[idx+1]
	var changed []ChannelMessage
	if sugg.Content != st.Suggester || final {
		sugg.Content, sugg.Final = st.Suggester, final
		changed = append(changed, *sugg)
	}
	if inter.Content != st.Interviewer || final {
		inter.Content, inter.Final = st.Interviewer, final
		changed = append(changed, *inter)
	}
	var tel *Telemetry
	if st.TelemetryJustEmitted {
		tel = &Telemetry{RequestID: sugg.RequestID, Payload: st.Telemetry}
		s.telemetry = append(s.telemetry, *tel)
	}
	s.mu.Unlock()

	if tel != nil && s.hooks.OnTelemetry != nil {
		s.hooks.OnTelemetry(tel.RequestID, tel.Payload)
	}
	for _, m := range changed {
		if s.hooks.OnMessage != nil {
			s.hooks.OnMessage(m)
		}
		if final && m.Content != "" && s.hooks.OnChannelFinalized != nil {
			s.hooks.OnChannelFinalized(m)
		}
	}
}

func (s *Session) fallbackOpening(idx int) {
	s.apply(idx, stream.State{Interviewer: FallbackOpening, Final: true}, true)
}

func (s *Session) rollback(reqID, answer string, prevTurns, prevMsgs int) {
	s.mu.Lock()
	s.turns = s.turns[:prevTurns]
	s.messages = s.messages[:prevMsgs]
	kept := s.telemetry[:0]
	for _, t := range s.telemetry {
		if t.RequestID != reqID {
			kept = append(kept, t)
		}
	}
	s.telemetry = kept
	s.input = answer
	s.mu.Unlock()
	if s.hooks.OnRollback != nil {
		s.hooks.OnRollback(reqID, answer)
	}
}

func (s *Session) resolveReport(r scorecard.Report) {
	s.mu.Lock()
	s.report = &r
	s.advanceLocked(StateAnalyzed)
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{"kind": r.Kind, "overall": r.Overall}).Info("report resolved")
	if s.hooks.OnReport != nil {
		s.hooks.OnReport(r)
	}
	s.emitState(StateAnalyzed)
}

func (s *Session) addWarning(w scorecard.Warning) {
	s.mu.Lock()
	s.warnings = append(s.warnings, w)
	s.mu.Unlock()
	if s.hooks.OnWarning != nil {
		s.hooks.OnWarning(w)
	}
}

// advanceLocked moves the lifecycle forward; backward moves are ignored.
func (s *Session) advanceLocked(to State) bool {
	if stateOrder[to] <= stateOrder[s.state] {
		return false
	}
	s.state = to
	return true
}

func (s *Session) emitState(st State) {
	if s.hooks.OnState != nil {
		s.hooks.OnState(st)
	}
}

// conversationLocked interleaves user turns with finalized interviewer lines
// in chronological order. Private suggester text is left out.
func (s *Session) conversationLocked() []analysis.Entry {
	var out []analysis.Entry
	mi := 0
	for ti := 0; ti <= len(s.turns); ti++ {
		for ; mi < len(s.messages) && s.messages[mi].AfterTurn <= ti; mi++ {
			m := s.messages[mi]
			if m.Persona == ChannelInterviewer && m.Content != "" {
				out = append(out, analysis.Entry{Role: "interviewer", Content: m.Content})
			}
		}
		if ti < len(s.turns) {
			out = append(out, analysis.Entry{Role: "user", Content: s.turns[ti].Content})
		}
	}
	return out
}

func (s *Session) turnRequestLocked() llm.TurnRequest {
	cfg := s.config
	level, _ := LevelFor(cfg.Difficulty)
	msgs := []llm.Message{}
	for _, e := range s.conversationLocked() {
		role := e.Role
		if role == "interviewer" {
			role = "assistant"
		}
		msgs = append(msgs, llm.Message{Role: role, Content: e.Content})
	}
	return llm.TurnRequest{
		Messages:   msgs,
		Role:       cfg.TargetRole,
		UseResume:  cfg.UseResume,
		Difficulty: cfg.Difficulty,
		Persona:    string(cfg.Persona),
		Level:      level.Label,
		Tone:       level.Tone,
		ActorRole:  string(cfg.ActorRole),
	}
}

func (s *Session) finishedLocked() scorecard.Finished {
	return scorecard.Finished{
		SessionID:  s.id,
		UserID:     s.userID,
		Role:       s.config.TargetRole,
		Difficulty: s.config.Difficulty,
		Persona:    string(s.config.Persona),
		Transcript: s.conversationLocked(),
	}
}
