// Package scorecard scores a finished session: a provisional report at once,
// then the real analysis in the background, then persistence.
package scorecard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chadiek/mock-interview/internal/analysis"
	"github.com/chadiek/mock-interview/internal/infra/events"
	"github.com/chadiek/mock-interview/internal/infra/storage"
)

// Kind tells a provisional report from the final one.
type Kind string

const (
	Provisional Kind = "provisional"
	Final       Kind = "final"
)

// Report is replaced as a whole; it is never merged field by field.
type Report struct {
	Kind Kind `json:"kind"`
	analysis.ScoreReport
}

// WarningKind classifies non-fatal scorecard failures.
type WarningKind string

const (
	WarningAnalysisFailed WarningKind = "analysis_failed"
	WarningPersistFailed  WarningKind = "persist_failed"
)

// Warning is surfaced to the user without blocking the report.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
	Err     error       `json:"-"`
}

// Analyzer is the remote analysis call.
type Analyzer interface {
	Analyze(ctx context.Context, in analysis.Request) (analysis.ScoreReport, error)
}

// Finished is the frozen session handed over at ENDED.
type Finished struct {
	SessionID  string
	UserID     string
	Role       string
	Difficulty int
	Persona    string
	Transcript []analysis.Entry
}

// Hooks receive the asynchronous outcome. OnResolved fires exactly once:
// with the Final report on success, or with the provisional report when the
// analysis failed.
type Hooks struct {
	OnResolved func(Report)
	OnWarning  func(Warning)
}

// Options configure a Generator.
type Options struct {
	Analyzer        Analyzer
	Store           storage.Store
	Publisher       events.Publisher
	AnalysisTimeout time.Duration
	PersistTimeout  time.Duration
	Log             logrus.FieldLogger
}

// Generator runs scorecards. It is safe for concurrent use.
type Generator struct {
	analyzer        Analyzer
	store           storage.Store
	publisher       events.Publisher
	analysisTimeout time.Duration
	persistTimeout  time.Duration
	log             logrus.FieldLogger
	now             func() time.Time
	wg              sync.WaitGroup
}

// NewGenerator builds a generator. Store and Publisher may be nil.
func NewGenerator(opts Options) *Generator {
	g := &Generator{
		analyzer:        opts.Analyzer,
		store:           opts.Store,
		publisher:       opts.Publisher,
		analysisTimeout: opts.AnalysisTimeout,
		persistTimeout:  opts.PersistTimeout,
		log:             opts.Log,
		now:             time.Now,
	}
	if g.analysisTimeout <= 0 {
		g.analysisTimeout = 45 * time.Second
	}
	if g.persistTimeout <= 0 {
		g.persistTimeout = 15 * time.Second
	}
	if g.log == nil {
		g.log = logrus.StandardLogger()
	}
	return g
}

// Generate returns the provisional report synchronously and starts the real
// analysis. The background work outlives ctx's cancellation but keeps its values.
func (g *Generator) Generate(ctx context.Context, fin Finished, hooks Hooks) Report {
	provisional := Report{Kind: Provisional, ScoreReport: analysis.Provisional(fin.Transcript)}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.run(context.WithoutCancel(ctx), fin, provisional, hooks)
	}()
	return provisional
}

// Wait blocks until every background scorecard has finished.
func (g *Generator) Wait() { g.wg.Wait() }

func (g *Generator) run(ctx context.Context, fin Finished, provisional Report, hooks Hooks) {
	log := g.log.WithFields(logrus.Fields{"session_id": fin.SessionID, "user_id": fin.UserID})

	report, err := g.analyze(ctx, fin)
	if err != nil {
		log.WithError(err).Warn("analysis failed; keeping provisional report")
		warn(hooks, Warning{Kind: WarningAnalysisFailed, Message: "Detailed analysis is unavailable. Showing a provisional score.", Err: err})
		resolve(hooks, provisional)
		return
	}
	final := Report{Kind: Final, ScoreReport: report}
	log.WithField("overall", report.Overall).Info("analysis complete")
	resolve(hooks, final)

	if g.store == nil {
		return
	}
	rec := storage.Record{
		SessionID:  fin.SessionID,
		UserID:     fin.UserID,
		Role:       fin.Role,
		Difficulty: fin.Difficulty,
		Persona:    fin.Persona,
		Transcript: fin.Transcript,
		Report:     report,
		FinishedAt: g.now(),
	}
	saveCtx, cancel := context.WithTimeout(ctx, g.persistTimeout)
	err = g.store.Save(saveCtx, rec)
	cancel()
	if err != nil {
		log.WithError(err).Error("failed to persist session")
		warn(hooks, Warning{Kind: WarningPersistFailed, Message: "Your report could not be saved.", Err: err})
		return
	}
	log.Info("session persisted")

	if g.publisher == nil {
		return
	}
	if err := g.publisher.PublishAnalyzed(events.SessionAnalyzed{
		SessionID:  rec.SessionID,
		UserID:     rec.UserID,
		Role:       rec.Role,
		Difficulty: rec.Difficulty,
		Overall:    rec.Report.Overall,
		FinishedAt: rec.FinishedAt,
	}); err != nil {
		log.WithError(err).Warn("failed to publish session analyzed event")
	}
}

var errNoAnalyzer = errors.New("no analysis service configured")

func (g *Generator) analyze(ctx context.Context, fin Finished) (analysis.ScoreReport, error) {
	if g.analyzer == nil {
		return analysis.ScoreReport{}, errNoAnalyzer
	}
	ctx, cancel := context.WithTimeout(ctx, g.analysisTimeout)
	defer cancel()
	return g.analyzer.Analyze(ctx, analysis.Request{
		Transcript: fin.Transcript,
		Role:       fin.Role,
		Difficulty: fin.Difficulty,
	})
}

func resolve(h Hooks, r Report) {
	if h.OnResolved != nil {
		h.OnResolved(r)
	}
}

func warn(h Hooks, w Warning) {
	if h.OnWarning != nil {
		h.OnWarning(w)
	}
}
