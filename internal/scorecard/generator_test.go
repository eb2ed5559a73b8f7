package scorecard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chadiek/mock-interview/internal/analysis"
	"github.com/chadiek/mock-interview/internal/infra/events"
	"github.com/chadiek/mock-interview/internal/infra/storage"
)

type fakeAnalyzer struct {
	report analysis.ScoreReport
	err    error
	delay  time.Duration
}

func (f fakeAnalyzer) Analyze(ctx context.Context, in analysis.Request) (analysis.ScoreReport, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return analysis.ScoreReport{}, ctx.Err()
		}
	}
	return f.report, f.err
}

type fakeStore struct {
	mu    sync.Mutex
	saved []storage.Record
	err   error
}

func (s *fakeStore) Save(ctx context.Context, rec storage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, rec)
	return nil
}

type fakePublisher struct {
	mu   sync.Mutex
	evts []events.SessionAnalyzed
}

func (p *fakePublisher) PublishAnalyzed(evt events.SessionAnalyzed) error {
	p.mu.Lock()
	p.evts = append(p.evts, evt)
	p.mu.Unlock()
	return nil
}

type recorder struct {
	mu       sync.Mutex
	resolved []Report
	warnings []Warning
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnResolved: func(rep Report) { r.mu.Lock(); r.resolved = append(r.resolved, rep); r.mu.Unlock() },
		OnWarning:  func(w Warning) { r.mu.Lock(); r.warnings = append(r.warnings, w); r.mu.Unlock() },
	}
}

var finished = Finished{
	SessionID:  "s1",
	UserID:     "u1",
	Role:       "frontend",
	Difficulty: 3,
	Transcript: []analysis.Entry{
		{Role: "interviewer", Content: "Tell me about a challenging bug you fixed."},
		{Role: "user", Content: "A race in checkout."},
	},
}

func TestGenerate_ProvisionalThenFinalThenPersist(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	g := NewGenerator(Options{
		Analyzer:  fakeAnalyzer{report: analysis.ScoreReport{Overall: 81, Strengths: []string{"Clear"}, Weaknesses: []string{"Metrics"}}, delay: 10 * time.Millisecond},
		Store:     store,
		Publisher: pub,
	})
	rec := &recorder{}
	prov := g.Generate(context.Background(), finished, rec.hooks())
	if prov.Kind != Provisional || prov.Overall != 72 {
		t.Fatalf("provisional = %+v", prov)
	}
	g.Wait()

	if len(rec.resolved) != 1 || rec.resolved[0].Kind != Final || rec.resolved[0].Overall != 81 {
		t.Fatalf("resolved = %+v", rec.resolved)
	}
	if len(rec.resolved[0].Strengths) != 1 || rec.resolved[0].Strengths[0] != "Clear" {
		t.Fatalf("final report must replace the provisional one wholesale: %+v", rec.resolved[0])
	}
	if len(store.saved) != 1 || store.saved[0].Report.Overall != 81 || store.saved[0].Role != "frontend" {
		t.Fatalf("saved = %+v", store.saved)
	}
	if len(pub.evts) != 1 || pub.evts[0].SessionID != "s1" {
		t.Fatalf("published = %+v", pub.evts)
	}
	if len(rec.warnings) != 0 {
		t.Fatalf("unexpected warnings %+v", rec.warnings)
	}
}

func TestGenerate_AnalysisFailureKeepsProvisionalAndSkipsPersistence(t *testing.T) {
	store := &fakeStore{}
	g := NewGenerator(Options{Analyzer: fakeAnalyzer{err: errors.New("down")}, Store: store})
	rec := &recorder{}
	prov := g.Generate(context.Background(), finished, rec.hooks())
	g.Wait()

	if len(rec.resolved) != 1 || rec.resolved[0].Kind != Provisional || rec.resolved[0].Overall != prov.Overall {
		t.Fatalf("resolved = %+v", rec.resolved)
	}
	if len(rec.warnings) != 1 || rec.warnings[0].Kind != WarningAnalysisFailed {
		t.Fatalf("warnings = %+v", rec.warnings)
	}
	if len(store.saved) != 0 {
		t.Fatalf("must not persist after a failed analysis")
	}
}

func TestGenerate_AnalysisTimeoutFallsBack(t *testing.T) {
	g := NewGenerator(Options{
		Analyzer:        fakeAnalyzer{report: analysis.ScoreReport{Overall: 90}, delay: time.Second},
		AnalysisTimeout: 20 * time.Millisecond,
	})
	rec := &recorder{}
	g.Generate(context.Background(), finished, rec.hooks())
	g.Wait()
	if len(rec.warnings) != 1 || !errors.Is(rec.warnings[0].Err, context.DeadlineExceeded) {
		t.Fatalf("warnings = %+v", rec.warnings)
	}
	if rec.resolved[0].Kind != Provisional {
		t.Fatalf("expected provisional fallback")
	}
}

func TestGenerate_PersistFailureIsDistinctWarning(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	g := NewGenerator(Options{Analyzer: fakeAnalyzer{report: analysis.ScoreReport{Overall: 81}}, Store: store})
	rec := &recorder{}
	g.Generate(context.Background(), finished, rec.hooks())
	g.Wait()
	if len(rec.resolved) != 1 || rec.resolved[0].Kind != Final {
		t.Fatalf("report must still be shown: %+v", rec.resolved)
	}
	if len(rec.warnings) != 1 || rec.warnings[0].Kind != WarningPersistFailed {
		t.Fatalf("warnings = %+v", rec.warnings)
	}
}

func TestGenerate_SurvivesCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := NewGenerator(Options{Analyzer: fakeAnalyzer{report: analysis.ScoreReport{Overall: 81}, delay: 20 * time.Millisecond}})
	rec := &recorder{}
	g.Generate(ctx, finished, rec.hooks())
	cancel()
	g.Wait()
	if len(rec.resolved) != 1 || rec.resolved[0].Kind != Final {
		t.Fatalf("analysis should outlive the request context: %+v", rec.resolved)
	}
}
