package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chadiek/mock-interview/internal/analysis"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	finished := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	rec := Record{
		SessionID:  "s1",
		UserID:     "u1",
		Role:       "frontend",
		Difficulty: 3,
		Persona:    "technologist",
		Transcript: []analysis.Entry{{Role: "interviewer", Content: "Tell me about a bug."}, {Role: "user", Content: "A race."}},
		Report:     analysis.ScoreReport{Overall: 81, Strengths: []string{"Clear"}, Weaknesses: []string{"Metrics"}},
		FinishedAt: finished,
	}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Report.Overall != 81 || len(got.Transcript) != 2 || got.Transcript[1].Content != "A race." {
		t.Fatalf("unexpected record %+v", got)
	}
	if !got.FinishedAt.Equal(finished) {
		t.Fatalf("finished_at = %v want %v", got.FinishedAt, finished)
	}
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_ListByUserNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		rec := Record{SessionID: id, UserID: "u", Role: "backend", Difficulty: 2, Persona: "visionary", FinishedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := s.Save(ctx, rec); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	_ = s.Save(ctx, Record{SessionID: "other", UserID: "someone-else", FinishedAt: base})

	got, err := s.ListByUser(ctx, "u", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].SessionID != "c" || got[1].SessionID != "b" {
		t.Fatalf("unexpected order: %+v", got)
	}
}
