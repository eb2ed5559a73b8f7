package analysis

import (
	"fmt"
	"strings"
)

const (
	provisionalBase    = 68
	provisionalPerTurn = 4
	provisionalCap     = 88
	detailedAnswer     = 40 // words
)

// Provisional returns the instant local estimate shown while the real
// analysis runs. It makes no network calls and is deterministic.
func Provisional(transcript []Entry) ScoreReport {
	answered, words := 0, 0
	for _, e := range transcript {
		if e.Role != "user" || strings.TrimSpace(e.Content) == "" {
			continue
		}
		answered++
		words += len(strings.Fields(e.Content))
	}

	overall := provisionalBase + provisionalPerTurn*answered
	if overall > provisionalCap {
		overall = provisionalCap
	}

	r := ScoreReport{
		Overall: overall,
		Scores: SubScores{
			Technical:      clamp(overall - 2),
			Communication:  clamp(overall + 3),
			ProblemSolving: clamp(overall),
			Confidence:     clamp(overall - 4),
			CulturalFit:    clamp(overall + 1),
		},
		Summary: fmt.Sprintf("Provisional estimate from %d answered question(s). The detailed analysis is still running.", answered),
	}

	switch {
	case answered == 0:
		r.Weaknesses = append(r.Weaknesses, "No answers recorded")
	case words/answered >= detailedAnswer:
		r.Strengths = append(r.Strengths, "Detailed answers")
	default:
		r.Weaknesses = append(r.Weaknesses, "Answers could use more detail")
	}
	if answered >= 3 {
		r.Strengths = append(r.Strengths, "Sustained engagement")
	}
	return r
}
