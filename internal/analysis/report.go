// Package analysis produces interview score reports: a local provisional
// heuristic and a client for the remote analysis service.
package analysis

// SubScores are the five named 0-100 dimensions.
type SubScores struct {
	Technical      int `json:"technical"`
	Communication  int `json:"communication"`
	ProblemSolving int `json:"problemSolving"`
	Confidence     int `json:"confidence"`
	CulturalFit    int `json:"culturalFit"`
}

// ScoreReport is the scorecard for one finished session.
type ScoreReport struct {
	Overall    int       `json:"overallScore"`
	Scores     SubScores `json:"scores"`
	Summary    string    `json:"executiveSummary"`
	Strengths  []string  `json:"strengths"`
	Weaknesses []string  `json:"weaknesses"`
}

// InRange reports whether the overall score and every sub-score lie in 0-100.
func (r ScoreReport) InRange() bool {
	for _, v := range []int{r.Overall, r.Scores.Technical, r.Scores.Communication, r.Scores.ProblemSolving, r.Scores.Confidence, r.Scores.CulturalFit} {
		if v != clamp(v) {
			return false
		}
	}
	return true
}

// Entry is one line of the transcript sent for analysis.
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the analysis call body.
type Request struct {
	Transcript []Entry `json:"transcript"`
	Role       string  `json:"role"`
	Difficulty int     `json:"difficulty"`
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
