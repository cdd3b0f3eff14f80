// Package scoring turns a completed snapshot into a graded summary. Pure
// functions only: no clock, no store, same input always gives the same output.
package scoring

import (
	"math"

	"github.com/exam-forge/examforge-engine/internal/catalog"
	"github.com/exam-forge/examforge-engine/internal/progress"
)

// Summary is the graded outcome of one session. An unanswered question counts
// as incorrect; there is no separate "skipped" category.
type Summary struct {
	Score            int          `json:"score"` // 0-100
	CorrectAnswers   int          `json:"correct_answers"`
	TotalQuestions   int          `json:"total_questions"`
	TimeTakenSeconds int          `json:"time_taken_seconds"`
	PerQuestion      map[int]bool `json:"per_question"` // question number -> correct
}

// Score grades snap against t. t must have at least one question; the engine
// refuses to start sessions on empty tests, so that is enforced upstream.
func Score(t catalog.Test, snap progress.Snapshot) Summary {
	per := make(map[int]bool, len(t.Questions))
	correct := 0
	for _, q := range t.Questions {
		ans, answered := snap.Answers[q.Number]
		ok := answered && ans == q.CorrectAnswer
		per[q.Number] = ok
		if ok {
			correct++
		}
	}
	score := int(math.Round(100 * float64(correct) / float64(len(t.Questions))))
	return Summary{
		Score:            score,
		CorrectAnswers:   correct,
		TotalQuestions:   len(t.Questions),
		TimeTakenSeconds: t.DurationSeconds - snap.TimeRemainingSeconds,
		PerQuestion:      per,
	}
}
