package result

import "context"

// Result is created exactly once per completed session and never mutated
// afterwards.
type Result struct {
	ID               string      `json:"id"`
	TestID           string      `json:"test_id"`
	UserID           string      `json:"user_id"`
	Score            int         `json:"score"` // 0-100
	CorrectAnswers   int         `json:"correct_answers"`
	TotalQuestions   int         `json:"total_questions"`
	TimeTakenSeconds int         `json:"time_taken_seconds"`
	Answers          map[int]int `json:"answers"`
	CompletedAt      int64       `json:"completed_at"` // epoch millis
}

// Stats is the per-user aggregate bumped on every recorded result.
type Stats struct {
	UserID           string `json:"user_id"`
	TestsCompleted   int    `json:"tests_completed"`
	AverageScore     int    `json:"average_score"`
	TotalTimeSeconds int    `json:"total_time_seconds"`
}

// Sink records results. Recording is fire-and-forget from the session
// engine's point of view: a failure is reported but never blocks the session
// from completing.
type Sink interface {
	Record(ctx context.Context, res Result) error
}

// Store is a Sink that also serves the review surfaces.
type Store interface {
	Sink
	ListResults(ctx context.Context, userID, testID string) ([]Result, error)
	UserStats(ctx context.Context, userID string) (Stats, error)
}
