package progress

import "sort"

// Snapshot is the durable state of one in-progress test session. Absence of a
// question number in Answers means unanswered; null is never stored.
type Snapshot struct {
	TestID               string      `json:"test_id"`
	UserID               string      `json:"user_id"`
	Answers              map[int]int `json:"answers"`
	MarkedForReview      []int       `json:"marked_for_review"`
	CurrentQuestion      int         `json:"current_question"`
	TimeRemainingSeconds int         `json:"time_remaining_seconds"`
	StartedAt            int64       `json:"started_at"`   // epoch millis, fixed at creation
	LastUpdated          int64       `json:"last_updated"` // epoch millis, bumped per persisted write
	IsCompleted          bool        `json:"is_completed"`
}

// New returns a fresh snapshot positioned at question 1 with the full time
// budget.
func New(testID, userID string, durationSeconds int, nowMillis int64) Snapshot {
	return Snapshot{
		TestID:               testID,
		UserID:               userID,
		Answers:              map[int]int{},
		MarkedForReview:      []int{},
		CurrentQuestion:      1,
		TimeRemainingSeconds: durationSeconds,
		StartedAt:            nowMillis,
		LastUpdated:          nowMillis,
	}
}

// Clone deep-copies the snapshot so it can leave the engine's lock.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Answers = make(map[int]int, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = v
	}
	out.MarkedForReview = append([]int(nil), s.MarkedForReview...)
	return out
}

// Marked reports whether the question is flagged for review.
func (s Snapshot) Marked(number int) bool {
	for _, n := range s.MarkedForReview {
		if n == number {
			return true
		}
	}
	return false
}

// ToggleMark flips review membership for the question.
func (s *Snapshot) ToggleMark(number int) {
	for i, n := range s.MarkedForReview {
		if n == number {
			s.MarkedForReview = append(s.MarkedForReview[:i], s.MarkedForReview[i+1:]...)
			return
		}
	}
	s.MarkedForReview = append(s.MarkedForReview, number)
}

func (s Snapshot) AnsweredCount() int { return len(s.Answers) }

// Normalize clamps a stored snapshot against the test it belongs to, so stale
// or corrupt data can never put the session in an out-of-range state. The
// stored time remaining is authoritative; it is only clamped, never recomputed
// from wall clock.
func (s *Snapshot) Normalize(durationSeconds int, questionNumbers []int) {
	if s.TimeRemainingSeconds < 0 {
		s.TimeRemainingSeconds = 0
	}
	if s.TimeRemainingSeconds > durationSeconds {
		s.TimeRemainingSeconds = durationSeconds
	}
	n := len(questionNumbers)
	if s.CurrentQuestion < 1 {
		s.CurrentQuestion = 1
	}
	if s.CurrentQuestion > n {
		s.CurrentQuestion = n
	}

	known := make(map[int]struct{}, n)
	for _, qn := range questionNumbers {
		known[qn] = struct{}{}
	}
	if s.Answers == nil {
		s.Answers = map[int]int{}
	}
	for qn := range s.Answers {
		if _, ok := known[qn]; !ok {
			delete(s.Answers, qn)
		}
	}
	marked := s.MarkedForReview[:0]
	for _, qn := range s.MarkedForReview {
		if _, ok := known[qn]; ok {
			marked = append(marked, qn)
		}
	}
	sort.Ints(marked)
	s.MarkedForReview = marked
}
