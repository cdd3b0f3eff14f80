package scoring_test

import (
	"testing"

	"github.com/exam-forge/examforge-engine/internal/catalog"
	"github.com/exam-forge/examforge-engine/internal/progress"
	"github.com/exam-forge/examforge-engine/internal/scoring"
)

func testWith(n int) catalog.Test {
	qs := make([]catalog.Question, n)
	for i := range qs {
		qs[i] = catalog.Question{
			Number:        i + 1,
			Choices:       map[int]string{0: "a", 1: "b", 2: "c", 3: "d"},
			CorrectAnswer: 2,
		}
	}
	return catalog.Test{ID: "t", DurationSeconds: 600, Questions: qs}
}

func TestScoreAllCorrect(t *testing.T) {
	tst := testWith(4)
	snap := progress.New("t", "u", 600, 0)
	for n := 1; n <= 4; n++ {
		snap.Answers[n] = 2
	}
	sum := scoring.Score(tst, snap)
	if sum.Score != 100 || sum.CorrectAnswers != 4 || sum.TotalQuestions != 4 {
		t.Fatalf("got %+v, want 100 with 4/4", sum)
	}
}

func TestScoreUnansweredCountsIncorrect(t *testing.T) {
	tst := testWith(4)
	snap := progress.New("t", "u", 600, 0)
	snap.Answers[1] = 2 // correct
	snap.Answers[2] = 0 // wrong
	// 3 and 4 left unanswered
	sum := scoring.Score(tst, snap)
	if sum.CorrectAnswers != 1 {
		t.Fatalf("correct = %d, want 1", sum.CorrectAnswers)
	}
	if sum.Score != 25 {
		t.Fatalf("score = %d, want 25", sum.Score)
	}
	if sum.PerQuestion[1] != true || sum.PerQuestion[2] != false || sum.PerQuestion[3] != false {
		t.Fatalf("per-question map wrong: %v", sum.PerQuestion)
	}
}

func TestScoreRoundsToNearest(t *testing.T) {
	cases := []struct {
		questions int
		correct   int
		want      int
	}{
		{3, 1, 33}, // 33.33 rounds down
		{3, 2, 67}, // 66.67 rounds up
		{6, 1, 17}, // 16.67 rounds up
		{7, 5, 71}, // 71.43 rounds down
		{8, 0, 0},
	}
	for _, tc := range cases {
		tst := testWith(tc.questions)
		snap := progress.New("t", "u", 600, 0)
		for n := 1; n <= tc.correct; n++ {
			snap.Answers[n] = 2
		}
		if got := scoring.Score(tst, snap).Score; got != tc.want {
			t.Errorf("%d/%d: score = %d, want %d", tc.correct, tc.questions, got, tc.want)
		}
	}
}

func TestScoreTimeTaken(t *testing.T) {
	tst := testWith(2)
	snap := progress.New("t", "u", 600, 0)
	snap.TimeRemainingSeconds = 450
	if got := scoring.Score(tst, snap).TimeTakenSeconds; got != 150 {
		t.Fatalf("time taken = %d, want 150", got)
	}
	snap.TimeRemainingSeconds = 0
	if got := scoring.Score(tst, snap).TimeTakenSeconds; got != 600 {
		t.Fatalf("time taken at expiry = %d, want 600", got)
	}
}

func TestScoreDeterministic(t *testing.T) {
	tst := testWith(5)
	snap := progress.New("t", "u", 600, 0)
	snap.Answers[1] = 2
	snap.Answers[4] = 1
	a := scoring.Score(tst, snap)
	b := scoring.Score(tst, snap)
	if a.Score != b.Score || a.CorrectAnswers != b.CorrectAnswers || a.TimeTakenSeconds != b.TimeTakenSeconds {
		t.Fatalf("same input gave different summaries: %+v vs %+v", a, b)
	}
}
