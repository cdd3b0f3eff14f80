package catalog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/exam-forge/examforge-engine/internal/catalog"
)

func demoTest() catalog.Test {
	return catalog.Test{
		ID:              "demo",
		Title:           "Demo",
		DurationSeconds: 300,
		Questions: []catalog.Question{
			{Number: 1, Text: "one", Choices: map[int]string{0: "a", 1: "b", 2: "c", 3: "d"}, CorrectAnswer: 0, Explanation: "first"},
			{Number: 5, Text: "five", Choices: map[int]string{0: "a", 1: "b", 2: "c", 3: "d"}, CorrectAnswer: 3},
		},
	}
}

func TestQuestionLookupByNumber(t *testing.T) {
	tst := demoTest()
	q, ok := tst.Question(5)
	if !ok || q.Text != "five" {
		t.Fatalf("lookup by number failed: %+v %v", q, ok)
	}
	// numbers are keys, not indexes: 2 does not exist even though len is 2
	if tst.HasQuestion(2) {
		t.Fatalf("question 2 should not exist")
	}
}

func TestStudentViewStripsKeys(t *testing.T) {
	tst := demoTest()
	view := tst.StudentView()
	for _, q := range view.Questions {
		if q.CorrectAnswer != -1 {
			t.Fatalf("correct answer leaked: %+v", q)
		}
		if q.Explanation != "" {
			t.Fatalf("explanation leaked: %+v", q)
		}
		if len(q.Choices) != catalog.NumChoices {
			t.Fatalf("choices were stripped: %+v", q)
		}
	}
	// the original is untouched
	if tst.Questions[0].CorrectAnswer != 0 || tst.Questions[0].Explanation == "" {
		t.Fatalf("student view mutated the source test")
	}
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewInMemoryStore()

	if _, err := store.GetTest(ctx, "demo"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := store.PutTest(ctx, demoTest()); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.GetTest(ctx, "demo")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Demo" || len(got.Questions) != 2 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	sums, err := store.ListTests(ctx)
	if err != nil || len(sums) != 1 || sums[0].TotalQuestions != 2 {
		t.Fatalf("list wrong: %v %v", sums, err)
	}
}
