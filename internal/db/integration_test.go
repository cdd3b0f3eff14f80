package db_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/exam-forge/examforge-engine/internal/catalog"
	"github.com/exam-forge/examforge-engine/internal/db"
	"github.com/exam-forge/examforge-engine/internal/progress"
	"github.com/exam-forge/examforge-engine/internal/result"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	// each test gets its own named in-memory database; cache=shared lets the
	// pool's connections see the same data
	dbh, err := db.Open(context.Background(), db.DriverSQLite,
		fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	dbh.SetMaxOpenConns(1)
	t.Cleanup(func() { dbh.Close() })
	return dbh
}

func sampleTest(id string, n int) catalog.Test {
	qs := make([]catalog.Question, n)
	for i := range qs {
		qs[i] = catalog.Question{
			Number:        i + 1,
			Text:          fmt.Sprintf("q%d", i+1),
			Choices:       map[int]string{0: "a", 1: "b", 2: "c", 3: "d"},
			CorrectAnswer: 1,
			Explanation:   "because",
		}
	}
	return catalog.Test{ID: id, Title: "Sample", Subject: "math", DurationSeconds: 900, Questions: qs}
}

func TestCatalogSQLStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewSQLStore(openTestDB(t))

	if err := store.PutTest(ctx, sampleTest("t1", 3)); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.GetTest(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Sample" || got.DurationSeconds != 900 || len(got.Questions) != 3 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Questions[1].Choices[2] != "c" || got.Questions[1].CorrectAnswer != 1 {
		t.Fatalf("question content lost: %+v", got.Questions[1])
	}

	// upsert replaces in place
	upd := sampleTest("t1", 5)
	upd.Title = "Updated"
	if err := store.PutTest(ctx, upd); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err = store.GetTest(ctx, "t1")
	if err != nil {
		t.Fatalf("get after upsert: %v", err)
	}
	if got.Title != "Updated" || len(got.Questions) != 5 {
		t.Fatalf("upsert not applied: %+v", got)
	}

	if _, err := store.GetTest(ctx, "missing"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	sums, err := store.ListTests(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sums) != 1 || sums[0].TotalQuestions != 5 {
		t.Fatalf("summaries wrong: %+v", sums)
	}
}

func TestProgressSQLStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := progress.NewSQLStore(openTestDB(t))

	if _, err := store.Load(ctx, "u1", "t1"); !errors.Is(err, progress.ErrAbsent) {
		t.Fatalf("err = %v, want ErrAbsent", err)
	}

	snap := progress.New("t1", "u1", 900, 1000)
	snap.Answers[2] = 3
	snap.ToggleMark(1)
	snap.CurrentQuestion = 2
	snap.TimeRemainingSeconds = 555
	if err := store.Save(ctx, "u1", "t1", snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Load(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.TimeRemainingSeconds != 555 || got.CurrentQuestion != 2 || got.Answers[2] != 3 || !got.Marked(1) {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	// last write wins on the same key
	snap.TimeRemainingSeconds = 500
	snap.LastUpdated = 2000
	if err := store.Save(ctx, "u1", "t1", snap); err != nil {
		t.Fatalf("second save: %v", err)
	}
	got, _ = store.Load(ctx, "u1", "t1")
	if got.TimeRemainingSeconds != 500 {
		t.Fatalf("upsert did not replace: %+v", got)
	}
}

func TestResultSQLStoreRecordAndStats(t *testing.T) {
	ctx := context.Background()
	store := result.NewSQLStore(openTestDB(t))

	first := result.Result{
		TestID:           "t1",
		UserID:           "u1",
		Score:            80,
		CorrectAnswers:   4,
		TotalQuestions:   5,
		TimeTakenSeconds: 300,
		Answers:          map[int]int{1: 1, 2: 0, 3: 1, 4: 1, 5: 1},
		CompletedAt:      1000,
	}
	if err := store.Record(ctx, first); err != nil {
		t.Fatalf("record: %v", err)
	}
	second := first
	second.Score = 100
	second.CorrectAnswers = 5
	second.TimeTakenSeconds = 200
	second.CompletedAt = 2000
	if err := store.Record(ctx, second); err != nil {
		t.Fatalf("second record: %v", err)
	}

	res, err := store.ListResults(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("results = %d, want 2", len(res))
	}
	// newest first
	if res[0].Score != 100 || res[1].Score != 80 {
		t.Fatalf("ordering wrong: %d then %d", res[0].Score, res[1].Score)
	}
	if res[0].ID == "" {
		t.Fatalf("record did not assign an ID")
	}
	if res[1].Answers[2] != 0 || len(res[1].Answers) != 5 {
		t.Fatalf("answers lost in round trip: %v", res[1].Answers)
	}

	st, err := store.UserStats(ctx, "u1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TestsCompleted != 2 || st.AverageScore != 90 || st.TotalTimeSeconds != 500 {
		t.Fatalf("stats wrong: %+v", st)
	}

	// unknown user reads as zeroes, not an error
	st, err = store.UserStats(ctx, "nobody")
	if err != nil {
		t.Fatalf("stats for unknown user: %v", err)
	}
	if st.TestsCompleted != 0 {
		t.Fatalf("expected zero stats, got %+v", st)
	}
}

func TestUserStatsAverageHasNoRoundingDrift(t *testing.T) {
	ctx := context.Background()
	store := result.NewSQLStore(openTestDB(t))

	// 100, 50, 50: rolling the rounded average forward would give 66
	// ((100+50)/2=75, then (75*2+50)/3=66); the true mean 200/3 rounds to 67
	for i, score := range []int{100, 50, 50} {
		res := result.Result{
			TestID:           "t1",
			UserID:           "u1",
			Score:            score,
			CorrectAnswers:   score / 20,
			TotalQuestions:   5,
			TimeTakenSeconds: 100,
			Answers:          map[int]int{1: 0},
			CompletedAt:      int64(1000 + i),
		}
		if err := store.Record(ctx, res); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	st, err := store.UserStats(ctx, "u1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TestsCompleted != 3 || st.TotalTimeSeconds != 300 {
		t.Fatalf("stats wrong: %+v", st)
	}
	if st.AverageScore != 67 {
		t.Fatalf("average = %d, want 67 (mean of stored scores, not a rolled-forward estimate)", st.AverageScore)
	}
}
