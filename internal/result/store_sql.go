package result

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"math"

	"github.com/google/uuid"

	syncx "github.com/exam-forge/examforge-engine/internal/sync"
)

// SQLStore appends result rows, logs a ResultRecorded event and bumps the
// user's aggregate stats. The result insert is the one write that must land;
// the event and stats updates are best-effort follow-ups.
type SQLStore struct {
	db     *sql.DB
	events *syncx.EventRepo
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, events: syncx.NewEventRepo(db)}
}

func (s *SQLStore) Record(ctx context.Context, res Result) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	aj, err := json.Marshal(res.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (id,test_id,user_id,score,correct_answers,total_questions,time_taken_sec,answers_json,completed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		res.ID, res.TestID, res.UserID, res.Score, res.CorrectAnswers, res.TotalQuestions,
		res.TimeTakenSeconds, string(aj), res.CompletedAt)
	if err != nil {
		return err
	}

	data, _ := json.Marshal(res)
	if err := s.events.Append(ctx, syncx.Event{
		Type:     "ResultRecorded",
		Key:      res.ID,
		DataJSON: string(data),
	}); err != nil {
		slog.Warn("event log append failed", "result_id", res.ID, "error", err)
	}
	if err := s.bumpStats(ctx, res); err != nil {
		slog.Warn("user stats update failed", "user_id", res.UserID, "error", err)
	}
	return nil
}

// bumpStats recomputes the aggregate row from the results table, the source
// of truth. Rolling the average forward from the previously rounded value
// would accumulate drift across results.
func (s *SQLStore) bumpStats(ctx context.Context, res Result) error {
	var completed, totalScore, totalTime int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(score),0), COALESCE(SUM(time_taken_sec),0)
		 FROM results WHERE user_id=$1`, res.UserID).
		Scan(&completed, &totalScore, &totalTime)
	if err != nil {
		return err
	}
	avg := 0
	if completed > 0 {
		avg = int(math.Round(float64(totalScore) / float64(completed)))
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_stats (user_id,tests_completed,average_score,total_time_sec)
		 VALUES ($1,$2,$3,$4)
		 ON CONFLICT (user_id) DO UPDATE SET
		   tests_completed=EXCLUDED.tests_completed,
		   average_score=EXCLUDED.average_score,
		   total_time_sec=EXCLUDED.total_time_sec`,
		res.UserID, completed, avg, totalTime)
	return err
}

func (s *SQLStore) ListResults(ctx context.Context, userID, testID string) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,test_id,user_id,score,correct_answers,total_questions,time_taken_sec,answers_json,completed_at
		 FROM results WHERE user_id=$1 AND test_id=$2 ORDER BY completed_at DESC`,
		userID, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		var aj string
		if err := rows.Scan(&r.ID, &r.TestID, &r.UserID, &r.Score, &r.CorrectAnswers,
			&r.TotalQuestions, &r.TimeTakenSeconds, &aj, &r.CompletedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(aj), &r.Answers); err != nil {
			r.Answers = map[int]int{}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) UserStats(ctx context.Context, userID string) (Stats, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT tests_completed,average_score,total_time_sec FROM user_stats WHERE user_id=$1`, userID)
	st := Stats{UserID: userID}
	if err := row.Scan(&st.TestsCompleted, &st.AverageScore, &st.TotalTimeSeconds); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return st, nil
		}
		return Stats{}, err
	}
	return st, nil
}
