package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	api "github.com/exam-forge/examforge-engine/internal/api/http"
	auth "github.com/exam-forge/examforge-engine/internal/auth/middleware"
	"github.com/exam-forge/examforge-engine/internal/catalog"
	"github.com/exam-forge/examforge-engine/internal/progress"
	"github.com/exam-forge/examforge-engine/internal/result"
	"github.com/exam-forge/examforge-engine/internal/session"
)

type memorySink struct {
	mu      sync.Mutex
	results []result.Result
}

func (m *memorySink) Record(_ context.Context, res result.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, res)
	return nil
}

// asUser stands in for the JWT middleware.
func asUser(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithSubject(r.Context(), userID)))
		})
	}
}

func newTestRouter(t *testing.T) (*chi.Mux, catalog.Store, *memorySink) {
	t.Helper()
	tests := catalog.NewInMemoryStore()
	prog := progress.NewMemoryStore()
	sink := &memorySink{}
	mgr := session.NewManager(tests, prog, sink,
		session.WithTickInterval(time.Hour),
		session.WithAutosaveInterval(time.Hour),
		session.WithSaveDebounce(time.Hour),
	)
	t.Cleanup(mgr.Shutdown)

	r := chi.NewRouter()
	r.Use(asUser("student-1"))
	r.Post("/tests", api.UploadTestHandler(tests))
	r.Get("/tests/{testID}", api.GetTestHandler(tests))
	r.Route("/sessions/{testID}", func(sr chi.Router) {
		sr.Post("/", api.StartSessionHandler(mgr))
		sr.Get("/", api.GetSessionHandler(mgr))
		sr.Post("/answers", api.SaveAnswerHandler(mgr))
		sr.Post("/goto", api.GoToQuestionHandler(mgr))
		sr.Post("/submit", api.SubmitSessionHandler(mgr))
	})
	return r, tests, sink
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func uploadDemoTest(t *testing.T, r http.Handler) {
	t.Helper()
	body := map[string]interface{}{
		"id":               "demo",
		"title":            "Demo",
		"duration_seconds": 600,
		"questions": []map[string]interface{}{
			{"number": 1, "text": "q1", "choices": map[string]string{"0": "a", "1": "b", "2": "c", "3": "d"}, "correct_answer": 2},
			{"number": 2, "text": "q2", "choices": map[string]string{"0": "a", "1": "b", "2": "c", "3": "d"}, "correct_answer": 0},
		},
	}
	if w := doJSON(t, r, "POST", "/tests", body); w.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
}

func TestUploadRejectsMalformedDefinitions(t *testing.T) {
	r, _, _ := newTestRouter(t)
	cases := []map[string]interface{}{
		{"id": "", "duration_seconds": 600},
		{"id": "x", "duration_seconds": 0, "questions": []map[string]interface{}{{"number": 1}}},
		{"id": "x", "duration_seconds": 600, "questions": []map[string]interface{}{
			{"number": 1, "choices": map[string]string{"0": "a"}, "correct_answer": 0},
		}},
		{"id": "x", "duration_seconds": 600, "questions": []map[string]interface{}{
			{"number": 1, "choices": map[string]string{"0": "a", "1": "b", "2": "c", "3": "d"}, "correct_answer": 7},
		}},
	}
	for i, body := range cases {
		if w := doJSON(t, r, "POST", "/tests", body); w.Code != http.StatusBadRequest {
			t.Errorf("case %d: code = %d, want 400", i, w.Code)
		}
	}
}

func TestGetTestStripsAnswerKeys(t *testing.T) {
	r, _, _ := newTestRouter(t)
	uploadDemoTest(t, r)

	w := doJSON(t, r, "GET", "/tests/demo", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d", w.Code)
	}
	var got catalog.Test
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, q := range got.Questions {
		if q.CorrectAnswer != -1 {
			t.Fatalf("answer key leaked to student view: %+v", q)
		}
	}
}

func TestStartSessionUnknownTest(t *testing.T) {
	r, _, _ := newTestRouter(t)
	if w := doJSON(t, r, "POST", "/sessions/nope", nil); w.Code != http.StatusNotFound {
		t.Fatalf("code = %d, want 404", w.Code)
	}
}

func TestGetSessionWithoutStart(t *testing.T) {
	r, _, _ := newTestRouter(t)
	uploadDemoTest(t, r)
	if w := doJSON(t, r, "GET", "/sessions/demo", nil); w.Code != http.StatusNotFound {
		t.Fatalf("code = %d, want 404", w.Code)
	}
}

func TestSessionFlowOverHTTP(t *testing.T) {
	r, _, sink := newTestRouter(t)
	uploadDemoTest(t, r)

	w := doJSON(t, r, "POST", "/sessions/demo", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start: %d %s", w.Code, w.Body.String())
	}
	var view struct {
		State    string            `json:"state"`
		Resumed  bool              `json:"resumed"`
		Progress progress.Snapshot `json:"progress"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.State != "active" || view.Resumed {
		t.Fatalf("start view wrong: %+v", view)
	}

	// bad input maps to 400, good input commits
	if w := doJSON(t, r, "POST", "/sessions/demo/answers",
		map[string]int{"question_number": 1, "choice": 9}); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid choice: %d, want 400", w.Code)
	}
	if w := doJSON(t, r, "POST", "/sessions/demo/answers",
		map[string]int{"question_number": 1, "choice": 2}); w.Code != http.StatusOK {
		t.Fatalf("save answer: %d %s", w.Code, w.Body.String())
	}
	if w := doJSON(t, r, "POST", "/sessions/demo/goto",
		map[string]int{"position": 2}); w.Code != http.StatusOK {
		t.Fatalf("goto: %d", w.Code)
	}

	w = doJSON(t, r, "POST", "/sessions/demo/submit", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}
	var submitted struct {
		State  string         `json:"state"`
		Result *result.Result `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &submitted); err != nil {
		t.Fatalf("decode submit: %v", err)
	}
	if submitted.State != "completed" || submitted.Result == nil {
		t.Fatalf("submit view wrong: %s", w.Body.String())
	}
	if submitted.Result.Score != 50 || submitted.Result.CorrectAnswers != 1 {
		t.Fatalf("score = %d (%d correct), want 50 (1 correct)", submitted.Result.Score, submitted.Result.CorrectAnswers)
	}

	// submitting again is a no-op, not an error
	if w := doJSON(t, r, "POST", "/sessions/demo/submit", nil); w.Code != http.StatusOK {
		t.Fatalf("second submit: %d", w.Code)
	}
	sink.mu.Lock()
	n := len(sink.results)
	sink.mu.Unlock()
	if n != 1 {
		t.Fatalf("results recorded = %d, want exactly 1", n)
	}
}

func TestSessionsAreIsolatedPerUser(t *testing.T) {
	tests := catalog.NewInMemoryStore()
	prog := progress.NewMemoryStore()
	mgr := session.NewManager(tests, prog, &memorySink{},
		session.WithTickInterval(time.Hour),
		session.WithAutosaveInterval(time.Hour),
		session.WithSaveDebounce(time.Hour),
	)
	t.Cleanup(mgr.Shutdown)

	qs := []catalog.Question{{Number: 1, Choices: map[int]string{0: "a", 1: "b", 2: "c", 3: "d"}, CorrectAnswer: 0}}
	if err := tests.PutTest(context.Background(), catalog.Test{ID: "demo", DurationSeconds: 60, Questions: qs}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	for _, user := range []string{"alice", "bob"} {
		r := chi.NewRouter()
		r.Use(asUser(user))
		r.Post("/sessions/{testID}", api.StartSessionHandler(mgr))
		if w := doJSON(t, r, "POST", "/sessions/demo", nil); w.Code != http.StatusOK {
			t.Fatalf("%s start: %d", user, w.Code)
		}
	}
	a, okA := mgr.Get("alice", "demo")
	b, okB := mgr.Get("bob", "demo")
	if !okA || !okB {
		t.Fatalf("expected live sessions for both users")
	}
	if a == b {
		t.Fatalf("users share one engine")
	}
}
