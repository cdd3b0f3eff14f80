package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/exam-forge/examforge-engine/internal/catalog"
)

// ListTestsHandler serves the catalog listing (no question bodies).
func ListTestsHandler(store catalog.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sums, err := store.ListTests(r.Context())
		if err != nil {
			http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, sums)
	}
}

// GetTestHandler serves a single definition with correct answers and
// explanations stripped.
func GetTestHandler(store catalog.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "testID")
		t, err := store.GetTest(r.Context(), id)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				http.Error(w, "test not found", http.StatusNotFound)
				return
			}
			http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, t.StudentView())
	}
}

// UploadTestHandler accepts a full definition (teacher role).
func UploadTestHandler(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var t catalog.Test
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if t.ID == "" || t.DurationSeconds <= 0 || len(t.Questions) == 0 {
			http.Error(w, "id, duration_seconds and questions required", http.StatusBadRequest)
			return
		}
		for _, q := range t.Questions {
			if len(q.Choices) != catalog.NumChoices {
				http.Error(w, "each question needs exactly 4 choices", http.StatusBadRequest)
				return
			}
			if _, ok := q.Choices[q.CorrectAnswer]; !ok {
				http.Error(w, "correct_answer must index a choice", http.StatusBadRequest)
				return
			}
		}
		if err := store.PutTest(r.Context(), t); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, t.Summary())
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
