package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	auth "github.com/exam-forge/examforge-engine/internal/auth/middleware"
	"github.com/exam-forge/examforge-engine/internal/result"
)

// ListResultsHandler serves the caller's results for a test, newest first.
func ListResultsHandler(store result.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		testID := chi.URLParam(r, "testID")
		res, err := store.ListResults(r.Context(), userID, testID)
		if err != nil {
			http.Error(w, "results unavailable", http.StatusServiceUnavailable)
			return
		}
		if res == nil {
			res = []result.Result{}
		}
		writeJSON(w, res)
	}
}

// UserStatsHandler serves the caller's aggregate stats.
func UserStatsHandler(store result.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		st, err := store.UserStats(r.Context(), userID)
		if err != nil {
			http.Error(w, "stats unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, st)
	}
}
