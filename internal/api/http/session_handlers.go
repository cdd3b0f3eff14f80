package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	auth "github.com/exam-forge/examforge-engine/internal/auth/middleware"
	"github.com/exam-forge/examforge-engine/internal/progress"
	"github.com/exam-forge/examforge-engine/internal/result"
	"github.com/exam-forge/examforge-engine/internal/session"
)

type sessionView struct {
	State          string            `json:"state"`
	Resumed        bool              `json:"resumed,omitempty"`
	Progress       progress.Snapshot `json:"progress"`
	SelectedAnswer *int              `json:"selected_answer,omitempty"`
	Result         *result.Result    `json:"result,omitempty"`
	Warning        string            `json:"warning,omitempty"`
}

func viewOf(eng *session.Engine) sessionView {
	v := sessionView{
		State:    eng.State().String(),
		Progress: eng.Snapshot(),
	}
	if sel, ok := eng.SelectedAnswer(); ok {
		v.SelectedAnswer = &sel
	}
	if res, ok := eng.Result(); ok {
		v.Result = &res
	}
	return v
}

// StartSessionHandler loads or resumes the caller's session for a test.
func StartSessionHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		testID := chi.URLParam(r, "testID")
		eng, resumed, err := mgr.StartOrResume(r.Context(), userID, testID)
		if err != nil {
			writeSessionErr(w, err)
			return
		}
		v := viewOf(eng)
		v.Resumed = resumed
		writeJSON(w, v)
	}
}

// GetSessionHandler returns the observable state of a live session.
func GetSessionHandler(mgr *session.Manager) http.HandlerFunc {
	return withEngine(mgr, func(w http.ResponseWriter, r *http.Request, eng *session.Engine) {
		writeJSON(w, viewOf(eng))
	})
}

// CloseSessionHandler tears the session down without submitting.
func CloseSessionHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		testID := chi.URLParam(r, "testID")
		if err := mgr.Close(userID, testID); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func SelectAnswerHandler(mgr *session.Manager) http.HandlerFunc {
	return withEngine(mgr, func(w http.ResponseWriter, r *http.Request, eng *session.Engine) {
		var req struct {
			Choice int `json:"choice"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := eng.SelectAnswer(req.Choice); err != nil {
			writeSessionErr(w, err)
			return
		}
		writeJSON(w, viewOf(eng))
	})
}

func SaveAnswerHandler(mgr *session.Manager) http.HandlerFunc {
	return withEngine(mgr, func(w http.ResponseWriter, r *http.Request, eng *session.Engine) {
		var req struct {
			QuestionNumber int `json:"question_number"`
			Choice         int `json:"choice"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := eng.SaveAnswer(req.QuestionNumber, req.Choice); err != nil {
			writeSessionErr(w, err)
			return
		}
		writeJSON(w, viewOf(eng))
	})
}

func ToggleMarkHandler(mgr *session.Manager) http.HandlerFunc {
	return withEngine(mgr, func(w http.ResponseWriter, r *http.Request, eng *session.Engine) {
		var req struct {
			QuestionNumber int `json:"question_number"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := eng.ToggleMark(req.QuestionNumber); err != nil {
			writeSessionErr(w, err)
			return
		}
		writeJSON(w, viewOf(eng))
	})
}

func GoToQuestionHandler(mgr *session.Manager) http.HandlerFunc {
	return withEngine(mgr, func(w http.ResponseWriter, r *http.Request, eng *session.Engine) {
		var req struct {
			Position int `json:"position"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := eng.GoToQuestion(req.Position); err != nil {
			writeSessionErr(w, err)
			return
		}
		writeJSON(w, viewOf(eng))
	})
}

func NextQuestionHandler(mgr *session.Manager) http.HandlerFunc {
	return sessionOp(mgr, func(eng *session.Engine) error { return eng.Next() })
}

func PreviousQuestionHandler(mgr *session.Manager) http.HandlerFunc {
	return sessionOp(mgr, func(eng *session.Engine) error { return eng.Previous() })
}

func PauseSessionHandler(mgr *session.Manager) http.HandlerFunc {
	return sessionOp(mgr, func(eng *session.Engine) error { return eng.Pause() })
}

func ResumeSessionHandler(mgr *session.Manager) http.HandlerFunc {
	return sessionOp(mgr, func(eng *session.Engine) error { return eng.Resume() })
}

// SubmitSessionHandler finalizes the session. A deferred result write is a
// warning, not a failure: the session is completed either way.
func SubmitSessionHandler(mgr *session.Manager) http.HandlerFunc {
	return withEngine(mgr, func(w http.ResponseWriter, r *http.Request, eng *session.Engine) {
		err := eng.Submit(r.Context())
		if err != nil && !errors.Is(err, session.ErrResultDeferred) {
			writeSessionErr(w, err)
			return
		}
		v := viewOf(eng)
		if errors.Is(err, session.ErrResultDeferred) {
			v.Warning = "score recording may be delayed"
		}
		writeJSON(w, v)
	})
}

// --- plumbing ---

func withEngine(mgr *session.Manager, fn func(http.ResponseWriter, *http.Request, *session.Engine)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		testID := chi.URLParam(r, "testID")
		eng, ok := mgr.Get(userID, testID)
		if !ok {
			http.Error(w, "no live session for test", http.StatusNotFound)
			return
		}
		fn(w, r, eng)
	}
}

func sessionOp(mgr *session.Manager, op func(*session.Engine) error) http.HandlerFunc {
	return withEngine(mgr, func(w http.ResponseWriter, r *http.Request, eng *session.Engine) {
		if err := op(eng); err != nil {
			writeSessionErr(w, err)
			return
		}
		writeJSON(w, viewOf(eng))
	})
}

func writeSessionErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrTestNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, session.ErrEmptyTest):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, session.ErrStoreUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, session.ErrInvalidChoice), errors.Is(err, session.ErrUnknownQuestion):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, session.ErrNotActive), errors.Is(err, session.ErrAlreadyLoaded):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
