package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edupoint/portal/internal/rbac"
	"github.com/edupoint/portal/internal/session"
)

type startSessionResponse struct {
	Session session.Session `json:"session"`
	Resumed bool            `json:"resumed"`
}

// POST /exams/{examID}/sessions — start (or resume) the caller's attempt.
// A live session already existing is not a failure: the response carries it
// with Resumed=true and a 409 so clients can tell the two apart.
func StartSessionHandler(store *session.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		examID := chi.URLParam(r, "examID")
		studentID := rbac.SubjectFromContext(r.Context())

		s, err := store.Start(r.Context(), studentID, examID)
		if errors.Is(err, session.ErrSessionConflict) {
			writeJSON(w, http.StatusConflict, startSessionResponse{Session: s, Resumed: true})
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, startSessionResponse{Session: s})
	}
}

// GET /sessions/{sessionID}
func GetSessionHandler(store *session.SQLStore, checker *rbac.Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		role := rbac.RoleFromContext(r.Context())
		sub := rbac.SubjectFromContext(r.Context())

		var (
			s   session.Session
			err error
		)
		if checker.Has(role, "session:view-all") {
			s, err = store.GetSession(r.Context(), id)
		} else {
			s, err = store.GetSessionForStudent(r.Context(), sub, id)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// PUT /sessions/{sessionID}/answers/{questionID}
func SaveAnswerHandler(store *session.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		questionID := chi.URLParam(r, "questionID")
		studentID := rbac.SubjectFromContext(r.Context())

		var p session.AnswerPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		a, err := store.SaveAnswer(r.Context(), studentID, sessionID, questionID, p)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// POST /sessions/{sessionID}/submit — idempotent: retries return the same
// submitted session.
func SubmitSessionHandler(store *session.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		studentID := rbac.SubjectFromContext(r.Context())

		s, err := store.Submit(r.Context(), studentID, sessionID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// GET /sessions/{sessionID}/answers — grading view for teachers.
func ListSessionAnswersHandler(store *session.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		answers, err := store.ListAnswers(r.Context(), sessionID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, answers)
	}
}

// GET /sessions?exam_id=...&student_id=...&status=...
// Callers without session:view-all are scoped to their own sessions.
func ListSessionsHandler(store *session.SQLStore, checker *rbac.Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := rbac.RoleFromContext(r.Context())
		sub := rbac.SubjectFromContext(r.Context())

		opts := session.ListOpts{
			ExamID:    r.URL.Query().Get("exam_id"),
			StudentID: r.URL.Query().Get("student_id"),
			Status:    session.Status(r.URL.Query().Get("status")),
			Limit:     parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset:    parseIntDefault(r.URL.Query().Get("offset"), 0),
		}
		if !checker.Has(role, "session:view-all") {
			opts.StudentID = sub
		}
		list, err := store.ListSessions(r.Context(), opts)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
