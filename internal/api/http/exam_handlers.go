package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edupoint/portal/internal/exam"
	"github.com/edupoint/portal/internal/rbac"
)

// POST /exams — create or update an exam with its question set.
func PutExamHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var e exam.Exam
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		e.IsPublished = false // publication is a separate, explicit step
		if e.CreatedBy == "" {
			e.CreatedBy = rbac.SubjectFromContext(r.Context())
		}
		if err := store.PutExam(r.Context(), e); err != nil {
			writeError(w, err)
			return
		}
		full, err := store.GetExamFull(r.Context(), e.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, full)
	}
}

// POST /exams/{examID}/publish
func PublishExamHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "examID")
		if err := store.Publish(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		full, err := store.GetExamFull(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, full)
	}
}

// GET /exams/{examID} — answer keys are stripped unless the caller may see
// the full bank.
func GetExamHandler(store exam.Store, checker *rbac.Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "examID")
		role := rbac.RoleFromContext(r.Context())

		var (
			e   exam.Exam
			err error
		)
		if checker.Has(role, "exam:view-full") {
			e, err = store.GetExamFull(r.Context(), id)
		} else {
			e, err = store.GetExam(r.Context(), id)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// GET /exams?class_id=...&published=1
func ListExamsHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := rbac.RoleFromContext(r.Context())
		opts := exam.ListOpts{
			ClassID: r.URL.Query().Get("class_id"),
			Limit:   parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset:  parseIntDefault(r.URL.Query().Get("offset"), 0),
		}
		// Students only ever see published exams.
		if role == "student" || r.URL.Query().Get("published") == "1" {
			opts.PublishedOnly = true
		}
		list, err := store.ListExams(r.Context(), opts)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
