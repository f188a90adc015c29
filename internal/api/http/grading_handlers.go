package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edupoint/portal/internal/rbac"
	"github.com/edupoint/portal/internal/session"
)

// GET /grading/tasks?status=pending&assigned_to=me&session_id=...
func ListGradingTasksHandler(store *session.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := session.TaskListOpts{
			Status:     session.TaskStatus(r.URL.Query().Get("status")),
			AssignedTo: r.URL.Query().Get("assigned_to"),
			SessionID:  r.URL.Query().Get("session_id"),
			Limit:      parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset:     parseIntDefault(r.URL.Query().Get("offset"), 0),
		}
		if opts.AssignedTo == "me" {
			opts.AssignedTo = rbac.SubjectFromContext(r.Context())
		}
		list, err := store.ListTasks(r.Context(), opts)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// POST /grading/tasks/{taskID}/claim
func ClaimGradingTaskHandler(store *session.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskID")
		teacherID := rbac.SubjectFromContext(r.Context())

		t, err := store.ClaimTask(r.Context(), teacherID, taskID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

type completeTaskRequest struct {
	PointsEarned float64 `json:"points_earned"`
	Feedback     string  `json:"feedback,omitempty"`
}

// POST /grading/tasks/{taskID}/complete
func CompleteGradingTaskHandler(store *session.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskID")
		teacherID := rbac.SubjectFromContext(r.Context())

		var req completeTaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		t, err := store.CompleteTask(r.Context(), teacherID, taskID, req.PointsEarned, req.Feedback)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// POST /grading/tasks/{taskID}/skip
func SkipGradingTaskHandler(store *session.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskID")
		teacherID := rbac.SubjectFromContext(r.Context())

		t, err := store.SkipTask(r.Context(), teacherID, taskID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// POST /grading/tasks/{taskID}/reopen — send a completed task back for a
// re-grade.
func ReopenGradingTaskHandler(store *session.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskID")

		t, err := store.ReopenTask(r.Context(), taskID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

type priorityRequest struct {
	Priority int `json:"priority"`
}

// POST /grading/tasks/{taskID}/priority — escalate a task in the queue.
func SetTaskPriorityHandler(store *session.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskID")

		var req priorityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		t, err := store.SetTaskPriority(r.Context(), taskID, req.Priority)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}
