package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/edupoint/portal/internal/eligibility"
	"github.com/edupoint/portal/internal/exam"
	"github.com/edupoint/portal/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errBody struct {
	Error string `json:"error"`
}

// writeError maps the core error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, eligibility.ErrNotEligible),
		errors.Is(err, session.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, exam.ErrNotFound),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrTaskNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrRetakeNotAllowed),
		errors.Is(err, session.ErrNotInProgress),
		errors.Is(err, session.ErrTaskAlreadyClaimed),
		errors.Is(err, session.ErrTaskNotClaimed),
		errors.Is(err, session.ErrTaskNotCompleted),
		errors.Is(err, exam.ErrPublished):
		status = http.StatusConflict
	case errors.Is(err, session.ErrInvalidQuestionRef):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrInvalidPayload),
		errors.Is(err, exam.ErrInvalidExam):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errBody{Error: err.Error()})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
