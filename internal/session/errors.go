package session

import "errors"

var (
	ErrNotFound = errors.New("session not found")

	// ErrSessionConflict: a live session already exists for this
	// (exam, student). Start returns the existing session alongside it so
	// callers can offer "resume" instead of a bare failure.
	ErrSessionConflict = errors.New("session already active")

	// ErrRetakeNotAllowed: a prior completed session exists and the exam
	// forbids retakes. Distinct from ErrSessionConflict.
	ErrRetakeNotAllowed = errors.New("retakes not allowed for this exam")

	ErrNotOwner      = errors.New("session belongs to another student")
	ErrNotInProgress = errors.New("session is no longer in progress")

	// ErrInvalidQuestionRef: the answer targets a question outside the
	// session's exam. Rejected, never silently dropped.
	ErrInvalidQuestionRef = errors.New("question does not belong to this exam")
	ErrInvalidPayload     = errors.New("invalid answer payload")

	ErrTaskNotFound       = errors.New("grading task not found")
	ErrTaskAlreadyClaimed = errors.New("grading task already claimed")
	ErrTaskNotClaimed     = errors.New("grading task not claimed by caller")
	ErrTaskNotCompleted   = errors.New("grading task not completed")
)
