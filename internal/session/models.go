package session

import (
	"fmt"

	"github.com/edupoint/portal/internal/exam"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
	StatusGraded     Status = "graded"
)

type Method string

const (
	MethodManual     Method = "manual"
	MethodAutoSubmit Method = "auto_submit"
)

// Session is one student's attempt at one exam. At most one session per
// (exam, student) may have IsCompleted=false; the storage layer enforces it.
type Session struct {
	ID        string `json:"id"`
	ExamID    string `json:"exam_id"`
	StudentID string `json:"student_id"`
	Status    Status `json:"status"`

	IsCompleted bool   `json:"is_completed"`
	StartedAt   int64  `json:"started_at"`
	SubmittedAt *int64 `json:"submitted_at,omitempty"`

	// Deadline is the unix second after which the session auto-submits;
	// zero for untimed exams. TimeRemaining is recomputed server-side,
	// never trusted from the client.
	Deadline      int64  `json:"deadline,omitempty"`
	TimeRemaining *int64 `json:"time_remaining,omitempty"`

	SubmissionMethod Method  `json:"submission_method,omitempty"`
	Score            float64 `json:"score"`
	MaxScore         float64 `json:"max_score"`
}

type Answer struct {
	ID         string `json:"id"`
	SessionID  string `json:"session_id"`
	QuestionID string `json:"question_id"`

	OptionID string `json:"option_id,omitempty"`
	Content  string `json:"content,omitempty"`

	IsCorrect      *bool    `json:"is_correct,omitempty"`
	PointsEarned   *float64 `json:"points_earned,omitempty"`
	AutoScored     bool     `json:"auto_scored"`
	ManualOverride bool     `json:"manual_override"`
	Feedback       string   `json:"feedback,omitempty"`
	UpdatedAt      int64    `json:"updated_at"`
}

// AnswerPayload is the closed intake type: a choice question carries a
// selected option, a textual question carries text, never both.
type AnswerPayload struct {
	SelectedOptionID string `json:"selected_option_id,omitempty"`
	Text             string `json:"text,omitempty"`
}

// Validate checks the payload against the question's type.
func (p AnswerPayload) Validate(q exam.Question) error {
	switch {
	case q.Type.IsChoice():
		if p.Text != "" {
			return fmt.Errorf("%w: %s question cannot carry free text", ErrInvalidPayload, q.Type)
		}
		if p.SelectedOptionID == "" {
			return fmt.Errorf("%w: option selection required", ErrInvalidPayload)
		}
		for _, o := range q.Options {
			if o.ID == p.SelectedOptionID {
				return nil
			}
		}
		return fmt.Errorf("%w: option %s not part of question %s", ErrInvalidPayload, p.SelectedOptionID, q.ID)
	case q.Type.IsTextual():
		if p.SelectedOptionID != "" {
			return fmt.Errorf("%w: %s question cannot carry an option selection", ErrInvalidPayload, q.Type)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown question type %q", ErrInvalidPayload, q.Type)
	}
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskSkipped    TaskStatus = "skipped"
)

// Task is one unit of manual-grading work for one answer. Exactly one task
// exists per answer; creation is idempotent.
type Task struct {
	ID         string `json:"id"`
	AnswerID   string `json:"answer_id"`
	SessionID  string `json:"session_id"`
	QuestionID string `json:"question_id"`

	Status            TaskStatus `json:"status"`
	Priority          int        `json:"priority"`
	AssignedTeacherID string     `json:"assigned_teacher_id,omitempty"`

	CreatedAt   int64  `json:"created_at"`
	AssignedAt  *int64 `json:"assigned_at,omitempty"`
	StartedAt   *int64 `json:"started_at,omitempty"`
	CompletedAt *int64 `json:"completed_at,omitempty"`
}
