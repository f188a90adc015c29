package exam

import (
	"context"
	"errors"
)

var (
	ErrNotFound    = errors.New("exam not found")
	ErrInvalidExam = errors.New("invalid exam")
	// ErrPublished is returned when a write would mutate the question set
	// of an already-published exam. Published question banks are immutable.
	ErrPublished = errors.New("exam already published")
)

type ListOpts struct {
	ClassID       string
	PublishedOnly bool
	Limit         int
	Offset        int
}

type Summary struct {
	ID          string   `json:"id"`
	ClassID     string   `json:"class_id"`
	SubjectID   string   `json:"subject_id"`
	Title       string   `json:"title"`
	Type        ExamType `json:"type"`
	TotalMarks  float64  `json:"total_marks"`
	IsPublished bool     `json:"is_published"`
	StartTime   int64    `json:"start_time,omitempty"`
	EndTime     int64    `json:"end_time,omitempty"`
}

// Store is the question-bank repository. Reads are safe for unlimited
// concurrency once an exam is published.
type Store interface {
	// PutExam inserts or updates an exam with its question set. Question
	// mutation is rejected once the exam is published.
	PutExam(ctx context.Context, e Exam) error

	// GetExam returns the student-safe view (no answer keys).
	GetExam(ctx context.Context, id string) (Exam, error)

	// GetExamFull returns the exam with answer keys, for grading and
	// teacher views.
	GetExamFull(ctx context.Context, id string) (Exam, error)

	// Publish flips the publication flag. Idempotent.
	Publish(ctx context.Context, id string) error

	ListExams(ctx context.Context, opts ListOpts) ([]Summary, error)
}
