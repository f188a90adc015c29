package eligibility

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edupoint/portal/internal/audit"
	"github.com/edupoint/portal/internal/exam"
)

// ErrNotEligible is the root of every denial. Handlers match on it with
// errors.Is; the concrete *Denial carries the reason for the audit trail.
var ErrNotEligible = errors.New("not eligible")

type Reason string

const (
	ReasonExamNotFound  Reason = "exam_not_found"
	ReasonUnpublished   Reason = "exam_unpublished"
	ReasonBeforeWindow  Reason = "before_time_window"
	ReasonAfterWindow   Reason = "after_time_window"
	ReasonClassMismatch Reason = "class_mismatch"
)

type Denial struct {
	Reason Reason
	Detail string
}

func (d *Denial) Error() string {
	if d.Detail == "" {
		return fmt.Sprintf("not eligible: %s", d.Reason)
	}
	return fmt.Sprintf("not eligible: %s (%s)", d.Reason, d.Detail)
}

func (d *Denial) Unwrap() error { return ErrNotEligible }

// ExamSource provides the full exam record. The gate only reads metadata.
type ExamSource interface {
	GetExamFull(ctx context.Context, id string) (exam.Exam, error)
}

// EnrollmentSource resolves a student's enrolled class.
type EnrollmentSource interface {
	ClassOf(ctx context.Context, studentID string) (string, error)
}

// Gate authorizes a student's access to an exam. It is stateless and must be
// re-run on every session-affecting call: a window can close mid-attempt.
type Gate struct {
	Exams       ExamSource
	Enrollments EnrollmentSource
	Audit       audit.Sink
	Now         func() time.Time
}

func New(exams ExamSource, enrollments EnrollmentSource, sink audit.Sink) *Gate {
	return &Gate{Exams: exams, Enrollments: enrollments, Audit: sink, Now: time.Now}
}

// Check validates, in order: exam existence, publication, the global time
// window, and class membership. On denial the specific reason is written to
// the audit sink and a *Denial wrapping ErrNotEligible is returned.
func (g *Gate) Check(ctx context.Context, studentID, examID, action string) (exam.Exam, error) {
	e, err := g.Exams.GetExamFull(ctx, examID)
	if errors.Is(err, exam.ErrNotFound) {
		return exam.Exam{}, g.deny(ctx, studentID, examID, action, &Denial{Reason: ReasonExamNotFound})
	}
	if err != nil {
		return exam.Exam{}, err
	}

	if !e.IsPublished {
		return exam.Exam{}, g.deny(ctx, studentID, examID, action, &Denial{Reason: ReasonUnpublished})
	}

	if e.TimerMode() == exam.TimerGlobal {
		now := g.Now().Unix()
		if now < e.StartTime {
			return exam.Exam{}, g.deny(ctx, studentID, examID, action, &Denial{
				Reason: ReasonBeforeWindow,
				Detail: fmt.Sprintf("opens at %d", e.StartTime),
			})
		}
		if now > e.EndTime {
			return exam.Exam{}, g.deny(ctx, studentID, examID, action, &Denial{
				Reason: ReasonAfterWindow,
				Detail: fmt.Sprintf("closed at %d", e.EndTime),
			})
		}
	}

	classID, err := g.Enrollments.ClassOf(ctx, studentID)
	if err != nil {
		return exam.Exam{}, err
	}
	if classID != e.ClassID {
		return exam.Exam{}, g.deny(ctx, studentID, examID, action, &Denial{
			Reason: ReasonClassMismatch,
			Detail: fmt.Sprintf("enrolled in %q, exam is for %q", classID, e.ClassID),
		})
	}

	return e, nil
}

func (g *Gate) deny(ctx context.Context, studentID, examID, action string, d *Denial) error {
	if g.Audit != nil {
		g.Audit.UnauthorizedAccess(ctx, studentID, action, "exam:"+examID, string(d.Reason))
	}
	return d
}
