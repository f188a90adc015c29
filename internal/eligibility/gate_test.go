package eligibility

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/edupoint/portal/internal/exam"
)

type fakeExams map[string]exam.Exam

func (f fakeExams) GetExamFull(_ context.Context, id string) (exam.Exam, error) {
	e, ok := f[id]
	if !ok {
		return exam.Exam{}, exam.ErrNotFound
	}
	return e, nil
}

type fakeEnrollments map[string]string

func (f fakeEnrollments) ClassOf(_ context.Context, studentID string) (string, error) {
	return f[studentID], nil
}

type recordingSink struct {
	userID, action, resource, reason string
	calls                            int
}

func (r *recordingSink) UnauthorizedAccess(_ context.Context, userID, action, resource, reason string) {
	r.userID, r.action, r.resource, r.reason = userID, action, resource, reason
	r.calls++
}

func newGate(sink *recordingSink, nowSec int64) *Gate {
	exams := fakeExams{
		"published": {
			ID: "published", ClassID: "class-a", IsPublished: true,
		},
		"draft": {
			ID: "draft", ClassID: "class-a", IsPublished: false,
		},
		"windowed": {
			ID: "windowed", ClassID: "class-a", IsPublished: true,
			StartTime: 1000, EndTime: 2000,
		},
	}
	enrollments := fakeEnrollments{"stu-a": "class-a", "stu-b": "class-b"}
	g := New(exams, enrollments, sink)
	g.Now = func() time.Time { return time.Unix(nowSec, 0) }
	return g
}

func TestGateCheck(t *testing.T) {
	tests := []struct {
		name       string
		studentID  string
		examID     string
		now        int64
		wantReason Reason // empty means allowed
	}{
		{"allowed", "stu-a", "published", 1500, ""},
		{"missing exam", "stu-a", "ghost", 1500, ReasonExamNotFound},
		{"unpublished", "stu-a", "draft", 1500, ReasonUnpublished},
		{"before window", "stu-a", "windowed", 999, ReasonBeforeWindow},
		{"window opens inclusive", "stu-a", "windowed", 1000, ""},
		{"inside window", "stu-a", "windowed", 1500, ""},
		{"window closes inclusive", "stu-a", "windowed", 2000, ""},
		{"after window", "stu-a", "windowed", 2001, ReasonAfterWindow},
		{"wrong class", "stu-b", "published", 1500, ReasonClassMismatch},
		{"unknown student", "stu-?", "published", 1500, ReasonClassMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sink := &recordingSink{}
			g := newGate(sink, tc.now)

			e, err := g.Check(context.Background(), tc.studentID, tc.examID, "session:start")

			if tc.wantReason == "" {
				if err != nil {
					t.Fatalf("check: %v", err)
				}
				if e.ID != tc.examID {
					t.Fatalf("returned exam %q", e.ID)
				}
				if sink.calls != 0 {
					t.Fatalf("allowed access was audited")
				}
				return
			}

			if !errors.Is(err, ErrNotEligible) {
				t.Fatalf("err = %v, want ErrNotEligible", err)
			}
			var d *Denial
			if !errors.As(err, &d) {
				t.Fatalf("err %T does not carry a denial", err)
			}
			if d.Reason != tc.wantReason {
				t.Fatalf("reason = %s, want %s", d.Reason, tc.wantReason)
			}
			if sink.calls != 1 || sink.reason != string(tc.wantReason) {
				t.Fatalf("audit = %+v, want one entry with the denial reason", sink)
			}
			if sink.userID != tc.studentID || sink.resource != "exam:"+tc.examID {
				t.Fatalf("audit identity = %s/%s", sink.userID, sink.resource)
			}
		})
	}
}

// Unpublished beats the time window: a draft whose window has passed is
// reported as unpublished, not expired.
func TestGateDenialOrder(t *testing.T) {
	sink := &recordingSink{}
	exams := fakeExams{
		"draft-windowed": {
			ID: "draft-windowed", ClassID: "class-a", IsPublished: false,
			StartTime: 1000, EndTime: 2000,
		},
	}
	g := New(exams, fakeEnrollments{"stu-a": "class-a"}, sink)
	g.Now = func() time.Time { return time.Unix(5000, 0) }

	_, err := g.Check(context.Background(), "stu-a", "draft-windowed", "session:start")
	var d *Denial
	if !errors.As(err, &d) || d.Reason != ReasonUnpublished {
		t.Fatalf("got %v, want unpublished denial", err)
	}
}
