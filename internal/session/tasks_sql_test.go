package session

import (
	"context"
	"errors"
	"testing"
)

// submitWithEssay drives a session to SUBMITTED with one pending essay task.
func submitWithEssay(t *testing.T, st *SQLStore, examID, studentID string) (Session, Task) {
	t.Helper()
	ctx := context.Background()

	s, err := st.Start(ctx, studentID, examID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := st.SaveAnswer(ctx, studentID, s.ID, "q-mc", AnswerPayload{SelectedOptionID: "opt-right"}); err != nil {
		t.Fatalf("save choice: %v", err)
	}
	if _, err := st.SaveAnswer(ctx, studentID, s.ID, "q-essay", AnswerPayload{Text: "an essay"}); err != nil {
		t.Fatalf("save essay: %v", err)
	}
	out, err := st.Submit(ctx, studentID, s.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	tasks, err := st.ListTasks(ctx, TaskListOpts{SessionID: s.ID})
	if err != nil || len(tasks) != 1 {
		t.Fatalf("tasks = %v (%v), want exactly one", tasks, err)
	}
	return out, tasks[0]
}

func TestManualGradingFlow(t *testing.T) {
	ctx := context.Background()
	st, exams := newTestStore(t)
	seedExam(t, exams, nil)
	fixedNow(st, 1_000_000)

	sess, task := submitWithEssay(t, st, "ex-1", "stu-1")
	if sess.Score != 60 {
		t.Fatalf("pre-grading score = %v, want 60", sess.Score)
	}

	claimed, err := st.ClaimTask(ctx, "teacher-1", task.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != TaskInProgress || claimed.AssignedTeacherID != "teacher-1" {
		t.Fatalf("claimed task = %+v", claimed)
	}

	// A second teacher loses the race.
	if _, err := st.ClaimTask(ctx, "teacher-2", task.ID); !errors.Is(err, ErrTaskAlreadyClaimed) {
		t.Fatalf("double claim err = %v, want ErrTaskAlreadyClaimed", err)
	}

	// Only the assignee may complete.
	if _, err := st.CompleteTask(ctx, "teacher-2", task.ID, 30, ""); !errors.Is(err, ErrTaskNotClaimed) {
		t.Fatalf("foreign complete err = %v, want ErrTaskNotClaimed", err)
	}

	done, err := st.CompleteTask(ctx, "teacher-1", task.ID, 30, "decent argument")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != TaskCompleted || done.CompletedAt == nil {
		t.Fatalf("completed task = %+v", done)
	}

	final, err := st.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if final.Status != StatusGraded {
		t.Fatalf("status = %s, want graded after last task", final.Status)
	}
	if final.Score != 90 {
		t.Fatalf("final score = %v, want 60 auto + 30 manual", final.Score)
	}

	answers, _ := st.ListAnswers(ctx, sess.ID)
	for _, a := range answers {
		if a.QuestionID != "q-essay" {
			continue
		}
		if a.PointsEarned == nil || *a.PointsEarned != 30 {
			t.Fatalf("essay points = %v, want 30", a.PointsEarned)
		}
		if a.IsCorrect != nil {
			t.Fatalf("partial essay score must leave is_correct unset")
		}
		if a.AutoScored {
			t.Fatalf("teacher-graded answer flagged auto_scored")
		}
		if a.Feedback != "decent argument" {
			t.Fatalf("feedback = %q", a.Feedback)
		}
	}
}

func TestSkipReleasesTask(t *testing.T) {
	ctx := context.Background()
	st, exams := newTestStore(t)
	seedExam(t, exams, nil)
	fixedNow(st, 1_000_000)

	sess, task := submitWithEssay(t, st, "ex-1", "stu-1")

	if _, err := st.ClaimTask(ctx, "teacher-1", task.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	skipped, err := st.SkipTask(ctx, "teacher-1", task.ID)
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if skipped.Status != TaskSkipped || skipped.AssignedTeacherID != "" {
		t.Fatalf("skipped task = %+v, want released", skipped)
	}

	// A skipped task still blocks finalization.
	s, _ := st.GetSession(ctx, sess.ID)
	if s.Status != StatusSubmitted {
		t.Fatalf("session finalized with an open skipped task: %s", s.Status)
	}

	// Anyone can pick it back up.
	if _, err := st.ClaimTask(ctx, "teacher-2", task.ID); err != nil {
		t.Fatalf("reclaim after skip: %v", err)
	}
	if _, err := st.CompleteTask(ctx, "teacher-2", task.ID, 40, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	s, _ = st.GetSession(ctx, sess.ID)
	if s.Status != StatusGraded || s.Score != 100 {
		t.Fatalf("session = %+v, want graded at 100", s)
	}
}

func TestCompleteClampsToQuestionPoints(t *testing.T) {
	ctx := context.Background()
	st, exams := newTestStore(t)
	seedExam(t, exams, nil)
	fixedNow(st, 1_000_000)

	sess, task := submitWithEssay(t, st, "ex-1", "stu-1")

	if _, err := st.ClaimTask(ctx, "teacher-1", task.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := st.CompleteTask(ctx, "teacher-1", task.ID, 500, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}

	final, _ := st.GetSession(ctx, sess.ID)
	if final.Score != 100 {
		t.Fatalf("score = %v, want clamped to max", final.Score)
	}
	answers, _ := st.ListAnswers(ctx, sess.ID)
	for _, a := range answers {
		if a.QuestionID == "q-essay" {
			if a.PointsEarned == nil || *a.PointsEarned != 40 {
				t.Fatalf("essay points = %v, want clamped to 40", a.PointsEarned)
			}
			if a.IsCorrect == nil || !*a.IsCorrect {
				t.Fatalf("full marks should set is_correct")
			}
		}
	}
}

func TestReopenTaskRegrade(t *testing.T) {
	ctx := context.Background()
	st, exams := newTestStore(t)
	seedExam(t, exams, nil)
	fixedNow(st, 1_000_000)

	sess, task := submitWithEssay(t, st, "ex-1", "stu-1")

	if _, err := st.ClaimTask(ctx, "teacher-1", task.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := st.CompleteTask(ctx, "teacher-1", task.ID, 30, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	graded, _ := st.GetSession(ctx, sess.ID)
	if graded.Status != StatusGraded || graded.Score != 90 {
		t.Fatalf("first pass = %+v, want graded at 90", graded)
	}

	reopened, err := st.ReopenTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Status != TaskPending || reopened.AssignedTeacherID != "" || reopened.CompletedAt != nil {
		t.Fatalf("reopened task = %+v, want cleared pending", reopened)
	}

	// Only completed tasks can be reopened.
	if _, err := st.ReopenTask(ctx, task.ID); !errors.Is(err, ErrTaskNotCompleted) {
		t.Fatalf("reopen pending err = %v, want ErrTaskNotCompleted", err)
	}
	if _, err := st.ReopenTask(ctx, "no-such-task"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("reopen missing err = %v, want ErrTaskNotFound", err)
	}

	// The re-grade overwrites the prior score and flags the override.
	if _, err := st.ClaimTask(ctx, "teacher-2", task.ID); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if _, err := st.CompleteTask(ctx, "teacher-2", task.ID, 40, "regraded up"); err != nil {
		t.Fatalf("re-complete: %v", err)
	}

	final, _ := st.GetSession(ctx, sess.ID)
	if final.Status != StatusGraded || final.Score != 100 {
		t.Fatalf("after re-grade = %+v, want graded at 100", final)
	}
	answers, _ := st.ListAnswers(ctx, sess.ID)
	for _, a := range answers {
		if a.QuestionID != "q-essay" {
			continue
		}
		if a.PointsEarned == nil || *a.PointsEarned != 40 {
			t.Fatalf("regraded points = %v, want 40", a.PointsEarned)
		}
		if !a.ManualOverride {
			t.Fatalf("second grading pass did not flag manual_override")
		}
		if a.Feedback != "regraded up" {
			t.Fatalf("feedback = %q", a.Feedback)
		}
	}
}

func TestTaskPriorityOrdersQueue(t *testing.T) {
	ctx := context.Background()
	st, exams := newTestStore(t)
	seedExam(t, exams, nil)
	fixedNow(st, 1_000_000)

	_, first := submitWithEssay(t, st, "ex-1", "stu-1")
	_, second := submitWithEssay(t, st, "ex-1", "stu-2")

	if _, err := st.SetTaskPriority(ctx, second.ID, 10); err != nil {
		t.Fatalf("set priority: %v", err)
	}
	queue, err := st.ListTasks(ctx, TaskListOpts{Status: TaskPending})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(queue) != 2 {
		t.Fatalf("queue = %d tasks, want 2", len(queue))
	}
	if queue[0].ID != second.ID || queue[1].ID != first.ID {
		t.Fatalf("escalated task not first: %v", []string{queue[0].ID, queue[1].ID})
	}

	if _, err := st.SetTaskPriority(ctx, "no-such-task", 1); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("missing task err = %v, want ErrTaskNotFound", err)
	}
}
