package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/edupoint/portal/internal/events"
)

type TaskListOpts struct {
	Status     TaskStatus
	AssignedTo string
	SessionID  string
	Limit      int
	Offset     int
}

// ClaimTask moves a claimable task to in_progress for one teacher. The
// conditional UPDATE is the arbiter: when two teachers race, one wins and
// the other gets ErrTaskAlreadyClaimed to refresh their view.
func (s *SQLStore) ClaimTask(ctx context.Context, teacherID, taskID string) (Task, error) {
	now := s.now().Unix()
	res, err := s.db.ExecContext(ctx, `UPDATE grading_tasks SET
		status=$1, assigned_teacher_id=$2, assigned_at=$3, started_at=$3
		WHERE id=$4 AND status IN ($5,$6)`,
		string(TaskInProgress), teacherID, now, taskID,
		string(TaskPending), string(TaskSkipped))
	if err != nil {
		return Task{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Task{}, err
	}
	if n == 0 {
		if _, err := s.GetTask(ctx, taskID); err != nil {
			return Task{}, err
		}
		return Task{}, ErrTaskAlreadyClaimed
	}

	t, err := s.GetTask(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	s.pub.Publish(ctx, events.TypeTaskClaimed, t.ID, t)
	return t, nil
}

// CompleteTask writes the teacher's score back onto the answer, closes the
// task, and finalizes the session when it was the last open task. Points are
// clamped to the question's maximum.
func (s *SQLStore) CompleteTask(ctx context.Context, teacherID, taskID string, points float64, feedback string) (Task, error) {
	t, err := s.GetTask(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if t.Status != TaskInProgress || t.AssignedTeacherID != teacherID {
		return Task{}, ErrTaskNotClaimed
	}

	var maxPts float64
	err = s.db.QueryRowContext(ctx,
		`SELECT points FROM questions WHERE id=$1`, t.QuestionID).Scan(&maxPts)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Task{}, err
	}
	if points < 0 {
		points = 0
	}
	if maxPts > 0 && points > maxPts {
		points = maxPts
	}

	var prior sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT points_earned FROM answers WHERE id=$1`, t.AnswerID).Scan(&prior)
	if err != nil {
		return Task{}, err
	}

	var correct sql.NullBool
	switch {
	case maxPts > 0 && points >= maxPts:
		correct = sql.NullBool{Bool: true, Valid: true}
	case points == 0:
		correct = sql.NullBool{Bool: false, Valid: true}
	}

	now := s.now().Unix()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE grading_tasks SET
		status=$1, completed_at=$2
		WHERE id=$3 AND status=$4 AND assigned_teacher_id=$5`,
		string(TaskCompleted), now, taskID, string(TaskInProgress), teacherID)
	if err != nil {
		return Task{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return Task{}, err
	} else if n == 0 {
		return Task{}, ErrTaskNotClaimed
	}

	_, err = tx.ExecContext(ctx, `UPDATE answers SET
		points_earned=$1, is_correct=$2, feedback=$3,
		auto_scored=FALSE, manual_override=$4
		WHERE id=$5`,
		points, correct, feedback, prior.Valid, t.AnswerID)
	if err != nil {
		return Task{}, err
	}

	sess, err := scanSession(tx.QueryRowContext(ctx,
		`SELECT `+sessionCols+` FROM exam_sessions WHERE id=$1`, t.SessionID))
	if err != nil {
		return Task{}, err
	}
	graded, err := s.refreshScore(ctx, tx, t.SessionID, sess.MaxScore)
	if err != nil {
		return Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return Task{}, err
	}

	out, err := s.GetTask(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	s.pub.Publish(ctx, events.TypeTaskCompleted, out.ID, out)
	if graded {
		if final, err := s.GetSession(ctx, t.SessionID); err == nil {
			s.pub.Publish(ctx, events.TypeSessionGraded, final.ID, final)
		}
	}
	return out, nil
}

// SkipTask releases a claimed task back into the pool. Skipped tasks stay
// open and claimable by any teacher.
func (s *SQLStore) SkipTask(ctx context.Context, teacherID, taskID string) (Task, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE grading_tasks SET
		status=$1, assigned_teacher_id='', assigned_at=NULL, started_at=NULL
		WHERE id=$2 AND status=$3 AND assigned_teacher_id=$4`,
		string(TaskSkipped), taskID, string(TaskInProgress), teacherID)
	if err != nil {
		return Task{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return Task{}, err
	} else if n == 0 {
		if _, err := s.GetTask(ctx, taskID); err != nil {
			return Task{}, err
		}
		return Task{}, ErrTaskNotClaimed
	}
	return s.GetTask(ctx, taskID)
}

// ReopenTask puts a completed task back in the queue for a re-grade. The
// next completion overwrites the previous score and marks the answer as a
// manual override. Reopening does not demote a graded session; the re-grade
// adjusts the recorded score in place.
func (s *SQLStore) ReopenTask(ctx context.Context, taskID string) (Task, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE grading_tasks SET
		status=$1, assigned_teacher_id='', assigned_at=NULL, started_at=NULL, completed_at=NULL
		WHERE id=$2 AND status=$3`,
		string(TaskPending), taskID, string(TaskCompleted))
	if err != nil {
		return Task{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return Task{}, err
	} else if n == 0 {
		if _, err := s.GetTask(ctx, taskID); err != nil {
			return Task{}, err
		}
		return Task{}, ErrTaskNotCompleted
	}
	return s.GetTask(ctx, taskID)
}

// SetTaskPriority escalates a task in the queue; higher sorts first.
func (s *SQLStore) SetTaskPriority(ctx context.Context, taskID string, priority int) (Task, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE grading_tasks SET priority=$1 WHERE id=$2`, priority, taskID)
	if err != nil {
		return Task{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return Task{}, err
	} else if n == 0 {
		return Task{}, ErrTaskNotFound
	}
	return s.GetTask(ctx, taskID)
}

func (s *SQLStore) GetTask(ctx context.Context, id string) (Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx,
		`SELECT `+taskCols+` FROM grading_tasks WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrTaskNotFound
	}
	return t, err
}

// ListTasks returns the queue ordered by priority, then FIFO by creation.
func (s *SQLStore) ListTasks(ctx context.Context, opts TaskListOpts) ([]Task, error) {
	q := `SELECT ` + taskCols + ` FROM grading_tasks WHERE 1=1`
	args := []interface{}{}
	if opts.Status != "" {
		args = append(args, string(opts.Status))
		q += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if opts.AssignedTo != "" {
		args = append(args, opts.AssignedTo)
		q += fmt.Sprintf(" AND assigned_teacher_id=$%d", len(args))
	}
	if opts.SessionID != "" {
		args = append(args, opts.SessionID)
		q += fmt.Sprintf(" AND session_id=$%d", len(args))
	}
	q += " ORDER BY priority DESC, created_at ASC"
	if opts.Limit <= 0 || opts.Limit > 200 {
		opts.Limit = 50
	}
	args = append(args, opts.Limit)
	q += fmt.Sprintf(" LIMIT $%d", len(args))
	args = append(args, opts.Offset)
	q += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const taskCols = `id, answer_id, session_id, question_id, status, priority,
	assigned_teacher_id, created_at, assigned_at, started_at, completed_at`

func scanTask(row interface{ Scan(dest ...interface{}) error }) (Task, error) {
	var t Task
	var status string
	var assignedAt, startedAt, completedAt sql.NullInt64
	err := row.Scan(&t.ID, &t.AnswerID, &t.SessionID, &t.QuestionID, &status,
		&t.Priority, &t.AssignedTeacherID, &t.CreatedAt,
		&assignedAt, &startedAt, &completedAt)
	if err != nil {
		return Task{}, err
	}
	t.Status = TaskStatus(status)
	if assignedAt.Valid {
		t.AssignedAt = &assignedAt.Int64
	}
	if startedAt.Valid {
		t.StartedAt = &startedAt.Int64
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Int64
	}
	return t, nil
}
