package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/edupoint/portal/internal/events"
	"github.com/edupoint/portal/internal/exam"
	"github.com/edupoint/portal/internal/grading"
)

// Gate authorizes a student's access to an exam before any session-affecting
// operation. Satisfied by *eligibility.Gate.
type Gate interface {
	Check(ctx context.Context, studentID, examID, action string) (exam.Exam, error)
}

// querier abstracts *sql.DB and *sql.Tx for helpers shared by both.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type SQLStore struct {
	db     *sql.DB
	exams  exam.Store
	gate   Gate
	grader grading.Grader
	pub    events.Publisher
	now    func() time.Time
}

func NewSQLStore(db *sql.DB, exams exam.Store, gate Gate, grader grading.Grader, pub events.Publisher) *SQLStore {
	return &SQLStore{db: db, exams: exams, gate: gate, grader: grader, pub: pub, now: time.Now}
}

// Start creates the student's session, or surfaces the already-active one.
// Atomicity rests on the partial unique index over live sessions: two
// concurrent starts race on the INSERT and exactly one wins; the loser reads
// the winner's row and returns it with ErrSessionConflict.
func (s *SQLStore) Start(ctx context.Context, studentID, examID string) (Session, error) {
	e, err := s.gate.Check(ctx, studentID, examID, "session:start")
	if err != nil {
		return Session{}, err
	}

	if !e.AllowRetakes {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM exam_sessions WHERE exam_id=$1 AND student_id=$2 AND is_completed=TRUE`,
			examID, studentID).Scan(&n)
		if err != nil {
			return Session{}, err
		}
		if n > 0 {
			return Session{}, ErrRetakeNotAllowed
		}
	}

	now := s.now().Unix()
	var deadline int64
	switch e.TimerMode() {
	case exam.TimerGlobal:
		deadline = e.EndTime
	case exam.TimerIndividual:
		deadline = now + int64(e.TimeLimitMin)*60
	}

	sess := Session{
		ID:        uuid.NewString(),
		ExamID:    examID,
		StudentID: studentID,
		Status:    StatusInProgress,
		StartedAt: now,
		Deadline:  deadline,
		MaxScore:  e.MaxScore(),
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO exam_sessions
		(id, exam_id, student_id, status, is_completed, started_at, deadline, max_score)
		VALUES ($1,$2,$3,$4,FALSE,$5,$6,$7)`,
		sess.ID, sess.ExamID, sess.StudentID, string(sess.Status),
		sess.StartedAt, sess.Deadline, sess.MaxScore)
	if isUniqueViolation(err) {
		existing, gerr := s.activeSession(ctx, examID, studentID)
		if gerr != nil {
			return Session{}, gerr
		}
		return existing, ErrSessionConflict
	}
	if err != nil {
		return Session{}, err
	}

	s.pub.Publish(ctx, events.TypeSessionStarted, sess.ID, sess)
	return s.withRemaining(sess), nil
}

func (s *SQLStore) GetSession(ctx context.Context, id string) (Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionCols+` FROM exam_sessions WHERE id=$1`, id))
	if err != nil {
		return Session{}, err
	}
	return s.withRemaining(sess), nil
}

// GetSessionForStudent is GetSession plus an ownership check.
func (s *SQLStore) GetSessionForStudent(ctx context.Context, studentID, id string) (Session, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess.StudentID != studentID {
		return Session{}, ErrNotOwner
	}
	return sess, nil
}

// SaveAnswer upserts one answer keyed by (session, question); last write wins
// while the session is open. No scoring happens here. Remaining time is
// recomputed server-side on every call; an expired session is auto-submitted
// and the save rejected.
func (s *SQLStore) SaveAnswer(ctx context.Context, studentID, sessionID, questionID string, p AnswerPayload) (Answer, error) {
	sess, err := s.GetSessionForStudent(ctx, studentID, sessionID)
	if err != nil {
		return Answer{}, err
	}
	if s.expired(sess) {
		if _, err := s.submit(ctx, sessionID, MethodAutoSubmit); err != nil {
			return Answer{}, err
		}
		return Answer{}, fmt.Errorf("%w: time expired", ErrNotInProgress)
	}
	if sess.Status != StatusInProgress {
		return Answer{}, ErrNotInProgress
	}
	if _, err := s.gate.Check(ctx, studentID, sess.ExamID, "session:answer"); err != nil {
		return Answer{}, err
	}

	e, err := s.exams.GetExamFull(ctx, sess.ExamID)
	if err != nil {
		return Answer{}, err
	}
	q, ok := e.QuestionByID(questionID)
	if !ok {
		return Answer{}, fmt.Errorf("%w: question %s", ErrInvalidQuestionRef, questionID)
	}
	if err := p.Validate(q); err != nil {
		return Answer{}, err
	}

	now := s.now().Unix()
	_, err = s.db.ExecContext(ctx, `INSERT INTO answers
		(id, session_id, question_id, option_id, content, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (session_id, question_id) DO UPDATE SET
		 option_id=EXCLUDED.option_id, content=EXCLUDED.content,
		 updated_at=EXCLUDED.updated_at`,
		uuid.NewString(), sessionID, questionID, p.SelectedOptionID, p.Text, now)
	if err != nil {
		return Answer{}, err
	}

	var remaining sql.NullInt64
	if sess.Deadline > 0 {
		remaining = sql.NullInt64{Int64: maxInt64(0, sess.Deadline-now), Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE exam_sessions SET time_remaining=$1 WHERE id=$2 AND status=$3`,
		remaining, sessionID, string(StatusInProgress))
	if err != nil {
		return Answer{}, err
	}

	return s.getAnswer(ctx, s.db, sessionID, questionID)
}

// Submit is the student-initiated transition. An expired session is routed
// through the auto-submit path regardless, which is the only way a timed
// session may close past its window. Duplicate submits are no-op successes.
func (s *SQLStore) Submit(ctx context.Context, studentID, sessionID string) (Session, error) {
	sess, err := s.GetSessionForStudent(ctx, studentID, sessionID)
	if err != nil {
		return Session{}, err
	}
	if sess.Status != StatusInProgress {
		return sess, nil
	}
	if s.expired(sess) {
		return s.submit(ctx, sessionID, MethodAutoSubmit)
	}
	if _, err := s.gate.Check(ctx, studentID, sess.ExamID, "session:submit"); err != nil {
		return Session{}, err
	}
	return s.submit(ctx, sessionID, MethodManual)
}

// AutoSubmit closes a session whose deadline passed. Used by the sweep; it
// bypasses the eligibility gate by design.
func (s *SQLStore) AutoSubmit(ctx context.Context, sessionID string) (Session, error) {
	return s.submit(ctx, sessionID, MethodAutoSubmit)
}

// submit performs the single IN_PROGRESS -> SUBMITTED transition, grades
// auto-gradable answers, enqueues grading tasks for the rest, and finalizes
// the score when nothing is left for teachers. The transition is a
// compare-and-swap on status: whichever caller wins performs the work,
// everyone else observes a no-op.
func (s *SQLStore) submit(ctx context.Context, sessionID string, method Method) (Session, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if sess.Status != StatusInProgress {
		return sess, nil
	}
	e, err := s.exams.GetExamFull(ctx, sess.ExamID)
	if err != nil {
		return Session{}, err
	}

	now := s.now().Unix()
	var remaining sql.NullInt64
	if sess.Deadline > 0 {
		remaining = sql.NullInt64{Int64: maxInt64(0, sess.Deadline-now), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Session{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE exam_sessions SET
		status=$1, is_completed=TRUE, submitted_at=$2, submission_method=$3, time_remaining=$4
		WHERE id=$5 AND status=$6`,
		string(StatusSubmitted), now, string(method), remaining, sessionID, string(StatusInProgress))
	if err != nil {
		return Session{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Session{}, err
	}
	if n == 0 {
		// Lost the race: someone else submitted. Idempotent success.
		_ = tx.Rollback()
		return s.GetSession(ctx, sessionID)
	}

	answers, err := s.listAnswers(ctx, tx, sessionID)
	if err != nil {
		return Session{}, err
	}
	byQuestion := make(map[string]Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	for _, q := range e.Questions {
		a, ok := byQuestion[q.ID]
		if !ok {
			continue // unanswered: zero points, nothing to grade
		}
		if q.AutoGradable && e.AutoGrade {
			r := s.grader.Grade(toGradingQ(q), grading.Response{
				SelectedOptionID: a.OptionID,
				Text:             a.Content,
			})
			if !r.NeedsManual {
				var correct sql.NullBool
				if r.IsCorrect != nil {
					correct = sql.NullBool{Bool: *r.IsCorrect, Valid: true}
				}
				_, err = tx.ExecContext(ctx, `UPDATE answers SET
					is_correct=$1, points_earned=$2, auto_scored=TRUE, feedback=$3
					WHERE id=$4`,
					correct, r.PointsEarned, r.Feedback, a.ID)
				if err != nil {
					return Session{}, err
				}
				continue
			}
		}
		if err := insertTask(ctx, tx, a, now); err != nil {
			return Session{}, err
		}
	}

	graded, err := s.refreshScore(ctx, tx, sessionID, sess.MaxScore)
	if err != nil {
		return Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return Session{}, err
	}

	out, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	s.pub.Publish(ctx, events.TypeSessionSubmitted, sessionID, out)
	if graded {
		s.pub.Publish(ctx, events.TypeSessionGraded, sessionID, out)
	}
	return out, nil
}

// insertTask creates the one grading task an ungraded answer is entitled to.
// The unique constraint on answer_id makes re-runs no-ops.
func insertTask(ctx context.Context, q querier, a Answer, now int64) error {
	_, err := q.ExecContext(ctx, `INSERT INTO grading_tasks
		(id, answer_id, session_id, question_id, status, priority, created_at)
		VALUES ($1,$2,$3,$4,$5,0,$6)
		ON CONFLICT (answer_id) DO NOTHING`,
		uuid.NewString(), a.ID, a.SessionID, a.QuestionID, string(TaskPending), now)
	return err
}

// EnsureTasks re-derives missing grading tasks for a submitted session.
// Task creation at submit time is already idempotent; this exists so a
// partial failure can always be repaired from current data.
func (s *SQLStore) EnsureTasks(ctx context.Context, sessionID string) error {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status == StatusInProgress {
		return ErrNotInProgress
	}
	e, err := s.exams.GetExamFull(ctx, sess.ExamID)
	if err != nil {
		return err
	}
	answers, err := s.listAnswers(ctx, s.db, sessionID)
	if err != nil {
		return err
	}
	now := s.now().Unix()
	for _, a := range answers {
		q, ok := e.QuestionByID(a.QuestionID)
		if !ok {
			continue
		}
		if a.PointsEarned == nil && !(q.AutoGradable && e.AutoGrade) {
			if err := insertTask(ctx, s.db, a, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// refreshScore recomputes the aggregate score (clamped to [0, max]) and
// flips the session to GRADED when no open tasks remain. Returns whether the
// graded transition happened.
func (s *SQLStore) refreshScore(ctx context.Context, q querier, sessionID string, maxScore float64) (bool, error) {
	var score float64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(points_earned),0) FROM answers WHERE session_id=$1`,
		sessionID).Scan(&score)
	if err != nil {
		return false, err
	}
	if score < 0 {
		score = 0
	}
	if maxScore > 0 && score > maxScore {
		score = maxScore
	}

	var open int
	err = q.QueryRowContext(ctx, `SELECT COUNT(*) FROM grading_tasks
		WHERE session_id=$1 AND status IN ($2,$3,$4)`,
		sessionID, string(TaskPending), string(TaskInProgress), string(TaskSkipped)).Scan(&open)
	if err != nil {
		return false, err
	}

	if open > 0 {
		_, err = q.ExecContext(ctx,
			`UPDATE exam_sessions SET score=$1 WHERE id=$2`, score, sessionID)
		return false, err
	}

	res, err := q.ExecContext(ctx, `UPDATE exam_sessions SET score=$1, status=$2
		WHERE id=$3 AND status=$4`,
		score, string(StatusGraded), sessionID, string(StatusSubmitted))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Already graded; keep the score current anyway.
		_, err = q.ExecContext(ctx,
			`UPDATE exam_sessions SET score=$1 WHERE id=$2`, score, sessionID)
		return false, err
	}
	return true, nil
}

// ListAnswers returns the session's answers ordered by question.
func (s *SQLStore) ListAnswers(ctx context.Context, sessionID string) ([]Answer, error) {
	return s.listAnswers(ctx, s.db, sessionID)
}

type ListOpts struct {
	ExamID    string
	StudentID string
	Status    Status
	Limit     int
	Offset    int
}

// ListSessions serves teacher/admin dashboards and the student's own history.
func (s *SQLStore) ListSessions(ctx context.Context, opts ListOpts) ([]Session, error) {
	q := `SELECT ` + sessionCols + ` FROM exam_sessions WHERE 1=1`
	args := []interface{}{}
	if opts.ExamID != "" {
		args = append(args, opts.ExamID)
		q += fmt.Sprintf(" AND exam_id=$%d", len(args))
	}
	if opts.StudentID != "" {
		args = append(args, opts.StudentID)
		q += fmt.Sprintf(" AND student_id=$%d", len(args))
	}
	if opts.Status != "" {
		args = append(args, string(opts.Status))
		q += fmt.Sprintf(" AND status=$%d", len(args))
	}
	q += " ORDER BY started_at DESC"
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

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s.withRemaining(sess))
	}
	return out, rows.Err()
}

// --- helpers ---

const sessionCols = `id, exam_id, student_id, status, is_completed, started_at,
	submitted_at, deadline, time_remaining, submission_method, score, max_score`

func scanSession(row interface{ Scan(dest ...interface{}) error }) (Session, error) {
	var sess Session
	var status, method string
	var submittedAt, remaining sql.NullInt64
	err := row.Scan(&sess.ID, &sess.ExamID, &sess.StudentID, &status,
		&sess.IsCompleted, &sess.StartedAt, &submittedAt, &sess.Deadline,
		&remaining, &method, &sess.Score, &sess.MaxScore)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	sess.Status = Status(status)
	sess.SubmissionMethod = Method(method)
	if submittedAt.Valid {
		sess.SubmittedAt = &submittedAt.Int64
	}
	if remaining.Valid {
		sess.TimeRemaining = &remaining.Int64
	}
	return sess, nil
}

func (s *SQLStore) activeSession(ctx context.Context, examID, studentID string) (Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionCols+` FROM exam_sessions
		 WHERE exam_id=$1 AND student_id=$2 AND is_completed=FALSE`,
		examID, studentID))
	if err != nil {
		return Session{}, err
	}
	return s.withRemaining(sess), nil
}

// withRemaining overlays the live countdown on an in-progress session.
func (s *SQLStore) withRemaining(sess Session) Session {
	if sess.Status != StatusInProgress || sess.Deadline == 0 {
		return sess
	}
	r := maxInt64(0, sess.Deadline-s.now().Unix())
	sess.TimeRemaining = &r
	return sess
}

func (s *SQLStore) expired(sess Session) bool {
	return sess.Status == StatusInProgress && sess.Deadline > 0 &&
		s.now().Unix() >= sess.Deadline
}

const answerCols = `id, session_id, question_id, option_id, content,
	is_correct, points_earned, auto_scored, manual_override, feedback, updated_at`

func scanAnswer(row interface{ Scan(dest ...interface{}) error }) (Answer, error) {
	var a Answer
	var correct sql.NullBool
	var points sql.NullFloat64
	err := row.Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.OptionID, &a.Content,
		&correct, &points, &a.AutoScored, &a.ManualOverride, &a.Feedback, &a.UpdatedAt)
	if err != nil {
		return Answer{}, err
	}
	if correct.Valid {
		a.IsCorrect = &correct.Bool
	}
	if points.Valid {
		a.PointsEarned = &points.Float64
	}
	return a, nil
}

func (s *SQLStore) getAnswer(ctx context.Context, q querier, sessionID, questionID string) (Answer, error) {
	return scanAnswer(q.QueryRowContext(ctx,
		`SELECT `+answerCols+` FROM answers WHERE session_id=$1 AND question_id=$2`,
		sessionID, questionID))
}

func (s *SQLStore) listAnswers(ctx context.Context, q querier, sessionID string) ([]Answer, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+answerCols+` FROM answers WHERE session_id=$1 ORDER BY updated_at`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func toGradingQ(q exam.Question) grading.Q {
	gq := grading.Q{
		Type:            string(q.Type),
		Points:          q.Points,
		AutoGradable:    q.AutoGradable,
		CaseSensitive:   q.CaseSensitive,
		AcceptedAnswers: q.AcceptedAnswers,
	}
	for _, o := range q.Options {
		gq.Options = append(gq.Options, grading.Opt{
			ID:            o.ID,
			IsCorrect:     o.IsCorrect,
			PartialCredit: o.PartialCredit,
		})
	}
	return gq
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
