package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) PutExam(ctx context.Context, e Exam) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var published bool
	err = tx.QueryRowContext(ctx, `SELECT is_published FROM exams WHERE id=$1`, e.ID).Scan(&published)
	switch {
	case err == nil && published:
		return ErrPublished
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return err
	}

	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO exams
		(id, class_id, subject_id, term_id, title, type, total_marks, pass_mark,
		 is_published, start_time, end_time, time_limit_min,
		 allow_retakes, shuffle_questions, auto_grade, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
		 class_id=EXCLUDED.class_id, subject_id=EXCLUDED.subject_id,
		 term_id=EXCLUDED.term_id, title=EXCLUDED.title, type=EXCLUDED.type,
		 total_marks=EXCLUDED.total_marks, pass_mark=EXCLUDED.pass_mark,
		 start_time=EXCLUDED.start_time, end_time=EXCLUDED.end_time,
		 time_limit_min=EXCLUDED.time_limit_min,
		 allow_retakes=EXCLUDED.allow_retakes,
		 shuffle_questions=EXCLUDED.shuffle_questions,
		 auto_grade=EXCLUDED.auto_grade`,
		e.ID, e.ClassID, e.SubjectID, e.TermID, e.Title, string(e.Type),
		e.TotalMarks, e.PassMark, e.IsPublished, e.StartTime, e.EndTime,
		e.TimeLimitMin, e.AllowRetakes, e.ShuffleQuestions, e.AutoGrade,
		e.CreatedBy, e.CreatedAt)
	if err != nil {
		return err
	}

	// Replace the question set wholesale. Options cascade on delete.
	if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE exam_id=$1`, e.ID); err != nil {
		return err
	}
	for i, q := range e.Questions {
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if q.Position == 0 {
			q.Position = i + 1
		}
		answers, err := json.Marshal(q.AcceptedAnswers)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO questions
			(id, exam_id, type, prompt, points, position, auto_gradable,
			 answers_json, case_sensitive, partial_credit_note)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			q.ID, e.ID, string(q.Type), q.Prompt, q.Points, q.Position,
			q.AutoGradable, string(answers), q.CaseSensitive, q.PartialCreditNote)
		if err != nil {
			return err
		}
		for j, o := range q.Options {
			if o.ID == "" {
				o.ID = uuid.NewString()
			}
			if o.Position == 0 {
				o.Position = j + 1
			}
			_, err = tx.ExecContext(ctx, `INSERT INTO options
				(id, question_id, text, is_correct, position, partial_credit)
				VALUES ($1,$2,$3,$4,$5,$6)`,
				o.ID, q.ID, o.Text, o.IsCorrect, o.Position, o.PartialCredit)
			if err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *SQLStore) GetExam(ctx context.Context, id string) (Exam, error) {
	e, err := s.GetExamFull(ctx, id)
	if err != nil {
		return Exam{}, err
	}
	return e.Sanitized(), nil
}

func (s *SQLStore) GetExamFull(ctx context.Context, id string) (Exam, error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		id, class_id, subject_id, term_id, title, type, total_marks, pass_mark,
		is_published, start_time, end_time, time_limit_min,
		allow_retakes, shuffle_questions, auto_grade, created_by, created_at
		FROM exams WHERE id=$1`, id)
	var e Exam
	var typ string
	err := row.Scan(&e.ID, &e.ClassID, &e.SubjectID, &e.TermID, &e.Title, &typ,
		&e.TotalMarks, &e.PassMark, &e.IsPublished, &e.StartTime, &e.EndTime,
		&e.TimeLimitMin, &e.AllowRetakes, &e.ShuffleQuestions, &e.AutoGrade,
		&e.CreatedBy, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Exam{}, ErrNotFound
	}
	if err != nil {
		return Exam{}, err
	}
	e.Type = ExamType(typ)

	if e.Questions, err = s.questions(ctx, e.ID); err != nil {
		return Exam{}, fmt.Errorf("load questions: %w", err)
	}
	return e, nil
}

func (s *SQLStore) questions(ctx context.Context, examID string) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, type, prompt, points, position, auto_gradable,
		answers_json, case_sensitive, partial_credit_note
		FROM questions WHERE exam_id=$1 ORDER BY position`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var qs []Question
	for rows.Next() {
		var q Question
		var typ, answers string
		if err := rows.Scan(&q.ID, &typ, &q.Prompt, &q.Points, &q.Position,
			&q.AutoGradable, &answers, &q.CaseSensitive, &q.PartialCreditNote); err != nil {
			return nil, err
		}
		q.ExamID = examID
		q.Type = QuestionType(typ)
		if answers != "" {
			if err := json.Unmarshal([]byte(answers), &q.AcceptedAnswers); err != nil {
				return nil, err
			}
		}
		qs = append(qs, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range qs {
		opts, err := s.options(ctx, qs[i].ID)
		if err != nil {
			return nil, err
		}
		qs[i].Options = opts
	}
	return qs, nil
}

func (s *SQLStore) options(ctx context.Context, questionID string) ([]Option, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, text, is_correct, position, partial_credit
		FROM options WHERE question_id=$1 ORDER BY position`, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var opts []Option
	for rows.Next() {
		var o Option
		if err := rows.Scan(&o.ID, &o.Text, &o.IsCorrect, &o.Position, &o.PartialCredit); err != nil {
			return nil, err
		}
		o.QuestionID = questionID
		opts = append(opts, o)
	}
	return opts, rows.Err()
}

func (s *SQLStore) Publish(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE exams SET is_published=TRUE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either missing or already published; distinguish for the caller.
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM exams WHERE id=$1`, id).Scan(&exists); errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		} else if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) ListExams(ctx context.Context, opts ListOpts) ([]Summary, error) {
	q := `SELECT id, class_id, subject_id, title, type, total_marks, is_published, start_time, end_time
		FROM exams WHERE 1=1`
	args := []interface{}{}
	if opts.ClassID != "" {
		args = append(args, opts.ClassID)
		q += fmt.Sprintf(" AND class_id=$%d", len(args))
	}
	if opts.PublishedOnly {
		q += " AND is_published=TRUE"
	}
	q += " ORDER BY created_at DESC"
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

	var out []Summary
	for rows.Next() {
		var sm Summary
		var typ string
		if err := rows.Scan(&sm.ID, &sm.ClassID, &sm.SubjectID, &sm.Title, &typ,
			&sm.TotalMarks, &sm.IsPublished, &sm.StartTime, &sm.EndTime); err != nil {
			return nil, err
		}
		sm.Type = ExamType(typ)
		out = append(out, sm)
	}
	return out, rows.Err()
}
