package exam

import "fmt"

type ExamType string

const (
	TypeTest ExamType = "test"
	TypeExam ExamType = "exam"
)

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionFillBlank      QuestionType = "fill_blank"
	QuestionText           QuestionType = "text"
	QuestionEssay          QuestionType = "essay"
)

// TimerMode tells which timing strategy governs a session.
type TimerMode string

const (
	TimerGlobal     TimerMode = "global"     // shared start/end window
	TimerIndividual TimerMode = "individual" // per-student countdown
	TimerNone       TimerMode = "none"
)

type Option struct {
	ID            string  `json:"id"`
	QuestionID    string  `json:"question_id,omitempty"`
	Text          string  `json:"text"`
	IsCorrect     bool    `json:"is_correct,omitempty"`
	Position      int     `json:"position"`
	PartialCredit float64 `json:"partial_credit,omitempty"`
}

type Question struct {
	ID           string       `json:"id"`
	ExamID       string       `json:"exam_id,omitempty"`
	Type         QuestionType `json:"type"`
	Prompt       string       `json:"prompt"`
	Points       float64      `json:"points"`
	Position     int          `json:"position"`
	AutoGradable bool         `json:"auto_gradable"`

	// For auto-gradable fill_blank/text questions.
	AcceptedAnswers []string `json:"accepted_answers,omitempty"`
	CaseSensitive   bool     `json:"case_sensitive,omitempty"`

	// Free-form note describing how partial credit should be applied
	// during manual grading.
	PartialCreditNote string `json:"partial_credit_note,omitempty"`

	Options []Option `json:"options,omitempty"`
}

type Exam struct {
	ID        string   `json:"id"`
	ClassID   string   `json:"class_id"`
	SubjectID string   `json:"subject_id"`
	TermID    string   `json:"term_id"`
	Title     string   `json:"title"`
	Type      ExamType `json:"type"`

	TotalMarks  float64 `json:"total_marks"`
	PassMark    float64 `json:"pass_mark"`
	IsPublished bool    `json:"is_published"`

	// Global timer mode: fixed window shared by all students (unix seconds,
	// zero when unset). Individual timer mode: per-student countdown.
	StartTime    int64 `json:"start_time,omitempty"`
	EndTime      int64 `json:"end_time,omitempty"`
	TimeLimitMin int   `json:"time_limit_min,omitempty"`

	AllowRetakes     bool `json:"allow_retakes"`
	ShuffleQuestions bool `json:"shuffle_questions"`
	AutoGrade        bool `json:"auto_grade"`

	CreatedBy string `json:"created_by,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`

	Questions []Question `json:"questions,omitempty"`
}

// TimerMode resolves the authoritative timing strategy. When both a window
// and a per-student limit are configured the window wins.
func (e Exam) TimerMode() TimerMode {
	if e.StartTime > 0 && e.EndTime > 0 {
		return TimerGlobal
	}
	if e.TimeLimitMin > 0 {
		return TimerIndividual
	}
	return TimerNone
}

// MaxScore is the sum of question points.
func (e Exam) MaxScore() float64 {
	var total float64
	for _, q := range e.Questions {
		total += q.Points
	}
	return total
}

// QuestionByID returns the question and true when it belongs to this exam.
func (e Exam) QuestionByID(id string) (Question, bool) {
	for _, q := range e.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// IsChoice reports whether the question type selects among options.
func (t QuestionType) IsChoice() bool {
	return t == QuestionMultipleChoice || t == QuestionTrueFalse
}

// IsTextual reports whether the question type carries free text.
func (t QuestionType) IsTextual() bool {
	return t == QuestionFillBlank || t == QuestionText || t == QuestionEssay
}

// Validate checks the structural invariants of an exam's question set.
func (e Exam) Validate() error {
	if e.ClassID == "" {
		return fmt.Errorf("%w: class_id required", ErrInvalidExam)
	}
	if e.Type != TypeTest && e.Type != TypeExam {
		return fmt.Errorf("%w: unknown exam type %q", ErrInvalidExam, e.Type)
	}
	if e.StartTime > 0 && e.EndTime > 0 && e.EndTime <= e.StartTime {
		return fmt.Errorf("%w: end_time must follow start_time", ErrInvalidExam)
	}
	for _, q := range e.Questions {
		if err := q.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (q Question) validate() error {
	switch q.Type {
	case QuestionMultipleChoice, QuestionTrueFalse:
		correct := 0
		for _, o := range q.Options {
			if o.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return fmt.Errorf("%w: question %s must have exactly one correct option, has %d", ErrInvalidExam, q.ID, correct)
		}
		if q.Type == QuestionTrueFalse && len(q.Options) != 2 {
			return fmt.Errorf("%w: true_false question %s must have two options", ErrInvalidExam, q.ID)
		}
	case QuestionFillBlank, QuestionText:
		if q.AutoGradable && len(q.AcceptedAnswers) == 0 {
			return fmt.Errorf("%w: auto-gradable question %s has no accepted answers", ErrInvalidExam, q.ID)
		}
	case QuestionEssay:
		if q.AutoGradable {
			return fmt.Errorf("%w: essay question %s cannot be auto-gradable", ErrInvalidExam, q.ID)
		}
	default:
		return fmt.Errorf("%w: unknown question type %q", ErrInvalidExam, q.Type)
	}
	if q.Points < 0 {
		return fmt.Errorf("%w: question %s has negative points", ErrInvalidExam, q.ID)
	}
	return nil
}

// Sanitized returns a copy safe to serve to students: answer keys,
// correctness flags and partial-credit values are stripped.
func (e Exam) Sanitized() Exam {
	out := e
	out.Questions = make([]Question, len(e.Questions))
	for i, q := range e.Questions {
		sq := q
		sq.AcceptedAnswers = nil
		sq.Options = make([]Option, len(q.Options))
		for j, o := range q.Options {
			so := o
			so.IsCorrect = false
			so.PartialCredit = 0
			sq.Options[j] = so
		}
		out.Questions[i] = sq
	}
	return out
}
