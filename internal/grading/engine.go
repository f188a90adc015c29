package grading

// Q is a minimal view of a question needed for grading.
// The caller maps its storage model onto this.
type Q struct {
	Type            string
	Points          float64
	AutoGradable    bool
	CaseSensitive   bool
	AcceptedAnswers []string
	Options         []Opt
}

// Opt is the grading view of a choice option.
type Opt struct {
	ID            string
	IsCorrect     bool
	PartialCredit float64
}

// Response is the closed answer payload: choice questions carry an option
// reference, textual questions carry text. Never both.
type Response struct {
	SelectedOptionID string
	Text             string
}

// Result is the outcome of grading a single response. IsCorrect is nil when
// the outcome is non-binary: partial credit, or manual grading pending.
type Result struct {
	IsCorrect    *bool
	PointsEarned float64
	NeedsManual  bool
	Feedback     string
}

// Strategy grades a single question. Implementations must be deterministic
// and side-effect free.
type Strategy interface {
	Grade(q Q, resp Response) Result
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(q Q, resp Response) Result
}

type defaultGrader struct {
	strategies map[string]Strategy
}

// NewGrader installs the built-in strategies.
func NewGrader() Grader {
	return &defaultGrader{
		strategies: map[string]Strategy{
			"multiple_choice": choiceStrategy{},
			"true_false":      choiceStrategy{},
			"fill_blank":      textMatchStrategy{},
			"text":            textMatchStrategy{},
			"essay":           manualStrategy{},
		},
	}
}

func (g *defaultGrader) Grade(q Q, resp Response) Result {
	if !q.AutoGradable {
		return manualResult()
	}
	s, ok := g.strategies[q.Type]
	if !ok {
		return manualResult()
	}
	r := s.Grade(q, resp)
	r.PointsEarned = clamp(r.PointsEarned, 0, q.Points)
	return r
}

func manualResult() Result {
	return Result{NeedsManual: true, Feedback: "manual grading required"}
}

// --- Strategies ---

type choiceStrategy struct{}

func (choiceStrategy) Grade(q Q, resp Response) Result {
	for _, o := range q.Options {
		if o.ID != resp.SelectedOptionID {
			continue
		}
		if o.IsCorrect {
			return Result{IsCorrect: boolPtr(true), PointsEarned: q.Points}
		}
		if o.PartialCredit > 0 {
			// Wrong option, but it carries its own credit.
			return Result{PointsEarned: o.PartialCredit, Feedback: "partial credit"}
		}
		return Result{IsCorrect: boolPtr(false)}
	}
	return Result{IsCorrect: boolPtr(false), Feedback: "no option selected"}
}

type textMatchStrategy struct{}

func (textMatchStrategy) Grade(q Q, resp Response) Result {
	got := normalize(resp.Text, q.CaseSensitive)
	if got == "" {
		return Result{IsCorrect: boolPtr(false), Feedback: "blank answer"}
	}
	for _, want := range q.AcceptedAnswers {
		if normalize(want, q.CaseSensitive) == got {
			return Result{IsCorrect: boolPtr(true), PointsEarned: q.Points}
		}
	}
	return Result{IsCorrect: boolPtr(false)}
}

type manualStrategy struct{}

func (manualStrategy) Grade(Q, Response) Result { return manualResult() }

// helpers

func boolPtr(b bool) *bool { return &b }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
