package grading

import "testing"

func TestChoiceGrading(t *testing.T) {
	q := Q{
		Type:         "multiple_choice",
		Points:       10,
		AutoGradable: true,
		Options: []Opt{
			{ID: "a", IsCorrect: true},
			{ID: "b"},
			{ID: "c", PartialCredit: 4},
		},
	}
	g := NewGrader()

	tests := []struct {
		name       string
		selected   string
		wantPoints float64
		wantTri    string // "true", "false" or "nil"
	}{
		{"correct option", "a", 10, "true"},
		{"wrong option", "b", 0, "false"},
		{"partial credit option", "c", 4, "nil"},
		{"no selection", "", 0, "false"},
		{"unknown option", "zzz", 0, "false"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := g.Grade(q, Response{SelectedOptionID: tc.selected})
			if r.NeedsManual {
				t.Fatalf("choice question routed to manual grading")
			}
			if r.PointsEarned != tc.wantPoints {
				t.Errorf("points = %v, want %v", r.PointsEarned, tc.wantPoints)
			}
			if got := triState(r.IsCorrect); got != tc.wantTri {
				t.Errorf("is_correct = %s, want %s", got, tc.wantTri)
			}
		})
	}
}

func TestTextMatchGrading(t *testing.T) {
	g := NewGrader()

	tests := []struct {
		name     string
		q        Q
		text     string
		wantFull bool
	}{
		{
			name: "exact match",
			q:    fillBlank(5, false, "Paris"),
			text: "Paris", wantFull: true,
		},
		{
			name: "whitespace and case folded",
			q:    fillBlank(5, false, "Paris", "paris "),
			text: "  PARIS  ", wantFull: true,
		},
		{
			name: "internal whitespace collapsed",
			q:    fillBlank(5, false, "New York"),
			text: "new   york", wantFull: true,
		},
		{
			name: "case sensitive mismatch",
			q:    fillBlank(5, true, "Paris"),
			text: "paris", wantFull: false,
		},
		{
			name: "case sensitive match",
			q:    fillBlank(5, true, "Paris"),
			text: " Paris ", wantFull: true,
		},
		{
			name: "wrong answer",
			q:    fillBlank(5, false, "Paris"),
			text: "London", wantFull: false,
		},
		{
			name: "blank answer",
			q:    fillBlank(5, false, "Paris"),
			text: "   ", wantFull: false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := g.Grade(tc.q, Response{Text: tc.text})
			if r.NeedsManual {
				t.Fatalf("auto-gradable text question routed to manual grading")
			}
			if tc.wantFull {
				if r.PointsEarned != tc.q.Points || triState(r.IsCorrect) != "true" {
					t.Errorf("got points=%v correct=%s, want full credit", r.PointsEarned, triState(r.IsCorrect))
				}
			} else {
				if r.PointsEarned != 0 || triState(r.IsCorrect) != "false" {
					t.Errorf("got points=%v correct=%s, want zero", r.PointsEarned, triState(r.IsCorrect))
				}
			}
		})
	}
}

func TestManualRouting(t *testing.T) {
	g := NewGrader()

	for _, tc := range []struct {
		name string
		q    Q
	}{
		{"essay always manual", Q{Type: "essay", Points: 40, AutoGradable: false}},
		{"not auto-gradable", Q{Type: "text", Points: 5, AutoGradable: false}},
		{"unknown type", Q{Type: "diagram", Points: 5, AutoGradable: true}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := g.Grade(tc.q, Response{Text: "anything"})
			if !r.NeedsManual {
				t.Fatalf("expected manual grading")
			}
			if r.PointsEarned != 0 || r.IsCorrect != nil {
				t.Errorf("manual result must carry no score, got points=%v", r.PointsEarned)
			}
		})
	}
}

func TestPointsClamped(t *testing.T) {
	q := Q{
		Type:         "multiple_choice",
		Points:       10,
		AutoGradable: true,
		Options:      []Opt{{ID: "a", IsCorrect: true}, {ID: "b", PartialCredit: 80}},
	}
	r := NewGrader().Grade(q, Response{SelectedOptionID: "b"})
	if r.PointsEarned != 10 {
		t.Fatalf("partial credit above question points not clamped: got %v", r.PointsEarned)
	}
}

func fillBlank(points float64, caseSensitive bool, accepted ...string) Q {
	return Q{
		Type:            "fill_blank",
		Points:          points,
		AutoGradable:    true,
		CaseSensitive:   caseSensitive,
		AcceptedAnswers: accepted,
	}
}

func triState(b *bool) string {
	switch {
	case b == nil:
		return "nil"
	case *b:
		return "true"
	default:
		return "false"
	}
}
