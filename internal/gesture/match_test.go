package gesture

import "testing"

func TestMatch_FirstDeclaredWins(t *testing.T) {
	patterns := []CompiledPattern{
		{Name: "first", Windows: []ToleranceWindow{{Min: 0.01, Max: 0.03, Relative: true}}},
		{Name: "second", Windows: []ToleranceWindow{{Min: 0.02, Max: 0.04, Relative: true}}},
	}

	got := Match([]Segment{{From: 0, To: 0.025, Delta: 0.025}}, patterns)
	if got != 0 {
		t.Errorf("expected first pattern (0), got %d", got)
	}

	got = Match([]Segment{{From: 0, To: 0.035, Delta: 0.035}}, patterns)
	if got != 1 {
		t.Errorf("expected second pattern (1), got %d", got)
	}
}

func TestMatch_LengthMustBeEqual(t *testing.T) {
	p := CompileAll(DefaultClickStep, []PatternSpec{
		{Name: "up-down", Ranges: []ClickRange{ClickSpan(1, 3), ClickSpan(-1, -3)}},
	})

	up := Segment{From: 0.5, To: 0.54, Delta: 0.04}
	down := Segment{From: 0.54, To: 0.5, Delta: -0.04}

	if got := Match([]Segment{up}, p); got != -1 {
		t.Errorf("expected prefix not to match, got %d", got)
	}
	if got := Match([]Segment{up, down, up}, p); got != -1 {
		t.Errorf("expected longer sequence not to match, got %d", got)
	}
	if got := Match([]Segment{up, down}, p); got != 0 {
		t.Errorf("expected exact sequence to match, got %d", got)
	}
}

func TestMatch_AllPositionsMustHold(t *testing.T) {
	p := CompileAll(DefaultClickStep, []PatternSpec{
		{Name: "up-down", Ranges: []ClickRange{ClickSpan(1, 3), ClickSpan(-1, -3)}},
	})

	// Second run is five clicks, outside [-0.07, -0.01].
	segs := []Segment{
		{From: 0.5, To: 0.54, Delta: 0.04},
		{From: 0.54, To: 0.44, Delta: -0.10},
	}
	if got := Match(segs, p); got != -1 {
		t.Errorf("expected no match, got %d", got)
	}
}

func TestMatch_EmptyPatternMatchesEmptySequence(t *testing.T) {
	p := CompileAll(DefaultClickStep, []PatternSpec{{Name: "empty"}})

	if got := Match(nil, p); got != 0 {
		t.Errorf("expected zero-window pattern to match empty sequence, got %d", got)
	}
	if got := Match([]Segment{{Delta: 0.02}}, p); got != -1 {
		t.Errorf("expected zero-window pattern not to match a movement, got %d", got)
	}
}

func TestMatch_NoPatterns(t *testing.T) {
	if got := Match([]Segment{{Delta: 0.02}}, nil); got != -1 {
		t.Errorf("expected -1, got %d", got)
	}
}

func TestFormatSegments(t *testing.T) {
	got := FormatSegments([]Segment{
		{From: 0.50, To: 0.54, Delta: 0.04},
		{From: 0.54, To: 0.50, Delta: -0.04},
	})
	want := "050→054 (+04) 054→050 (-04)"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if FormatSegments(nil) != "-" {
		t.Errorf("expected placeholder for empty trace")
	}
}
