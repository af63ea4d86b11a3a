package gesture

import (
	"math"
	"testing"
)

const eps = 1e-9

func approx(a, b float64) bool {
	return math.Abs(a-b) < eps
}

func TestCompile_PadsHalfStep(t *testing.T) {
	tests := []struct {
		name     string
		r        ClickRange
		min, max float64
	}{
		{"single click", Clicks(1), 0.01, 0.03},
		{"span", ClickSpan(1, 3), 0.01, 0.07},
		{"reversed span", ClickSpan(-1, -3), -0.07, -0.01},
		{"absolute zero", AtClicks(0), -0.01, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Compile(0.02, PatternSpec{Name: tt.name, Ranges: []ClickRange{tt.r}})
			if len(p.Windows) != 1 {
				t.Fatalf("expected 1 window, got %d", len(p.Windows))
			}
			w := p.Windows[0]
			if !approx(w.Min, tt.min) || !approx(w.Max, tt.max) {
				t.Errorf("expected [%v, %v], got [%v, %v]", tt.min, tt.max, w.Min, w.Max)
			}
			if w.Relative != tt.r.Relative {
				t.Errorf("expected relative=%v, got %v", tt.r.Relative, w.Relative)
			}
		})
	}
}

func TestCompile_PreservesOrderAndLength(t *testing.T) {
	specs := []PatternSpec{
		{Name: "a", Ranges: []ClickRange{Clicks(1), Clicks(-1)}},
		{Name: "b", Ranges: []ClickRange{Clicks(2)}},
		{Name: "empty"},
	}

	got := CompileAll(DefaultClickStep, specs)
	if len(got) != len(specs) {
		t.Fatalf("expected %d patterns, got %d", len(specs), len(got))
	}
	for i := range specs {
		if got[i].Name != specs[i].Name {
			t.Errorf("pattern %d: expected name %q, got %q", i, specs[i].Name, got[i].Name)
		}
		if len(got[i].Windows) != len(specs[i].Ranges) {
			t.Errorf("pattern %q: expected %d windows, got %d", specs[i].Name, len(specs[i].Ranges), len(got[i].Windows))
		}
	}
}

func TestToleranceWindow_AbsolutePadding(t *testing.T) {
	w := Compile(0.02, PatternSpec{Ranges: []ClickRange{AtClicks(0)}}).Windows[0]

	if !w.Contains(Segment{To: -0.009}) {
		t.Errorf("expected to=-0.009 inside %v", w)
	}
	if w.Contains(Segment{To: -0.011}) {
		t.Errorf("expected to=-0.011 outside %v", w)
	}
}

func TestToleranceWindow_RelativeUsesDelta(t *testing.T) {
	w := ToleranceWindow{Min: 0.01, Max: 0.03, Relative: true}

	// To is far outside, Delta inside.
	if !w.Contains(Segment{From: 0.5, To: 0.52, Delta: 0.02}) {
		t.Error("expected relative window to match on delta")
	}
	if w.Contains(Segment{From: 0.0, To: 0.02, Delta: 0.05}) {
		t.Error("expected relative window to ignore To")
	}
}
