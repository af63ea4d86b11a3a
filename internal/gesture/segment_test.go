package gesture

import "testing"

func assertSegments(t *testing.T, got, want []Segment) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d segments, got %d (%s)", len(want), len(got), FormatSegments(got))
	}
	for i := range want {
		if !approx(got[i].From, want[i].From) || !approx(got[i].To, want[i].To) || !approx(got[i].Delta, want[i].Delta) {
			t.Errorf("segment %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestSegments_Example(t *testing.T) {
	got := Segments(0.0, []float64{0.02, 0.04, 0.02, 0.00, 0.02})
	assertSegments(t, got, []Segment{
		{From: 0.0, To: 0.04, Delta: 0.04},
		{From: 0.04, To: 0.00, Delta: -0.04},
		{From: 0.00, To: 0.02, Delta: 0.02},
	})
}

func TestSegments_NoChange(t *testing.T) {
	got := Segments(0.3, []float64{0.3, 0.3, 0.3, 0.3})
	if len(got) != 0 {
		t.Errorf("expected no segments, got %s", FormatSegments(got))
	}
}

func TestSegments_Empty(t *testing.T) {
	if got := Segments(0.5, nil); len(got) != 0 {
		t.Errorf("expected no segments, got %d", len(got))
	}
}

func TestSegments_RepeatedLevelExtendsRun(t *testing.T) {
	got := Segments(0.5, []float64{0.52, 0.52, 0.54})
	assertSegments(t, got, []Segment{
		{From: 0.5, To: 0.54, Delta: 0.04},
	})
}

func TestSegments_LeadingRepeatDoesNotSplit(t *testing.T) {
	got := Segments(0.5, []float64{0.5, 0.48, 0.5})
	assertSegments(t, got, []Segment{
		{From: 0.5, To: 0.48, Delta: -0.02},
		{From: 0.48, To: 0.5, Delta: 0.02},
	})
}

func TestSegments_ReturnToReferenceKeepsTrailingRun(t *testing.T) {
	// Net movement cancels but the runs are still reported.
	got := Segments(0.5, []float64{0.52, 0.5})
	assertSegments(t, got, []Segment{
		{From: 0.5, To: 0.52, Delta: 0.02},
		{From: 0.52, To: 0.5, Delta: -0.02},
	})
}

func TestSegments_Deterministic(t *testing.T) {
	samples := []float64{0.1, 0.14, 0.12, 0.2, 0.18}
	a := Segments(0.1, samples)
	b := Segments(0.1, samples)
	assertSegments(t, b, a)
}
