package gesture

import "math"

// DefaultClickStep is the volume fraction produced by one physical button
// press on most headsets (2% on a 0..1 scale).
const DefaultClickStep = 0.02

// ClickRange is one user-declared movement of a pattern, expressed in whole
// button clicks. X1 and X2 may be given in any order.
//
// Relative ranges are matched against a segment's Delta; absolute ranges are
// matched against a segment's end level (To), measured from the origin of
// the volume scale.
type ClickRange struct {
	X1       int
	X2       int
	Relative bool
}

// Clicks returns a relative range covering exactly n clicks.
func Clicks(n int) ClickRange {
	return ClickRange{X1: n, X2: n, Relative: true}
}

// ClickSpan returns a relative range covering x1..x2 clicks.
func ClickSpan(x1, x2 int) ClickRange {
	return ClickRange{X1: x1, X2: x2, Relative: true}
}

// AtClicks returns an absolute range whose segment must end at n clicks.
func AtClicks(n int) ClickRange {
	return ClickRange{X1: n, X2: n, Relative: false}
}

// PatternSpec is the user-facing gesture declaration. The order of a slice of
// PatternSpec is significant: earlier patterns win ties.
type PatternSpec struct {
	Name   string
	Action Action
	Ranges []ClickRange
}

// ToleranceWindow is a closed interval on the volume scale.
type ToleranceWindow struct {
	Min      float64
	Max      float64
	Relative bool
}

// Contains reports whether seg satisfies the window.
func (w ToleranceWindow) Contains(seg Segment) bool {
	v := seg.To
	if w.Relative {
		v = seg.Delta
	}
	return v >= w.Min && v <= w.Max
}

// CompiledPattern is a PatternSpec converted to the volume scale. It is never
// modified after compilation.
type CompiledPattern struct {
	Name    string
	Action  Action
	Windows []ToleranceWindow
}

// Compile pads every declared range by half a click on both ends and
// converts it to the volume scale. A spec without ranges compiles to a
// pattern without windows.
func Compile(step float64, spec PatternSpec) CompiledPattern {
	windows := make([]ToleranceWindow, len(spec.Ranges))
	for i, r := range spec.Ranges {
		lo := math.Min(float64(r.X1), float64(r.X2))
		hi := math.Max(float64(r.X1), float64(r.X2))
		windows[i] = ToleranceWindow{
			Min:      (lo - 0.5) * step,
			Max:      (hi + 0.5) * step,
			Relative: r.Relative,
		}
	}
	return CompiledPattern{
		Name:    spec.Name,
		Action:  spec.Action,
		Windows: windows,
	}
}

// CompileAll compiles specs in declaration order.
func CompileAll(step float64, specs []PatternSpec) []CompiledPattern {
	out := make([]CompiledPattern, len(specs))
	for i, s := range specs {
		out[i] = Compile(step, s)
	}
	return out
}
