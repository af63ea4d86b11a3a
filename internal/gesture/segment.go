package gesture

// Segment is the net movement of one maximal same-direction run.
type Segment struct {
	From  float64 `json:"from"`
	To    float64 `json:"to"`
	Delta float64 `json:"delta"`
}

// Segments folds samples, measured from reference, into directional runs.
//
// A run ends only when a sample moves strictly against the direction of the
// run so far. Samples that repeat the previous level extend the current run.
// The result depends only on the arguments.
func Segments(reference float64, samples []float64) []Segment {
	var out []Segment

	aggregate := 0.0
	previous := reference

	for _, v := range samples {
		diff := v - previous

		if sign(diff)*sign(aggregate) < 0 && aggregate != 0 {
			out = append(out, Segment{From: previous - aggregate, To: previous, Delta: aggregate})
			aggregate = 0
		}

		aggregate += diff
		previous = v
	}

	if aggregate != 0 {
		out = append(out, Segment{From: previous - aggregate, To: previous, Delta: aggregate})
	}
	return out
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
