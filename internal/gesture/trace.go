package gesture

import (
	"fmt"
	"math"
	"strings"
)

// percentStep is the resolution of trace output: one volume percent.
const percentStep = 0.01

func percent(v float64) int {
	return int(math.Round(v / percentStep))
}

// FormatSegments renders segments in whole volume percent, for example
// "050→054 (+04) 054→050 (-04)".
func FormatSegments(segs []Segment) string {
	if len(segs) == 0 {
		return "-"
	}
	var b strings.Builder
	for i, s := range segs {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%03d→%03d (%+03d)", percent(s.From), percent(s.To), percent(s.Delta))
	}
	return b.String()
}

// FormatWindows renders compiled windows, marking absolute ones with '@'.
func FormatWindows(ws []ToleranceWindow) string {
	parts := make([]string, len(ws))
	for i, w := range ws {
		mark := ""
		if !w.Relative {
			mark = "@"
		}
		parts[i] = fmt.Sprintf("%s[%.3f, %.3f]", mark, w.Min, w.Max)
	}
	return "{" + strings.Join(parts, " ") + "}"
}
