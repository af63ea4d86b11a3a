package gesture

// Match returns the index of the first pattern, in declaration order, whose
// windows are all satisfied by segments position by position. Patterns whose
// window count differs from len(segments) are skipped.
//
// Returns -1 when nothing matches.
func Match(segments []Segment, patterns []CompiledPattern) int {
	for i, p := range patterns {
		if matches(segments, p.Windows) {
			return i
		}
	}
	return -1
}

func matches(segments []Segment, windows []ToleranceWindow) bool {
	if len(segments) != len(windows) {
		return false
	}
	for i, w := range windows {
		if !w.Contains(segments[i]) {
			return false
		}
	}
	return true
}
