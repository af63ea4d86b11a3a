package main

import (
	"time"

	"headsetbrainz/internal/gesture"
)

// DaemonState is the daemon-owned bookkeeping that sits next to the engine.
//
// Only the daemon goroutine touches it. Other goroutines get a StatusSnapshot
// through a StatusRequest.
type DaemonState struct {
	Source   string
	Counters DaemonCounters

	// Matches counts matches per pattern name.
	Matches map[string]int

	LastMatch   string
	LastMatchAt time.Time
}

// DaemonCounters are cumulative since startup.
type DaemonCounters struct {
	Samples      int `json:"samples"`
	Suppressed   int `json:"suppressed"`
	Abandoned    int `json:"abandoned"`
	Matched      int `json:"matched"`
	Errors       int `json:"errors"`
	DroppedCasts int `json:"dropped_broadcasts"`
}

func newDaemonState(source string) *DaemonState {
	return &DaemonState{
		Source:  source,
		Matches: make(map[string]int),
	}
}

// Observe folds one engine result into the counters.
func (s *DaemonState) Observe(res gesture.Result, err error, at time.Time) {
	s.Counters.Samples++
	if err != nil {
		s.Counters.Errors++
	}
	if res.Abandoned {
		s.Counters.Abandoned++
	}
	switch res.Outcome {
	case gesture.OutcomeSuppressed:
		s.Counters.Suppressed++
	case gesture.OutcomeMatched:
		s.Counters.Matched++
		s.Matches[res.Pattern]++
		s.LastMatch = res.Pattern
		s.LastMatchAt = at
	}
}

// StatusSnapshot is the externally visible daemon state (IPC status, ws
// state_init).
type StatusSnapshot struct {
	Source      string         `json:"source"`
	Engine      gesture.State  `json:"engine"`
	Patterns    []string       `json:"patterns"`
	Counters    DaemonCounters `json:"counters"`
	Matches     map[string]int `json:"matches"`
	LastMatch   string         `json:"last_match,omitempty"`
	LastMatchAt time.Time      `json:"last_match_at,omitzero"`
}

// Snapshot copies the daemon state together with the engine state.
func (s *DaemonState) Snapshot(engine *gesture.Engine) StatusSnapshot {
	snap := StatusSnapshot{
		Source:      s.Source,
		Counters:    s.Counters,
		Matches:     make(map[string]int, len(s.Matches)),
		LastMatch:   s.LastMatch,
		LastMatchAt: s.LastMatchAt,
	}
	for k, v := range s.Matches {
		snap.Matches[k] = v
	}
	if engine != nil {
		snap.Engine = engine.Snapshot()
		for _, p := range engine.Patterns() {
			snap.Patterns = append(snap.Patterns, p.Name)
		}
	}
	return snap
}
