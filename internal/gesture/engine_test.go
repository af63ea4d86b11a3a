package gesture

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeHost is a test double for a volume endpoint.
type fakeHost struct {
	mu       sync.Mutex
	level    float64
	readErr  error
	writeErr error
	setCalls []float64
}

func (h *fakeHost) CurrentVolume() (float64, error) {
	if h.readErr != nil {
		return 0, h.readErr
	}
	return h.level, nil
}

func (h *fakeHost) SetVolume(level float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.setCalls = append(h.setCalls, level)
	if h.writeErr != nil {
		return h.writeErr
	}
	h.level = level
	return nil
}

func (h *fakeHost) calls() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]float64(nil), h.setCalls...)
}

// recorder counts invocations of named actions.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) action(name string) Action {
	return ActionFunc(func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, name)
		return nil
	})
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func newTestEngine(t *testing.T, host *fakeHost, specs []PatternSpec) *Engine {
	t.Helper()
	e, err := New(Config{Now: func() time.Time { return t0 }}, specs, host)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e
}

func defaultSpecs(r *recorder) []PatternSpec {
	return []PatternSpec{
		{Name: "Play/Pause", Action: r.action("Play/Pause"), Ranges: []ClickRange{ClickSpan(1, 3), ClickSpan(-1, -3)}},
		{Name: "Next", Action: r.action("Next"), Ranges: []ClickRange{ClickSpan(-1, -3), ClickSpan(1, 3)}},
		{Name: "Shutdown", Action: r.action("Shutdown"), Ranges: []ClickRange{AtClicks(0)}},
	}
}

func mustSample(t *testing.T, e *Engine, level float64, at time.Time) Result {
	t.Helper()
	res, err := e.OnSample(level, at)
	if err != nil {
		t.Fatalf("OnSample(%v) failed: %v", level, err)
	}
	return res
}

func TestEngine_New_ReadsInitialLevel(t *testing.T) {
	host := &fakeHost{level: 0.4}
	e := newTestEngine(t, host, nil)

	st := e.Snapshot()
	if st.ReferenceLevel != 0.4 || st.PreviousLevel != 0.4 {
		t.Errorf("expected reference/previous 0.4, got %v/%v", st.ReferenceLevel, st.PreviousLevel)
	}
	if !st.LastInput.Equal(t0) {
		t.Errorf("expected last input %v, got %v", t0, st.LastInput)
	}
	if len(st.Pending) != 0 {
		t.Errorf("expected no pending samples, got %v", st.Pending)
	}

	cfg := e.Config()
	if cfg.ClickStep != DefaultClickStep || cfg.IdleWindow != DefaultIdleWindow || cfg.SuppressWindow != DefaultSuppressWindow {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestEngine_New_Errors(t *testing.T) {
	if _, err := New(Config{}, nil, nil); err == nil {
		t.Error("expected error for nil host")
	}

	readErr := errors.New("no endpoint")
	_, err := New(Config{}, nil, &fakeHost{readErr: readErr})
	if !errors.Is(err, readErr) {
		t.Errorf("expected wrapped read error, got %v", err)
	}

	if _, err := New(Config{ClickStep: -1}, nil, &fakeHost{}); err == nil {
		t.Error("expected error for negative click step")
	}
	if _, err := New(Config{IdleWindow: -time.Second}, nil, &fakeHost{}); err == nil {
		t.Error("expected error for negative idle window")
	}
}

func TestEngine_MatchWritesBackAndInvokesAction(t *testing.T) {
	host := &fakeHost{level: 0.5}
	rec := &recorder{}
	e := newTestEngine(t, host, defaultSpecs(rec))

	mustSample(t, e, 0.52, t0.Add(ms(10)))
	mustSample(t, e, 0.54, t0.Add(ms(20)))
	res := mustSample(t, e, 0.52, t0.Add(ms(30)))

	if res.Outcome != OutcomeMatched || res.Pattern != "Play/Pause" {
		t.Fatalf("expected Play/Pause match, got %v %q (%s)", res.Outcome, res.Pattern, FormatSegments(res.Segments))
	}
	if got := rec.names(); len(got) != 1 || got[0] != "Play/Pause" {
		t.Errorf("expected one Play/Pause invocation, got %v", got)
	}
	if got := host.calls(); len(got) != 1 || got[0] != 0.5 {
		t.Errorf("expected write-back of 0.5, got %v", got)
	}

	st := e.Snapshot()
	if len(st.Pending) != 0 {
		t.Errorf("expected pending cleared, got %v", st.Pending)
	}
	if !st.SuppressUntil.Equal(t0.Add(ms(130))) {
		t.Errorf("expected suppress until +130ms, got %v", st.SuppressUntil.Sub(t0))
	}
	if st.PreviousLevel != 0.52 {
		t.Errorf("expected previous level 0.52, got %v", st.PreviousLevel)
	}
}

func TestEngine_DebounceSuppression(t *testing.T) {
	host := &fakeHost{level: 0.5}
	rec := &recorder{}
	e := newTestEngine(t, host, defaultSpecs(rec))

	mustSample(t, e, 0.52, t0.Add(ms(10)))
	matchAt := t0.Add(ms(20))
	if res := mustSample(t, e, 0.5, matchAt); res.Outcome != OutcomeMatched {
		t.Fatalf("expected match, got %v", res.Outcome)
	}

	// Inside the window: discarded and forced back.
	res := mustSample(t, e, 0.51, matchAt.Add(ms(50)))
	if res.Outcome != OutcomeSuppressed {
		t.Fatalf("expected suppressed, got %v", res.Outcome)
	}
	if len(res.Segments) != 0 {
		t.Errorf("expected no segmentation while suppressed, got %s", FormatSegments(res.Segments))
	}
	calls := host.calls()
	if len(calls) != 2 || calls[1] != 0.5 {
		t.Errorf("expected second write-back to 0.5, got %v", calls)
	}
	st := e.Snapshot()
	if len(st.Pending) != 0 {
		t.Errorf("expected suppressed level discarded, got %v", st.Pending)
	}
	if !st.LastInput.Equal(matchAt) {
		t.Errorf("expected last input untouched by suppressed level")
	}

	// Exactly at the deadline still counts as inside.
	if res := mustSample(t, e, 0.51, matchAt.Add(ms(100))); res.Outcome != OutcomeSuppressed {
		t.Errorf("expected suppressed at deadline, got %v", res.Outcome)
	}

	// After the window: processed normally from the restored level.
	res = mustSample(t, e, 0.52, matchAt.Add(ms(150)))
	if res.Outcome != OutcomeAccumulated {
		t.Fatalf("expected accumulated, got %v", res.Outcome)
	}
	if res.ReferenceLevel != 0.5 {
		t.Errorf("expected reference 0.5, got %v", res.ReferenceLevel)
	}
	st = e.Snapshot()
	if !st.SuppressUntil.IsZero() {
		t.Errorf("expected suppression cleared, got %v", st.SuppressUntil)
	}
	if len(st.Pending) != 1 {
		t.Errorf("expected one pending sample, got %v", st.Pending)
	}
	if got := rec.names(); len(got) != 1 {
		t.Errorf("expected a single action invocation, got %v", got)
	}
}

func TestEngine_IdleAbandonment(t *testing.T) {
	host := &fakeHost{level: 0.5}
	rec := &recorder{}
	e := newTestEngine(t, host, defaultSpecs(rec))

	mustSample(t, e, 0.52, t0)

	// Together with the stale 0.52 this would read as up-then-down.
	res := mustSample(t, e, 0.5, t0.Add(ms(600)))

	if !res.Abandoned {
		t.Error("expected stale gesture to be abandoned")
	}
	if res.Outcome != OutcomeAccumulated {
		t.Errorf("expected no match on stale samples, got %v %q", res.Outcome, res.Pattern)
	}
	if res.ReferenceLevel != 0.52 {
		t.Errorf("expected reference rebased to 0.52, got %v", res.ReferenceLevel)
	}
	if len(rec.names()) != 0 {
		t.Errorf("expected no action, got %v", rec.names())
	}
	if len(host.calls()) != 0 {
		t.Errorf("expected no write-back on abandonment, got %v", host.calls())
	}
	st := e.Snapshot()
	if len(st.Pending) != 1 || st.Pending[0] != 0.5 {
		t.Errorf("expected pending [0.5], got %v", st.Pending)
	}
}

func TestEngine_WithinIdleWindowAccumulates(t *testing.T) {
	host := &fakeHost{level: 0.5}
	rec := &recorder{}
	e := newTestEngine(t, host, defaultSpecs(rec))

	mustSample(t, e, 0.48, t0)
	res := mustSample(t, e, 0.5, t0.Add(ms(500)))

	if res.Abandoned {
		t.Error("expected gesture kept at exactly the idle window")
	}
	if res.Outcome != OutcomeMatched || res.Pattern != "Next" {
		t.Errorf("expected Next, got %v %q", res.Outcome, res.Pattern)
	}
}

func TestEngine_NoChangeNeverSegments(t *testing.T) {
	host := &fakeHost{level: 0.3}
	rec := &recorder{}
	e := newTestEngine(t, host, defaultSpecs(rec)[:2])

	for i := 0; i < 5; i++ {
		res := mustSample(t, e, 0.3, t0.Add(ms(10*i)))
		if len(res.Segments) != 0 {
			t.Fatalf("sample %d: expected no segments, got %s", i, FormatSegments(res.Segments))
		}
	}
	if len(rec.names()) != 0 {
		t.Errorf("expected no actions, got %v", rec.names())
	}
}

func TestEngine_AbsolutePattern(t *testing.T) {
	host := &fakeHost{level: 0.04}
	rec := &recorder{}
	e := newTestEngine(t, host, defaultSpecs(rec))

	mustSample(t, e, 0.02, t0.Add(ms(10)))
	res := mustSample(t, e, 0.0, t0.Add(ms(20)))

	if res.Outcome != OutcomeMatched || res.Pattern != "Shutdown" {
		t.Fatalf("expected Shutdown, got %v %q (%s)", res.Outcome, res.Pattern, FormatSegments(res.Segments))
	}
	if got := host.calls(); len(got) != 1 || got[0] != 0.04 {
		t.Errorf("expected write-back of 0.04, got %v", got)
	}
}

func TestEngine_FirstMatchWinsAcrossIdenticalShapes(t *testing.T) {
	host := &fakeHost{level: 0.5}
	rec := &recorder{}
	e := newTestEngine(t, host, []PatternSpec{
		{Name: "a", Action: rec.action("a"), Ranges: []ClickRange{ClickSpan(1, 2)}},
		{Name: "b", Action: rec.action("b"), Ranges: []ClickRange{ClickSpan(1, 3)}},
	})

	res := mustSample(t, e, 0.52, t0.Add(ms(10)))
	if res.Pattern != "a" {
		t.Errorf("expected a, got %q", res.Pattern)
	}
	if got := rec.names(); len(got) != 1 || got[0] != "a" {
		t.Errorf("expected only a to run, got %v", got)
	}
}

func TestEngine_ZeroRangePatternMatchesStillLevel(t *testing.T) {
	host := &fakeHost{level: 0.5}
	rec := &recorder{}
	e := newTestEngine(t, host, []PatternSpec{{Name: "empty", Action: rec.action("empty")}})

	res := mustSample(t, e, 0.5, t0.Add(ms(10)))
	if res.Outcome != OutcomeMatched || res.Pattern != "empty" {
		t.Errorf("expected zero-range pattern to match a still level, got %v", res.Outcome)
	}
}

func TestEngine_ActionErrorPropagates(t *testing.T) {
	host := &fakeHost{level: 0.5}
	boom := errors.New("spawn failed")
	e := newTestEngine(t, host, []PatternSpec{
		{Name: "up", Action: ActionFunc(func() error { return boom }), Ranges: []ClickRange{Clicks(1)}},
	})

	res, err := e.OnSample(0.52, t0.Add(ms(10)))
	if !errors.Is(err, boom) {
		t.Fatalf("expected action error, got %v", err)
	}
	if res.Outcome != OutcomeMatched {
		t.Errorf("expected matched outcome alongside error, got %v", res.Outcome)
	}
	st := e.Snapshot()
	if st.SuppressUntil.IsZero() || len(st.Pending) != 0 {
		t.Errorf("expected state reset despite action error, got %+v", st)
	}
}

func TestEngine_WriteBackErrorPropagates(t *testing.T) {
	writeErr := errors.New("endpoint gone")
	host := &fakeHost{level: 0.5, writeErr: writeErr}
	rec := &recorder{}
	e := newTestEngine(t, host, []PatternSpec{
		{Name: "up", Action: rec.action("up"), Ranges: []ClickRange{Clicks(1)}},
	})

	_, err := e.OnSample(0.52, t0.Add(ms(10)))
	if !errors.Is(err, writeErr) {
		t.Fatalf("expected write-back error, got %v", err)
	}
	if len(rec.names()) != 1 {
		t.Errorf("expected action to run despite write-back error")
	}

	_, err = e.OnSample(0.52, t0.Add(ms(20)))
	if !errors.Is(err, writeErr) {
		t.Errorf("expected write-back error while suppressed, got %v", err)
	}
}

func TestEngine_Close(t *testing.T) {
	e := newTestEngine(t, &fakeHost{level: 0.5}, nil)
	e.Close()

	if _, err := e.OnSample(0.52, t0); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestEngine_SnapshotIsCopy(t *testing.T) {
	e := newTestEngine(t, &fakeHost{level: 0.5}, nil)
	mustSample(t, e, 0.52, t0.Add(ms(10)))

	st := e.Snapshot()
	st.Pending[0] = 42

	if e.Snapshot().Pending[0] != 0.52 {
		t.Error("expected snapshot to be detached from engine state")
	}
}

func TestEngine_ConcurrentSamples(t *testing.T) {
	host := &fakeHost{level: 0.5}
	rec := &recorder{}
	e := newTestEngine(t, host, defaultSpecs(rec))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				level := 0.5 + float64((g+i)%3-1)*0.02
				_, _ = e.OnSample(level, t0.Add(ms(i)))
			}
		}(g)
	}
	wg.Wait()

	// Just verify the state is still coherent.
	st := e.Snapshot()
	if len(st.Pending) > 800 {
		t.Errorf("unexpected pending length %d", len(st.Pending))
	}
}
