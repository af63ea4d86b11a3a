// Package gesture recognizes button gestures from a stream of output volume
// levels.
//
// Headsets do not report button presses to the host; they nudge the output
// volume up or down by one click per press. The Engine reconstructs intent by
// folding the levels reported since the last rest point into directional
// segments and matching the segment sequence against compiled patterns.
// After a match the engine writes the pre-gesture level back and ignores the
// notifications caused by that write for a short suppression window.
package gesture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Default timing.
const (
	DefaultIdleWindow     = 500 * time.Millisecond
	DefaultSuppressWindow = 100 * time.Millisecond
)

// ErrClosed is returned by OnSample after Close.
var ErrClosed = errors.New("gesture: engine closed")

// Host is the volume endpoint the engine is bound to.
type Host interface {
	// CurrentVolume returns the current level in [0,1]. It is read once,
	// during New.
	CurrentVolume() (float64, error)

	// SetVolume forces the level. It is called synchronously from OnSample
	// and must not call back into the engine.
	SetVolume(level float64) error
}

// Action is invoked when its pattern matches. Do runs synchronously inside
// OnSample; anything slow belongs in a goroutine started by the action.
type Action interface {
	Do() error
}

// ActionFunc adapts a function to Action.
type ActionFunc func() error

func (f ActionFunc) Do() error { return f() }

// Config holds the engine timing and scale parameters. Zero values select
// the defaults.
type Config struct {
	// ClickStep is the volume fraction of one button click.
	ClickStep float64

	// IdleWindow is the inactivity after which an unmatched gesture is
	// abandoned.
	IdleWindow time.Duration

	// SuppressWindow is how long after a match incoming levels are
	// discarded and the reference level is forced back.
	SuppressWindow time.Duration

	// Now stamps the engine's creation time. Defaults to time.Now.
	Now func() time.Time

	// Logger receives debug traces. Defaults to a discarding logger.
	Logger *slog.Logger
}

func (c Config) withDefaults() (Config, error) {
	if c.ClickStep < 0 || c.ClickStep > 1 {
		return c, fmt.Errorf("gesture: click step %v out of range (0,1]", c.ClickStep)
	}
	if c.IdleWindow < 0 {
		return c, fmt.Errorf("gesture: negative idle window %v", c.IdleWindow)
	}
	if c.SuppressWindow < 0 {
		return c, fmt.Errorf("gesture: negative suppress window %v", c.SuppressWindow)
	}
	if c.ClickStep == 0 {
		c.ClickStep = DefaultClickStep
	}
	if c.IdleWindow == 0 {
		c.IdleWindow = DefaultIdleWindow
	}
	if c.SuppressWindow == 0 {
		c.SuppressWindow = DefaultSuppressWindow
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c, nil
}

// State is the mutable recognition state. Snapshot returns a copy.
type State struct {
	ReferenceLevel float64   `json:"reference_level"`
	PreviousLevel  float64   `json:"previous_level"`
	Pending        []float64 `json:"pending"`
	LastInput      time.Time `json:"last_input"`

	// SuppressUntil is zero when no suppression window is armed.
	SuppressUntil time.Time `json:"suppress_until,omitzero"`
}

// Outcome classifies what OnSample did with a level.
type Outcome int

const (
	// OutcomeAccumulated: the level was appended and nothing matched.
	OutcomeAccumulated Outcome = iota
	// OutcomeSuppressed: the level arrived inside the suppression window and
	// was discarded.
	OutcomeSuppressed
	// OutcomeMatched: a pattern matched and its action ran.
	OutcomeMatched
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccumulated:
		return "accumulated"
	case OutcomeSuppressed:
		return "suppressed"
	case OutcomeMatched:
		return "matched"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result describes one OnSample call.
type Result struct {
	Outcome Outcome

	// Pattern is the matched pattern name (OutcomeMatched only).
	Pattern string

	// Segments is the segment sequence the matcher saw. Empty when the level
	// was suppressed.
	Segments []Segment

	// Abandoned is set when a stale in-flight gesture was dropped before this
	// level was appended.
	Abandoned bool

	// ReferenceLevel after the call.
	ReferenceLevel float64
}

// Engine owns the recognition state for one volume endpoint. It is safe for
// concurrent use; calls to OnSample are serialized.
type Engine struct {
	cfg      Config
	patterns []CompiledPattern
	host     Host
	logger   *slog.Logger

	mu     sync.Mutex
	state  State
	closed bool
}

// New compiles specs and binds the engine to host. The initial reference
// level is read from host.
func New(cfg Config, specs []PatternSpec, host Host) (*Engine, error) {
	if host == nil {
		return nil, errors.New("gesture: nil host")
	}
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	level, err := host.CurrentVolume()
	if err != nil {
		return nil, fmt.Errorf("gesture: read initial volume: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		patterns: CompileAll(cfg.ClickStep, specs),
		host:     host,
		logger:   cfg.Logger,
		state: State{
			ReferenceLevel: level,
			PreviousLevel:  level,
			Pending:        make([]float64, 0, 32),
			LastInput:      cfg.Now(),
		},
	}

	for _, p := range e.patterns {
		e.logger.Debug("compiled pattern", "name", p.Name, "windows", FormatWindows(p.Windows))
	}
	return e, nil
}

// OnSample feeds one level observed at time at.
//
// Write-back and action errors are returned after the state has been
// updated; the engine itself never retries them.
func (e *Engine) OnSample(level float64, at time.Time) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return Result{}, ErrClosed
	}

	s := &e.state

	if !s.SuppressUntil.IsZero() {
		if !at.After(s.SuppressUntil) {
			// Trailing notifications of our own write-back.
			s.PreviousLevel = s.ReferenceLevel
			res := Result{Outcome: OutcomeSuppressed, ReferenceLevel: s.ReferenceLevel}
			e.logger.Debug("level suppressed", "level", level, "reference", s.ReferenceLevel)
			if err := e.host.SetVolume(s.ReferenceLevel); err != nil {
				return res, fmt.Errorf("gesture: restore reference level: %w", err)
			}
			return res, nil
		}
		s.SuppressUntil = time.Time{}
	}

	res := Result{Outcome: OutcomeAccumulated}

	if len(s.Pending) == 0 {
		s.ReferenceLevel = s.PreviousLevel
	} else if at.Sub(s.LastInput) > e.cfg.IdleWindow {
		e.logger.Debug("gesture abandoned", "pending", len(s.Pending), "idle", at.Sub(s.LastInput))
		s.ReferenceLevel = s.PreviousLevel
		s.Pending = s.Pending[:0]
		res.Abandoned = true
	}

	s.Pending = append(s.Pending, level)
	res.Segments = Segments(s.ReferenceLevel, s.Pending)

	e.logger.Debug("segments", "reference", s.ReferenceLevel, "level", level, "trace", FormatSegments(res.Segments))

	var err error
	if i := Match(res.Segments, e.patterns); i >= 0 {
		p := e.patterns[i]
		res.Outcome = OutcomeMatched
		res.Pattern = p.Name

		s.SuppressUntil = at.Add(e.cfg.SuppressWindow)
		if werr := e.host.SetVolume(s.ReferenceLevel); werr != nil {
			err = fmt.Errorf("gesture: restore reference level: %w", werr)
		}
		s.Pending = s.Pending[:0]

		e.logger.Debug("pattern matched", "name", p.Name, "reference", s.ReferenceLevel)
		if p.Action != nil {
			if aerr := p.Action.Do(); aerr != nil {
				err = errors.Join(err, fmt.Errorf("gesture: action %q: %w", p.Name, aerr))
			}
		}
	}

	s.LastInput = at
	s.PreviousLevel = level
	res.ReferenceLevel = s.ReferenceLevel
	return res, err
}

// Snapshot returns a copy of the recognition state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.state
	st.Pending = append([]float64(nil), e.state.Pending...)
	return st
}

// Patterns returns the compiled patterns in declaration order.
func (e *Engine) Patterns() []CompiledPattern {
	return append([]CompiledPattern(nil), e.patterns...)
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Close stops the engine. Further OnSample calls return ErrClosed.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.state.Pending = nil
}
