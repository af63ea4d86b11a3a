package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"headsetbrainz/internal/gesture"
)

// ============================================================================
// Central Daemon Loop
// ============================================================================
//
// Rules enforced here:
//   - All sources only emit Events; this goroutine is the only caller of
//     Engine.OnSample, so levels are recognized strictly in arrival order.
//   - Broadcast computation (broadcastsFor) performs no I/O; publishing and
//     status replies happen in the loop and never block it.
//
// ============================================================================

// runDaemon consumes events until ctx is canceled, the events channel is
// closed, or the engine is closed.
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	engine *gesture.Engine,
	state *DaemonState,
	broadcasts chan<- StateBroadcast,
	logger *slog.Logger,
) {
	if engine == nil || state == nil {
		logger.Error("daemon started without engine or state")
		return
	}

	publish := func(bs []StateBroadcast) {
		if broadcasts == nil {
			return
		}
		for _, b := range bs {
			select {
			case broadcasts <- b:
			default:
				state.Counters.DroppedCasts++
				logger.Debug("broadcast queue full, dropping", "broadcast", b)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return
			}

			switch e := ev.(type) {
			case VolumeSampled:
				// Only events injected without a source timestamp.
				if e.At.IsZero() {
					e.At = time.Now()
				}
				res, err := engine.OnSample(e.Level, e.At)
				if errors.Is(err, gesture.ErrClosed) {
					logger.Info("daemon stopping (engine closed)")
					return
				}
				if err != nil {
					logger.Error("gesture handling failed", "pattern", res.Pattern, "error", err)
				}
				state.Observe(res, err, e.At)
				logResult(logger, e, res)
				publish(broadcastsFor(e, res, err))

			case StatusRequest:
				if e.Reply == nil {
					logger.Warn("status requested with nil reply channel")
					continue
				}
				select {
				case e.Reply <- state.Snapshot(engine):
				default:
					logger.Warn("status reply channel not ready; dropping snapshot")
				}

			default:
				logger.Warn("unknown event type", "type", ev)
			}
		}
	}
}

func logResult(logger *slog.Logger, ev VolumeSampled, res gesture.Result) {
	switch res.Outcome {
	case gesture.OutcomeMatched:
		logger.Info("gesture matched",
			"pattern", res.Pattern,
			"reference", res.ReferenceLevel,
			"trace", gesture.FormatSegments(res.Segments))
	case gesture.OutcomeSuppressed:
		logger.Debug("sample suppressed", "level", ev.Level, "reference", res.ReferenceLevel)
	default:
		if res.Abandoned {
			logger.Debug("gesture abandoned", "reference", res.ReferenceLevel)
		}
		logger.Debug("sample", "level", ev.Level, "trace", gesture.FormatSegments(res.Segments))
	}
}

// ============================================================================
// Broadcasts
// ============================================================================

// StateBroadcast is an outbound state change for websocket clients.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastSample is emitted for every level that was fed to the matcher.
type BroadcastSample struct {
	Level          float64
	ReferenceLevel float64
	Segments       []gesture.Segment
	At             time.Time
}

func (BroadcastSample) broadcastMarker() {}

// BroadcastSuppressed is emitted for levels discarded after a match.
type BroadcastSuppressed struct {
	Level          float64
	ReferenceLevel float64
	At             time.Time
}

func (BroadcastSuppressed) broadcastMarker() {}

// BroadcastAbandoned is emitted when a stale gesture was dropped.
type BroadcastAbandoned struct {
	ReferenceLevel float64
	At             time.Time
}

func (BroadcastAbandoned) broadcastMarker() {}

// BroadcastGestureMatched is emitted after a pattern's action ran.
type BroadcastGestureMatched struct {
	Pattern        string
	ReferenceLevel float64
	Segments       []gesture.Segment
	Err            string
	At             time.Time
}

func (BroadcastGestureMatched) broadcastMarker() {}

// broadcastsFor maps one engine result to the broadcasts it produces.
func broadcastsFor(ev VolumeSampled, res gesture.Result, err error) []StateBroadcast {
	if res.Outcome == gesture.OutcomeSuppressed {
		return []StateBroadcast{BroadcastSuppressed{
			Level:          ev.Level,
			ReferenceLevel: res.ReferenceLevel,
			At:             ev.At,
		}}
	}

	var out []StateBroadcast
	if res.Abandoned {
		out = append(out, BroadcastAbandoned{ReferenceLevel: res.ReferenceLevel, At: ev.At})
	}
	out = append(out, BroadcastSample{
		Level:          ev.Level,
		ReferenceLevel: res.ReferenceLevel,
		Segments:       res.Segments,
		At:             ev.At,
	})
	if res.Outcome == gesture.OutcomeMatched {
		m := BroadcastGestureMatched{
			Pattern:        res.Pattern,
			ReferenceLevel: res.ReferenceLevel,
			Segments:       res.Segments,
			At:             ev.At,
		}
		if err != nil {
			m.Err = err.Error()
		}
		out = append(out, m)
	}
	return out
}
