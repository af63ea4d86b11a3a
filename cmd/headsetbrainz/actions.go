package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"

	"headsetbrainz/internal/gesture"
)

// ============================================================================
// Gesture actions
// ============================================================================
// Actions run synchronously on the daemon goroutine, so anything that may
// take longer than a key tap is started without waiting for it.
// ============================================================================

// keyTapper emits a press+release of one key.
type keyTapper interface {
	Tap(code uint16) error
}

// actionDeps are the side-effect endpoints actions are bound to.
type actionDeps struct {
	logger   *slog.Logger
	keyboard keyTapper
	camilla  CamillaDSPClientInterface

	// start launches argv without waiting for it to exit.
	start func(argv []string) error
}

// buildPatterns turns YAML patterns into engine specs, in order.
func buildPatterns(cfgs []PatternConfig, deps actionDeps) ([]gesture.PatternSpec, error) {
	specs := make([]gesture.PatternSpec, 0, len(cfgs))
	for _, p := range cfgs {
		action, err := buildAction(p.Name, p.Action, deps)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p.Name, err)
		}
		ranges := make([]gesture.ClickRange, len(p.Ranges))
		for i, r := range p.Ranges {
			ranges[i] = r.ClickRange()
		}
		specs = append(specs, gesture.PatternSpec{
			Name:   p.Name,
			Action: action,
			Ranges: ranges,
		})
	}
	return specs, nil
}

func buildAction(name string, a ActionConfig, deps actionDeps) (gesture.Action, error) {
	logger := deps.logger.With("pattern", name, "action", a.Type)

	switch a.Type {
	case ActionKey:
		code, ok := mediaKeys[a.Key]
		if !ok {
			return nil, fmt.Errorf("unknown key %q", a.Key)
		}
		if deps.keyboard == nil {
			return nil, errors.New("key actions need a virtual keyboard")
		}
		return gesture.ActionFunc(func() error {
			logger.Debug("tapping key", "key", a.Key, "code", code)
			return deps.keyboard.Tap(code)
		}), nil

	case ActionShutdown:
		return startAction(logger, deps, []string{"shutdown", "-h", "now"}), nil

	case ActionShutdownIn:
		// shutdown(8) schedules in whole minutes.
		minutes := (a.DelaySec + 59) / 60
		return startAction(logger, deps, []string{"shutdown", "-h", "+" + strconv.Itoa(minutes)}), nil

	case ActionExec:
		if len(a.Command) == 0 {
			return nil, errors.New("exec action without command")
		}
		return startAction(logger, deps, a.Command), nil

	case ActionToggleMute:
		if deps.camilla == nil {
			return nil, errNoClient
		}
		return gesture.ActionFunc(func() error {
			muted, err := deps.camilla.ToggleMute()
			if err != nil {
				return err
			}
			logger.Info("mute toggled", "muted", muted)
			return nil
		}), nil

	case ActionLog:
		return gesture.ActionFunc(func() error {
			logger.Info("gesture action (log only)")
			return nil
		}), nil

	default:
		return nil, fmt.Errorf("unknown action type %q", a.Type)
	}
}

func startAction(logger *slog.Logger, deps actionDeps, argv []string) gesture.Action {
	start := deps.start
	if start == nil {
		start = startCommand
	}
	return gesture.ActionFunc(func() error {
		logger.Info("starting command", "command", argv)
		return start(argv)
	})
}

// startCommand launches argv and reaps it in the background.
func startCommand(argv []string) error {
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", argv[0], err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
