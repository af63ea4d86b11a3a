package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// externalSource receives levels over IPC from whatever watches the real
// mixer, and restores levels by running a user command.
type externalSource struct {
	argv    []string
	timeout time.Duration
	logger  *slog.Logger

	// run executes argv; replaced in tests.
	run func(ctx context.Context, argv []string) error

	mu    sync.Mutex
	level float64
}

func newExternalSource(cfg SourceConfig, logger *slog.Logger) *externalSource {
	return &externalSource{
		argv:    cfg.SetVolumeCommand,
		timeout: time.Duration(cfg.CommandTimeoutMS) * time.Millisecond,
		logger:  logger,
		run:     runCommand,
		level:   clampLevel(cfg.InitialLevel),
	}
}

func (s *externalSource) Name() string { return SourceExternal }

// CurrentVolume implements gesture.Host.
func (s *externalSource) CurrentVolume() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level, nil
}

// SetVolume implements gesture.Host by running the set_volume_command.
func (s *externalSource) SetVolume(level float64) error {
	argv := expandVolumeCommand(s.argv, level)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.run(ctx, argv); err != nil {
		return fmt.Errorf("set volume command %q: %w", strings.Join(argv, " "), err)
	}

	s.mu.Lock()
	s.level = clampLevel(level)
	s.mu.Unlock()
	s.logger.Debug("external volume restored", "level", level, "command", argv)
	return nil
}

// Run only waits for shutdown; samples arrive through IPC.
func (s *externalSource) Run(ctx context.Context, events chan<- Event) error {
	s.logger.Info("waiting for volume samples over IPC")
	<-ctx.Done()
	return nil
}

// expandVolumeCommand substitutes {level} (0..1) and {percent} (0..100,
// rounded) in every argument.
func expandVolumeCommand(argv []string, level float64) []string {
	level = clampLevel(level)
	r := strings.NewReplacer(
		"{level}", strconv.FormatFloat(level, 'f', 4, 64),
		"{percent}", strconv.Itoa(int(math.Round(level*100))),
	)
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = r.Replace(a)
	}
	return out
}

// runCommand runs argv to completion.
func runCommand(ctx context.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}
