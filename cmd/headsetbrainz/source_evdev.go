package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// evdevSource turns headset volume key presses into levels of a virtual
// mixer. Each press or auto-repeat moves the level by one click step, the
// way the host mixer would react to the same keys.
type evdevSource struct {
	devices []string
	step    float64
	logger  *slog.Logger

	mu    sync.Mutex
	level float64
}

func newEvdevSource(devices []string, initialLevel, step float64, logger *slog.Logger) *evdevSource {
	return &evdevSource{
		devices: devices,
		step:    step,
		logger:  logger,
		level:   clampLevel(initialLevel),
	}
}

func (s *evdevSource) Name() string { return SourceEvdev }

// CurrentVolume implements gesture.Host.
func (s *evdevSource) CurrentVolume() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level, nil
}

// SetVolume implements gesture.Host. The virtual mixer has no observers, so
// a restore produces no follow-up sample.
func (s *evdevSource) SetVolume(level float64) error {
	s.mu.Lock()
	s.level = clampLevel(level)
	s.mu.Unlock()
	s.logger.Debug("virtual mixer restored", "level", level)
	return nil
}

// applyKey moves the virtual level for a volume key event. It reports the
// new level and whether it changed.
func (s *evdevSource) applyKey(ev inputEvent) (float64, bool) {
	if ev.Type != EV_KEY {
		return 0, false
	}
	if ev.Value != evValuePress && ev.Value != evValueRepeat {
		return 0, false
	}

	var delta float64
	switch ev.Code {
	case KEY_VOLUMEUP:
		delta = s.step
	case KEY_VOLUMEDOWN:
		delta = -s.step
	default:
		return 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := clampLevel(s.level + delta)
	if next == s.level {
		return next, false
	}
	s.level = next
	return next, true
}

// sample applies a key event and stamps the resulting level with the kernel
// time of the key press.
func (s *evdevSource) sample(ev inputEvent) (VolumeSampled, bool) {
	level, changed := s.applyKey(ev)
	if !changed {
		return VolumeSampled{}, false
	}
	at := ev.Time()
	if ev.Sec == 0 {
		at = time.Now()
	}
	return VolumeSampled{Level: level, At: at}, true
}

// Run opens the configured devices and emits a VolumeSampled per level change.
func (s *evdevSource) Run(ctx context.Context, events chan<- Event) error {
	files := make([]*os.File, 0, len(s.devices))
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	for _, dev := range s.devices {
		f, err := os.Open(dev)
		if err != nil {
			return fmt.Errorf("open input device %s (run as root or add user to 'input' group): %w", dev, err)
		}
		files = append(files, f)
	}
	s.logger.Info("reading headset keys", "devices", s.devices)

	raw := make(chan inputEvent, 64)
	readErr := make(chan error, 1)
	go func() {
		readErr <- readInputEventsEpoll(ctx, files, raw)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("input reader stopped: %w", err)
			}
			return nil

		case ev := <-raw:
			sample, ok := s.sample(ev)
			if !ok {
				continue
			}
			select {
			case events <- sample:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
