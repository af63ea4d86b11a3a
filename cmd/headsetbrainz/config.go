package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"headsetbrainz/internal/gesture"
)

// Config is the top-level YAML configuration for the headsetbrainz daemon.
//
// Defaults and validation live here so the rest of the code can assume a
// well-formed config.
type Config struct {
	// Where volume levels come from and where corrective write-backs go.
	Source SourceConfig `yaml:"source"`

	// CamillaDSP connection (used by the camilladsp source and toggle_mute).
	CamillaDSP CamillaDSPConfig `yaml:"camilladsp"`

	// Recognizer timing and scale.
	Gesture GestureConfig `yaml:"gesture"`

	// Gesture declarations, in match priority order.
	Patterns []PatternConfig `yaml:"patterns"`

	// Virtual keyboard used by key actions.
	Keyboard KeyboardConfig `yaml:"keyboard"`

	IPC IPCConfig `yaml:"ipc"`

	// State websocket server.
	StateWS StateWSConfig `yaml:"state_ws"`

	Logging LoggingConfig `yaml:"logging"`
}

// Source kinds.
const (
	SourceCamillaDSP = "camilladsp"
	SourceEvdev      = "evdev"
	SourceExternal   = "external"
)

type SourceConfig struct {
	Kind string `yaml:"kind"`

	// camilladsp: GetVolume polling rate. The poll interval must not exceed
	// gesture.suppress_window_ms.
	PollHz int `yaml:"poll_hz"`

	// evdev: input devices carrying the headset volume keys.
	Devices []string `yaml:"devices,omitempty"`

	// evdev, external: level assumed at startup.
	InitialLevel float64 `yaml:"initial_level"`

	// external: argv run on write-back. {level} and {percent} are substituted.
	SetVolumeCommand []string `yaml:"set_volume_command,omitempty"`
	CommandTimeoutMS int      `yaml:"command_timeout_ms"`
}

type CamillaDSPConfig struct {
	WsURL     string  `yaml:"ws_url"`
	TimeoutMS int     `yaml:"timeout_ms"`
	MinDB     float64 `yaml:"min_db"`
	MaxDB     float64 `yaml:"max_db"`
}

type GestureConfig struct {
	ClickStep        float64 `yaml:"click_step"`
	IdleWindowMS     int     `yaml:"idle_window_ms"`
	SuppressWindowMS int     `yaml:"suppress_window_ms"`
}

// PatternConfig is one gesture as written in YAML.
type PatternConfig struct {
	Name   string             `yaml:"name"`
	Action ActionConfig       `yaml:"action"`
	Ranges []ClickRangeConfig `yaml:"ranges"`
}

// ClickRangeConfig holds one or two click counts. Relative defaults to true.
type ClickRangeConfig struct {
	Clicks   []int `yaml:"clicks,flow"`
	Relative *bool `yaml:"relative,omitempty"`
}

// Action types.
const (
	ActionKey        = "key"
	ActionShutdown   = "shutdown"
	ActionShutdownIn = "shutdown_in"
	ActionToggleMute = "toggle_mute"
	ActionExec       = "exec"
	ActionLog        = "log"
)

type ActionConfig struct {
	Type     string   `yaml:"type"`
	Key      string   `yaml:"key,omitempty"`
	DelaySec int      `yaml:"delay_sec,omitempty"`
	Command  []string `yaml:"command,omitempty,flow"`
}

type KeyboardConfig struct {
	Name string `yaml:"name"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type StateWSConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
//
// The default patterns are the classic headset gestures: up-then-down toggles
// playback, down-then-up skips, and running the volume all the way down
// powers the machine off.
func DefaultConfig() Config {
	absolute := false
	return Config{
		Source: SourceConfig{
			Kind:             SourceCamillaDSP,
			PollHz:           defaultPollHz,
			InitialLevel:     0.5,
			CommandTimeoutMS: defaultCommandTimeoutMS,
		},
		CamillaDSP: CamillaDSPConfig{
			WsURL:     "ws://127.0.0.1:1234",
			TimeoutMS: defaultReadTimeoutMS,
			MinDB:     -65.0,
			MaxDB:     0.0,
		},
		Gesture: GestureConfig{
			ClickStep:        gesture.DefaultClickStep,
			IdleWindowMS:     int(gesture.DefaultIdleWindow / time.Millisecond),
			SuppressWindowMS: int(gesture.DefaultSuppressWindow / time.Millisecond),
		},
		Patterns: []PatternConfig{
			{
				Name:   "Play/Pause",
				Action: ActionConfig{Type: ActionKey, Key: "playpause"},
				Ranges: []ClickRangeConfig{{Clicks: []int{1, 3}}, {Clicks: []int{-1, -3}}},
			},
			{
				Name:   "Next",
				Action: ActionConfig{Type: ActionKey, Key: "next"},
				Ranges: []ClickRangeConfig{{Clicks: []int{-1, -3}}, {Clicks: []int{1, 3}}},
			},
			{
				Name:   "Shutdown",
				Action: ActionConfig{Type: ActionShutdown},
				Ranges: []ClickRangeConfig{{Clicks: []int{0}, Relative: &absolute}},
			},
		},
		Keyboard: KeyboardConfig{
			Name: defaultKeyboardName,
		},
		IPC: IPCConfig{
			SocketPath: defaultSocketPath,
		},
		StateWS: StateWSConfig{
			Port: defaultStateWSPort,
			Path: "/ws",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file over DefaultConfig.
//
// Unknown fields are rejected via KnownFields(true). A patterns list in the
// file replaces the default patterns entirely.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parseConfig(b)
}

func parseConfig(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides carries command-line overrides. A nil pointer means the flag
// was not set; a non-nil pointer is applied even if it holds a zero value.
type FlagOverrides struct {
	SourceKind *string

	CamillaWsURL *string

	IPCSocketPath *string
	StateWSPort   *int

	LogLevel *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.SourceKind != nil {
		cfg.Source.Kind = *o.SourceKind
	}
	if o.CamillaWsURL != nil {
		cfg.CamillaDSP.WsURL = *o.CamillaWsURL
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.StateWSPort != nil {
		cfg.StateWS.Port = *o.StateWSPort
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// It is called after defaults, file and overrides are applied.
func (c *Config) Validate() error {
	// Source
	switch c.Source.Kind {
	case SourceCamillaDSP:
		if c.Source.PollHz <= 0 || c.Source.PollHz > 1000 {
			return errors.New("source.poll_hz must be between 1 and 1000")
		}
	case SourceEvdev:
		if len(c.Source.Devices) == 0 {
			return errors.New("source.devices must not be empty for the evdev source")
		}
		for i, dev := range c.Source.Devices {
			if dev == "" {
				return fmt.Errorf("source.devices[%d] is empty", i)
			}
		}
	case SourceExternal:
		if len(c.Source.SetVolumeCommand) == 0 || c.Source.SetVolumeCommand[0] == "" {
			return errors.New("source.set_volume_command must not be empty for the external source")
		}
		if c.Source.CommandTimeoutMS <= 0 {
			return errors.New("source.command_timeout_ms must be > 0")
		}
	default:
		return fmt.Errorf("source.kind must be one of %q, %q, %q", SourceCamillaDSP, SourceEvdev, SourceExternal)
	}
	if c.Source.InitialLevel < 0 || c.Source.InitialLevel > 1 {
		return errors.New("source.initial_level must be between 0 and 1")
	}

	// CamillaDSP
	if c.usesCamillaDSP() {
		if c.CamillaDSP.WsURL == "" {
			return errors.New("camilladsp.ws_url must not be empty")
		}
		if c.CamillaDSP.TimeoutMS <= 0 {
			return errors.New("camilladsp.timeout_ms must be > 0")
		}
		if c.CamillaDSP.MinDB >= c.CamillaDSP.MaxDB {
			return errors.New("camilladsp.min_db must be < camilladsp.max_db")
		}
	}

	// Gesture
	if c.Gesture.ClickStep <= 0 || c.Gesture.ClickStep > 1 {
		return errors.New("gesture.click_step must be in (0, 1]")
	}
	// Zero would silently select the engine defaults.
	if c.Gesture.IdleWindowMS <= 0 {
		return errors.New("gesture.idle_window_ms must be > 0")
	}
	if c.Gesture.SuppressWindowMS <= 0 {
		return errors.New("gesture.suppress_window_ms must be > 0")
	}
	// The poller sees its own write-back one poll later; that sample must
	// still land inside the suppression window.
	if c.usesCamillaDSP() {
		if pollMS := (1000 + c.Source.PollHz - 1) / c.Source.PollHz; pollMS > c.Gesture.SuppressWindowMS {
			return fmt.Errorf("source.poll_hz %d polls every %dms, longer than gesture.suppress_window_ms %d", c.Source.PollHz, pollMS, c.Gesture.SuppressWindowMS)
		}
	}

	// Patterns
	if len(c.Patterns) == 0 {
		return errors.New("patterns must not be empty")
	}
	seen := make(map[string]bool, len(c.Patterns))
	for i, p := range c.Patterns {
		if p.Name == "" {
			return fmt.Errorf("patterns[%d].name must not be empty", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("patterns[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true

		if len(p.Ranges) == 0 {
			return fmt.Errorf("patterns[%d] (%s): at least one range is required", i, p.Name)
		}
		for j, r := range p.Ranges {
			if n := len(r.Clicks); n < 1 || n > 2 {
				return fmt.Errorf("patterns[%d] (%s).ranges[%d]: clicks must hold 1 or 2 values, got %d", i, p.Name, j, n)
			}
		}
		if err := p.Action.validate(c.Source.Kind); err != nil {
			return fmt.Errorf("patterns[%d] (%s).action: %w", i, p.Name, err)
		}
	}

	// Keyboard
	if c.needsKeyboard() && c.Keyboard.Name == "" {
		return errors.New("keyboard.name must not be empty when key actions are configured")
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	// State websocket
	if c.StateWS.Port < 0 || c.StateWS.Port > 65535 {
		return errors.New("state_ws.port must be between 0 and 65535")
	}
	if c.StateWS.Port > 0 && (c.StateWS.Path == "" || c.StateWS.Path[0] != '/') {
		return errors.New("state_ws.path must start with /")
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

func (a ActionConfig) validate(sourceKind string) error {
	switch a.Type {
	case ActionKey:
		if _, ok := mediaKeys[a.Key]; !ok {
			return fmt.Errorf("unknown key %q", a.Key)
		}
	case ActionShutdown, ActionLog:
	case ActionShutdownIn:
		if a.DelaySec <= 0 {
			return errors.New("delay_sec must be > 0")
		}
	case ActionToggleMute:
		if sourceKind != SourceCamillaDSP {
			return fmt.Errorf("toggle_mute requires source.kind %q", SourceCamillaDSP)
		}
	case ActionExec:
		if len(a.Command) == 0 || a.Command[0] == "" {
			return errors.New("command must not be empty")
		}
	case "":
		return errors.New("type must not be empty")
	default:
		return fmt.Errorf("unknown type %q", a.Type)
	}
	return nil
}

func (c *Config) usesCamillaDSP() bool {
	return c.Source.Kind == SourceCamillaDSP
}

func (c *Config) needsKeyboard() bool {
	for _, p := range c.Patterns {
		if p.Action.Type == ActionKey {
			return true
		}
	}
	return false
}

// ToGestureConfig converts the file config into the engine config.
func (c *Config) ToGestureConfig(logger *slog.Logger) gesture.Config {
	return gesture.Config{
		ClickStep:      c.Gesture.ClickStep,
		IdleWindow:     time.Duration(c.Gesture.IdleWindowMS) * time.Millisecond,
		SuppressWindow: time.Duration(c.Gesture.SuppressWindowMS) * time.Millisecond,
		Logger:         logger,
	}
}

// ClickRange converts a YAML range into the engine's form.
func (r ClickRangeConfig) ClickRange() gesture.ClickRange {
	cr := gesture.ClickRange{Relative: true}
	if r.Relative != nil {
		cr.Relative = *r.Relative
	}
	if len(r.Clicks) > 0 {
		cr.X1 = r.Clicks[0]
		cr.X2 = r.Clicks[0]
	}
	if len(r.Clicks) > 1 {
		cr.X2 = r.Clicks[1]
	}
	return cr
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
