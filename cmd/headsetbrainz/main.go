package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"golang.org/x/sync/errgroup"

	"headsetbrainz/internal/gesture"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("HeadsetBrainz v%s\n", version)
	fmt.Println("Headset button gesture daemon")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  headsetbrainz [OPTIONS]")
	fmt.Println("  headsetbrainz send [OPTIONS] <sample LEVEL | status>")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Watches the output volume a headset controls with its +/- buttons and")
	fmt.Println("  recognizes click sequences (up-down, down-up, ...) as gestures. Each")
	fmt.Println("  gesture runs an action and the volume is restored to where it was")
	fmt.Println("  before the gesture started.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (default: built-in defaults)")
	fmt.Println()
	fmt.Println("  -source string")
	fmt.Println("        Volume source: camilladsp|evdev|external (default \"camilladsp\")")
	fmt.Println()
	fmt.Println("  -camilladsp-ws-url string")
	fmt.Println("        CamillaDSP websocket URL (default \"ws://127.0.0.1:1234\")")
	fmt.Println("        Note: CamillaDSP must be started with -pPORT option")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultSocketPath)
	fmt.Println()
	fmt.Println("  -state-ws-port int")
	fmt.Printf("        State websocket port, 0 disables (default %d)\n", defaultStateWSPort)
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("SUBCOMMANDS:")
	fmt.Println("  send sample LEVEL")
	fmt.Println("        Feed one volume level (0..1) to a running daemon")
	fmt.Println("  send status")
	fmt.Println("        Print the daemon's recognition state")
	fmt.Println("        Options: -ipc-socket")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Watch CamillaDSP with the default gestures")
	fmt.Println("  headsetbrainz")
	fmt.Println()
	fmt.Println("  # Read volume keys straight from a Bluetooth headset")
	fmt.Println("  headsetbrainz -config ~/.config/headsetbrainz.yml -source evdev")
	fmt.Println()
	fmt.Println("  # Feed levels from a PulseAudio watcher script")
	fmt.Println("  headsetbrainz send sample 0.52")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - The evdev source needs read access to the input device")
	fmt.Println("  - Key actions need write access to /dev/uinput")
	fmt.Println()
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "send" {
		os.Exit(runSendSubcommand(os.Args[2:]))
	}

	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath      = flag.String("config", "", "Path to YAML config file")
		sourceKind      = flag.String("source", SourceCamillaDSP, "Volume source: camilladsp|evdev|external")
		camillaDspWsUrl = flag.String("camilladsp-ws-url", "ws://127.0.0.1:1234", "CamillaDSP websocket URL")
		ipcSocketPath   = flag.String("ipc-socket", defaultSocketPath, "Unix domain socket path for IPC")
		stateWSPort     = flag.Int("state-ws-port", defaultStateWSPort, "State websocket port (0 disables)")
		logLevelStr     = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		_               = flag.Bool("version", false, "Print version and exit")
		_               = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	cfg := DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	}

	// Only flags given on the command line override the file.
	var ov FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "source":
			ov.SourceKind = sourceKind
		case "camilladsp-ws-url":
			ov.CamillaWsURL = camillaDspWsUrl
		case "ipc-socket":
			ov.IPCSocketPath = ipcSocketPath
		case "state-ws-port":
			ov.StateWSPort = stateWSPort
		case "log-level":
			ov.LogLevel = logLevelStr
		}
	})
	ov.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level)
	logger := setupLogger(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("headsetbrainz stopped", "error", err)
		stop()
		os.Exit(1)
	}
	logger.Info("shutting down")
}

// sampleSource is where levels come from and where restores go.
type sampleSource interface {
	gesture.Host
	Name() string
	Run(ctx context.Context, events chan<- Event) error
}

// run wires the daemon together and blocks until ctx is canceled or a
// component fails.
func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	var camilla CamillaDSPClientInterface
	if cfg.usesCamillaDSP() {
		client, err := NewCamillaDSPClient(cfg.CamillaDSP.WsURL, logger, cfg.CamillaDSP.TimeoutMS)
		if err != nil {
			return fmt.Errorf("connect to CamillaDSP: %w", err)
		}
		defer client.Close()
		camilla = client
	}

	var source sampleSource
	switch cfg.Source.Kind {
	case SourceCamillaDSP:
		source = newCamillaSource(camilla, cfg.CamillaDSP, cfg.Source.PollHz, logger)
	case SourceEvdev:
		source = newEvdevSource(cfg.Source.Devices, cfg.Source.InitialLevel, cfg.Gesture.ClickStep, logger)
	case SourceExternal:
		source = newExternalSource(cfg.Source, logger)
	default:
		return fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}

	deps := actionDeps{
		logger:  logger,
		camilla: camilla,
		start:   startCommand,
	}
	if cfg.needsKeyboard() {
		kb, err := newKeyboard(cfg.Keyboard.Name, configuredKeys(cfg.Patterns))
		if err != nil {
			return fmt.Errorf("create virtual keyboard: %w", err)
		}
		defer kb.Close()
		deps.keyboard = kb
	}

	specs, err := buildPatterns(cfg.Patterns, deps)
	if err != nil {
		return err
	}

	engine, err := gesture.New(cfg.ToGestureConfig(logger.With("component", "gesture")), specs, source)
	if err != nil {
		return err
	}
	defer engine.Close()

	events := make(chan Event, 64)
	state := newDaemonState(source.Name())

	logger.Info("listening",
		"source", source.Name(),
		"ipc", cfg.IPC.SocketPath,
		"state_ws_port", cfg.StateWS.Port,
		"patterns", len(specs),
		"reference", engine.Snapshot().ReferenceLevel)
	for _, p := range engine.Patterns() {
		logger.Debug("pattern", "name", p.Name, "windows", gesture.FormatWindows(p.Windows))
	}

	g, gctx := errgroup.WithContext(ctx)

	var broadcasts chan StateBroadcast
	if cfg.StateWS.Port > 0 {
		broadcasts = make(chan StateBroadcast, 128)
		server := NewServer(logger, events, ServerConfig{})
		mux := http.NewServeMux()
		server.Register(mux, cfg.StateWS.Path)

		g.Go(func() error {
			server.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(gctx, server.Hub(), broadcasts, logger)
			return nil
		})
		g.Go(func() error {
			return runHTTPServer(gctx, cfg.StateWS.Port, mux, logger)
		})
	}

	g.Go(func() error {
		runDaemon(gctx, events, engine, state, broadcasts, logger)
		return nil
	})
	g.Go(func() error {
		return runIPCServer(gctx, cfg.IPC.SocketPath, events, logger)
	})
	g.Go(func() error {
		if err := source.Run(gctx, events); err != nil {
			return fmt.Errorf("%s source: %w", source.Name(), err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// configuredKeys lists the key codes used by key actions, sorted.
func configuredKeys(patterns []PatternConfig) []uint16 {
	set := make(map[uint16]bool)
	for _, p := range patterns {
		if p.Action.Type != ActionKey {
			continue
		}
		if code, ok := mediaKeys[p.Action.Key]; ok {
			set[code] = true
		}
	}
	keys := make([]uint16, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func printSendUsage() {
	fmt.Printf("HeadsetBrainz send v%s\n", version)
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  headsetbrainz send [OPTIONS] sample LEVEL")
	fmt.Println("  headsetbrainz send [OPTIONS] status")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultSocketPath)
	fmt.Println()
}

// runSendSubcommand forwards one event to a running daemon and returns the
// process exit code.
func runSendSubcommand(args []string) int {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	ipcSocketPath := fs.String("ipc-socket", defaultSocketPath, "Unix domain socket path for IPC")
	showHelp := fs.Bool("help", false, "Print help message")
	fs.Usage = printSendUsage
	_ = fs.Parse(args)

	if *showHelp {
		printSendUsage()
		return 0
	}

	ev, err := parseSendArgs(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		printSendUsage()
		return 1
	}

	resp, err := SendIPCEvent(*ipcSocketPath, ev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	if resp.State != nil {
		out, _ := json.MarshalIndent(resp.State, "", "  ")
		fmt.Println(string(out))
		return 0
	}
	fmt.Println("ok")
	return 0
}

func parseSendArgs(args []string) (Event, error) {
	if len(args) == 0 {
		return nil, errors.New("missing command")
	}
	switch args[0] {
	case "sample":
		if len(args) != 2 {
			return nil, errors.New("sample requires exactly one level")
		}
		level, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid level: %w", err)
		}
		if level < 0 || level > 1 {
			return nil, fmt.Errorf("level %v out of range [0, 1]", level)
		}
		return VolumeSampled{Level: level}, nil
	case "status":
		return StatusRequest{}, nil
	default:
		return nil, fmt.Errorf("unknown command: %s", args[0])
	}
}
