package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// ============================================================================
// headsetbrainz-ctl - Command-line IPC Client
// ============================================================================
// Usage:
//   headsetbrainz-ctl sample 0.52
//   headsetbrainz-ctl status
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/headsetbrainz.sock)
// ============================================================================

// Event envelope (duplicated from the daemon for a standalone binary)
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type volumeSample struct {
	Level float64 `json:"level"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	State  json.RawMessage `json:"state,omitempty"`
}

const ioTimeout = 3 * time.Second

func main() {
	socketPath := "/tmp/headsetbrainz.sock"

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var env EventEnvelope

	switch args[0] {
	case "sample", "level":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: sample requires a level between 0 and 1\n")
			os.Exit(1)
		}
		level, err := strconv.ParseFloat(args[1], 64)
		if err != nil || level < 0 || level > 1 {
			fmt.Fprintf(os.Stderr, "error: invalid level %q (want 0..1)\n", args[1])
			os.Exit(1)
		}
		data, _ := json.Marshal(volumeSample{Level: level})
		env = EventEnvelope{Type: "volume_sample", Data: data}

	case "percent":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: percent requires a value between 0 and 100\n")
			os.Exit(1)
		}
		pct, err := strconv.Atoi(args[1])
		if err != nil || pct < 0 || pct > 100 {
			fmt.Fprintf(os.Stderr, "error: invalid percent %q (want 0..100)\n", args[1])
			os.Exit(1)
		}
		data, _ := json.Marshal(volumeSample{Level: float64(pct) / 100})
		env = EventEnvelope{Type: "volume_sample", Data: data}

	case "status":
		env = EventEnvelope{Type: "status"}

	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	resp, err := send(socketPath, env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if len(resp.State) > 0 {
		var pretty any
		if err := json.Unmarshal(resp.State, &pretty); err == nil {
			out, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println(string(out))
			return
		}
		fmt.Println(string(resp.State))
		return
	}
	fmt.Println("ok")
}

func send(socketPath string, env EventEnvelope) (IPCResponse, error) {
	conn, err := net.DialTimeout("unix", socketPath, ioTimeout)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ioTimeout))

	data, err := json.Marshal(env)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("marshal event: %w", err)
	}

	// Line-delimited JSON
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return IPCResponse{}, fmt.Errorf("send event: %w", err)
	}

	var response IPCResponse
	if err := json.NewDecoder(conn).Decode(&response); err != nil {
		return IPCResponse{}, fmt.Errorf("decode response: %w", err)
	}

	if response.Status == "error" {
		return response, fmt.Errorf("daemon error: %s", response.Error)
	}

	return response, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `headsetbrainz-ctl - Talk to the headsetbrainz daemon via IPC

Usage:
  headsetbrainz-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/headsetbrainz.sock)

Commands:
  sample, level <0..1>    Feed one observed volume level
  percent <0..100>        Feed one observed volume level in percent
  status                  Print the recognizer state
  help, -h, --help        Show this help message

Examples:
  headsetbrainz-ctl sample 0.52
  headsetbrainz-ctl percent 48
  headsetbrainz-ctl -socket /run/headsetbrainz.sock status
`)
}
