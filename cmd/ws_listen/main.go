package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// ws_listen prints the headsetbrainz state websocket stream in a compact,
// human-readable form.

type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type sampleData struct {
	Level          float64 `json:"level"`
	ReferenceLevel float64 `json:"reference_level"`
	Trace          string  `json:"trace"`
}

type suppressedData struct {
	Level          float64 `json:"level"`
	ReferenceLevel float64 `json:"reference_level"`
}

type matchedData struct {
	Pattern        string  `json:"pattern"`
	ReferenceLevel float64 `json:"reference_level"`
	Trace          string  `json:"trace"`
	Error          string  `json:"error,omitempty"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:3001/ws", "headsetbrainz state websocket URL")
		raw   = flag.Bool("raw", false, "Print raw JSON frames")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// Mutex to protect concurrent writes to websocket
	var writeMu sync.Mutex

	// The daemon pings every 20s; answer with pongs and keep the deadline fresh.
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			if messageType != websocket.TextMessage {
				fmt.Printf("[BINARY] %d bytes\n", len(message))
				continue
			}
			if *raw {
				fmt.Println(string(message))
				continue
			}
			handleTextMessage(message)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// handleTextMessage prints one state frame.
func handleTextMessage(message []byte) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		fmt.Printf("[TEXT] %s\n", string(message))
		return
	}

	ts := ""
	if env.Ts != nil {
		ts = env.Ts.Local().Format("15:04:05.000") + " "
	}

	switch env.Type {
	case "sample":
		var d sampleData
		if json.Unmarshal(env.Data, &d) == nil {
			fmt.Printf("%s[SAMPLE] %3.0f%% (ref %3.0f%%) %s\n", ts, d.Level*100, d.ReferenceLevel*100, d.Trace)
			return
		}

	case "suppressed":
		var d suppressedData
		if json.Unmarshal(env.Data, &d) == nil {
			fmt.Printf("%s[SUPPRESSED] %3.0f%% -> %3.0f%%\n", ts, d.Level*100, d.ReferenceLevel*100)
			return
		}

	case "abandoned":
		fmt.Printf("%s[ABANDONED]\n", ts)
		return

	case "gesture_matched":
		var d matchedData
		if json.Unmarshal(env.Data, &d) == nil {
			if d.Error != "" {
				fmt.Printf("%s[MATCH] %s %s (error: %s)\n", ts, d.Pattern, d.Trace, d.Error)
			} else {
				fmt.Printf("%s[MATCH] %s %s\n", ts, d.Pattern, d.Trace)
			}
			return
		}
	}

	// state_init and anything unknown: pretty print.
	var pretty any
	if err := json.Unmarshal(env.Data, &pretty); err != nil {
		fmt.Printf("%s[%s]\n", ts, env.Type)
		return
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Printf("%s[%s]\n%s\n\n", ts, env.Type, string(out))
}
