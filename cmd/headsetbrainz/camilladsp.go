package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// CamillaDSPClientInterface defines the CamillaDSP operations the daemon
// uses. It allows for mocking in tests.
type CamillaDSPClientInterface interface {
	SetVolume(targetDB float64) (float64, error)
	GetVolume() (float64, error)

	// Mute control (default fader "Main")
	SetMute(mute bool) error
	ToggleMute() (bool, error) // returns new mute state

	Close() error
}

// CamillaDSPClient manages WebSocket communication with CamillaDSP
type CamillaDSPClient struct {
	mu          sync.Mutex
	conn        *websocket.Conn
	url         string
	logger      *slog.Logger
	readTimeout time.Duration

	// Retry policy for (re)connecting.
	attempts   int
	retryDelay time.Duration
}

// NewCamillaDSPClient creates a new CamillaDSP client and establishes initial connection
func NewCamillaDSPClient(wsURL string, logger *slog.Logger, readTimeoutMS int) (*CamillaDSPClient, error) {
	if _, err := url.Parse(wsURL); err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}

	client := &CamillaDSPClient{
		url:         wsURL,
		logger:      logger,
		readTimeout: time.Duration(readTimeoutMS) * time.Millisecond,
		attempts:    10,
		retryDelay:  500 * time.Millisecond,
	}

	if err := client.connectWithRetry(); err != nil {
		return nil, err
	}

	return client, nil
}

// connect establishes a WebSocket connection to CamillaDSP
func (c *CamillaDSPClient) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("invalid ws url: %w", err)
	}

	d := websocket.Dialer{
		HandshakeTimeout: 2 * time.Second,
	}

	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		return err
	}

	c.conn = conn
	return nil
}

func (c *CamillaDSPClient) connectWithRetry() error {
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		err := c.connect()
		if err == nil {
			c.logger.Info("connected to CamillaDSP", "url", c.url)
			return nil
		}
		lastErr = err
		c.logger.Warn("connection failed; retrying...", "error", err, "attempt", attempt+1)
		time.Sleep(c.retryDelay)
	}
	return fmt.Errorf("failed to connect after %d attempts: %w", c.attempts, lastErr)
}

// ensureConnected checks connection and reconnects if necessary
func (c *CamillaDSPClient) ensureConnected() error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.logger.Warn("connection lost; reconnecting...")
	return c.connectWithRetry()
}

// sendAndRead sends a message and waits for a response
func (c *CamillaDSPClient) sendAndRead(v any, timeout time.Duration) ([]byte, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("no websocket connection")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.conn = nil // Mark connection as broken
		return nil, err
	}

	c.conn.SetReadDeadline(time.Now().Add(timeout))
	defer func() {
		if c.conn != nil {
			c.conn.SetReadDeadline(time.Time{})
		}
	}()

	_, message, err := c.conn.ReadMessage()
	if err != nil {
		c.conn = nil // Mark connection as broken
		return nil, err
	}

	return message, nil
}

// Close closes the WebSocket connection
func (c *CamillaDSPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return nil
}

// camillaReply is the common shape of CamillaDSP command responses.
type camillaReply[T any] struct {
	Result string `json:"result"`
	Value  T      `json:"value"`
}

// errCamillaResult reports a command CamillaDSP answered with a non-Ok result.
type errCamillaResult struct {
	command string
	result  string
}

func (e errCamillaResult) Error() string {
	return fmt.Sprintf("camilladsp %s: result %q", e.command, e.result)
}

// callCamilla sends cmd and decodes the reply stored under name.
func callCamilla[T any](c *CamillaDSPClient, name string, cmd any) (T, error) {
	var zero T

	response, err := c.sendAndRead(cmd, c.readTimeout)
	if err != nil {
		return zero, err
	}

	var resp map[string]camillaReply[T]
	if err := json.Unmarshal(response, &resp); err != nil {
		c.logger.Warn("failed to parse CamillaDSP response", "command", name, "error", err)
		return zero, err
	}
	reply, ok := resp[name]
	if !ok {
		return zero, fmt.Errorf("camilladsp %s: unexpected response %s", name, response)
	}
	if reply.Result != "" && reply.Result != "Ok" {
		return zero, errCamillaResult{command: name, result: reply.Result}
	}

	c.logger.Debug(name, "value", reply.Value, "result", reply.Result)
	return reply.Value, nil
}

// SetVolume sends a SetVolume command to CamillaDSP and returns the target volume
func (c *CamillaDSPClient) SetVolume(targetDB float64) (float64, error) {
	if _, err := callCamilla[json.RawMessage](c, "SetVolume", map[string]any{"SetVolume": targetDB}); err != nil {
		return 0, fmt.Errorf("set volume: %w", err)
	}
	return targetDB, nil
}

// GetVolume queries CamillaDSP for the current volume in dB
func (c *CamillaDSPClient) GetVolume() (float64, error) {
	v, err := callCamilla[float64](c, "GetVolume", "GetVolume")
	if err != nil {
		return 0, fmt.Errorf("get volume: %w", err)
	}
	return v, nil
}

// SetMute sets the mute state in CamillaDSP.
func (c *CamillaDSPClient) SetMute(mute bool) error {
	if _, err := callCamilla[json.RawMessage](c, "SetMute", map[string]any{"SetMute": mute}); err != nil {
		return fmt.Errorf("set mute: %w", err)
	}
	return nil
}

// ToggleMute sends a ToggleMute command to CamillaDSP and returns the new mute state.
func (c *CamillaDSPClient) ToggleMute() (bool, error) {
	v, err := callCamilla[bool](c, "ToggleMute", "ToggleMute")
	if err != nil {
		return false, fmt.Errorf("toggle mute: %w", err)
	}
	return v, nil
}

// ============================================================================
// CamillaDSP volume source
// ============================================================================

// camillaSource exposes the CamillaDSP main fader as a gesture host. Levels
// are the fader position mapped linearly from [minDB, maxDB] onto [0, 1].
type camillaSource struct {
	client       CamillaDSPClientInterface
	minDB, maxDB float64
	interval     time.Duration
	logger       *slog.Logger

	// baseline is the level last handed to the engine by CurrentVolume.
	mu          sync.Mutex
	baseline    float64
	hasBaseline bool
}

func newCamillaSource(client CamillaDSPClientInterface, cfg CamillaDSPConfig, pollHz int, logger *slog.Logger) *camillaSource {
	return &camillaSource{
		client:   client,
		minDB:    cfg.MinDB,
		maxDB:    cfg.MaxDB,
		interval: time.Second / time.Duration(pollHz),
		logger:   logger,
	}
}

func (s *camillaSource) Name() string { return SourceCamillaDSP }

func (s *camillaSource) dbToLevel(db float64) float64 {
	return clampLevel((db - s.minDB) / (s.maxDB - s.minDB))
}

func (s *camillaSource) levelToDB(level float64) float64 {
	return s.minDB + clampLevel(level)*(s.maxDB-s.minDB)
}

func (s *camillaSource) readLevel() (float64, error) {
	db, err := s.client.GetVolume()
	if err != nil {
		return 0, err
	}
	return s.dbToLevel(db), nil
}

// CurrentVolume implements gesture.Host.
func (s *camillaSource) CurrentVolume() (float64, error) {
	level, err := s.readLevel()
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.baseline, s.hasBaseline = level, true
	s.mu.Unlock()
	return level, nil
}

// SetVolume implements gesture.Host. The fader is also unmuted, since a mute
// toggled by the gesture's own clicks would otherwise survive the restore.
func (s *camillaSource) SetVolume(level float64) error {
	db := s.levelToDB(level)
	if _, err := s.client.SetVolume(db); err != nil {
		return err
	}
	if err := s.client.SetMute(false); err != nil {
		return err
	}
	s.logger.Debug("camilladsp volume restored", "level", level, "db", db)
	return nil
}

// Run polls GetVolume and emits a VolumeSampled whenever the level changes.
// Poll failures are logged and retried on the next tick.
func (s *camillaSource) Run(ctx context.Context, events chan<- Event) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.mu.Lock()
	last, known := s.baseline, s.hasBaseline
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		level, err := s.readLevel()
		at := time.Now()
		if err != nil {
			s.logger.Warn("camilladsp poll failed", "error", err)
			continue
		}
		if !known {
			last, known = level, true
			continue
		}
		if math.Abs(level-last) < levelEpsilon {
			continue
		}
		last = level

		select {
		case events <- VolumeSampled{Level: level, At: at}:
		case <-ctx.Done():
			return nil
		}
	}
}

func clampLevel(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// errNoClient indicates an action needed CamillaDSP but no client exists.
var errNoClient = errors.New("no CamillaDSP client")
