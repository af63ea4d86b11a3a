package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ============================================================================
// Events
// ============================================================================
// Events are inputs to the daemon loop. Sources (CamillaDSP poller, evdev
// reader, IPC clients) only produce events; the daemon goroutine is the only
// place that feeds the gesture engine.
// ============================================================================

// Event is a marker interface for all daemon inputs.
type Event interface {
	eventMarker()
}

// VolumeSampled reports one observed output level in [0, 1].
//
// At is when the level was observed. Sources stamp it where the sample
// originates: evdev uses the kernel event time, the CamillaDSP poller the poll
// time, IPC the receipt time. The daemon falls back to time.Now() for a zero At.
type VolumeSampled struct {
	Level float64   `json:"level"`
	At    time.Time `json:"-"`
}

func (VolumeSampled) eventMarker() {}

// StatusRequest asks the daemon for a StatusSnapshot. The daemon never blocks
// on Reply; callers should pass a buffered channel.
type StatusRequest struct {
	Reply chan<- StatusSnapshot `json:"-"`
}

func (StatusRequest) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	eventTypeVolumeSample = "volume_sample"
	eventTypeStatus       = "status"
)

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event.
// A decoded StatusRequest carries no reply channel.
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case eventTypeVolumeSample:
		if len(env.Data) == 0 {
			return nil, errors.New("volume_sample requires data")
		}
		var a VolumeSampled
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal VolumeSampled: %w", err)
		}
		if a.Level < 0 || a.Level > 1 {
			return nil, fmt.Errorf("volume_sample level %v out of range [0, 1]", a.Level)
		}
		return a, nil

	case eventTypeStatus:
		return StatusRequest{}, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case VolumeSampled:
		env.Type = eventTypeVolumeSample
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal VolumeSampled: %w", err)
		}
		env.Data = data

	case StatusRequest:
		env.Type = eventTypeStatus

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}
