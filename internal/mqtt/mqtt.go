// Package mqtt publishes read-only telemetry: one message per sensor sample
// and lifecycle events (startup, shutdown, heartbeat). Nothing is subscribed;
// the broker can observe the controller but never drive it.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/vent-controller/internal/adc"
)

// TopicSamples is the MQTT topic for sensor samples.
const TopicSamples = "vent/controller/samples"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "vent/controller/system"

// System event names.
const (
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventHeartbeat   = "HEARTBEAT"
	EventReconnected = "RECONNECTED"
	EventOffline     = "OFFLINE"
)

// Publisher publishes telemetry to MQTT.
type Publisher interface {
	// PublishSample sends one sensor sample.
	// Returns error if publishing fails (should not crash the process).
	PublishSample(sample Sample) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Sample is one sensor reading tagged with the process run.
type Sample struct {
	Timestamp time.Time
	RunID     uuid.UUID
	Reading   adc.Reading
	Position  string
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SamplePayload represents the MQTT message payload for a sample.
type SamplePayload struct {
	Sample SamplePayloadInner `json:"sample"`
}

// SamplePayloadInner contains the sample details. Channel keys match the
// data file columns.
type SamplePayloadInner struct {
	Timestamp string  `json:"timestamp"`
	RunID     string  `json:"run_id"`
	Position  string  `json:"position,omitempty"`
	CH01      int32   `json:"ch01"`
	CH02      int32   `json:"ch02"`
	CH03      int32   `json:"ch03"`
	V01       float64 `json:"v01"`
	V02       float64 `json:"v02"`
	V03       float64 `json:"v03"`
}

// FormatSamplePayload creates the JSON payload for a sample.
func FormatSamplePayload(s Sample) ([]byte, error) {
	v, volts := s.Reading.Values, s.Reading.Voltages
	payload := SamplePayload{
		Sample: SamplePayloadInner{
			Timestamp: s.Timestamp.UTC().Format(time.RFC3339Nano),
			RunID:     s.RunID.String(),
			Position:  s.Position,
			CH01:      v[0],
			CH02:      v[1],
			CH03:      v[2],
			V01:       volts[0],
			V02:       volts[1],
			V03:       volts[2],
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
