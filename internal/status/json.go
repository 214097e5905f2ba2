package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string       `json:"event,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	Position       string       `json:"position"`
	DesiredAngle   float64      `json:"desired_angle"`
	CommandedAngle *float64     `json:"commanded_angle"`
	Ready          bool         `json:"ready"`
	Reading        *ReadingJSON `json:"reading,omitempty"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	StartTime      string       `json:"start_time"`
	Timestamp      string       `json:"timestamp"`
	MQTT           MQTTStatus   `json:"mqtt"`
	Counts         CountsJSON   `json:"counts"`
	LastError      *ErrorJSON   `json:"last_error,omitempty"`
	Config         ConfigJSON   `json:"config"`
}

// ReadingJSON is the last sensor sample.
type ReadingJSON struct {
	Timestamp string    `json:"timestamp"`
	Raw       []int32   `json:"raw"`
	Volts     []float64 `json:"volts"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of running totals.
type CountsJSON struct {
	Ticks         int `json:"ticks"`
	Moves         int `json:"moves"`
	Errors        int `json:"errors"`
	SampleErrors  int `json:"sample_errors"`
	LogErrors     int `json:"log_errors"`
	ActuateErrors int `json:"actuate_errors"`
}

// ErrorJSON is the most recent tick failure.
type ErrorJSON struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	WindowStart string  `json:"time_to_close_start"`
	WindowEnd   string  `json:"time_to_close_end"`
	AngleClosed float64 `json:"angle_closed"`
	AngleOpen   float64 `json:"angle_open"`
	TickMs      int64   `json:"tick_ms"`
	HeartbeatMs int64   `json:"heartbeat_ms"`
	ServoDriver string  `json:"servo_driver"`
	DataFormat  string  `json:"data_format"`
	Broker      string  `json:"broker"`
	HTTPAddr    string  `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	pos := string(snap.Position)
	if pos == "" {
		pos = "UNKNOWN"
	}

	inner := StatusInner{
		Position:      pos,
		DesiredAngle:  float64(snap.Desired),
		Ready:         snap.HasReading,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Ticks:         snap.Counts.Ticks,
			Moves:         snap.Counts.Moves,
			Errors:        snap.Counts.Errors(),
			SampleErrors:  snap.Counts.SampleErrors,
			LogErrors:     snap.Counts.LogErrors,
			ActuateErrors: snap.Counts.ActuateErrors,
		},
		Config: ConfigJSON{
			WindowStart: snap.Config.WindowStart,
			WindowEnd:   snap.Config.WindowEnd,
			AngleClosed: float64(snap.Config.AngleClosed),
			AngleOpen:   float64(snap.Config.AngleOpen),
			TickMs:      snap.Config.TickMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			ServoDriver: snap.Config.ServoDriver,
			DataFormat:  snap.Config.DataFormat,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}

	if snap.HasCommanded {
		a := float64(snap.Commanded)
		inner.CommandedAngle = &a
	}
	if snap.HasReading {
		inner.Reading = &ReadingJSON{
			Timestamp: snap.LastSample.UTC().Format(time.RFC3339),
			Raw:       snap.Reading.Values[:],
			Volts:     snap.Reading.Voltages[:],
		}
	}
	if snap.LastError != "" {
		inner.LastError = &ErrorJSON{
			Message:   snap.LastError,
			Timestamp: snap.LastErrorTime.UTC().Format(time.RFC3339),
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
