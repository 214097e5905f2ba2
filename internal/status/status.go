// Package status provides a thread-safe status tracker for the vent controller.
// It is fed by the control loop and read by HTTP handlers and telemetry.
package status

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sweeney/vent-controller/internal/adc"
	"github.com/sweeney/vent-controller/internal/control"
	"github.com/sweeney/vent-controller/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	WindowStart string
	WindowEnd   string
	AngleClosed logic.Angle
	AngleOpen   logic.Angle
	TickMs      int64
	HeartbeatMs int64
	ServoDriver string
	DataFormat  string
	Broker      string
	HTTPAddr    string
}

// Counts are running totals since startup.
type Counts struct {
	Ticks         int
	Moves         int
	SampleErrors  int
	LogErrors     int
	ActuateErrors int
}

// Errors returns the total number of failed ticks.
func (c Counts) Errors() int {
	return c.SampleErrors + c.LogErrors + c.ActuateErrors
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Reading    adc.Reading
	HasReading bool
	LastSample time.Time

	Position     logic.Position
	Desired      logic.Angle
	Commanded    logic.Angle
	HasCommanded bool

	Counts        Counts
	LastError     string
	LastErrorTime time.Time

	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu    sync.RWMutex
	snap  Snapshot
	clock clock.Clock
}

// NewTracker creates a Tracker with the given start time and config.
// A nil clock means the wall clock.
func NewTracker(startTime time.Time, cfg Config, clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.New()
	}
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		clock: clk,
	}
}

// ObserveTick records the outcome of one control tick.
func (t *Tracker) ObserveTick(res control.TickResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.Counts.Ticks++
	if res.Err != nil {
		var te *control.TickError
		stage := control.Stage("")
		if errors.As(res.Err, &te) {
			stage = te.Stage
		}
		switch stage {
		case control.StageSample:
			t.snap.Counts.SampleErrors++
		case control.StageLog:
			t.snap.Counts.LogErrors++
		default:
			t.snap.Counts.ActuateErrors++
		}
		t.snap.LastError = res.Err.Error()
		t.snap.LastErrorTime = res.Time
	}

	// A sample failure leaves no reading and no decision.
	if res.Err == nil || !isStage(res.Err, control.StageSample) {
		t.snap.Reading = res.Reading
		t.snap.HasReading = true
		t.snap.LastSample = res.Time
	}
	if res.Position != "" {
		t.snap.Position = res.Position
		t.snap.Desired = res.Desired
	}
	if res.Commanded {
		t.snap.Counts.Moves++
		t.snap.Commanded = res.Desired
		t.snap.HasCommanded = true
	}
}

func isStage(err error, stage control.Stage) bool {
	var te *control.TickError
	return errors.As(err, &te) && te.Stage == stage
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the tracker clock at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.clock.Now()
	return s
}

// Heartbeat decides when the next periodic status event is due.
// Not safe for concurrent use; owned by the goroutine that publishes.
type Heartbeat struct {
	interval time.Duration
	last     time.Time
}

// NewHeartbeat creates a Heartbeat whose first beat is due one interval
// after start. An interval <= 0 disables it.
func NewHeartbeat(interval time.Duration, start time.Time) *Heartbeat {
	return &Heartbeat{interval: interval, last: start}
}

// Due reports whether a heartbeat should be sent at now, and if so records
// now as the last beat.
func (h *Heartbeat) Due(now time.Time) bool {
	if h.interval <= 0 {
		return false
	}
	if now.Sub(h.last) < h.interval {
		return false
	}
	h.last = now
	return true
}
