package mqtt

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sweeney/vent-controller/internal/control"
	"github.com/sweeney/vent-controller/internal/status"
)

// Telemetry turns control loop ticks into MQTT messages: a sample per tick
// that produced a reading, and a heartbeat status event when one is due.
// Publish failures are logged and never reach the loop.
type Telemetry struct {
	pub       Publisher
	runID     uuid.UUID
	tracker   *status.Tracker
	heartbeat *status.Heartbeat
	log       *zap.SugaredLogger
}

// NewTelemetry creates a Telemetry. tracker and heartbeat may be nil, which
// disables heartbeats.
func NewTelemetry(pub Publisher, runID uuid.UUID, tracker *status.Tracker, heartbeat *status.Heartbeat, log *zap.SugaredLogger) *Telemetry {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Telemetry{
		pub:       pub,
		runID:     runID,
		tracker:   tracker,
		heartbeat: heartbeat,
		log:       log,
	}
}

// ObserveTick publishes the tick's sample and any due heartbeat.
// A tick that failed after sampling still publishes its reading, without a
// position when the tick never got as far as deciding one.
// Register it after the status tracker so heartbeats carry this tick.
func (t *Telemetry) ObserveTick(res control.TickResult) {
	var te *control.TickError
	sampled := res.Err == nil || !errors.As(res.Err, &te) || te.Stage != control.StageSample
	if sampled {
		err := t.pub.PublishSample(Sample{
			Timestamp: res.Time,
			RunID:     t.runID,
			Reading:   res.Reading,
			Position:  string(res.Position),
		})
		if err != nil {
			t.log.Warnf("mqtt: publish sample: %v", err)
		}
	}

	if t.tracker == nil || t.heartbeat == nil || !t.heartbeat.Due(res.Time) {
		return
	}
	t.publishStatus(EventHeartbeat, "", false)
}

// Startup publishes the retained STARTUP event.
func (t *Telemetry) Startup() {
	t.publishStatus(EventStartup, "", true)
}

// Shutdown publishes the retained SHUTDOWN event with the signal name.
func (t *Telemetry) Shutdown(reason string) {
	t.publishStatus(EventShutdown, reason, true)
}

func (t *Telemetry) publishStatus(event, reason string, retained bool) {
	ev := SystemEvent{
		Timestamp: time.Now(),
		Event:     event,
		Reason:    reason,
		Retained:  retained,
	}
	if t.tracker != nil {
		if cs, ok := t.pub.(ConnectionStatus); ok {
			t.tracker.SetMQTTConnected(cs.IsConnected())
		}
		snap := t.tracker.Snapshot()
		ev.Timestamp = snap.Now
		ev.RawPayload = status.FormatStatusEvent(snap, event, reason)
	}
	if err := t.pub.PublishSystem(ev); err != nil {
		t.log.Warnf("mqtt: publish %s event: %v", event, err)
		return
	}
	t.log.Debugf("mqtt: published %s event", event)
}
