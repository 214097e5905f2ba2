// Package control runs the vent control loop. Each tick reads the sensor,
// persists the sample, works out where the vent should be from the time of
// day and moves the servo only when that differs from the last command.
// Collaborator failures end the tick early; they never end the loop.
package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/sweeney/vent-controller/internal/adc"
	"github.com/sweeney/vent-controller/internal/logic"
	"github.com/sweeney/vent-controller/internal/pattern"
)

// Loop timing defaults.
const (
	DefaultPeriod = time.Second
	DefaultSettle = 5 * time.Second
)

// Sampler produces one reading of every sensor channel.
type Sampler interface {
	Read() (adc.Reading, error)
}

// DataLogger persists one sample.
type DataLogger interface {
	WriteData(ts time.Time, values [adc.Channels]int32) error
}

// Actuator moves the vent. Stop must be safe to call during shutdown.
type Actuator interface {
	SetAngle(angle logic.Angle) error
	Stop() error
}

// Feedback plays a named pattern on the actuator and reports how many of
// its steps the actuator accepted.
type Feedback interface {
	Play(ctx context.Context, name string) (int, error)
}

// Observer is told about every tick, successful or not.
type Observer interface {
	ObserveTick(TickResult)
}

// TickResult describes what one tick saw and did.
type TickResult struct {
	Time      time.Time
	Reading   adc.Reading
	Position  logic.Position
	Desired   logic.Angle
	Commanded bool // true if the actuator was moved this tick
	Err       error
}

// Options are the static loop parameters. Nil fields are missing config.
type Options struct {
	WindowStart *logic.TimeOfDay
	WindowEnd   *logic.TimeOfDay
	ClosedAngle *logic.Angle
	OpenAngle   *logic.Angle

	Period time.Duration // between ticks; DefaultPeriod if zero
	Settle time.Duration // after the startup pattern; DefaultSettle if zero

	StartupPattern string // pattern.DeviceOn if empty
	ErrorPattern   string // pattern.Error1 if empty

	// MaxErrorFeedback caps error pattern playbacks per run of consecutive
	// failed ticks. Zero plays the pattern on every failure.
	MaxErrorFeedback int
}

// Deps are the collaborators the loop drives.
type Deps struct {
	Sampler   Sampler
	Logger    DataLogger
	Actuator  Actuator
	Feedback  Feedback
	Clock     clock.Clock        // wall clock if nil
	Log       *zap.SugaredLogger // no-op if nil
	Observers []Observer
}

// state is the last successfully commanded angle. The zero value is unset.
// Besides a successful move, a feedback pattern that moved the servo also
// changes it: the pattern leaves the servo off the commanded angle, so state
// is reset and the next tick commands the schedule angle again even if it is
// unchanged.
type state struct {
	angle logic.Angle
	set   bool
}

// Controller owns the decision state and drives the collaborators.
type Controller struct {
	schedule logic.Schedule
	opts     Options
	deps     Deps
	log      *zap.SugaredLogger

	runMu  sync.Mutex
	cancel context.CancelFunc

	// actMu serialises every use of the actuator, including pattern playback
	// and Stop, and guards state and stopped.
	actMu   sync.Mutex
	state   state
	stopped bool

	consecutiveErrs int // loop goroutine only
}

// New validates the configuration and returns a Controller ready to Run.
func New(opts Options, deps Deps) (*Controller, error) {
	if opts.ClosedAngle == nil || opts.OpenAngle == nil {
		return nil, fmt.Errorf("new controller: %w", ErrMissingAngles)
	}
	if opts.WindowStart == nil || opts.WindowEnd == nil {
		return nil, fmt.Errorf("new controller: %w", ErrMissingWindow)
	}
	switch {
	case deps.Sampler == nil:
		return nil, fmt.Errorf("new controller: %w: sampler", ErrMissingDep)
	case deps.Logger == nil:
		return nil, fmt.Errorf("new controller: %w: data logger", ErrMissingDep)
	case deps.Actuator == nil:
		return nil, fmt.Errorf("new controller: %w: actuator", ErrMissingDep)
	case deps.Feedback == nil:
		return nil, fmt.Errorf("new controller: %w: feedback player", ErrMissingDep)
	}

	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	if opts.StartupPattern == "" {
		opts.StartupPattern = pattern.DeviceOn
	}
	if opts.ErrorPattern == "" {
		opts.ErrorPattern = pattern.Error1
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Controller{
		schedule: logic.Schedule{
			Window: logic.Window{Start: *opts.WindowStart, End: *opts.WindowEnd},
			Angles: logic.Angles{Closed: *opts.ClosedAngle, Open: *opts.OpenAngle},
		},
		opts: opts,
		deps: deps,
		log:  log,
	}, nil
}

// Schedule returns the validated schedule.
func (c *Controller) Schedule() logic.Schedule {
	return c.schedule
}

// LastCommanded returns the last angle the actuator accepted, if any.
func (c *Controller) LastCommanded() (logic.Angle, bool) {
	c.actMu.Lock()
	defer c.actMu.Unlock()
	return c.state.angle, c.state.set
}

// Run plays the startup pattern, waits for it to settle and then ticks until
// ctx is cancelled or Stop is called. It returns nil on cancellation.
func (c *Controller) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.runMu.Lock()
	c.cancel = cancel
	c.runMu.Unlock()

	c.actMu.Lock()
	stopped := c.stopped
	c.actMu.Unlock()
	if stopped {
		return ErrStopped
	}

	c.log.Infof("control: starting, window %s-%s closed=%v open=%v",
		c.schedule.Window.Start, c.schedule.Window.End, c.schedule.Angles.Closed, c.schedule.Angles.Open)
	c.playFeedback(ctx, c.opts.StartupPattern)
	if !c.sleep(ctx, c.opts.Settle) {
		return nil
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		res, err := c.Tick()
		if err != nil {
			c.handleTickError(ctx, err)
		} else {
			c.consecutiveErrs = 0
		}
		for _, o := range c.deps.Observers {
			o.ObserveTick(res)
		}

		if !c.sleep(ctx, c.opts.Period) {
			return nil
		}
	}
}

// Tick runs one iteration: sample, persist, decide, actuate on change.
// Any collaborator failure is returned as a *TickError and ends the tick.
func (c *Controller) Tick() (TickResult, error) {
	now := c.deps.Clock.Now()
	res := TickResult{Time: now}

	reading, err := c.deps.Sampler.Read()
	if err != nil {
		return c.fail(res, StageSample, err)
	}
	res.Reading = reading
	c.log.Infof("[%s]\tCH01 %.4f\tCH02 %.4f\tCH03 %.4f",
		now.Format("2006-01-02 15:04:05"), reading.Voltages[0], reading.Voltages[1], reading.Voltages[2])

	if err := c.deps.Logger.WriteData(now, reading.Values); err != nil {
		return c.fail(res, StageLog, err)
	}

	res.Position = c.schedule.Position(now)
	res.Desired = c.schedule.DesiredAngle(now)

	commanded, err := c.apply(res.Desired)
	res.Commanded = commanded
	if err != nil {
		return c.fail(res, StageActuate, err)
	}
	return res, nil
}

func (c *Controller) fail(res TickResult, stage Stage, err error) (TickResult, error) {
	te := &TickError{Stage: stage, Err: err}
	res.Err = te
	return res, te
}

// apply moves the actuator if desired differs from the last successful
// command. State only changes after the actuator accepts the move, so a
// failed move is retried on the next tick.
func (c *Controller) apply(desired logic.Angle) (bool, error) {
	c.actMu.Lock()
	defer c.actMu.Unlock()

	if c.stopped {
		return false, nil
	}
	if c.state.set && c.state.angle == desired {
		return false, nil
	}
	if err := c.deps.Actuator.SetAngle(desired); err != nil {
		return false, err
	}
	c.log.Infof("control: moved to %v", desired)
	c.state = state{angle: desired, set: true}
	return true, nil
}

func (c *Controller) handleTickError(ctx context.Context, err error) {
	c.consecutiveErrs++
	c.log.Errorw("control: tick failed", "error", err, "consecutive", c.consecutiveErrs)

	if max := c.opts.MaxErrorFeedback; max > 0 && c.consecutiveErrs > max {
		c.log.Debugf("control: error feedback suppressed after %d consecutive failures", max)
		return
	}
	c.playFeedback(ctx, c.opts.ErrorPattern)
}

// playFeedback plays name. If any step moved the servo the last commanded
// angle is forgotten.
func (c *Controller) playFeedback(ctx context.Context, name string) {
	c.actMu.Lock()
	defer c.actMu.Unlock()
	if c.stopped {
		return
	}
	moved, err := c.deps.Feedback.Play(ctx, name)
	if err != nil && ctx.Err() == nil {
		c.log.Warnf("control: play %s: %v", name, err)
	}
	if moved > 0 {
		c.state = state{}
	}
}

// sleep waits d on the controller clock. It returns false if ctx ended first.
func (c *Controller) sleep(ctx context.Context, d time.Duration) bool {
	timer := c.deps.Clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Stop ends Run and disables the actuator. Safe to call more than once and
// from any goroutine; an in-flight move or pattern finishes first.
func (c *Controller) Stop() error {
	c.runMu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.runMu.Unlock()

	c.actMu.Lock()
	defer c.actMu.Unlock()
	if c.stopped {
		return nil
	}
	c.stopped = true
	c.log.Infof("control: stopping actuator")
	if err := c.deps.Actuator.Stop(); err != nil {
		return fmt.Errorf("stop actuator: %w", err)
	}
	return nil
}
