// Command vent-controller samples the analog sensors, logs every sample and
// moves the vent servo closed during the configured daily window.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapio"

	"github.com/sweeney/vent-controller/internal/adc"
	"github.com/sweeney/vent-controller/internal/config"
	"github.com/sweeney/vent-controller/internal/control"
	"github.com/sweeney/vent-controller/internal/datalog"
	"github.com/sweeney/vent-controller/internal/gpio"
	"github.com/sweeney/vent-controller/internal/logging"
	"github.com/sweeney/vent-controller/internal/metrics"
	"github.com/sweeney/vent-controller/internal/mqtt"
	"github.com/sweeney/vent-controller/internal/pattern"
	"github.com/sweeney/vent-controller/internal/rtc"
	"github.com/sweeney/vent-controller/internal/servo"
	"github.com/sweeney/vent-controller/internal/status"
	"github.com/sweeney/vent-controller/internal/web"
)

// SQLiteFile is the database name inside data_dir.
const SQLiteFile = "samples.db"

const shutdownTimeout = 5 * time.Second

// forceStopTimeout bounds the driver stop attempted on a second signal.
var forceStopTimeout = 2 * time.Second

type flags struct {
	configPath  string
	broker      string
	httpAddr    string
	heartbeat   time.Duration
	printSample bool
	logLevel    string
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", config.DefaultPath, "Path to the JSON device config")
	flag.StringVar(&f.broker, "broker", "", "MQTT broker address (empty to disable)")
	flag.StringVar(&f.httpAddr, "http", "", "HTTP status address (empty to disable)")
	flag.DurationVar(&f.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.BoolVar(&f.printSample, "print-sample", false, "Print one sensor reading and exit")
	flag.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	boot, err := logging.New(logging.Options{Level: f.logLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(2)
	}

	code := 0
	if err := run(f, boot.SugaredLogger); err != nil {
		boot.Errorf("fatal: %v", err)
		code = 1
	}
	boot.Close()
	os.Exit(code)
}

func run(f flags, log *zap.SugaredLogger) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	for _, key := range cfg.Unknown {
		log.Warnf("config: ignoring unknown key %q", key)
	}

	if cfg.LogFile != "" {
		fileLog, err := logging.New(logging.Options{Level: f.logLevel, File: cfg.LogFile})
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer fileLog.Close()
		log = fileLog.SugaredLogger
	}

	if f.printSample {
		sampler, err := adc.NewRealSampler(samplerOptions(cfg))
		if err != nil {
			return fmt.Errorf("init adc: %w", err)
		}
		defer sampler.Close()
		return printSample(sampler, os.Stdout)
	}

	var rtcUpdate time.Time
	if cfg.RTCEnabled {
		if dev, err := rtc.Open(cfg.I2CBus); err != nil {
			log.Warnf("rtc: open: %v", err)
		} else {
			rtcUpdate = syncClock(dev, rtc.SetSystemTime, log)
			dev.Close()
		}
	}

	runID := uuid.New()
	devs, err := openDevices(cfg, runID, rtcUpdate)
	if err != nil {
		return err
	}

	clk := clock.New()
	start := clk.Now()
	tracker := status.NewTracker(start, statusConfig(cfg, f), clk)
	m := metrics.New(prometheus.NewRegistry())
	observers := []control.Observer{tracker, m}

	var publisher mqtt.Publisher
	var telemetry *mqtt.Telemetry
	if f.broker != "" {
		rp, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:   f.broker,
			Log:      log,
			OnStatus: tracker.SetMQTTConnected,
		})
		if err != nil {
			devs.Close()
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher = rp
		telemetry = mqtt.NewTelemetry(rp, runID, tracker, status.NewHeartbeat(f.heartbeat, start), log)
		observers = append(observers, telemetry)
	}

	ctrl, err := newController(cfg, devs, clk, log, observers)
	if err != nil {
		devs.Close()
		if publisher != nil {
			publisher.Close()
		}
		return err
	}

	if telemetry != nil {
		telemetry.Startup()
	}

	var srv *web.Server
	if f.httpAddr != "" {
		access := &zapio.Writer{Log: log.Desugar(), Level: zap.DebugLevel}
		srv = web.New(f.httpAddr, tracker, m, access)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("web: %v", err)
			}
		}()
		log.Infof("web: status server listening on %s", f.httpAddr)
	}

	log.Infof("main: started run %s, driver=%s format=%s broker=%q heartbeat=%v",
		runID, cfg.ServoDriver, cfg.DataFormat, f.broker, f.heartbeat)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	shutdown := func(reason string) error {
		var err error
		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			err = multierr.Append(err, srv.Shutdown(ctx))
			cancel()
		}
		if telemetry != nil {
			telemetry.Shutdown(reason)
		}
		if publisher != nil {
			err = multierr.Append(err, publisher.Close())
		}
		return multierr.Append(err, devs.Close())
	}

	return serve(ctrl, sigCh, shutdown, os.Exit, log)
}

// serve runs the controller until the first signal, then stops it and calls
// shutdown with the signal name. A second signal during shutdown makes one
// bounded attempt to stop the driver and calls exit(1).
func serve(ctrl *control.Controller, sig <-chan os.Signal, shutdown func(reason string) error, exit func(int), log *zap.SugaredLogger) error {
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(context.Background()) }()

	var s os.Signal
	select {
	case err := <-done:
		return multierr.Append(fmt.Errorf("control loop exited: %w", err), shutdown("ERROR"))
	case s = <-sig:
	}
	log.Infof("main: received %v, shutting down", s)

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case s := <-sig:
			log.Warnf("main: received %v during shutdown, exiting", s)
			forceStop(ctrl, forceStopTimeout, log)
			exit(1)
		case <-finished:
		}
	}()

	if err := ctrl.Stop(); err != nil {
		log.Warnf("main: %v", err)
	}
	if err := <-done; err != nil && !errors.Is(err, control.ErrStopped) {
		log.Warnf("main: control loop: %v", err)
	}
	if err := shutdown(signalName(s)); err != nil {
		log.Warnf("main: shutdown: %v", err)
	}
	log.Infof("main: stopped")
	return nil
}

// forceStop stops ctrl but gives up after timeout. Stop waits for the
// actuator, which may be the thing that is hung.
func forceStop(ctrl *control.Controller, timeout time.Duration, log *zap.SugaredLogger) {
	stopped := make(chan error, 1)
	go func() { stopped <- ctrl.Stop() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-stopped:
		if err != nil {
			log.Warnf("main: %v", err)
		}
	case <-timer.C:
		log.Warnf("main: actuator did not stop within %v", timeout)
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// devices are the hardware handles and sinks owned by the process.
type devices struct {
	sampler   adc.Sampler
	driver    servo.Driver
	logger    datalog.Writer
	indicator gpio.Indicator
}

// Close releases everything except the driver, which the controller stops.
func (d *devices) Close() error {
	var err error
	if d.sampler != nil {
		err = multierr.Append(err, d.sampler.Close())
	}
	if d.logger != nil {
		err = multierr.Append(err, d.logger.Close())
	}
	if d.indicator != nil {
		err = multierr.Append(err, d.indicator.Close())
	}
	return err
}

func openDevices(cfg *config.Config, runID uuid.UUID, rtcUpdate time.Time) (*devices, error) {
	devs := &devices{}
	fail := func(err error) (*devices, error) {
		if devs.driver != nil {
			err = multierr.Append(err, devs.driver.Stop())
		}
		return nil, multierr.Append(err, devs.Close())
	}

	sampler, err := adc.NewRealSampler(samplerOptions(cfg))
	if err != nil {
		return fail(fmt.Errorf("init adc: %w", err))
	}
	devs.sampler = sampler

	if devs.driver, err = newDriver(cfg); err != nil {
		return fail(err)
	}
	if devs.logger, err = newDataLogger(cfg, runID, rtcUpdate); err != nil {
		return fail(err)
	}

	devs.indicator = gpio.Nop{}
	if cfg.IndicatorPin != gpio.NoPin {
		ind, err := gpio.NewRealIndicator(cfg.IndicatorPin)
		if err != nil {
			return fail(fmt.Errorf("init indicator: %w", err))
		}
		devs.indicator = ind
	}
	return devs, nil
}

func samplerOptions(cfg *config.Config) adc.Options {
	return adc.Options{
		Bus:        cfg.I2CBus,
		Address:    cfg.ADCAddress,
		MaxVoltage: cfg.ADCMaxVoltage,
	}
}

func calibration(cfg *config.Config) servo.Calibration {
	cal := servo.DefaultCalibration()
	cal.MinPulse, cal.MaxPulse = cfg.ServoPulseRange()
	return cal
}

func newDriver(cfg *config.Config) (servo.Driver, error) {
	switch cfg.ServoDriver {
	case config.DriverPCA9685:
		d, err := servo.NewPCA9685Driver(cfg.I2CBus, servo.DefaultPCA9685Address, cfg.PCA9685Channel, calibration(cfg))
		if err != nil {
			return nil, fmt.Errorf("init servo: %w", err)
		}
		return d, nil
	case config.DriverRPIO:
		d, err := servo.NewRPIODriver(cfg.ServoPin, calibration(cfg))
		if err != nil {
			return nil, fmt.Errorf("init servo: %w", err)
		}
		return d, nil
	}
	return nil, fmt.Errorf("init servo: %w: driver %q", config.ErrInvalidValue, cfg.ServoDriver)
}

// newDataLogger opens the sinks selected by data_format under data_dir.
func newDataLogger(cfg *config.Config, runID uuid.UUID, rtcUpdate time.Time) (datalog.Writer, error) {
	openCSV := func() (datalog.Writer, error) {
		w, err := datalog.NewCSVWriter(cfg.DataDir, rtcUpdate)
		if err != nil {
			return nil, fmt.Errorf("init csv log: %w", err)
		}
		return w, nil
	}
	openSQLite := func() (datalog.Writer, error) {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("init sqlite log: %w", err)
		}
		w, err := datalog.NewSQLiteWriter(filepath.Join(cfg.DataDir, SQLiteFile), runID)
		if err != nil {
			return nil, fmt.Errorf("init sqlite log: %w", err)
		}
		return w, nil
	}

	switch cfg.DataFormat {
	case config.FormatCSV:
		return openCSV()
	case config.FormatSQLite:
		return openSQLite()
	case config.FormatBoth:
		c, err := openCSV()
		if err != nil {
			return nil, err
		}
		s, err := openSQLite()
		if err != nil {
			return nil, multierr.Append(err, c.Close())
		}
		return datalog.Multi{c, s}, nil
	}
	return nil, fmt.Errorf("init data log: %w: format %q", config.ErrInvalidValue, cfg.DataFormat)
}

func newController(cfg *config.Config, devs *devices, clk clock.Clock, log *zap.SugaredLogger, observers []control.Observer) (*control.Controller, error) {
	player := pattern.NewPlayer(devs.driver, cfg.Patterns(), devs.indicator, clk, log)
	log.Debugf("pattern: loaded %s", strings.Join(player.Names(), ", "))
	ctrl, err := control.New(control.Options{
		WindowStart:      cfg.WindowStart,
		WindowEnd:        cfg.WindowEnd,
		ClosedAngle:      cfg.AngleClosed,
		OpenAngle:        cfg.AngleOpen,
		Period:           cfg.TickPeriod,
		Settle:           cfg.SettleDelay,
		MaxErrorFeedback: cfg.MaxErrorFeedback,
	}, control.Deps{
		Sampler:   devs.sampler,
		Logger:    devs.logger,
		Actuator:  devs.driver,
		Feedback:  player,
		Clock:     clk,
		Log:       log,
		Observers: observers,
	})
	if err != nil {
		return nil, fmt.Errorf("init controller: %w", err)
	}
	return ctrl, nil
}

func statusConfig(cfg *config.Config, f flags) status.Config {
	sc := status.Config{
		TickMs:      cfg.TickPeriod.Milliseconds(),
		HeartbeatMs: f.heartbeat.Milliseconds(),
		ServoDriver: cfg.ServoDriver,
		DataFormat:  cfg.DataFormat,
		Broker:      f.broker,
		HTTPAddr:    f.httpAddr,
	}
	if cfg.WindowStart != nil && cfg.WindowEnd != nil {
		sc.WindowStart = cfg.WindowStart.String()
		sc.WindowEnd = cfg.WindowEnd.String()
	}
	if cfg.AngleClosed != nil && cfg.AngleOpen != nil {
		sc.AngleClosed = *cfg.AngleClosed
		sc.AngleOpen = *cfg.AngleOpen
	}
	return sc
}

// syncClock sets the system time from clk. Failures are logged and the loop
// starts on whatever time the system has.
func syncClock(clk rtc.Clock, set rtc.SetFunc, log *zap.SugaredLogger) time.Time {
	t, err := rtc.Sync(clk, set)
	if err != nil {
		log.Warnf("rtc: %v", err)
		return time.Time{}
	}
	log.Infof("rtc: system time set to %s", t.Format(time.DateTime))
	return t
}

func printSample(s control.Sampler, w io.Writer) error {
	r, err := s.Read()
	if err != nil {
		return fmt.Errorf("read adc: %w", err)
	}
	for i := range r.Values {
		fmt.Fprintf(w, "%s: %.4f V (%d)\n", channelName(i), r.Voltages[i], r.Values[i])
	}
	return nil
}

func channelName(i int) string {
	return fmt.Sprintf("CH%02d", i+1)
}
