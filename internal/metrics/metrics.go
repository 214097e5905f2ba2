// Package metrics exposes the control loop as Prometheus collectors.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/vent-controller/internal/adc"
	"github.com/sweeney/vent-controller/internal/control"
	"github.com/sweeney/vent-controller/internal/logic"
)

const namespace = "vent"

// Metrics holds the collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	ticks      prometheus.Counter
	tickErrors *prometheus.CounterVec
	moves      prometheus.Counter
	voltage    *prometheus.GaugeVec
	raw        *prometheus.GaugeVec
	angle      prometheus.Gauge
	closed     prometheus.Gauge
	lastTick   prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Control loop ticks run.",
		}),
		tickErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_errors_total",
			Help:      "Failed ticks by the stage that failed.",
		}, []string{"stage"}),
		moves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actuations_total",
			Help:      "Servo moves commanded by the schedule.",
		}),
		voltage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_volts",
			Help:      "Last sampled voltage by channel.",
		}, []string{"channel"}),
		raw: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_raw",
			Help:      "Last raw ADC value by channel.",
		}, []string{"channel"}),
		angle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "servo_angle_degrees",
			Help:      "Last angle the servo accepted.",
		}),
		closed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vent_closed",
			Help:      "1 while the schedule wants the vent closed.",
		}),
		lastTick: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_tick_timestamp_seconds",
			Help:      "Unix time of the last tick.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.ticks,
		m.tickErrors,
		m.moves,
		m.voltage,
		m.raw,
		m.angle,
		m.closed,
		m.lastTick,
		m.httpRequests,
		m.httpDuration,
	)
	for _, s := range []control.Stage{control.StageSample, control.StageLog, control.StageActuate} {
		m.tickErrors.WithLabelValues(string(s))
	}
	return m
}

// ChannelLabel returns the label used for ADC channel i, matching the data
// file column names.
func ChannelLabel(i int) string {
	return fmt.Sprintf("ch%02d", i+1)
}

// ObserveTick updates the collectors from one tick.
func (m *Metrics) ObserveTick(res control.TickResult) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.lastTick.Set(float64(res.Time.Unix()) + float64(res.Time.Nanosecond())/1e9)

	if res.Err != nil {
		var te *control.TickError
		stage := "unknown"
		if errors.As(res.Err, &te) {
			stage = string(te.Stage)
		}
		m.tickErrors.WithLabelValues(stage).Inc()
		if te != nil && te.Stage == control.StageSample {
			return
		}
	}

	for i := 0; i < adc.Channels; i++ {
		m.voltage.WithLabelValues(ChannelLabel(i)).Set(res.Reading.Voltages[i])
		m.raw.WithLabelValues(ChannelLabel(i)).Set(float64(res.Reading.Values[i]))
	}
	if res.Position != "" {
		closed := 0.0
		if res.Position == logic.PositionClosed {
			closed = 1
		}
		m.closed.Set(closed)
	}
	if res.Commanded {
		m.moves.Inc()
		m.angle.Set(float64(res.Desired))
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts and times requests to route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}
