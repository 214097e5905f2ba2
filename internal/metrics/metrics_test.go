package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sweeney/vent-controller/internal/adc"
	"github.com/sweeney/vent-controller/internal/control"
	"github.com/sweeney/vent-controller/internal/logic"
)

func newMetrics(t *testing.T) *Metrics {
	t.Helper()
	return New(prometheus.NewRegistry())
}

func TestChannelLabel(t *testing.T) {
	for i, want := range []string{"ch01", "ch02", "ch03"} {
		if got := ChannelLabel(i); got != want {
			t.Errorf("ChannelLabel(%d): got %q, want %q", i, got, want)
		}
	}
}

func TestObserveTick(t *testing.T) {
	m := newMetrics(t)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	m.ObserveTick(control.TickResult{
		Time: now,
		Reading: adc.Reading{
			Values:   [adc.Channels]int32{100, 200, 300},
			Voltages: [adc.Channels]float64{0.5, 1.25, 2},
		},
		Position:  logic.PositionClosed,
		Desired:   10,
		Commanded: true,
	})
	m.ObserveTick(control.TickResult{Time: now.Add(time.Second), Position: logic.PositionClosed, Desired: 10})

	if got := testutil.ToFloat64(m.ticks); got != 2 {
		t.Errorf("ticks: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.moves); got != 1 {
		t.Errorf("moves: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.angle); got != 10 {
		t.Errorf("angle: got %v, want 10", got)
	}
	if got := testutil.ToFloat64(m.closed); got != 1 {
		t.Errorf("closed: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.lastTick); got != float64(now.Add(time.Second).Unix()) {
		t.Errorf("last tick: got %v", got)
	}
}

func TestObserveTickErrors(t *testing.T) {
	m := newMetrics(t)
	m.ObserveTick(control.TickResult{Err: &control.TickError{Stage: control.StageLog, Err: errors.New("disk full")}})
	m.ObserveTick(control.TickResult{Err: &control.TickError{Stage: control.StageLog, Err: errors.New("disk full")}})
	m.ObserveTick(control.TickResult{Err: &control.TickError{Stage: control.StageSample, Err: errors.New("nack")}})

	if got := testutil.ToFloat64(m.tickErrors.WithLabelValues("log")); got != 2 {
		t.Errorf("log errors: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.tickErrors.WithLabelValues("sample")); got != 1 {
		t.Errorf("sample errors: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.tickErrors.WithLabelValues("actuate")); got != 0 {
		t.Errorf("actuate errors: got %v, want 0", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTick(control.TickResult{Commanded: true})

	h := m.WrapHandler("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}

func TestHandlerAndWrap(t *testing.T) {
	m := newMetrics(t)

	wrapped := m.WrapHandler("/index.json", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/index.json", nil))

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("/index.json", "418")); got != 1 {
		t.Errorf("http requests: got %v, want 1", got)
	}

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{"vent_ticks_total", `vent_tick_errors_total{stage="actuate"} 0`, "vent_http_requests_total"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
