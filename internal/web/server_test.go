package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/vent-controller/internal/adc"
	"github.com/sweeney/vent-controller/internal/control"
	"github.com/sweeney/vent-controller/internal/logic"
	"github.com/sweeney/vent-controller/internal/metrics"
	"github.com/sweeney/vent-controller/internal/status"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, accessLog io.Writer) (*httptest.Server, *status.Tracker) {
	t.Helper()
	cfg := status.Config{
		WindowStart: "08:00:00",
		WindowEnd:   "18:00:00",
		AngleClosed: 10,
		AngleOpen:   170,
		TickMs:      1000,
		HeartbeatMs: 900000,
		ServoDriver: "rpio",
		DataFormat:  "csv",
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":8080",
	}
	tr := status.NewTracker(start, cfg, nil)
	srv := New(":0", tr, metrics.New(prometheus.NewRegistry()), accessLog)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func closedTick(commanded bool) control.TickResult {
	return control.TickResult{
		Time: start.Add(time.Minute),
		Reading: adc.Reading{
			Values:   [adc.Channels]int32{100, 200, 300},
			Voltages: [adc.Channels]float64{0.0125, 0.025, 0.0375},
		},
		Position:  logic.PositionClosed,
		Desired:   10,
		Commanded: commanded,
	}
}

func getJSON(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.ObserveTick(closedTick(true))
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if sj.Status.Position != "CLOSED" {
		t.Errorf("Position: got %q, want CLOSED", sj.Status.Position)
	}
	if sj.Status.CommandedAngle == nil || *sj.Status.CommandedAngle != 10 {
		t.Errorf("CommandedAngle: got %v, want 10", sj.Status.CommandedAngle)
	}
	if !sj.Status.Ready {
		t.Error("expected Ready=true")
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q, want tcp://192.168.1.200:1883", sj.Status.MQTT.Broker)
	}
	if sj.Status.Counts.Moves != 1 {
		t.Errorf("Counts.Moves: got %d, want 1", sj.Status.Counts.Moves)
	}
	if sj.Status.Config.TickMs != 1000 {
		t.Errorf("Config.TickMs: got %d, want 1000", sj.Status.Config.TickMs)
	}
}

func TestJSONUnknownBeforeFirstTick(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	sj := getJSON(t, ts.URL+"/index.json")

	if sj.Status.Position != "UNKNOWN" {
		t.Errorf("Position before first tick: got %q, want UNKNOWN", sj.Status.Position)
	}
	if sj.Status.Ready {
		t.Error("expected Ready=false before first tick")
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.ObserveTick(closedTick(true))
	tr.ObserveTick(control.TickResult{
		Time: start.Add(2 * time.Minute),
		Err:  &control.TickError{Stage: control.StageLog, Err: errors.New("disk full")},
	})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`class="closed">CLOSED`,
		"CH01",
		"0.0125 V (100)",
		"log: disk full",
		"08:00:00 - 18:00:00",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestHTMLBeforeFirstTick(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "no sample yet") {
		t.Error("page should say there is no sample yet")
	}
	if !strings.Contains(string(body), `id="commanded">none`) {
		t.Error("page should show no commanded angle")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestWriteMethodsRejected(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/index.json", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST /index.json: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	// Generate one instrumented request first.
	getJSON(t, ts.URL+"/index.json")

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `vent_http_requests_total{route="/index.json",status="200"} 1`) {
		t.Errorf("metrics missing request counter:\n%s", body)
	}
}

func TestMetricsDisabledWithoutCollectors(t *testing.T) {
	tr := status.NewTracker(start, status.Config{}, nil)
	srv := New(":0", tr, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}

	// Status pages still work.
	sj := getJSON(t, ts.URL+"/index.json")
	if sj.Status.Position != "UNKNOWN" {
		t.Errorf("Position: got %q", sj.Status.Position)
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	ts, _ := newTestServer(t, &buf)

	getJSON(t, ts.URL+"/index.json")

	if !strings.Contains(buf.String(), `"GET /index.json HTTP/1.1" 200`) {
		t.Errorf("access log: got %q", buf.String())
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t, nil)

	sj1 := getJSON(t, ts.URL+"/index.json")
	if sj1.Status.Ready {
		t.Error("expected Ready=false initially")
	}

	tr.ObserveTick(closedTick(true))
	tr.SetMQTTConnected(true)

	sj2 := getJSON(t, ts.URL+"/index.json")
	if !sj2.Status.Ready {
		t.Error("expected Ready=true after a tick")
	}
	if sj2.Status.Position != "CLOSED" {
		t.Errorf("Position: got %q, want CLOSED", sj2.Status.Position)
	}
	if !sj2.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}
