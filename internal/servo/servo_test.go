package servo

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sweeney/vent-controller/internal/logic"
)

func TestCalibrationPulse(t *testing.T) {
	cal := DefaultCalibration()

	tests := []struct {
		angle logic.Angle
		want  time.Duration
	}{
		{0, 500 * time.Microsecond},
		{90, 1500 * time.Microsecond},
		{180, 2500 * time.Microsecond},
		{10, 500*time.Microsecond + 111111*time.Nanosecond},
		{-20, 500 * time.Microsecond},
		{270, 2500 * time.Microsecond},
	}
	for _, tt := range tests {
		if got := cal.Pulse(tt.angle); got != tt.want {
			t.Errorf("Pulse(%v): got %v, want %v", tt.angle, got, tt.want)
		}
	}
}

func TestCalibrationDutyFraction(t *testing.T) {
	cal := DefaultCalibration()
	if cal.Period() != 20*time.Millisecond {
		t.Fatalf("Period: got %v, want 20ms", cal.Period())
	}
	if got := cal.DutyFraction(90); got != 0.075 {
		t.Errorf("DutyFraction(90): got %v, want 0.075", got)
	}
}

func TestCalibrationWithDefaults(t *testing.T) {
	got := Calibration{}.WithDefaults()
	if diff := cmp.Diff(DefaultCalibration(), got); diff != "" {
		t.Errorf("zero calibration (-want +got):\n%s", diff)
	}

	custom := Calibration{MinDeg: 10, MaxDeg: 170, MinPulse: time.Millisecond, MaxPulse: 2 * time.Millisecond, FrequencyHz: 60}
	if diff := cmp.Diff(custom, custom.WithDefaults()); diff != "" {
		t.Errorf("custom calibration changed (-want +got):\n%s", diff)
	}
}

func TestCalibrationClamp(t *testing.T) {
	cal := Calibration{MinDeg: 10, MaxDeg: 170}.WithDefaults()
	if got := cal.Clamp(5); got != 10 {
		t.Errorf("Clamp(5): got %v, want 10", got)
	}
	if got := cal.Clamp(200); got != 170 {
		t.Errorf("Clamp(200): got %v, want 170", got)
	}
	if got := cal.Clamp(42); got != 42 {
		t.Errorf("Clamp(42): got %v, want 42", got)
	}
}

func TestFakeDriverRecordsMoves(t *testing.T) {
	f := NewFakeDriver()
	f.SetErrors = []error{nil, errors.New("pwm busy")}

	if err := f.SetAngle(10); err != nil {
		t.Fatalf("move 0: unexpected error: %v", err)
	}
	if err := f.SetAngle(20); err == nil {
		t.Fatal("move 1: expected error")
	}
	if err := f.SetAngle(30); err != nil {
		t.Fatalf("move 2: unexpected error: %v", err)
	}

	if diff := cmp.Diff([]logic.Angle{10, 30}, f.Moves()); diff != "" {
		t.Errorf("moves (-want +got):\n%s", diff)
	}
	if f.SetCalls() != 3 {
		t.Errorf("SetCalls: got %d, want 3", f.SetCalls())
	}
}

func TestFakeDriverStop(t *testing.T) {
	f := NewFakeDriver()
	f.Stop()
	f.Stop()
	if f.StopCalls() != 2 {
		t.Errorf("StopCalls: got %d, want 2", f.StopCalls())
	}

	f.Reset()
	if f.StopCalls() != 0 || len(f.Moves()) != 0 {
		t.Error("Reset should clear recorded calls")
	}
}
