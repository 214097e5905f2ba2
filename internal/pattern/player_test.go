package pattern

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"

	"github.com/sweeney/vent-controller/internal/gpio"
	"github.com/sweeney/vent-controller/internal/logic"
	"github.com/sweeney/vent-controller/internal/servo"
)

func quickPatterns() map[string]Pattern {
	return map[string]Pattern{
		"blink": {
			{Angle: 30, Hold: time.Millisecond},
			{Angle: 150, Hold: time.Millisecond},
			{Angle: 30, Hold: 0},
		},
	}
}

func TestPlayMovesThroughSteps(t *testing.T) {
	drv := servo.NewFakeDriver()
	led := gpio.NewFakeIndicator()
	p := NewPlayer(drv, quickPatterns(), led, clock.New(), nil)

	n, err := p.Play(context.Background(), "blink")
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if n != 3 {
		t.Errorf("steps moved: got %d, want 3", n)
	}

	if diff := cmp.Diff([]logic.Angle{30, 150, 30}, drv.Moves()); diff != "" {
		t.Errorf("moves (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]bool{true, false}, led.Values); diff != "" {
		t.Errorf("indicator (-want +got):\n%s", diff)
	}
}

func TestPlayUnknownPattern(t *testing.T) {
	drv := servo.NewFakeDriver()
	p := NewPlayer(drv, quickPatterns(), nil, nil, nil)

	n, err := p.Play(context.Background(), "nope")
	if !errors.Is(err, ErrUnknownPattern) {
		t.Fatalf("got %v, want ErrUnknownPattern", err)
	}
	if n != 0 {
		t.Errorf("steps moved: got %d, want 0", n)
	}
	if drv.SetCalls() != 0 {
		t.Errorf("expected no moves, got %d", drv.SetCalls())
	}
}

func TestPlayDriverError(t *testing.T) {
	drv := servo.NewFakeDriver()
	boom := errors.New("pwm fault")
	drv.SetErrors = []error{nil, boom}
	led := gpio.NewFakeIndicator()
	p := NewPlayer(drv, quickPatterns(), led, clock.New(), nil)

	n, err := p.Play(context.Background(), "blink")
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want wrapped %v", err, boom)
	}
	if n != 1 {
		t.Errorf("steps moved: got %d, want 1", n)
	}
	if led.On() {
		t.Error("indicator should be off after a failed pattern")
	}
}

func TestPlayCancelledBeforeStart(t *testing.T) {
	drv := servo.NewFakeDriver()
	p := NewPlayer(drv, quickPatterns(), nil, clock.New(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := p.Play(ctx, "blink")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if n != 0 {
		t.Errorf("steps moved: got %d, want 0", n)
	}
	if drv.SetCalls() != 0 {
		t.Errorf("expected no moves, got %d", drv.SetCalls())
	}
}

func TestPlayCancelledDuringHold(t *testing.T) {
	drv := servo.NewFakeDriver()
	mock := clock.NewMock()
	pats := map[string]Pattern{"slow": {{Angle: 45, Hold: time.Hour}, {Angle: 135, Hold: time.Hour}}}
	p := NewPlayer(drv, pats, nil, mock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Play(ctx, "slow")
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for drv.SetCalls() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first step never started")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Play did not return after cancel")
	}
	if diff := cmp.Diff([]logic.Angle{45}, drv.Moves()); diff != "" {
		t.Errorf("moves (-want +got):\n%s", diff)
	}
}

func TestPlayHoldUsesClock(t *testing.T) {
	drv := servo.NewFakeDriver()
	mock := clock.NewMock()
	pats := map[string]Pattern{"two": {{Angle: 45, Hold: time.Second}, {Angle: 135, Hold: time.Second}}}
	p := NewPlayer(drv, pats, nil, mock, nil)

	done := make(chan error, 1)
	go func() {
		_, err := p.Play(context.Background(), "two")
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Play: %v", err)
			}
			if diff := cmp.Diff([]logic.Angle{45, 135}, drv.Moves()); diff != "" {
				t.Errorf("moves (-want +got):\n%s", diff)
			}
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("Play did not finish")
		}
		mock.Add(100 * time.Millisecond)
	}
}

func TestMergeOverridesBuiltin(t *testing.T) {
	custom := Pattern{{Angle: 1, Hold: time.Second}}
	got := Merge(map[string]Pattern{Error1: custom, "error_2": custom})

	if diff := cmp.Diff(custom, got[Error1]); diff != "" {
		t.Errorf("error_1 not overridden (-want +got):\n%s", diff)
	}
	if _, ok := got[DeviceOn]; !ok {
		t.Error("device_on should survive merge")
	}
	if _, ok := got["error_2"]; !ok {
		t.Error("error_2 should be added")
	}
}

func TestBuiltinNames(t *testing.T) {
	p := NewPlayer(servo.NewFakeDriver(), nil, nil, nil, nil)
	if diff := cmp.Diff([]string{DeviceOn, Error1}, p.Names()); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
	if d := Builtin()[DeviceOn].Duration(); d != 2*time.Second {
		t.Errorf("device_on duration: got %v, want 2s", d)
	}
}
