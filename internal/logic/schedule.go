package logic

import (
	"fmt"
	"time"
)

// TimeLayout is the wall-clock format used for window bounds.
const TimeLayout = "15:04:05"

// ParseTimeOfDay parses an "HH:MM:SS" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay(time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second), nil
}

// TimeOfDayOf returns the wall-clock offset of t in its own location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond()))
}

// String formats the offset as HH:MM:SS, dropping sub-second precision.
func (d TimeOfDay) String() string {
	total := int(time.Duration(d) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

// Contains reports whether t falls within [Start, End], both bounds inclusive.
func (w Window) Contains(t time.Time) bool {
	tod := TimeOfDayOf(t)
	return w.Start <= tod && tod <= w.End
}

// Schedule maps wall-clock time to a desired actuator angle.
type Schedule struct {
	Window Window
	Angles Angles
}

// Position returns CLOSED inside the window and OPEN outside it.
func (s Schedule) Position(t time.Time) Position {
	if s.Window.Contains(t) {
		return PositionClosed
	}
	return PositionOpen
}

// DesiredAngle returns the angle the actuator should hold at t.
func (s Schedule) DesiredAngle(t time.Time) Angle {
	if s.Position(t) == PositionClosed {
		return s.Angles.Closed
	}
	return s.Angles.Open
}
