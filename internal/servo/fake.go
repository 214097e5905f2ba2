package servo

import (
	"sync"

	"github.com/sweeney/vent-controller/internal/logic"
)

// FakeDriver is a test double that records commanded angles.
// Safe for concurrent use: Stop may arrive from a signal goroutine.
type FakeDriver struct {
	mu sync.Mutex

	moves     []logic.Angle
	stopCalls int

	// SetErrors, if non-nil at the index of a SetAngle call, is returned
	// and the move is not recorded.
	SetErrors []error
	setCalls  int

	// StopError, if set, will be returned by Stop.
	StopError error
}

// NewFakeDriver creates a FakeDriver.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{}
}

// SetAngle records the angle unless a scripted error is due.
func (f *FakeDriver) SetAngle(angle logic.Angle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.setCalls
	f.setCalls++
	if call < len(f.SetErrors) && f.SetErrors[call] != nil {
		return f.SetErrors[call]
	}
	f.moves = append(f.moves, angle)
	return nil
}

// Stop counts the call.
func (f *FakeDriver) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return f.StopError
}

// Moves returns a copy of the successfully applied angles, oldest first.
func (f *FakeDriver) Moves() []logic.Angle {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]logic.Angle, len(f.moves))
	copy(out, f.moves)
	return out
}

// SetCalls returns the number of SetAngle calls, including failed ones.
func (f *FakeDriver) SetCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setCalls
}

// StopCalls returns the number of Stop calls.
func (f *FakeDriver) StopCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

// Reset clears recorded calls.
func (f *FakeDriver) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = nil
	f.stopCalls = 0
	f.setCalls = 0
	f.SetErrors = nil
	f.StopError = nil
}
