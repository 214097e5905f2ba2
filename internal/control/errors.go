package control

import (
	"errors"
	"fmt"
)

// Configuration errors. These are fatal: the loop must not start.
var (
	ErrMissingAngles = errors.New("angle_closed and angle_open must both be set")
	ErrMissingWindow = errors.New("time_to_close_start and time_to_close_end must both be set")
	ErrMissingDep    = errors.New("missing collaborator")
)

// ErrStopped is returned by Run once Stop has been called.
var ErrStopped = errors.New("controller stopped")

// Stage names the collaborator call a tick failed in.
type Stage string

const (
	StageSample  Stage = "sample"
	StageLog     Stage = "log"
	StageActuate Stage = "actuate"
)

// TickError is a transient failure inside one tick. Run answers it with the
// error pattern and carries on with the next tick.
type TickError struct {
	Stage Stage
	Err   error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *TickError) Unwrap() error {
	return e.Err
}
