package servo

import "errors"

// ErrStopped is returned by SetAngle after Stop.
var ErrStopped = errors.New("servo: driver stopped")
