package pattern

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/sweeney/vent-controller/internal/gpio"
	"github.com/sweeney/vent-controller/internal/logic"
)

// ErrUnknownPattern is returned by Play for a name with no pattern.
var ErrUnknownPattern = errors.New("unknown pattern")

// Mover is the part of the servo driver the player needs.
type Mover interface {
	SetAngle(angle logic.Angle) error
}

// Player plays patterns on a servo, lighting the indicator while it runs.
type Player struct {
	mover     Mover
	indicator gpio.Indicator
	clock     clock.Clock
	logger    *zap.SugaredLogger
	patterns  map[string]Pattern
}

// NewPlayer creates a Player. A nil indicator, clock or logger is replaced
// with a no-op indicator, the wall clock and a no-op logger.
func NewPlayer(mover Mover, patterns map[string]Pattern, indicator gpio.Indicator, clk clock.Clock, logger *zap.SugaredLogger) *Player {
	if indicator == nil {
		indicator = gpio.Nop{}
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if patterns == nil {
		patterns = Builtin()
	}
	return &Player{
		mover:     mover,
		indicator: indicator,
		clock:     clk,
		logger:    logger,
		patterns:  patterns,
	}
}

// Names returns the known pattern names, sorted.
func (p *Player) Names() []string {
	names := make([]string, 0, len(p.patterns))
	for name := range p.patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Play runs the named pattern to completion and returns the number of steps
// the servo accepted. It blocks for the pattern's total hold time unless ctx
// is cancelled first.
func (p *Player) Play(ctx context.Context, name string) (int, error) {
	pat, ok := p.patterns[name]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownPattern, name)
	}

	if err := p.indicator.Set(true); err != nil {
		p.logger.Warnf("pattern: indicator on: %v", err)
	}
	defer func() {
		if err := p.indicator.Set(false); err != nil {
			p.logger.Warnf("pattern: indicator off: %v", err)
		}
	}()

	p.logger.Debugf("pattern: playing %s (%d steps, %v)", name, len(pat), pat.Duration())
	moved := 0
	for i, step := range pat {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		if err := p.mover.SetAngle(step.Angle); err != nil {
			return moved, fmt.Errorf("pattern %s step %d: %w", name, i, err)
		}
		moved++
		if err := p.hold(ctx, step); err != nil {
			return moved, err
		}
	}
	return moved, nil
}

func (p *Player) hold(ctx context.Context, step Step) error {
	if step.Hold <= 0 {
		return nil
	}
	timer := p.clock.Timer(step.Hold)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
