package game

import (
	"fmt"
	"time"

	"github.com/park285/battle-chess/internal/chess"
)

// DefaultClock is the per-side thinking budget.
const DefaultClock = 10 * time.Minute

// Clock holds the remaining time of both sides.
type Clock struct {
	Budget    time.Duration
	Remaining [2]time.Duration
}

func NewClock(budget time.Duration) Clock {
	if budget <= 0 {
		budget = DefaultClock
	}
	return Clock{Budget: budget, Remaining: [2]time.Duration{budget, budget}}
}

// Left returns the time color has remaining, never negative.
func (c Clock) Left(color chess.Color) time.Duration {
	if c.Remaining[color] < 0 {
		return 0
	}
	return c.Remaining[color]
}

// Charge deducts d from color and reports whether its flag fell.
func (c *Clock) Charge(color chess.Color, d time.Duration) bool {
	if d > 0 {
		c.Remaining[color] -= d
	}
	if c.Remaining[color] <= 0 {
		c.Remaining[color] = 0
		return true
	}
	return false
}

// FormatClock renders a duration as m:ss, the way the board HUD shows it.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
