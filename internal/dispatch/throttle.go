package dispatch

import (
	"context"
	"math/rand/v2"
	"time"
)

// Throttle spaces consecutive sends by a uniformly random delay.
type Throttle struct {
	Min, Max time.Duration
	rnd      func() float64
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewThrottle clamps max up to min and negative bounds to zero.
func NewThrottle(lo, hi time.Duration) *Throttle {
	if lo < 0 {
		lo = 0
	}
	if hi < lo {
		hi = lo
	}
	return &Throttle{Min: lo, Max: hi, rnd: rand.Float64, sleep: sleepContext}
}

// Next draws the next delay from [Min, Max].
func (t *Throttle) Next() time.Duration {
	if t.Max == t.Min {
		return t.Min
	}
	return t.Min + time.Duration(t.rnd()*float64(t.Max-t.Min))
}

// Wait sleeps for the next delay or until ctx is done.
func (t *Throttle) Wait(ctx context.Context) (time.Duration, error) {
	d := t.Next()
	if d <= 0 {
		return 0, ctx.Err()
	}
	return d, t.sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
