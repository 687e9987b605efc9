package rate

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// PolicyKind selects how the target QPS evolves during the run.
type PolicyKind int

const (
	// None performs no gating.
	None PolicyKind = iota
	// Fixed holds a constant target.
	Fixed
	// Linear adds StepQPS every Interval, clamped at EndQPS.
	Linear
	// Exponential multiplies by Factor every Interval, clamped at EndQPS.
	Exponential
)

// Policy is the immutable rate schedule owned by a Controller.
type Policy struct {
	Kind     PolicyKind
	QPS      int // Fixed target
	StartQPS int
	EndQPS   int
	StepQPS  int     // Linear
	Factor   float64 // Exponential
	Interval time.Duration
}

// NewPolicy validates the raw rate options and builds a Policy. Warnings
// (non-fatal oddities like a ramp-down factor) are returned for the caller
// to log.
func NewPolicy(qps, startQPS, endQPS, change, intervalSec int, mode string, factor float64) (Policy, []string, error) {
	var warnings []string

	dynamic := startQPS > 0 || endQPS > 0 || intervalSec > 0 || change != 0
	if qps > 0 {
		if dynamic {
			return Policy{}, nil, fmt.Errorf("--qps is mutually exclusive with the dynamic rate options")
		}
		return Policy{Kind: Fixed, QPS: qps}, nil, nil
	}
	if !dynamic {
		return Policy{Kind: None}, nil, nil
	}

	if endQPS <= 0 || intervalSec <= 0 {
		return Policy{}, nil, fmt.Errorf("dynamic rate requires end-qps and qps-change-interval")
	}
	if startQPS <= 0 {
		warnings = append(warnings, "start-qps not set for ramp mode, using end-qps as initial QPS")
		startQPS = endQPS
	}
	interval := time.Duration(intervalSec) * time.Second

	switch mode {
	case "", "linear":
		if change == 0 {
			return Policy{}, nil, fmt.Errorf("linear ramp requires a non-zero qps-change")
		}
		if diff := endQPS - startQPS; (diff > 0 && change < 0) || (diff < 0 && change > 0) {
			return Policy{}, nil, fmt.Errorf("qps-change must have the same sign as end-qps minus start-qps")
		}
		return Policy{Kind: Linear, StartQPS: startQPS, EndQPS: endQPS, StepQPS: change, Interval: interval}, warnings, nil
	case "exponential":
		if factor <= 0 {
			return Policy{}, nil, fmt.Errorf("exponential ramp requires an explicit positive qps-ramp-factor")
		}
		if factor < 1 {
			warnings = append(warnings, "qps-ramp-factor < 1 will decrease QPS each interval (ramp-down)")
		}
		return Policy{Kind: Exponential, StartQPS: startQPS, EndQPS: endQPS, Factor: factor, Interval: interval}, warnings, nil
	default:
		return Policy{}, nil, fmt.Errorf("unknown qps-ramp-mode %q (want linear or exponential)", mode)
	}
}

// Divide scales the policy targets for one of n worker groups. Each of the
// QPS endpoints and the linear step is floor-divided so that the sum across
// groups never exceeds the configured totals.
func (p Policy) Divide(n int) Policy {
	if n <= 1 {
		return p
	}
	out := p
	out.QPS = p.QPS / n
	out.StartQPS = p.StartQPS / n
	out.EndQPS = p.EndQPS / n
	out.StepQPS = p.StepQPS / n
	return out
}

func (p Policy) initial() int {
	switch p.Kind {
	case Fixed:
		return p.QPS
	case Linear, Exponential:
		return p.StartQPS
	default:
		return 0
	}
}

func (p Policy) clamp(v int) int {
	lo, hi := p.StartQPS, p.EndQPS
	if lo > hi {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Controller gates calls so that at most the current target rate is issued
// per second within one process, evolving the target per the policy. A
// single mutex protects all counters; the critical sections are O(1) and a
// throttled caller sleeps holding the lock, which serializes the other
// workers behind the same pacing decision.
type Controller struct {
	mu     sync.Mutex
	clock  clock.Clock
	policy Policy

	current     int
	permits     int
	secondStart time.Time
	lastRamp    time.Time
}

// NewController builds a controller. A nil clock uses the wall clock.
func NewController(p Policy, clk clock.Clock) *Controller {
	if clk == nil {
		clk = clock.New()
	}
	now := clk.Now()
	return &Controller{
		clock:       clk,
		policy:      p,
		current:     p.initial(),
		secondStart: now,
		lastRamp:    now,
	}
}

// CurrentQPS returns the present target rate.
func (c *Controller) CurrentQPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Await suspends the caller until the next call is permitted under the
// current target, consuming one permit. It never fails except when ctx is
// cancelled. With the None policy it returns immediately.
func (c *Controller) Await(ctx context.Context) error {
	if c.policy.Kind == None {
		return ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.maybeRamp(now)
	if c.current <= 0 {
		return ctx.Err()
	}

	if now.Sub(c.secondStart) >= time.Second {
		c.permits = 0
		c.secondStart = now
	}

	if c.permits >= c.current {
		// Budget for this second is spent: wait for the window boundary.
		// The window re-anchors at wake-up, so a stall never produces a
		// catch-up burst.
		if d := c.secondStart.Add(time.Second).Sub(now); d > 0 {
			if err := c.sleep(ctx, d); err != nil {
				return err
			}
		}
		c.permits = 0
		c.secondStart = c.clock.Now()
	}

	c.permits++
	return nil
}

func (c *Controller) sleep(ctx context.Context, d time.Duration) error {
	t := c.clock.Timer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// maybeRamp applies at most one policy step per elapsed interval. Clamping
// happens after the update, never before.
func (c *Controller) maybeRamp(now time.Time) {
	switch c.policy.Kind {
	case Linear:
		if now.Sub(c.lastRamp) >= c.policy.Interval {
			c.current = c.policy.clamp(c.current + c.policy.StepQPS)
			c.lastRamp = now
		}
	case Exponential:
		if now.Sub(c.lastRamp) >= c.policy.Interval {
			c.current = c.policy.clamp(int(math.Round(float64(c.current) * c.policy.Factor)))
			c.lastRamp = now
		}
	}
}
