// Package funding tracks aggregate open interest by side and recomputes
// the global funding rate at interval boundaries. The rate is observable
// state only in this core: it is not yet applied to transfer value
// between sides.
package funding

import (
	"fmt"
	"math"
	"math/big"
	"sync"

	"github.com/uhyunpark/perpledger/pkg/core"
)

var rateScale = new(big.Int).SetUint64(core.RateScale)

// State is the persisted snapshot of the controller.
type State struct {
	TotalLongs  uint64 `json:"totalLongs"`
	TotalShorts uint64 `json:"totalShorts"`
	FundingRate uint64 `json:"fundingRate"` // RateScale-scaled imbalance ratio
	LastUpdate  int64  `json:"lastUpdate"`  // unix seconds of last refresh
}

// Controller owns the open-interest counters and the funding rate.
// All mutation goes through its guarded arithmetic; callers never touch
// the counters directly.
type Controller struct {
	mu       sync.RWMutex
	interval int64 // seconds between funding updates
	state    State
}

// NewController creates a controller with the given funding interval.
func NewController(interval int64) *Controller {
	return &Controller{interval: interval}
}

// Refresh recomputes the funding rate when a full interval has elapsed
// since the last update. It must be invoked at the top of every operation
// that reads price or mutates open interest; there is no background
// scheduler. An empty market (zero open interest on both sides) has no
// imbalance to price, so a due update is skipped with the rate unchanged
// rather than dividing by zero; ComputeRate surfaces that condition to
// direct queries.
func (c *Controller) Refresh(now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now-c.state.LastUpdate < c.interval {
		return
	}
	c.state.LastUpdate = now

	if c.state.TotalLongs == 0 && c.state.TotalShorts == 0 {
		return
	}
	c.state.FundingRate = imbalanceRatio(c.state.TotalLongs, c.state.TotalShorts)
}

// ComputeRate returns the live imbalance ratio without waiting for an
// interval boundary. Fails with core.ErrDegenerateMarket when total open
// interest is zero.
func (c *Controller) ComputeRate() (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state.TotalLongs == 0 && c.state.TotalShorts == 0 {
		return 0, fmt.Errorf("%w: zero total open interest", core.ErrDegenerateMarket)
	}
	return imbalanceRatio(c.state.TotalLongs, c.state.TotalShorts), nil
}

// imbalanceRatio = |longs - shorts| * RateScale / (longs + shorts).
// The numerator needs more than 64 bits for any real open interest.
func imbalanceRatio(longs, shorts uint64) uint64 {
	diff := longs - shorts
	if shorts > longs {
		diff = shorts - longs
	}
	num := new(big.Int).Mul(new(big.Int).SetUint64(diff), rateScale)
	den := new(big.Int).Add(new(big.Int).SetUint64(longs), new(big.Int).SetUint64(shorts))
	return num.Quo(num, den).Uint64()
}

// AdjustOpenInterest adds delta to the chosen side's aggregate.
// Fails with core.ErrUnderflow if the result would go negative and
// core.ErrOverflow if it would wrap; the counters are left untouched
// on failure.
func (c *Controller) AdjustOpenInterest(isLong bool, delta int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	side := &c.state.TotalLongs
	if !isLong {
		side = &c.state.TotalShorts
	}

	if delta < 0 {
		dec := uint64(-delta)
		if dec > *side {
			return fmt.Errorf("%w: open interest %d cannot absorb decrement %d", core.ErrUnderflow, *side, dec)
		}
		*side -= dec
		return nil
	}
	inc := uint64(delta)
	if inc > math.MaxUint64-*side {
		return fmt.Errorf("%w: open interest %d cannot absorb increment %d", core.ErrOverflow, *side, inc)
	}
	*side += inc
	return nil
}

// Rate returns the last computed funding rate.
func (c *Controller) Rate() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.FundingRate
}

// OpenInterest returns the aggregate open interest by side.
func (c *Controller) OpenInterest() (longs, shorts uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.TotalLongs, c.state.TotalShorts
}

// Snapshot returns a copy of the persisted state.
func (c *Controller) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Restore loads a persisted snapshot, replacing current state.
func (c *Controller) Restore(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
