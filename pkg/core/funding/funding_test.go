package funding

import (
	"errors"
	"math"
	"testing"

	"github.com/uhyunpark/perpledger/pkg/core"
)

// TestImbalanceRatio pins the rate formula:
// |longs - shorts| * RateScale / (longs + shorts).
func TestImbalanceRatio(t *testing.T) {
	cases := []struct {
		longs, shorts uint64
		want          uint64
	}{
		// 300 vs 100: |200| * 1e18 / 400 = 5e17
		{300, 100, 500_000_000_000_000_000},
		// Symmetric: same rate regardless of which side dominates
		{100, 300, 500_000_000_000_000_000},
		// Balanced book: zero rate
		{500, 500, 0},
		// One-sided book: full RateScale
		{1000, 0, core.RateScale},
		{0, 1000, core.RateScale},
		// 1 vs 3: 2 * 1e18 / 4 = 5e17, scale-independent
		{1, 3, 500_000_000_000_000_000},
	}
	for _, c := range cases {
		if got := imbalanceRatio(c.longs, c.shorts); got != c.want {
			t.Errorf("imbalanceRatio(%d, %d) = %d, want %d", c.longs, c.shorts, got, c.want)
		}
	}
}

// TestImbalanceRatioLargeInterest checks the numerator survives open
// interest large enough that diff*RateScale exceeds 64 bits.
func TestImbalanceRatioLargeInterest(t *testing.T) {
	longs := uint64(3_000_000_000_000)
	shorts := uint64(1_000_000_000_000)
	if got := imbalanceRatio(longs, shorts); got != 500_000_000_000_000_000 {
		t.Errorf("large-interest ratio = %d, want 5e17", got)
	}
}

func TestComputeRateDegenerateMarket(t *testing.T) {
	c := NewController(3600)
	if _, err := c.ComputeRate(); !errors.Is(err, core.ErrDegenerateMarket) {
		t.Errorf("empty market ComputeRate err = %v, want ErrDegenerateMarket", err)
	}

	c.AdjustOpenInterest(true, 100)
	rate, err := c.ComputeRate()
	if err != nil {
		t.Fatalf("ComputeRate: %v", err)
	}
	if rate != core.RateScale {
		t.Errorf("one-sided rate = %d, want %d", rate, core.RateScale)
	}
}

// TestRefreshIntervalGating verifies the rate only updates when a full
// interval has elapsed since the last update.
func TestRefreshIntervalGating(t *testing.T) {
	c := NewController(3600)
	c.AdjustOpenInterest(true, 300)
	c.AdjustOpenInterest(false, 100)

	// First refresh after an interval: rate computed.
	c.Refresh(3600)
	if got := c.Rate(); got != 500_000_000_000_000_000 {
		t.Fatalf("rate after first refresh = %d, want 5e17", got)
	}

	// Imbalance changes, but the interval has not elapsed yet.
	c.AdjustOpenInterest(false, 200)
	c.Refresh(3600 + 1800)
	if got := c.Rate(); got != 500_000_000_000_000_000 {
		t.Errorf("rate updated mid-interval: %d", got)
	}

	// Full interval elapsed: book is now 300 vs 300, rate drops to zero.
	c.Refresh(3600 + 3600)
	if got := c.Rate(); got != 0 {
		t.Errorf("rate after balanced refresh = %d, want 0", got)
	}
}

// TestRefreshSkipsEmptyMarket verifies a due refresh on an empty book
// advances the clock without touching the rate.
func TestRefreshSkipsEmptyMarket(t *testing.T) {
	c := NewController(3600)
	c.Refresh(3600)
	if got := c.Rate(); got != 0 {
		t.Errorf("empty-market refresh set rate %d", got)
	}
	if got := c.Snapshot().LastUpdate; got != 3600 {
		t.Errorf("LastUpdate = %d, want 3600", got)
	}
}

func TestAdjustOpenInterestUnderflow(t *testing.T) {
	c := NewController(3600)
	c.AdjustOpenInterest(true, 100)

	if err := c.AdjustOpenInterest(true, -101); !errors.Is(err, core.ErrUnderflow) {
		t.Errorf("over-decrement err = %v, want ErrUnderflow", err)
	}
	// Failed decrement leaves the counter untouched.
	if longs, _ := c.OpenInterest(); longs != 100 {
		t.Errorf("longs after failed decrement = %d, want 100", longs)
	}

	if err := c.AdjustOpenInterest(true, -100); err != nil {
		t.Errorf("exact decrement failed: %v", err)
	}
	if longs, _ := c.OpenInterest(); longs != 0 {
		t.Errorf("longs after exact decrement = %d, want 0", longs)
	}

	// Sides are independent: the short side cannot absorb a long decrement.
	c.AdjustOpenInterest(false, 50)
	if err := c.AdjustOpenInterest(true, -1); !errors.Is(err, core.ErrUnderflow) {
		t.Errorf("cross-side decrement err = %v, want ErrUnderflow", err)
	}
}

func TestAdjustOpenInterestOverflow(t *testing.T) {
	c := NewController(3600)

	// Two max increments reach MaxUint64-1; one more unit still fits.
	c.AdjustOpenInterest(true, math.MaxInt64)
	c.AdjustOpenInterest(true, math.MaxInt64)
	if err := c.AdjustOpenInterest(true, 1); err != nil {
		t.Fatalf("increment to MaxUint64 failed: %v", err)
	}

	if err := c.AdjustOpenInterest(true, 1); !errors.Is(err, core.ErrOverflow) {
		t.Errorf("wrapping increment err = %v, want ErrOverflow", err)
	}
	// Failed increment leaves the counter untouched.
	if longs, _ := c.OpenInterest(); longs != math.MaxUint64 {
		t.Errorf("longs after failed increment = %d, want MaxUint64", longs)
	}

	// Sides are independent: the short side still has room.
	if err := c.AdjustOpenInterest(false, 1); err != nil {
		t.Errorf("short increment failed: %v", err)
	}
}

func TestSnapshotRestore(t *testing.T) {
	c := NewController(3600)
	c.AdjustOpenInterest(true, 300)
	c.AdjustOpenInterest(false, 100)
	c.Refresh(3600)

	snap := c.Snapshot()

	restored := NewController(3600)
	restored.Restore(snap)

	if restored.Rate() != c.Rate() {
		t.Errorf("restored rate = %d, want %d", restored.Rate(), c.Rate())
	}
	rl, rs := restored.OpenInterest()
	ol, os := c.OpenInterest()
	if rl != ol || rs != os {
		t.Errorf("restored interest = (%d, %d), want (%d, %d)", rl, rs, ol, os)
	}
}
