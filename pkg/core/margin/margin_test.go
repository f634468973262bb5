package margin

import (
	"math"
	"math/rand"
	"testing"

	"github.com/uhyunpark/perpledger/pkg/core"
)

func position(size uint64, collateral uint64, entry int64, isLong bool) *core.Position {
	return &core.Position{
		Size:       size,
		Collateral: collateral,
		EntryPrice: entry,
		IsLong:     isLong,
		Leverage:   10,
		Status:     core.StatusOpen,
	}
}

// TestUnrealizedPnLLong walks a long through a price rise and fall.
// Entry $50,000, size 1000: a $500 move is worth 500 * 1000 = 500,000
// collateral units after the scale division.
func TestUnrealizedPnLLong(t *testing.T) {
	entry := int64(50_000) * core.PriceScale
	pos := position(1000, 100, entry, true)

	up := int64(50_500) * core.PriceScale
	if got := UnrealizedPnL(pos, up); got != 500_000 {
		t.Errorf("long pnl at +500 = %d, want 500000", got)
	}

	down := int64(49_500) * core.PriceScale
	if got := UnrealizedPnL(pos, down); got != -500_000 {
		t.Errorf("long pnl at -500 = %d, want -500000", got)
	}

	if got := UnrealizedPnL(pos, entry); got != 0 {
		t.Errorf("long pnl at entry = %d, want 0", got)
	}
}

// TestUnrealizedPnLShort mirrors the long case with the sign flipped.
func TestUnrealizedPnLShort(t *testing.T) {
	entry := int64(50_000) * core.PriceScale
	pos := position(1000, 100, entry, false)

	up := int64(50_500) * core.PriceScale
	if got := UnrealizedPnL(pos, up); got != -500_000 {
		t.Errorf("short pnl at +500 = %d, want -500000", got)
	}

	down := int64(49_500) * core.PriceScale
	if got := UnrealizedPnL(pos, down); got != 500_000 {
		t.Errorf("short pnl at -500 = %d, want 500000", got)
	}
}

// TestUnrealizedPnLSubScaleMove verifies truncation toward zero for a
// price move too small to produce a whole collateral unit.
func TestUnrealizedPnLSubScaleMove(t *testing.T) {
	entry := int64(50_000) * core.PriceScale
	pos := position(10, 100, entry, true)

	// delta * size = 999 * 10 = 9990 < PriceScale, truncates to 0
	if got := UnrealizedPnL(pos, entry+999); got != 0 {
		t.Errorf("sub-scale gain = %d, want 0", got)
	}
	// Losses truncate toward zero too, not toward negative infinity
	if got := UnrealizedPnL(pos, entry-999); got != 0 {
		t.Errorf("sub-scale loss = %d, want 0", got)
	}
}

// TestUnrealizedPnLLargeNotional checks the intermediate product
// delta*size beyond 64 bits does not wrap.
func TestUnrealizedPnLLargeNotional(t *testing.T) {
	entry := int64(50_000) * core.PriceScale
	size := uint64(5_000_000_000_000) // delta*size overflows int64
	pos := position(size, 1, entry, true)

	exit := int64(60_000) * core.PriceScale
	// pnl = 10_000 * PriceScale * size / PriceScale = 10_000 * size
	want := int64(10_000) * int64(size)
	if got := UnrealizedPnL(pos, exit); got != want {
		t.Errorf("large notional pnl = %d, want %d", got, want)
	}
}

// TestIsUnderwaterBoundary pins the solvency boundary: equity exactly
// zero is liquidatable, one unit above is not.
func TestIsUnderwaterBoundary(t *testing.T) {
	entry := int64(50_000) * core.PriceScale
	pos := position(1000, 100, entry, true)

	// pnl = -100 needs delta = -100 * PriceScale / 1000
	atZero := entry - 100*core.PriceScale/1000
	if !IsUnderwater(pos, atZero) {
		t.Error("equity == 0 should be liquidatable")
	}

	// pnl = -99: delta = -99 * PriceScale / 1000, equity = 1
	justAbove := entry - 99*core.PriceScale/1000
	if IsUnderwater(pos, justAbove) {
		t.Error("equity == 1 should be safe")
	}

	if IsUnderwater(pos, entry) {
		t.Error("position at entry should be safe")
	}
}

func TestPayoutFloor(t *testing.T) {
	if got := Payout(100, 50); got != 150 {
		t.Errorf("Payout(100, 50) = %d, want 150", got)
	}
	// Equity past MaxUint64 saturates instead of wrapping.
	if got := Payout(math.MaxUint64, math.MaxInt64); got != math.MaxUint64 {
		t.Errorf("Payout(MaxUint64, MaxInt64) = %d, want MaxUint64", got)
	}
	if got := Payout(100, -100); got != 0 {
		t.Errorf("Payout(100, -100) = %d, want 0", got)
	}
	if got := Payout(100, -500); got != 0 {
		t.Errorf("Payout(100, -500) = %d, want 0", got)
	}
	if got := Payout(0, 0); got != 0 {
		t.Errorf("Payout(0, 0) = %d, want 0", got)
	}
}

// TestLongShortSymmetry verifies a long and short of equal size at equal
// entry always carry opposite PnL under random prices.
func TestLongShortSymmetry(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	entry := int64(30_000) * core.PriceScale

	for i := 0; i < 200; i++ {
		size := uint64(rng.Intn(1_000_000) + 1)
		price := entry + int64(rng.Intn(2_000_000_000)) - 1_000_000_000

		long := position(size, 100, entry, true)
		short := position(size, 100, entry, false)

		lp := UnrealizedPnL(long, price)
		sp := UnrealizedPnL(short, price)
		if lp != -sp {
			t.Fatalf("size=%d price=%d: long pnl %d != -short pnl %d", size, price, lp, sp)
		}
	}
}
