package fees

import (
	"math"
	"testing"
)

// TestTradeFeeTruncation verifies the 5 bps fee truncates toward zero.
func TestTradeFeeTruncation(t *testing.T) {
	cases := []struct {
		size uint64
		want uint64
	}{
		{0, 0},
		{1, 0},
		{1999, 0},     // 1999*5/10000 = 0.9995 -> 0
		{2000, 1},     // exactly one fee unit
		{3999, 1},     // 1.9995 -> 1
		{4000, 2},
		{10_000, 5},
		{1_000_000, 500},
		// Sizes whose size*bps product exceeds 64 bits
		{3_600_000_000_000_000_000, 1_800_000_000_000_000},
		{4_000_000_000_000_000_000, 2_000_000_000_000_000},
		{math.MaxInt64, 4_611_686_018_427_387},
		{math.MaxUint64, 9_223_372_036_854_775},
	}
	for _, c := range cases {
		if got := TradeFee(c.size); got != c.want {
			t.Errorf("TradeFee(%d) = %d, want %d", c.size, got, c.want)
		}
	}
}

// TestTradeFeeMonotonic verifies a larger notional never pays a smaller fee.
func TestTradeFeeMonotonic(t *testing.T) {
	prev := uint64(0)
	for size := uint64(0); size <= 50_000; size += 137 {
		fee := TradeFee(size)
		if fee < prev {
			t.Fatalf("fee decreased: TradeFee(%d) = %d < %d", size, fee, prev)
		}
		prev = fee
	}

	// The product wraps uint64 past MaxUint64/TradeFeeBps; monotonicity
	// must hold across that boundary too.
	sizes := []uint64{
		math.MaxUint64/TradeFeeBps - 1,
		math.MaxUint64 / TradeFeeBps,
		math.MaxUint64/TradeFeeBps + 1,
		4_000_000_000_000_000_000,
		math.MaxInt64,
		math.MaxUint64,
	}
	prev = 0
	for _, size := range sizes {
		fee := TradeFee(size)
		if fee < prev {
			t.Fatalf("fee decreased: TradeFee(%d) = %d < %d", size, fee, prev)
		}
		prev = fee
	}
}

func TestLiquidationFee(t *testing.T) {
	cases := []struct {
		collateral uint64
		want       uint64
	}{
		{0, 0},
		{9, 0},   // below one fee unit
		{10, 1},
		{99, 9},  // 9.9 -> 9
		{100, 10},
		{1005, 100},
	}
	for _, c := range cases {
		if got := LiquidationFee(c.collateral); got != c.want {
			t.Errorf("LiquidationFee(%d) = %d, want %d", c.collateral, got, c.want)
		}
	}
}
