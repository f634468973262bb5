// Package fees holds the pure fee schedule. Both functions truncate
// toward zero with the same integer semantics as the rest of the
// ledger's fixed-point arithmetic, so fee accrual never diverges from
// balance changes by a rounding step.
package fees

import "math/bits"

const (
	// TradeFeeBps is the taker fee charged on open: 5 bps = 0.05%.
	TradeFeeBps uint64 = 5
	bpsDenom    uint64 = 10_000

	// LiquidationFeeDivisor gives the liquidator 10% of posted collateral.
	LiquidationFeeDivisor uint64 = 10
)

// TradeFee returns the fee charged on a position's notional size.
// The size*bps product is widened to 128 bits: it wraps uint64 for
// sizes above MaxUint64/TradeFeeBps, which the ledger accepts. The
// quotient always fits, since fee <= size.
func TradeFee(size uint64) uint64 {
	hi, lo := bits.Mul64(size, TradeFeeBps)
	fee, _ := bits.Div64(hi, lo, bpsDenom)
	return fee
}

// LiquidationFee returns the keeper's cut of a liquidated position's collateral.
func LiquidationFee(collateral uint64) uint64 {
	return collateral / LiquidationFeeDivisor
}
