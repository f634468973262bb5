// Package margin evaluates unrealized PnL and solvency for a position
// snapshot. Intermediate products run through big.Int: delta*size can
// exceed 64 bits long before the PriceScale division brings it back.
package margin

import (
	"math"
	"math/big"

	"github.com/uhyunpark/perpledger/pkg/core"
)

var priceScale = big.NewInt(core.PriceScale)

// UnrealizedPnL computes the signed mark-to-market profit or loss:
//
//	delta = isLong ? (currentPrice - entryPrice) : (entryPrice - currentPrice)
//	pnl   = delta * size / PriceScale
//
// The result stays signed all the way to settlement; callers must not
// clamp early. big.Int.Quo truncates toward zero, matching the fee
// schedule's integer semantics.
func UnrealizedPnL(pos *core.Position, currentPrice int64) int64 {
	delta := currentPrice - pos.EntryPrice
	if !pos.IsLong {
		delta = pos.EntryPrice - currentPrice
	}
	pnl := new(big.Int).Mul(big.NewInt(delta), new(big.Int).SetUint64(pos.Size))
	pnl.Quo(pnl, priceScale)
	return pnl.Int64()
}

// IsUnderwater is the sole solvency test: true when collateral plus
// unrealized PnL is at or below zero. Leverage bounded the position at
// open time only; there is no maintenance buffer above exact insolvency.
func IsUnderwater(pos *core.Position, currentPrice int64) bool {
	return equity(pos.Collateral, UnrealizedPnL(pos, currentPrice)).Sign() <= 0
}

// Payout is what a close returns to the owner: collateral + pnl, floored
// at zero. A loss exceeding collateral transfers nothing back rather than
// attempting a negative transfer; a gain pushing equity past MaxUint64
// saturates instead of wrapping.
func Payout(collateral uint64, pnl int64) uint64 {
	eq := equity(collateral, pnl)
	if eq.Sign() <= 0 {
		return 0
	}
	if !eq.IsUint64() {
		return math.MaxUint64
	}
	return eq.Uint64()
}

func equity(collateral uint64, pnl int64) *big.Int {
	return new(big.Int).Add(new(big.Int).SetUint64(collateral), big.NewInt(pnl))
}
