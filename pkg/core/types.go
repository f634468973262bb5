package core

import "errors"

// Fixed-point scales shared across the ledger.
// Prices carry the oracle's 8-decimal scale; the funding rate is
// 1e18-scaled (1e18 = 100%). All arithmetic truncates toward zero.
const (
	PriceScale int64  = 100_000_000
	RateScale  uint64 = 1_000_000_000_000_000_000

	// Leverage is bounded at open time only; there is no runtime adjustment.
	MinLeverage uint32 = 1
	MaxLeverage uint32 = 100
)

// Rejection kinds. Every failed operation leaves ledger state untouched;
// none of these are retried internally.
var (
	ErrStalePrice       = errors.New("stale price")
	ErrInvalidLeverage  = errors.New("invalid leverage")
	ErrInvalidPosition  = errors.New("invalid position")
	ErrPositionSafe     = errors.New("position safe")
	ErrDegenerateMarket = errors.New("degenerate market")
	ErrUnderflow        = errors.New("underflow")
	ErrOverflow         = errors.New("overflow")
	ErrTransferFailed   = errors.New("transfer failed")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrPaused           = errors.New("paused")
)

// PositionStatus tags a position slot. Slots are never removed or
// compacted; closed and liquidated slots keep their index forever.
type PositionStatus int8

const (
	StatusOpen PositionStatus = iota
	StatusClosed
	StatusLiquidated
)

func (s PositionStatus) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	case StatusLiquidated:
		return "liquidated"
	default:
		return "unknown"
	}
}

// Position is one leveraged exposure against the shared collateral pool.
// Economic fields are zeroed in place on close/liquidate; Status records
// which terminal path the slot took.
type Position struct {
	Size       uint64         `json:"size"`       // notional magnitude, no fractional precision
	Collateral uint64         `json:"collateral"` // margin in the collateral asset's smallest unit
	EntryPrice int64          `json:"entryPrice"` // oracle scale (PriceScale)
	IsLong     bool           `json:"isLong"`
	Leverage   uint32         `json:"leverage"` // 1..=100, fixed at open
	OpenedAt   int64          `json:"openedAt"` // informational only
	Status     PositionStatus `json:"status"`
}

// IsOpen reports whether the slot is still actionable.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen && p.Size > 0
}
