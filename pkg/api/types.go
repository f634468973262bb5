package api

// API request/response types for REST endpoints and WebSocket messages

// ==============================
// Requests
// ==============================

// OpenRequest opens a new position for the resolved caller.
type OpenRequest struct {
	Size       uint64 `json:"size"`       // notional magnitude
	Collateral uint64 `json:"collateral"` // margin in collateral units
	IsLong     bool   `json:"isLong"`
	Leverage   uint32 `json:"leverage"` // 1..=100
}

// CloseRequest closes the caller's position by slot index.
type CloseRequest struct {
	PositionID uint64 `json:"positionId"`
}

// LiquidateRequest liquidates another account's underwater position.
type LiquidateRequest struct {
	Account    string `json:"account"` // hex address of the position owner
	PositionID uint64 `json:"positionId"`
}

// PriceRequest posts a new oracle observation (admin only).
type PriceRequest struct {
	Price     int64 `json:"price"`     // 8-decimal oracle scale
	UpdatedAt int64 `json:"updatedAt"` // unix seconds; 0 means "now"
}

// PauseRequest toggles the emergency pause (admin only).
type PauseRequest struct {
	Paused bool `json:"paused"`
}

// CreditRequest funds an address's external balance (admin only; stands
// in for the bridge).
type CreditRequest struct {
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

// ==============================
// Responses
// ==============================

type OpenResponse struct {
	PositionID uint64 `json:"positionId"`
}

type CloseResponse struct {
	Pnl    int64  `json:"pnl"`
	Payout uint64 `json:"payout"`
}

type LiquidateResponse struct {
	Fee uint64 `json:"fee"`
}

type ClaimResponse struct {
	Amount uint64 `json:"amount"`
}

// MarketInfo is the global market record.
type MarketInfo struct {
	TotalLongs        uint64 `json:"totalLongs"`
	TotalShorts       uint64 `json:"totalShorts"`
	FundingRate       string `json:"fundingRate"` // 1e18-scaled, stringified to survive JS numbers
	LastFundingUpdate int64  `json:"lastFundingUpdate"`
	Paused            bool   `json:"paused"`
}

// AccountInfo is an account snapshot.
type AccountInfo struct {
	Address           string         `json:"address"`
	FeeReserve        uint64         `json:"feeReserve"`
	PendingWithdrawal uint64         `json:"pendingWithdrawal"`
	Positions         []PositionInfo `json:"positions"`
}

// PositionInfo is one position slot, open or retired.
type PositionInfo struct {
	ID         uint64 `json:"id"`
	Size       uint64 `json:"size"`
	Collateral uint64 `json:"collateral"`
	EntryPrice int64  `json:"entryPrice"`
	IsLong     bool   `json:"isLong"`
	Leverage   uint32 `json:"leverage"`
	OpenedAt   int64  `json:"openedAt"`
	Status     string `json:"status"`
}

// DigestResponse carries the sha3-256 state digest, hex-encoded.
type DigestResponse struct {
	Digest string `json:"digest"`
}

// BalanceResponse is an address's external (vault) balance.
type BalanceResponse struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
