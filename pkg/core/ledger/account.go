package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/perpledger/pkg/core"
)

// Account owns an insertion-ordered sequence of position slots and a
// running fee reserve. Accounts are created implicitly on first open;
// slots are zeroed in place on close/liquidate, never removed, so a
// position's index identifies it for life.
type Account struct {
	Address   common.Address  `json:"address"`
	Positions []core.Position `json:"positions"`

	// FeeReserve accumulates trade fees paid by this account's own opens
	// plus liquidation fees earned as a keeper.
	FeeReserve uint64 `json:"feeReserve"`

	// PendingWithdrawal holds payouts whose outbound transfer failed
	// during close; claimable later via ClaimPayout.
	PendingWithdrawal uint64 `json:"pendingWithdrawal"`
}

// NewAccount creates an empty account.
func NewAccount(addr common.Address) *Account {
	return &Account{Address: addr}
}

// openSlot returns the slot at id if it is still actionable.
// A zeroed (closed or liquidated) slot is never actionable twice.
func (a *Account) openSlot(id uint64) (*core.Position, error) {
	if id >= uint64(len(a.Positions)) {
		return nil, fmt.Errorf("%w: id %d out of range (have %d slots)", core.ErrInvalidPosition, id, len(a.Positions))
	}
	pos := &a.Positions[id]
	if !pos.IsOpen() {
		return nil, fmt.Errorf("%w: slot %d is %s", core.ErrInvalidPosition, id, pos.Status)
	}
	return pos, nil
}

// zeroSlot retires a slot in place, keeping its index stable.
func zeroSlot(pos *core.Position, status core.PositionStatus) {
	pos.Size = 0
	pos.Collateral = 0
	pos.EntryPrice = 0
	pos.Leverage = 0
	pos.Status = status
}
