// Package gateway is the collateral-movement boundary. The ledger treats
// both directions as fallible remote calls against a fixed collateral
// asset; the custody implementation behind them is out of scope.
package gateway

import (
	"fmt"
	"math"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/perpledger/pkg/core"
)

// Gateway moves collateral in and out on the ledger's behalf.
// Both operations fail with core.ErrTransferFailed when the underlying
// asset movement does not succeed.
type Gateway interface {
	PullIn(from common.Address, amount uint64) error
	PushOut(to common.Address, amount uint64) error
}

// Vault is the in-process gateway the node runs against: per-address
// external balances funded through a bridge-style Credit, and a pooled
// vault balance backing open positions and payouts.
type Vault struct {
	mu       sync.Mutex
	balances map[common.Address]uint64 // funds outside the ledger
	pooled   uint64                    // funds held by the ledger
}

// NewVault creates an empty vault.
func NewVault() *Vault {
	return &Vault{balances: make(map[common.Address]uint64)}
}

// Credit adds external funds to an address (bridge deposit).
// Balances saturate at MaxUint64 rather than wrapping.
func (v *Vault) Credit(addr common.Address, amount uint64) {
	v.mu.Lock()
	v.balances[addr] = satAdd(v.balances[addr], amount)
	v.mu.Unlock()
}

// BalanceOf returns an address's external balance.
func (v *Vault) BalanceOf(addr common.Address) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[addr]
}

// PooledBalance returns the total collateral held by the ledger.
func (v *Vault) PooledBalance() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pooled
}

// PullIn moves amount from the address's external balance into the pool.
func (v *Vault) PullIn(from common.Address, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.balances[from] < amount {
		return fmt.Errorf("%w: %s has %d, need %d", core.ErrTransferFailed, from.Hex(), v.balances[from], amount)
	}
	v.balances[from] -= amount
	v.pooled = satAdd(v.pooled, amount)
	return nil
}

// PushOut moves amount from the pool back to the address.
func (v *Vault) PushOut(to common.Address, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pooled < amount {
		return fmt.Errorf("%w: pool has %d, need %d", core.ErrTransferFailed, v.pooled, amount)
	}
	v.pooled -= amount
	v.balances[to] = satAdd(v.balances[to], amount)
	return nil
}

func satAdd(a, b uint64) uint64 {
	if b > math.MaxUint64-a {
		return math.MaxUint64
	}
	return a + b
}
