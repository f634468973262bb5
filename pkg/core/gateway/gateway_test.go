package gateway

import (
	"errors"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/perpledger/pkg/core"
)

var (
	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestVaultRoundTrip(t *testing.T) {
	v := NewVault()
	v.Credit(alice, 1000)

	if err := v.PullIn(alice, 400); err != nil {
		t.Fatalf("pull: %v", err)
	}
	if got := v.BalanceOf(alice); got != 600 {
		t.Errorf("balance = %d, want 600", got)
	}
	if got := v.PooledBalance(); got != 400 {
		t.Errorf("pooled = %d, want 400", got)
	}

	if err := v.PushOut(bob, 400); err != nil {
		t.Fatalf("push: %v", err)
	}
	if got := v.BalanceOf(bob); got != 400 {
		t.Errorf("bob balance = %d, want 400", got)
	}
	if got := v.PooledBalance(); got != 0 {
		t.Errorf("pooled = %d, want 0", got)
	}
}

func TestVaultInsufficientFunds(t *testing.T) {
	v := NewVault()
	v.Credit(alice, 100)

	if err := v.PullIn(alice, 101); !errors.Is(err, core.ErrTransferFailed) {
		t.Errorf("overdrawn pull err = %v, want ErrTransferFailed", err)
	}
	if err := v.PushOut(alice, 1); !errors.Is(err, core.ErrTransferFailed) {
		t.Errorf("empty-pool push err = %v, want ErrTransferFailed", err)
	}

	// Failed transfers move nothing.
	if got := v.BalanceOf(alice); got != 100 {
		t.Errorf("balance = %d, want 100", got)
	}
	if got := v.PooledBalance(); got != 0 {
		t.Errorf("pooled = %d, want 0", got)
	}
}

// TestVaultCreditSaturates verifies balances cap at MaxUint64 instead of
// wrapping back toward zero.
func TestVaultCreditSaturates(t *testing.T) {
	v := NewVault()
	v.Credit(alice, math.MaxUint64)
	v.Credit(alice, 1)

	if got := v.BalanceOf(alice); got != math.MaxUint64 {
		t.Errorf("balance = %d, want MaxUint64", got)
	}

	// The saturated balance still spends normally.
	if err := v.PullIn(alice, 500); err != nil {
		t.Fatalf("pull: %v", err)
	}
	if got := v.BalanceOf(alice); got != math.MaxUint64-500 {
		t.Errorf("balance = %d, want MaxUint64-500", got)
	}
}
