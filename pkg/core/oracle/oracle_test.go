package oracle

import (
	"errors"
	"testing"

	"github.com/uhyunpark/perpledger/pkg/core"
)

func TestCurrentPriceFreshness(t *testing.T) {
	src := NewPostedSource()
	adapter := NewAdapter(src, 60)

	src.Post(50_000*core.PriceScale, 1000)

	// Exactly at the bound: still fresh.
	price, updatedAt, err := adapter.CurrentPrice(1060)
	if err != nil {
		t.Fatalf("price at bound rejected: %v", err)
	}
	if price != 50_000*core.PriceScale || updatedAt != 1000 {
		t.Errorf("got (%d, %d)", price, updatedAt)
	}

	// One second past the bound: stale.
	if _, _, err := adapter.CurrentPrice(1061); !errors.Is(err, core.ErrStalePrice) {
		t.Errorf("stale price err = %v, want ErrStalePrice", err)
	}
}

func TestCurrentPriceRejectsNonPositive(t *testing.T) {
	src := NewPostedSource()
	adapter := NewAdapter(src, 60)

	src.Post(0, 1000)
	if _, _, err := adapter.CurrentPrice(1000); err == nil {
		t.Error("zero price accepted")
	}

	src.Post(-1, 1000)
	if _, _, err := adapter.CurrentPrice(1000); err == nil {
		t.Error("negative price accepted")
	}
}

func TestPostedSourceBeforeFirstPost(t *testing.T) {
	src := NewPostedSource()
	adapter := NewAdapter(src, 60)
	if _, _, err := adapter.CurrentPrice(1000); err == nil {
		t.Error("read before first post accepted")
	}
}

func TestPostedSourceLatestWins(t *testing.T) {
	src := NewPostedSource()
	src.Post(100, 10)
	src.Post(200, 20)

	price, updatedAt, err := src.LatestRoundData()
	if err != nil {
		t.Fatalf("LatestRoundData: %v", err)
	}
	if price != 200 || updatedAt != 20 {
		t.Errorf("got (%d, %d), want (200, 20)", price, updatedAt)
	}
}
