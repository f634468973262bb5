package oracle

import (
	"fmt"
	"sync"

	"github.com/uhyunpark/perpledger/pkg/core"
)

// Source is the external price feed contract: latest observed price at
// the oracle's 8-decimal scale plus its observation timestamp (unix seconds).
type Source interface {
	LatestRoundData() (price int64, updatedAt int64, err error)
}

// Adapter wraps a Source and validates freshness on every read. It holds
// no state and never caches: each operation that needs a price re-queries
// the source.
type Adapter struct {
	source Source
	maxAge int64 // seconds
}

// NewAdapter creates a price adapter with the given staleness bound.
func NewAdapter(source Source, maxAge int64) *Adapter {
	return &Adapter{source: source, maxAge: maxAge}
}

// CurrentPrice returns the latest price and its observation time.
// Fails with core.ErrStalePrice when the observation is older than the
// staleness bound relative to now. Callers surface the failure as a
// rejected operation; there is no retry here.
func (a *Adapter) CurrentPrice(now int64) (int64, int64, error) {
	price, updatedAt, err := a.source.LatestRoundData()
	if err != nil {
		return 0, 0, fmt.Errorf("price source: %w", err)
	}
	if price <= 0 {
		return 0, 0, fmt.Errorf("price source returned non-positive price %d", price)
	}
	if now-updatedAt > a.maxAge {
		return 0, 0, fmt.Errorf("%w: observed %ds ago (bound %ds)", core.ErrStalePrice, now-updatedAt, a.maxAge)
	}
	return price, updatedAt, nil
}

// PostedSource is an in-process Source fed by an authorized poster
// (the oracle's internals are out of scope; this is the boundary stub
// the node runs against).
type PostedSource struct {
	mu        sync.RWMutex
	price     int64
	updatedAt int64
}

// NewPostedSource creates an empty source; reads fail until the first Post.
func NewPostedSource() *PostedSource {
	return &PostedSource{}
}

// Post records a new observation.
func (s *PostedSource) Post(price, updatedAt int64) {
	s.mu.Lock()
	s.price = price
	s.updatedAt = updatedAt
	s.mu.Unlock()
}

func (s *PostedSource) LatestRoundData() (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.updatedAt == 0 {
		return 0, 0, fmt.Errorf("no price posted yet")
	}
	return s.price, s.updatedAt, nil
}
