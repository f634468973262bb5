// Package ledger owns per-account position records and fee reserves and
// orchestrates open/close/liquidate against the price adapter, funding
// controller, fee schedule, and collateral gateway.
//
// The execution model is single-writer per market instance: one mutex
// serializes every state-mutating operation, so no partial update is
// ever observable. Operations either complete fully or fail before
// committing anything.
package ledger

import (
	"fmt"
	"math"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/perpledger/pkg/core"
	"github.com/uhyunpark/perpledger/pkg/core/fees"
	"github.com/uhyunpark/perpledger/pkg/core/funding"
	"github.com/uhyunpark/perpledger/pkg/core/gateway"
	"github.com/uhyunpark/perpledger/pkg/core/guard"
	"github.com/uhyunpark/perpledger/pkg/core/margin"
	"github.com/uhyunpark/perpledger/pkg/core/oracle"
	"github.com/uhyunpark/perpledger/pkg/events"
	"github.com/uhyunpark/perpledger/pkg/metrics"
	"github.com/uhyunpark/perpledger/pkg/util"
)

// Deps wires the ledger's collaborators. Store, Oracle, Funding, Gateway,
// Roles and Pause are required; the rest default to no-ops.
type Deps struct {
	Store   *Store
	Oracle  *oracle.Adapter
	Funding *funding.Controller
	Gateway gateway.Gateway
	Roles   guard.Roles
	Pause   *guard.Pause
	Emitter events.Emitter
	Metrics *metrics.Metrics
	Clock   util.Clock
	Logger  *zap.SugaredLogger
}

// Ledger is the position ledger for one market instance.
type Ledger struct {
	mu       sync.Mutex
	accounts map[common.Address]*Account // in-memory cache over the store

	store   *Store
	oracle  *oracle.Adapter
	funding *funding.Controller
	gateway gateway.Gateway
	roles   guard.Roles
	pause   *guard.Pause
	emitter events.Emitter
	metrics *metrics.Metrics
	clock   util.Clock
	log     *zap.SugaredLogger
}

// New creates a ledger and restores the persisted market record, if any.
func New(deps Deps) (*Ledger, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("ledger: nil store")
	case deps.Oracle == nil:
		return nil, fmt.Errorf("ledger: nil oracle")
	case deps.Funding == nil:
		return nil, fmt.Errorf("ledger: nil funding controller")
	case deps.Gateway == nil:
		return nil, fmt.Errorf("ledger: nil gateway")
	case deps.Roles == nil:
		return nil, fmt.Errorf("ledger: nil role checker")
	case deps.Pause == nil:
		return nil, fmt.Errorf("ledger: nil pause switch")
	}
	if deps.Emitter == nil {
		deps.Emitter = events.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = util.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}

	state, ok, err := deps.Store.LoadMarket()
	if err != nil {
		return nil, fmt.Errorf("ledger: restore market: %w", err)
	}
	if ok {
		deps.Funding.Restore(state)
	}

	return &Ledger{
		accounts: make(map[common.Address]*Account),
		store:    deps.Store,
		oracle:   deps.Oracle,
		funding:  deps.Funding,
		gateway:  deps.Gateway,
		roles:    deps.Roles,
		pause:    deps.Pause,
		emitter:  deps.Emitter,
		metrics:  deps.Metrics,
		clock:    deps.Clock,
		log:      deps.Logger,
	}, nil
}

// Open creates a new position for caller and returns its slot index.
//
// All fallible steps (pause gate, leverage bound, funding refresh, price
// fetch, collateral pull) run before any ledger state is touched, so a
// rejection leaves state exactly as it was. The trade fee accrues to the
// opener's own fee reserve.
func (l *Ledger) Open(caller common.Address, size, collateral uint64, isLong bool, leverage uint32) (uint64, error) {
	if l.pause.IsPaused() {
		return 0, l.reject("open", "paused", core.ErrPaused)
	}
	if leverage < core.MinLeverage || leverage > core.MaxLeverage {
		return 0, l.reject("open", "leverage",
			fmt.Errorf("%w: %d not in %d..=%d", core.ErrInvalidLeverage, leverage, core.MinLeverage, core.MaxLeverage))
	}
	if size == 0 || size > math.MaxInt64 {
		return 0, l.reject("open", "size",
			fmt.Errorf("%w: size %d", core.ErrInvalidPosition, size))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now().Unix()
	l.funding.Refresh(now)

	price, _, err := l.oracle.CurrentPrice(now)
	if err != nil {
		return 0, l.reject("open", "price", err)
	}

	// The mutex serializes every interest mutation, so checking room
	// here keeps the adjustment below infallible.
	longs, shorts := l.funding.OpenInterest()
	oi := longs
	if !isLong {
		oi = shorts
	}
	if size > math.MaxUint64-oi {
		return 0, l.reject("open", "interest",
			fmt.Errorf("%w: open interest %d cannot absorb %d", core.ErrOverflow, oi, size))
	}

	// Last fallible step; everything after this is pure mutation.
	if err := l.gateway.PullIn(caller, collateral); err != nil {
		return 0, l.reject("open", "transfer", fmt.Errorf("pull collateral: %w", err))
	}

	acc := l.getAccountLocked(caller)
	acc.Positions = append(acc.Positions, core.Position{
		Size:       size,
		Collateral: collateral,
		EntryPrice: price,
		IsLong:     isLong,
		Leverage:   leverage,
		OpenedAt:   now,
		Status:     core.StatusOpen,
	})
	id := uint64(len(acc.Positions) - 1)

	// Room was verified above under the same lock.
	_ = l.funding.AdjustOpenInterest(isLong, int64(size))

	fee := fees.TradeFee(size)
	acc.FeeReserve += fee

	if err := l.commit(acc); err != nil {
		return 0, err
	}

	if l.metrics != nil {
		l.metrics.PositionsOpened.Inc()
	}
	l.publishMarket()
	l.emitter.Emit(events.Event{
		Type:       events.TypePositionOpened,
		Account:    caller.Hex(),
		PositionID: id,
		Size:       size,
		Collateral: collateral,
		IsLong:     isLong,
		Leverage:   leverage,
		Price:      price,
		Fee:        fee,
		Timestamp:  now,
	})
	return id, nil
}

// Close settles caller's position at the current price and pays out
// collateral plus PnL, floored at zero. The slot is zeroed in place and
// open interest decremented. A failed outbound transfer does not undo
// the close: the payout parks in PendingWithdrawal for ClaimPayout.
func (l *Ledger) Close(caller common.Address, positionID uint64) (pnl int64, payout uint64, err error) {
	if l.pause.IsPaused() {
		return 0, 0, l.reject("close", "paused", core.ErrPaused)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now().Unix()
	l.funding.Refresh(now)

	acc := l.getAccountLocked(caller)
	pos, err := acc.openSlot(positionID)
	if err != nil {
		return 0, 0, l.reject("close", "slot", err)
	}

	price, _, err := l.oracle.CurrentPrice(now)
	if err != nil {
		return 0, 0, l.reject("close", "price", err)
	}

	pnl = margin.UnrealizedPnL(pos, price)
	payout = margin.Payout(pos.Collateral, pnl)
	size, isLong := pos.Size, pos.IsLong

	// Guarded decrement first: if the aggregates ever disagree with the
	// slot, abort before mutating anything.
	if err := l.funding.AdjustOpenInterest(isLong, -int64(size)); err != nil {
		return 0, 0, l.reject("close", "interest", err)
	}
	zeroSlot(pos, core.StatusClosed)

	if payout > 0 {
		if perr := l.gateway.PushOut(caller, payout); perr != nil {
			acc.PendingWithdrawal += payout
			l.log.Warnw("payout transfer failed, parked as pending withdrawal",
				"account", caller.Hex(), "position_id", positionID, "payout", payout, "err", perr)
			l.emitter.Emit(events.Event{
				Type:       events.TypePayoutPending,
				Account:    caller.Hex(),
				PositionID: positionID,
				Payout:     payout,
				Timestamp:  now,
			})
		}
	}

	if err := l.commit(acc); err != nil {
		return 0, 0, err
	}

	if l.metrics != nil {
		l.metrics.PositionsClosed.Inc()
	}
	l.publishMarket()
	l.emitter.Emit(events.Event{
		Type:       events.TypePositionClosed,
		Account:    caller.Hex(),
		PositionID: positionID,
		Price:      price,
		Pnl:        pnl,
		Payout:     payout,
		Timestamp:  now,
	})
	return pnl, payout, nil
}

// Liquidate retires an underwater position. Restricted to the keeper
// role; fails with core.ErrPositionSafe while collateral plus PnL is
// still above zero. The liquidation fee accrues to the caller's fee
// reserve; whatever collateral the fee does not cover stays in the pool.
// Open interest is decremented the same as on close.
func (l *Ledger) Liquidate(caller, owner common.Address, positionID uint64) (fee uint64, err error) {
	if l.pause.IsPaused() {
		return 0, l.reject("liquidate", "paused", core.ErrPaused)
	}
	if !l.roles.HasRole(caller, guard.RoleKeeper) {
		return 0, l.reject("liquidate", "role",
			fmt.Errorf("%w: %s lacks %s", core.ErrUnauthorized, caller.Hex(), guard.RoleKeeper))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now().Unix()
	l.funding.Refresh(now)

	acc := l.getAccountLocked(owner)
	pos, err := acc.openSlot(positionID)
	if err != nil {
		return 0, l.reject("liquidate", "slot", err)
	}

	price, _, err := l.oracle.CurrentPrice(now)
	if err != nil {
		return 0, l.reject("liquidate", "price", err)
	}

	pnl := margin.UnrealizedPnL(pos, price)
	if !margin.IsUnderwater(pos, price) {
		return 0, l.reject("liquidate", "safe",
			fmt.Errorf("%w: collateral %d + pnl %d > 0", core.ErrPositionSafe, pos.Collateral, pnl))
	}

	fee = fees.LiquidationFee(pos.Collateral)
	size, isLong := pos.Size, pos.IsLong

	if err := l.funding.AdjustOpenInterest(isLong, -int64(size)); err != nil {
		return 0, l.reject("liquidate", "interest", err)
	}
	zeroSlot(pos, core.StatusLiquidated)

	keeper := l.getAccountLocked(caller)
	keeper.FeeReserve += fee

	if err := l.commit(acc, keeper); err != nil {
		return 0, err
	}

	if l.metrics != nil {
		l.metrics.Liquidations.Inc()
	}
	l.publishMarket()
	l.emitter.Emit(events.Event{
		Type:       events.TypePositionLiquidated,
		Account:    owner.Hex(),
		Caller:     caller.Hex(),
		PositionID: positionID,
		Price:      price,
		Pnl:        pnl,
		Fee:        fee,
		Timestamp:  now,
	})
	return fee, nil
}

// ClaimPayout retries the outbound transfer of a payout parked by a
// failed pushOut during close. Deliberately not pause-gated: it is a
// recovery path, not new exposure.
func (l *Ledger) ClaimPayout(caller common.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.getAccountLocked(caller)
	amount := acc.PendingWithdrawal
	if amount == 0 {
		return 0, fmt.Errorf("no pending payout for %s", caller.Hex())
	}

	if err := l.gateway.PushOut(caller, amount); err != nil {
		return 0, l.reject("claim", "transfer", err)
	}
	acc.PendingWithdrawal = 0

	if err := l.commit(acc); err != nil {
		return 0, err
	}
	l.emitter.Emit(events.Event{
		Type:      events.TypePayoutClaimed,
		Account:   caller.Hex(),
		Payout:    amount,
		Timestamp: l.clock.Now().Unix(),
	})
	return amount, nil
}

// WithdrawFees moves the caller's accrued fee reserve out through the
// gateway.
func (l *Ledger) WithdrawFees(caller common.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.getAccountLocked(caller)
	amount := acc.FeeReserve
	if amount == 0 {
		return 0, fmt.Errorf("no fee reserve for %s", caller.Hex())
	}

	if err := l.gateway.PushOut(caller, amount); err != nil {
		return 0, l.reject("withdraw_fees", "transfer", err)
	}
	acc.FeeReserve = 0

	if err := l.commit(acc); err != nil {
		return 0, err
	}
	l.emitter.Emit(events.Event{
		Type:      events.TypeFeesWithdrawn,
		Account:   caller.Hex(),
		Fee:       amount,
		Timestamp: l.clock.Now().Unix(),
	})
	return amount, nil
}

// GetAccount returns a snapshot copy of an account, or false if it has
// never opened a position. Queries never create accounts.
func (l *Ledger) GetAccount(addr common.Address) (Account, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[addr]
	if !ok {
		loaded, err := l.store.LoadAccount(addr)
		if err != nil || loaded == nil {
			return Account{}, false
		}
		l.accounts[addr] = loaded
		acc = loaded
	}

	snap := *acc
	snap.Positions = make([]core.Position, len(acc.Positions))
	copy(snap.Positions, acc.Positions)
	return snap, true
}

// GetPosition returns a copy of one position slot (open or retired).
func (l *Ledger) GetPosition(addr common.Address, id uint64) (core.Position, error) {
	acc, ok := l.GetAccount(addr)
	if !ok || id >= uint64(len(acc.Positions)) {
		return core.Position{}, fmt.Errorf("%w: %s/%d", core.ErrInvalidPosition, addr.Hex(), id)
	}
	return acc.Positions[id], nil
}

// StateDigest hashes the persisted ledger state for audit comparison.
func (l *Ledger) StateDigest() ([32]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Digest()
}

// getAccountLocked returns the cached account, loading or creating it.
// Assumes l.mu is held.
func (l *Ledger) getAccountLocked(addr common.Address) *Account {
	if acc, ok := l.accounts[addr]; ok {
		return acc
	}
	acc, err := l.store.LoadAccount(addr)
	if err != nil {
		l.log.Errorw("failed to load account, starting fresh", "account", addr.Hex(), "err", err)
	}
	if acc == nil {
		acc = NewAccount(addr)
	}
	l.accounts[addr] = acc
	return acc
}

// commit persists the touched accounts plus the market record atomically.
func (l *Ledger) commit(accounts ...*Account) error {
	if err := l.store.Commit(l.funding.Snapshot(), accounts...); err != nil {
		return fmt.Errorf("ledger: persist: %w", err)
	}
	return nil
}

// publishMarket pushes the current aggregates to the gauges.
func (l *Ledger) publishMarket() {
	if l.metrics == nil {
		return
	}
	longs, shorts := l.funding.OpenInterest()
	l.metrics.SetMarket(l.funding.Rate(), longs, shorts)
}

// reject counts a rejected operation and passes the error through.
func (l *Ledger) reject(op, reason string, err error) error {
	if l.metrics != nil {
		l.metrics.RejectedOps.WithLabelValues(op, reason).Inc()
	}
	return err
}
