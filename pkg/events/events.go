// Package events is the fire-and-forget notification boundary. The core
// reports what happened and never reads anything back; emitters that
// lag or fail are the host's problem, not the ledger's.
package events

import "go.uber.org/zap"

// Type identifies a ledger notification.
type Type string

const (
	TypePositionOpened     Type = "position_opened"
	TypePositionClosed     Type = "position_closed"
	TypePositionLiquidated Type = "position_liquidated"
	TypePayoutPending      Type = "payout_pending"
	TypePayoutClaimed      Type = "payout_claimed"
	TypeFeesWithdrawn      Type = "fees_withdrawn"
	TypePauseToggled       Type = "pause_toggled"
	TypePricePosted        Type = "price_posted"
)

// Event carries the notification payload. Zero-valued fields are omitted
// on the wire; only the fields relevant to each type are populated.
type Event struct {
	Type       Type   `json:"type"`
	Account    string `json:"account,omitempty"`
	Caller     string `json:"caller,omitempty"`
	PositionID uint64 `json:"positionId,omitempty"`
	Size       uint64 `json:"size,omitempty"`
	Collateral uint64 `json:"collateral,omitempty"`
	IsLong     bool   `json:"isLong,omitempty"`
	Leverage   uint32 `json:"leverage,omitempty"`
	Price      int64  `json:"price,omitempty"`
	Pnl        int64  `json:"pnl,omitempty"`
	Payout     uint64 `json:"payout,omitempty"`
	Fee        uint64 `json:"fee,omitempty"`
	Paused     bool   `json:"paused,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// Emitter receives ledger notifications.
type Emitter interface {
	Emit(Event)
}

// ZapEmitter logs every event as a structured record.
type ZapEmitter struct {
	log *zap.SugaredLogger
}

func NewZapEmitter(log *zap.SugaredLogger) *ZapEmitter {
	return &ZapEmitter{log: log}
}

func (e *ZapEmitter) Emit(ev Event) {
	e.log.Infow("ledger_event",
		"type", ev.Type,
		"account", ev.Account,
		"caller", ev.Caller,
		"position_id", ev.PositionID,
		"price", ev.Price,
		"pnl", ev.Pnl,
		"payout", ev.Payout,
		"fee", ev.Fee,
		"ts", ev.Timestamp,
	)
}

// Fanout forwards each event to every child emitter in order.
type Fanout []Emitter

func (f Fanout) Emit(ev Event) {
	for _, e := range f {
		e.Emit(ev)
	}
}

// Nop discards events; useful in tests.
type Nop struct{}

func (Nop) Emit(Event) {}
