package domain

import (
	"context"
	"time"

	"github.com/holiman/uint256"
)

// EventType names an observable ledger notification.
type EventType string

const (
	EventMarketCreated EventType = "market_created"
	EventStakePlaced   EventType = "stake_placed"
	EventOwnerSet      EventType = "owner_set"
)

// Event is a fire-and-forget notification emitted after a ledger mutation
// has been committed. Only the fields relevant to Type are populated.
type Event struct {
	ID         string       `json:"id"`
	Type       EventType    `json:"type"`
	MarketID   uint64       `json:"market_id,omitempty"`
	Title      string       `json:"title,omitempty"`
	EndTime    int64        `json:"end_time,omitempty"`
	Payer      *Account     `json:"payer,omitempty"`
	Outcome    Outcome      `json:"outcome,omitempty"`
	Amount     *uint256.Int `json:"amount,omitempty"`
	Account    *Account     `json:"account,omitempty"`
	TransferID *TransferID  `json:"transfer_id,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// EventSink receives ledger events. Emit must not block the caller for long
// and has no way to reject an event.
type EventSink interface {
	Emit(ctx context.Context, ev Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, ev Event)

// Emit calls f(ctx, ev).
func (f EventSinkFunc) Emit(ctx context.Context, ev Event) { f(ctx, ev) }

// TransferNotification is the typed form of an inbound value transfer
// delivered by the external ledger. It is validated before any stake is
// recorded.
type TransferNotification struct {
	TransferID TransferID
	Payer      Account
	Asset      string
	Amount     uint256.Int
	MarketID   uint64
	Outcome    Outcome
}
