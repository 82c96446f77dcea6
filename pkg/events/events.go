// Package events carries the notifications the ledger emits for external
// observers (UI, indexers). Payloads expose only public metadata: ids,
// timestamps, participants. Encrypted fields never travel on the bus.
package events

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Type identifies an event payload.
type Type uint8

const (
	TypeOrderSubmitted Type = iota + 1
	TypeOrderMatched
	TypeOrderRevealed
	TypeMatchCommitted
	TypeMatchRevealed
)

func (t Type) String() string {
	switch t {
	case TypeOrderSubmitted:
		return "order_submitted"
	case TypeOrderMatched:
		return "order_matched"
	case TypeOrderRevealed:
		return "order_revealed"
	case TypeMatchCommitted:
		return "match_committed"
	case TypeMatchRevealed:
		return "match_revealed"
	default:
		return "unknown"
	}
}

// Event is implemented by all notification payloads.
type Event interface {
	EventType() Type
}

type OrderSubmitted struct {
	OrderID uint64    `json:"order_id"`
	At      time.Time `json:"at"`
}

func (OrderSubmitted) EventType() Type { return TypeOrderSubmitted }

type OrderMatched struct {
	BuyOrderID  uint64 `json:"buy_order_id"`
	SellOrderID uint64 `json:"sell_order_id"`
}

func (OrderMatched) EventType() Type { return TypeOrderMatched }

type OrderRevealed struct {
	OrderID uint64 `json:"order_id"`
}

func (OrderRevealed) EventType() Type { return TypeOrderRevealed }

type MatchCommitted struct {
	MatchID common.Hash `json:"match_id"`
}

func (MatchCommitted) EventType() Type { return TypeMatchCommitted }

type MatchRevealed struct {
	MatchID common.Hash `json:"match_id"`
}

func (MatchRevealed) EventType() Type { return TypeMatchRevealed }
