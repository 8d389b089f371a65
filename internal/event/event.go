package event

import (
	"github.com/google/uuid"
)

// Type tags an engine event for routing and storage.
type Type string

const (
	TypeOrderPlaced    Type = "order_placed"
	TypeOrderCanceled  Type = "order_canceled"
	TypeOrderExpired   Type = "order_expired"
	TypeOrderTriggered Type = "order_triggered"
	TypeOrderFilled    Type = "order_filled"
	TypeLiquidation    Type = "liquidation"
	TypeFundingUpdate  Type = "funding_update"
	TypePnlSettled     Type = "pnl_settled"
)

// Envelope wraps one engine event. Sequence is engine-global and strictly
// increasing, so consumers can detect gaps after reconnects.
type Envelope struct {
	Sequence    uint64      `json:"sequence"`
	Type        Type        `json:"type"`
	MarketIndex uint16      `json:"marketIndex"`
	Ts          int64       `json:"ts"`
	Payload     interface{} `json:"payload"`
}

// Sink receives committed engine events. Publish must not block the engine;
// implementations buffer or drop.
type Sink interface {
	Publish(Envelope)
}

// Multi fans one event out to several sinks.
type Multi []Sink

func (m Multi) Publish(ev Envelope) {
	for _, s := range m {
		s.Publish(ev)
	}
}

// OrderRef identifies an order in event payloads.
type OrderRef struct {
	Owner      uuid.UUID `json:"owner"`
	SubAccount uint16    `json:"subAccount"`
	OrderID    uint32    `json:"orderId"`
}

// AccountRef identifies a sub-account in event payloads.
type AccountRef struct {
	Owner      uuid.UUID `json:"owner"`
	SubAccount uint16    `json:"subAccount"`
}

// OrderPlaced is emitted when an order is accepted.
type OrderPlaced struct {
	Order       OrderRef `json:"order"`
	UserOrderID uint8    `json:"userOrderId,omitempty"`
	Direction   string   `json:"direction"`
	OrderType   string   `json:"orderType"`
	Base        int64    `json:"base"`
	Price       int64    `json:"price"`
}

// OrderCanceled is emitted when an order leaves the book without filling
// completely. Reason is one of "user", "ioc", "liquidation".
type OrderCanceled struct {
	Order  OrderRef `json:"order"`
	Reason string   `json:"reason"`
}

// OrderExpired is emitted when an order is removed past its max_ts.
type OrderExpired struct {
	Order OrderRef `json:"order"`
}

// OrderTriggered is emitted when a trigger order's condition is met.
type OrderTriggered struct {
	Order       OrderRef `json:"order"`
	OraclePrice int64    `json:"oraclePrice"`
}

// OrderFilled is emitted once per fill leg. Maker is nil for AMM legs.
type OrderFilled struct {
	Taker  OrderRef  `json:"taker"`
	Maker  *OrderRef `json:"maker,omitempty"`
	Source string    `json:"source"`
	Price  int64     `json:"price"`
	Base   int64     `json:"base"`
	Quote  int64     `json:"quote"`
}

// Liquidation is emitted after a position transfer.
type Liquidation struct {
	Liquidator    AccountRef `json:"liquidator"`
	Victim        AccountRef `json:"victim"`
	BaseTransfer  int64      `json:"baseTransfer"`
	QuoteTransfer int64      `json:"quoteTransfer"`
	LiquidatorFee int64      `json:"liquidatorFee"`
	InsuranceFee  int64      `json:"insuranceFee"`
	OraclePrice   int64      `json:"oraclePrice"`
}

// FundingUpdate is emitted after a funding period settles.
type FundingUpdate struct {
	Rate       int64 `json:"rate"`
	MarkTwap   int64 `json:"markTwap"`
	OracleTwap int64 `json:"oracleTwap"`
}

// PnlSettled is emitted when unrealized PnL is realized at the oracle.
type PnlSettled struct {
	Account     AccountRef `json:"account"`
	Amount      int64      `json:"amount"`
	OraclePrice int64      `json:"oraclePrice"`
}
