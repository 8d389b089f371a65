package book

import (
	"fmt"

	"github.com/google/uuid"
)

// Direction is the position side an order builds.
type Direction int32

const (
	DirectionLong Direction = iota
	DirectionShort
)

func (d Direction) String() string {
	if d == DirectionLong {
		return "Long"
	}
	return "Short"
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// OrderType discriminates how an order's effective price is derived.
type OrderType int32

const (
	OrderTypeLimit OrderType = iota
	OrderTypeMarket
	OrderTypeOracle
	OrderTypeTriggerMarket
	OrderTypeTriggerLimit
)

func (ot OrderType) String() string {
	switch ot {
	case OrderTypeLimit:
		return "Limit"
	case OrderTypeMarket:
		return "Market"
	case OrderTypeOracle:
		return "Oracle"
	case OrderTypeTriggerMarket:
		return "TriggerMarket"
	case OrderTypeTriggerLimit:
		return "TriggerLimit"
	default:
		return "Unknown"
	}
}

// IsTrigger reports whether the order must be triggered before filling.
func (ot OrderType) IsTrigger() bool {
	return ot == OrderTypeTriggerMarket || ot == OrderTypeTriggerLimit
}

// PostOnlyParam controls whether an order may take liquidity.
type PostOnlyParam int32

const (
	PostOnlyNone PostOnlyParam = iota
	MustPostOnly
	TryPostOnly
)

// TriggerCondition selects which side of the trigger price activates the order.
type TriggerCondition int32

const (
	TriggerAbove TriggerCondition = iota
	TriggerBelow
)

// OrderKey identifies an order globally: the owning sub-account plus the
// account-scoped monotonic order id.
type OrderKey struct {
	Owner      uuid.UUID
	SubAccount uint16
	OrderID    uint32
}

// Order is a resting or in-flight order. Zero-valued fields follow the
// conventions of the order placement API: MaxTs == 0 means no expiry,
// AuctionDuration == 0 means no auction window.
type Order struct {
	Owner       uuid.UUID
	SubAccount  uint16
	OrderID     uint32 // monotonic per account
	UserOrderID uint8  // user-chosen alias, unique while open

	MarketIndex uint16
	Direction   Direction
	OrderType   OrderType

	BaseAssetAmount       int64 // base scale
	BaseAssetAmountFilled int64

	Price             int64 // price scale; 0 for pure market orders
	OraclePriceOffset int64 // price scale, signed

	AuctionStartPrice int64
	AuctionEndPrice   int64
	AuctionDuration   uint64 // slots
	StartSlot         uint64 // slot of placement

	PostOnly          PostOnlyParam
	ReduceOnly        bool
	ImmediateOrCancel bool
	MaxTs             int64 // unix seconds, 0 = never expires

	TriggerCondition TriggerCondition
	TriggerPrice     int64
	Triggered        bool
}

// Key returns the order's global key.
func (o *Order) Key() OrderKey {
	return OrderKey{Owner: o.Owner, SubAccount: o.SubAccount, OrderID: o.OrderID}
}

// Remaining is the unfilled base amount.
func (o *Order) Remaining() int64 {
	return o.BaseAssetAmount - o.BaseAssetAmountFilled
}

// IsBuy reports whether the order takes the long side.
func (o *Order) IsBuy() bool {
	return o.Direction == DirectionLong
}

// IsExpired reports whether MaxTs has elapsed.
func (o *Order) IsExpired(nowTs int64) bool {
	return o.MaxTs != 0 && nowTs > o.MaxTs
}

// InAuction reports whether the slot falls inside the auction window.
func (o *Order) InAuction(slot uint64) bool {
	return o.AuctionDuration > 0 && slot < o.StartSlot+o.AuctionDuration
}

// Crosses reports whether a taker at takerPrice crosses makerPrice.
func Crosses(takerIsBuy bool, takerPrice, makerPrice int64) bool {
	if takerIsBuy {
		return takerPrice >= makerPrice
	}
	return takerPrice <= makerPrice
}

// RestingPrice is the price an order sorts at on the book. Oracle-pegged
// orders rest at their offset from the given oracle price.
func (o *Order) RestingPrice(oraclePrice int64) int64 {
	if o.OrderType == OrderTypeOracle {
		return oraclePrice + o.OraclePriceOffset
	}
	return o.Price
}

// ValidateGranularity checks size and price against the market grid.
func (o *Order) ValidateGranularity(stepSize, tickSize, minOrderSize int64) error {
	if o.BaseAssetAmount <= 0 {
		return fmt.Errorf("order size must be > 0, got %d", o.BaseAssetAmount)
	}
	if o.BaseAssetAmount < minOrderSize {
		return fmt.Errorf("order size %d below minimum %d", o.BaseAssetAmount, minOrderSize)
	}
	if o.BaseAssetAmount%stepSize != 0 {
		return fmt.Errorf("order size %d not a step_size (%d) multiple", o.BaseAssetAmount, stepSize)
	}
	if o.Price < 0 {
		return fmt.Errorf("order price must be >= 0, got %d", o.Price)
	}
	if o.Price != 0 && o.Price%tickSize != 0 {
		return fmt.Errorf("order price %d not a tick_size (%d) multiple", o.Price, tickSize)
	}
	return nil
}

// SideSign returns +1 for long, -1 for short: the sign of the base delta
// this order applies to its owner's position.
func (o *Order) SideSign() int64 {
	if o.IsBuy() {
		return 1
	}
	return -1
}
