package account

import (
	"fmt"

	"github.com/google/uuid"

	"PerpEngine/internal/book"
	fpmath "PerpEngine/internal/math"
)

// Slot capacities. Accounts are fixed-size arenas: an order or position
// needs a free slot, and running out is a placement error, not a resize.
const (
	MaxOrders       = 32
	MaxPositions    = 8
	MaxSubAccounts  = 16
	MaxSpotBalances = 4
)

var (
	ErrMaxOrders         = fmt.Errorf("no free order slot (max %d open orders)", MaxOrders)
	ErrMaxPositions      = fmt.Errorf("no free position slot (max %d markets)", MaxPositions)
	ErrMaxSpotBalances   = fmt.Errorf("no free spot balance slot (max %d assets)", MaxSpotBalances)
	ErrOrderNotFound     = fmt.Errorf("order not found")
	ErrAccountNotFound   = fmt.Errorf("account not found")
	ErrInvalidSubAccount = fmt.Errorf("invalid sub-account id")
)

// SpotBalance is one collateral asset held by an account. Weight discounts
// the asset's contribution to collateral (margin scale, 10000 = 100%).
type SpotBalance struct {
	Asset   string
	Balance int64 // quote scale
	Weight  int64 // margin scale
}

// Account is one sub-account: fixed arenas of order and position slots
// plus spot collateral.
type Account struct {
	Owner        uuid.UUID
	SubAccountID uint16

	nextOrderID uint32
	orders      [MaxOrders]*book.Order
	positions   [MaxPositions]Position
	spot        [MaxSpotBalances]SpotBalance
}

func New(owner uuid.UUID, subAccountID uint16) *Account {
	return &Account{Owner: owner, SubAccountID: subAccountID, nextOrderID: 1}
}

// NextOrderID hands out the account-scoped monotonic order id.
func (a *Account) NextOrderID() uint32 {
	id := a.nextOrderID
	a.nextOrderID++
	return id
}

// AddOrder claims a free order slot.
func (a *Account) AddOrder(o *book.Order) error {
	for i := range a.orders {
		if a.orders[i] == nil {
			a.orders[i] = o
			return nil
		}
	}
	return ErrMaxOrders
}

// RemoveOrder frees the slot holding orderID. Unknown ids are a no-op.
func (a *Account) RemoveOrder(orderID uint32) {
	for i := range a.orders {
		if a.orders[i] != nil && a.orders[i].OrderID == orderID {
			a.orders[i] = nil
			return
		}
	}
}

// GetOrder finds an open order by id.
func (a *Account) GetOrder(orderID uint32) (*book.Order, bool) {
	for i := range a.orders {
		if a.orders[i] != nil && a.orders[i].OrderID == orderID {
			return a.orders[i], true
		}
	}
	return nil, false
}

// OpenOrders returns all open orders.
func (a *Account) OpenOrders() []*book.Order {
	var out []*book.Order
	for i := range a.orders {
		if a.orders[i] != nil {
			out = append(out, a.orders[i])
		}
	}
	return out
}

// OpenOrderCount returns the number of occupied order slots.
func (a *Account) OpenOrderCount() int {
	n := 0
	for i := range a.orders {
		if a.orders[i] != nil {
			n++
		}
	}
	return n
}

// GetPosition returns the position for a market, or nil if none is open.
func (a *Account) GetPosition(marketIndex uint16) *Position {
	for i := range a.positions {
		if a.positions[i].open && a.positions[i].MarketIndex == marketIndex {
			return &a.positions[i]
		}
	}
	return nil
}

// GetOrCreatePosition returns the market's position slot, claiming a free
// one when the account has no exposure there yet.
func (a *Account) GetOrCreatePosition(marketIndex uint16) (*Position, error) {
	if p := a.GetPosition(marketIndex); p != nil {
		return p, nil
	}
	for i := range a.positions {
		if !a.positions[i].open {
			a.positions[i] = Position{MarketIndex: marketIndex, open: true}
			return &a.positions[i], nil
		}
	}
	return nil, ErrMaxPositions
}

// Positions returns all open position slots.
func (a *Account) Positions() []*Position {
	var out []*Position
	for i := range a.positions {
		if a.positions[i].open {
			out = append(out, &a.positions[i])
		}
	}
	return out
}

// Deposit credits collateral, claiming a spot slot for new assets. The
// weight only applies when the slot is first claimed.
func (a *Account) Deposit(asset string, amount, weight int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit amount must be > 0, got %d", amount)
	}
	for i := range a.spot {
		if a.spot[i].Asset == asset {
			a.spot[i].Balance += amount
			return nil
		}
	}
	for i := range a.spot {
		if a.spot[i].Asset == "" {
			a.spot[i] = SpotBalance{Asset: asset, Balance: amount, Weight: weight}
			return nil
		}
	}
	return ErrMaxSpotBalances
}

// SpotBalanceOf returns the balance held in one asset.
func (a *Account) SpotBalanceOf(asset string) int64 {
	for i := range a.spot {
		if a.spot[i].Asset == asset {
			return a.spot[i].Balance
		}
	}
	return 0
}

// AdjustSpot applies a signed delta to an asset balance (fees,
// liquidation penalties, settled PnL transfers).
func (a *Account) AdjustSpot(asset string, delta int64) error {
	for i := range a.spot {
		if a.spot[i].Asset == asset {
			a.spot[i].Balance += delta
			return nil
		}
	}
	if delta > 0 {
		return a.Deposit(asset, delta, fpmath.MarginConfig.Scale)
	}
	return fmt.Errorf("no %s balance to debit", asset)
}

// SpotBalances returns the occupied spot slots.
func (a *Account) SpotBalances() []SpotBalance {
	var out []SpotBalance
	for i := range a.spot {
		if a.spot[i].Asset != "" {
			out = append(out, a.spot[i])
		}
	}
	return out
}
