package book

import (
	"fmt"

	"github.com/google/btree"
	"github.com/google/uuid"
)

// Entry is a resting order on one side of the book, sorted by price-time
// priority.
type Entry struct {
	Price int64 // resting sort price
	Slot  uint64
	Key   OrderKey
	Order *Order
}

// bidLess orders the bid side: price descending, then placement slot
// ascending, then key ascending. Min() is the best bid.
func bidLess(a, b Entry) bool {
	if a.Price != b.Price {
		return a.Price > b.Price
	}
	return entryTieLess(a, b)
}

// askLess orders the ask side: price ascending, then placement slot
// ascending. Min() is the best ask.
func askLess(a, b Entry) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	return entryTieLess(a, b)
}

func entryTieLess(a, b Entry) bool {
	if a.Slot != b.Slot {
		return a.Slot < b.Slot
	}
	if a.Key.Owner != b.Key.Owner {
		return a.Key.Owner.String() < b.Key.Owner.String()
	}
	if a.Key.SubAccount != b.Key.SubAccount {
		return a.Key.SubAccount < b.Key.SubAccount
	}
	return a.Key.OrderID < b.Key.OrderID
}

type aliasKey struct {
	Owner       uuid.UUID
	SubAccount  uint16
	UserOrderID uint8
}

// Book holds one market's resting orders with a secondary index by order
// key and a user-order-id alias map. Not safe for concurrent use; the
// engine serializes access per market.
type Book struct {
	marketIndex uint16
	bids        *btree.BTreeG[Entry]
	asks        *btree.BTreeG[Entry]
	index       map[OrderKey]Entry
	aliases     map[aliasKey]OrderKey
}

func New(marketIndex uint16) *Book {
	const degree = 32
	return &Book{
		marketIndex: marketIndex,
		bids:        btree.NewG[Entry](degree, bidLess),
		asks:        btree.NewG[Entry](degree, askLess),
		index:       make(map[OrderKey]Entry),
		aliases:     make(map[aliasKey]OrderKey),
	}
}

// Insert rests an order at the given sort price. A non-zero UserOrderID
// must be unique among the owner's open orders.
func (b *Book) Insert(o *Order, restingPrice int64) error {
	key := o.Key()
	if _, exists := b.index[key]; exists {
		return fmt.Errorf("order %d already on book", o.OrderID)
	}

	if o.UserOrderID != 0 {
		ak := aliasKey{Owner: o.Owner, SubAccount: o.SubAccount, UserOrderID: o.UserOrderID}
		if _, taken := b.aliases[ak]; taken {
			return fmt.Errorf("user_order_id %d already open", o.UserOrderID)
		}
		b.aliases[ak] = key
	}

	entry := Entry{Price: restingPrice, Slot: o.StartSlot, Key: key, Order: o}
	if o.IsBuy() {
		b.bids.ReplaceOrInsert(entry)
	} else {
		b.asks.ReplaceOrInsert(entry)
	}
	b.index[key] = entry
	return nil
}

// Remove takes an order off the book. Removing an absent key is a no-op.
func (b *Book) Remove(key OrderKey) {
	entry, ok := b.index[key]
	if !ok {
		return
	}
	delete(b.index, key)
	if entry.Order.UserOrderID != 0 {
		delete(b.aliases, aliasKey{
			Owner:       entry.Order.Owner,
			SubAccount:  entry.Order.SubAccount,
			UserOrderID: entry.Order.UserOrderID,
		})
	}
	if entry.Order.IsBuy() {
		b.bids.Delete(entry)
	} else {
		b.asks.Delete(entry)
	}
}

// Get returns the resting order for a key.
func (b *Book) Get(key OrderKey) (*Order, bool) {
	entry, ok := b.index[key]
	if !ok {
		return nil, false
	}
	return entry.Order, true
}

// GetByUserOrderID resolves the user-scoped alias.
func (b *Book) GetByUserOrderID(owner uuid.UUID, subAccount uint16, userOrderID uint8) (*Order, bool) {
	key, ok := b.aliases[aliasKey{Owner: owner, SubAccount: subAccount, UserOrderID: userOrderID}]
	if !ok {
		return nil, false
	}
	return b.Get(key)
}

// BestBid returns the highest-priority bid.
func (b *Book) BestBid() (Entry, bool) {
	return b.bids.Min()
}

// BestAsk returns the highest-priority ask.
func (b *Book) BestAsk() (Entry, bool) {
	return b.asks.Min()
}

// OrdersForAccount returns all resting orders of one sub-account.
func (b *Book) OrdersForAccount(owner uuid.UUID, subAccount uint16) []*Order {
	var out []*Order
	for key, entry := range b.index {
		if key.Owner == owner && key.SubAccount == subAccount {
			out = append(out, entry.Order)
		}
	}
	return out
}

// Len returns the number of resting orders on both sides.
func (b *Book) Len() int {
	return len(b.index)
}

// Level is one aggregated row of a DLOB snapshot. Orders at the same price
// are reported individually (the indexer aggregates as it pleases).
type Level struct {
	Price   int64  `json:"price"`
	Size    int64  `json:"size"`
	OrderID uint32 `json:"orderId"`
}

// Snapshot is the read-only book view exported to the off-chain indexer,
// refreshed after every committed fill, placement and cancel.
type Snapshot struct {
	MarketIndex uint16  `json:"marketIndex"`
	Bids        []Level `json:"bids"`
	Asks        []Level `json:"asks"`
}

// Snapshot exports up to maxLevels rows per side in priority order.
func (b *Book) Snapshot(maxLevels int) Snapshot {
	snap := Snapshot{MarketIndex: b.marketIndex}
	walk := func(tree *btree.BTreeG[Entry]) []Level {
		var levels []Level
		tree.Ascend(func(e Entry) bool {
			if maxLevels > 0 && len(levels) >= maxLevels {
				return false
			}
			levels = append(levels, Level{
				Price:   e.Price,
				Size:    e.Order.Remaining(),
				OrderID: e.Order.OrderID,
			})
			return true
		})
		return levels
	}
	snap.Bids = walk(b.bids)
	snap.Asks = walk(b.asks)
	return snap
}
