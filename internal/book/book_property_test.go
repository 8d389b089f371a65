package book_test

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"pgregory.net/rapid"

	"PerpEngine/internal/book"
)

// Property: walking either side of the book always yields price-time
// priority order regardless of insertion sequence.
func TestProperty_BookPriorityOrdering(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := book.New(0)
		owner := uuid.New()
		n := rapid.IntRange(1, 60).Draw(t, "numOrders")

		for i := 0; i < n; i++ {
			dir := book.DirectionLong
			if rapid.Bool().Draw(t, fmt.Sprintf("short-%d", i)) {
				dir = book.DirectionShort
			}
			o := &book.Order{
				Owner:           owner,
				OrderID:         uint32(i + 1),
				Direction:       dir,
				OrderType:       book.OrderTypeLimit,
				BaseAssetAmount: 1000,
				Price:           rapid.Int64Range(1, 500).Draw(t, fmt.Sprintf("price-%d", i)) * 100,
				StartSlot:       uint64(rapid.Int64Range(0, 20).Draw(t, fmt.Sprintf("slot-%d", i))),
			}
			if err := b.Insert(o, o.Price); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}

		snap := b.Snapshot(0)
		for i := 1; i < len(snap.Bids); i++ {
			if snap.Bids[i].Price > snap.Bids[i-1].Price {
				t.Fatalf("bids out of order: %d after %d", snap.Bids[i].Price, snap.Bids[i-1].Price)
			}
		}
		for i := 1; i < len(snap.Asks); i++ {
			if snap.Asks[i].Price < snap.Asks[i-1].Price {
				t.Fatalf("asks out of order: %d after %d", snap.Asks[i].Price, snap.Asks[i-1].Price)
			}
		}
	})
}

// Property: insert followed by remove leaves no trace of the order in the
// index, the sides or the alias map.
func TestProperty_InsertRemoveLeavesBookClean(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := book.New(0)
		owner := uuid.New()
		n := rapid.IntRange(1, 40).Draw(t, "numOrders")

		keys := make([]book.OrderKey, 0, n)
		for i := 0; i < n; i++ {
			o := &book.Order{
				Owner:           owner,
				OrderID:         uint32(i + 1),
				UserOrderID:     uint8(i + 1),
				Direction:       book.DirectionLong,
				OrderType:       book.OrderTypeLimit,
				BaseAssetAmount: 1000,
				Price:           rapid.Int64Range(1, 100).Draw(t, fmt.Sprintf("price-%d", i)) * 100,
			}
			if err := b.Insert(o, o.Price); err != nil {
				t.Fatalf("insert: %v", err)
			}
			keys = append(keys, o.Key())
		}

		for _, k := range keys {
			b.Remove(k)
		}

		if b.Len() != 0 {
			t.Fatalf("book not empty after removing everything: %d left", b.Len())
		}
		for i := 0; i < n; i++ {
			if _, ok := b.GetByUserOrderID(owner, 0, uint8(i+1)); ok {
				t.Fatalf("alias %d survived removal", i+1)
			}
		}
	})
}
