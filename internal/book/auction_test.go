package book_test

import (
	"testing"

	"PerpEngine/internal/book"
	fpmath "PerpEngine/internal/math"
)

const tick = int64(100) // 0.0001 at price scale 1e6

func auctionBuy(start, end int64, duration, startSlot uint64) *book.Order {
	return &book.Order{
		Direction:         book.DirectionLong,
		OrderType:         book.OrderTypeMarket,
		BaseAssetAmount:   fpmath.BaseConfig.Scale,
		AuctionStartPrice: start,
		AuctionEndPrice:   end,
		AuctionDuration:   duration,
		StartSlot:         startSlot,
	}
}

func TestAuctionPrice_Endpoints(t *testing.T) {
	o := auctionBuy(price(150), price(153), 10, 100)

	if got := book.AuctionPrice(o, 99, tick); got != price(150) {
		t.Errorf("before start: got %d, want start price %d", got, price(150))
	}
	if got := book.AuctionPrice(o, 100, tick); got != price(150) {
		t.Errorf("at start: got %d, want %d", got, price(150))
	}
	if got := book.AuctionPrice(o, 110, tick); got != price(153) {
		t.Errorf("at end: got %d, want end price %d", got, price(153))
	}
	if got := book.AuctionPrice(o, 200, tick); got != price(153) {
		t.Errorf("past end: got %d, want %d", got, price(153))
	}
}

func TestAuctionPrice_BuyMonotonicNonDecreasing(t *testing.T) {
	o := auctionBuy(price(150), price(153), 17, 100)

	prev := int64(0)
	for slot := uint64(95); slot <= 125; slot++ {
		p := book.AuctionPrice(o, slot, tick)
		if p < prev {
			t.Fatalf("auction price decreased at slot %d: %d < %d", slot, p, prev)
		}
		if p < price(150) || p > price(153) {
			t.Fatalf("auction price out of bounds at slot %d: %d", slot, p)
		}
		if p%tick != 0 {
			t.Fatalf("auction price off tick at slot %d: %d", slot, p)
		}
		prev = p
	}
}

func TestAuctionPrice_SellSnapsUp(t *testing.T) {
	o := &book.Order{
		Direction:         book.DirectionShort,
		OrderType:         book.OrderTypeMarket,
		AuctionStartPrice: price(153),
		AuctionEndPrice:   price(150),
		AuctionDuration:   7,
		StartSlot:         0,
	}

	// A seller's interpolated price snaps toward the seller's favor (up).
	for slot := uint64(0); slot <= 7; slot++ {
		p := book.AuctionPrice(o, slot, tick)
		raw := fpmath.Interpolate(price(153), price(150), int64(slot), 7)
		if p < raw {
			t.Fatalf("sell snap went below raw price at slot %d: %d < %d", slot, p, raw)
		}
		if p%tick != 0 {
			t.Fatalf("off tick at slot %d: %d", slot, p)
		}
	}
}

func TestOraclePegPrice_TracksOracle(t *testing.T) {
	offset := price(150) * 5 / 100 // +5%
	o := &book.Order{
		Direction:         book.DirectionLong,
		OrderType:         book.OrderTypeOracle,
		OraclePriceOffset: offset,
	}

	p150 := book.OraclePegPrice(o, price(150), tick)
	p160 := book.OraclePegPrice(o, price(160), tick)

	if p160 <= p150 {
		t.Errorf("peg price must rise with the oracle: %d then %d", p150, p160)
	}
	if p150 != price(150)+offset {
		t.Errorf("peg price = %d, want %d", p150, price(150)+offset)
	}
}

func TestEffectiveTakerPrice_Dispatch(t *testing.T) {
	// Plain limit uses the static price.
	limit := &book.Order{OrderType: book.OrderTypeLimit, Direction: book.DirectionLong, Price: price(151)}
	if got := book.EffectiveTakerPrice(limit, 5, price(150), tick); got != price(151) {
		t.Errorf("limit: got %d, want %d", got, price(151))
	}

	// Oracle order re-reads the oracle.
	peg := &book.Order{OrderType: book.OrderTypeOracle, Direction: book.DirectionLong, OraclePriceOffset: price(1)}
	if got := book.EffectiveTakerPrice(peg, 5, price(150), tick); got != price(151) {
		t.Errorf("oracle: got %d, want %d", got, price(151))
	}

	// In-auction market order interpolates.
	mkt := auctionBuy(price(150), price(152), 10, 0)
	mid := book.EffectiveTakerPrice(mkt, 5, price(150), tick)
	if mid != price(151) {
		t.Errorf("auction midpoint: got %d, want %d", mid, price(151))
	}

	// Post-auction, the end price rules, capped by an explicit limit.
	capped := auctionBuy(price(150), price(152), 10, 0)
	capped.Price = price(151)
	if got := book.EffectiveTakerPrice(capped, 50, price(150), tick); got != price(151) {
		t.Errorf("capped post-auction: got %d, want %d", got, price(151))
	}
}
