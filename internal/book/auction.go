package book

import (
	fpmath "PerpEngine/internal/math"
)

// AuctionPrice computes the time-interpolated limit price of an in-auction
// order. Before the start slot the price is the auction start price; at or
// past startSlot+duration it is the end price; in between it interpolates
// linearly and snaps to the tick in the taker's favor (buyers floor,
// sellers ceil).
func AuctionPrice(o *Order, currentSlot uint64, tickSize int64) int64 {
	if o.AuctionDuration == 0 {
		return o.Price
	}

	var elapsed int64
	if currentSlot > o.StartSlot {
		elapsed = int64(currentSlot - o.StartSlot)
	}

	raw := fpmath.Interpolate(o.AuctionStartPrice, o.AuctionEndPrice, elapsed, int64(o.AuctionDuration))
	return fpmath.SnapToTick(raw, tickSize, o.IsBuy())
}

// OraclePegPrice computes the effective price of an oracle-pegged order at
// the current oracle reading. Re-evaluated at every fill attempt: the same
// order fills at different prices as the oracle moves.
func OraclePegPrice(o *Order, oraclePrice, tickSize int64) int64 {
	raw := oraclePrice + o.OraclePriceOffset
	return fpmath.SnapToTick(raw, tickSize, o.IsBuy())
}

// EffectiveTakerPrice is the price a taker order is willing to cross at
// during this evaluation. Market (and auction-bearing) orders use the
// auction interpolation, oracle-pegged orders the oracle plus offset,
// plain limit orders their static price.
func EffectiveTakerPrice(o *Order, currentSlot uint64, oraclePrice, tickSize int64) int64 {
	switch {
	case o.OrderType == OrderTypeOracle:
		return OraclePegPrice(o, oraclePrice, tickSize)
	case o.AuctionDuration > 0 && o.InAuction(currentSlot):
		return AuctionPrice(o, currentSlot, tickSize)
	case o.AuctionDuration > 0:
		// Auction complete: worst-case price, capped by the static limit
		// when one was supplied.
		p := o.AuctionEndPrice
		if o.Price != 0 {
			if o.IsBuy() && o.Price < p {
				p = o.Price
			}
			if !o.IsBuy() && o.Price > p {
				p = o.Price
			}
		}
		return fpmath.SnapToTick(p, tickSize, o.IsBuy())
	default:
		return o.Price
	}
}
