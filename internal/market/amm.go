package market

import (
	"fmt"
	"math/big"

	fpmath "PerpEngine/internal/math"
)

const (
	defaultFundingPeriod = 3600 // seconds
	twapWindowSlots      = 750
)

// AMM is the virtual constant-product reserve pair backing a market.
// Reserves are virtual base-scale quantities; the peg multiplier maps the
// reserve ratio into price units. Invariant: base * quote == sqrtK^2,
// except across recenter operations which rescale both reserves while
// preserving the mark price.
type AMM struct {
	BaseAssetReserve  int64 // base scale
	QuoteAssetReserve int64 // base scale
	PegMultiplier     int64 // peg scale
	SqrtK             int64 // base scale

	LastMarkTwap int64 // price scale
	LastBidTwap  int64
	LastAskTwap  int64
	LastTwapSlot uint64

	LastFundingRate   int64 // rate scale
	LastFundingRateTs int64 // unix seconds
	FundingPeriod     int64 // seconds

	BaseSpread  int64 // pct scale
	LongSpread  int64
	ShortSpread int64
}

// NewAMM centers the curve so the reserve price equals startPrice, with the
// given virtual depth (sqrtK in base units).
func NewAMM(startPrice, sqrtK, fundingPeriod int64) *AMM {
	a := &AMM{
		BaseAssetReserve:  sqrtK,
		QuoteAssetReserve: sqrtK,
		PegMultiplier:     startPrice, // peg and price share a scale
		SqrtK:             sqrtK,
		FundingPeriod:     fundingPeriod,
		BaseSpread:        1_000, // 0.1%
	}
	a.LongSpread = a.BaseSpread / 2
	a.ShortSpread = a.BaseSpread / 2
	a.LastMarkTwap = a.ReservePrice()
	a.LastBidTwap = a.BidPrice()
	a.LastAskTwap = a.AskPrice()
	return a
}

// ReservePrice is the instantaneous mark price implied by the reserves.
func (a *AMM) ReservePrice() int64 {
	return fpmath.MulDiv(a.QuoteAssetReserve, a.PegMultiplier, a.BaseAssetReserve, fpmath.RoundHalfEven)
}

// AskPrice is the synthetic ask: reserve price plus the long spread.
func (a *AMM) AskPrice() int64 {
	p := a.ReservePrice()
	return fpmath.MulDiv(p, fpmath.PctConfig.Scale+a.LongSpread, fpmath.PctConfig.Scale, fpmath.RoundUp)
}

// BidPrice is the synthetic bid: reserve price minus the short spread.
func (a *AMM) BidPrice() int64 {
	p := a.ReservePrice()
	return fpmath.MulDiv(p, fpmath.PctConfig.Scale-a.ShortSpread, fpmath.PctConfig.Scale, fpmath.RoundDown)
}

// SwapDirection is the taker's side of an AMM swap.
type SwapDirection int32

const (
	SwapBuy SwapDirection = iota
	SwapSell
)

// SwapResult is a previewed reserve move. Nothing changes until Commit.
type SwapResult struct {
	Direction         SwapDirection
	BaseAmount        int64
	NewBaseReserve    int64
	NewQuoteReserve   int64
	QuoteAmount       int64 // quote scale, cost for buys / proceeds for sells
	AvgPrice          int64 // price scale, curve-integrated
}

// QuoteSwapBase previews filling baseAmount against the curve. Buys remove
// base from the reserve (price moves up as the fill walks the curve), sells
// add it. The returned average price integrates the reserve move; it is not
// the spot price.
func (a *AMM) QuoteSwapBase(direction SwapDirection, baseAmount int64) (SwapResult, error) {
	if baseAmount <= 0 {
		return SwapResult{}, fmt.Errorf("swap amount must be > 0, got %d", baseAmount)
	}

	k := new(big.Int).Mul(big.NewInt(a.BaseAssetReserve), big.NewInt(a.QuoteAssetReserve))

	var newBase int64
	if direction == SwapBuy {
		newBase = a.BaseAssetReserve - baseAmount
		if newBase <= 0 {
			return SwapResult{}, fmt.Errorf("swap exceeds base reserve: %d >= %d", baseAmount, a.BaseAssetReserve)
		}
	} else {
		newBase = a.BaseAssetReserve + baseAmount
	}

	newQuoteBig, rem := new(big.Int).QuoRem(k, big.NewInt(newBase), new(big.Int))
	if direction == SwapBuy && rem.Sign() != 0 {
		// Round the quote the taker owes up, in the pool's favor.
		newQuoteBig.Add(newQuoteBig, big.NewInt(1))
	}
	if !newQuoteBig.IsInt64() {
		return SwapResult{}, fmt.Errorf("quote reserve overflow after swap")
	}
	newQuote := newQuoteBig.Int64()

	var quoteReserveDelta int64
	var rounding fpmath.RoundingMode
	if direction == SwapBuy {
		quoteReserveDelta = newQuote - a.QuoteAssetReserve
		rounding = fpmath.RoundUp
	} else {
		quoteReserveDelta = a.QuoteAssetReserve - newQuote
		rounding = fpmath.RoundDown
	}

	// Reserve delta is in base-scale units; the peg maps it to quote.
	quoteAmount := fpmath.MulDiv(quoteReserveDelta, a.PegMultiplier, fpmath.BaseConfig.Scale, rounding)
	avgPrice := fpmath.MulDiv(quoteAmount, fpmath.BaseConfig.Scale, baseAmount, fpmath.RoundHalfEven)

	return SwapResult{
		Direction:       direction,
		BaseAmount:      baseAmount,
		NewBaseReserve:  newBase,
		NewQuoteReserve: newQuote,
		QuoteAmount:     quoteAmount,
		AvgPrice:        avgPrice,
	}, nil
}

// Commit applies a previewed swap to the reserves. Peg and sqrtK are
// untouched by a simple swap.
func (a *AMM) Commit(r SwapResult) {
	a.BaseAssetReserve = r.NewBaseReserve
	a.QuoteAssetReserve = r.NewQuoteReserve
}

// Repeg moves the peg multiplier, shifting the mark price without touching
// the reserves.
func (a *AMM) Repeg(newPeg int64) error {
	if newPeg <= 0 {
		return fmt.Errorf("peg must be > 0, got %d", newPeg)
	}
	a.PegMultiplier = newPeg
	return nil
}

// Recenter rescales both reserves to a new sqrtK while preserving the
// reserve ratio, so the mark price is continuous across the move.
func (a *AMM) Recenter(newSqrtK int64) error {
	if newSqrtK <= 0 {
		return fmt.Errorf("sqrtK must be > 0, got %d", newSqrtK)
	}

	// base' = sqrt(k' * base / quote), quote' = k' / base'
	kNew := new(big.Int).Mul(big.NewInt(newSqrtK), big.NewInt(newSqrtK))
	num := new(big.Int).Mul(kNew, big.NewInt(a.BaseAssetReserve))
	num.Quo(num, big.NewInt(a.QuoteAssetReserve))
	newBaseBig := new(big.Int).Sqrt(num)
	if newBaseBig.Sign() == 0 {
		return fmt.Errorf("recenter produced zero base reserve")
	}
	newQuoteBig := new(big.Int).Quo(kNew, newBaseBig)
	if !newBaseBig.IsInt64() || !newQuoteBig.IsInt64() {
		return fmt.Errorf("recenter reserves overflow")
	}

	a.BaseAssetReserve = newBaseBig.Int64()
	a.QuoteAssetReserve = newQuoteBig.Int64()
	a.SqrtK = newSqrtK
	return nil
}

// UpdateTwaps folds the current bid/mark/ask into the slot-weighted TWAPs.
func (a *AMM) UpdateTwaps(currentSlot uint64) {
	elapsed := int64(0)
	if currentSlot > a.LastTwapSlot {
		elapsed = int64(currentSlot - a.LastTwapSlot)
	}
	if elapsed == 0 {
		return
	}
	if elapsed > twapWindowSlots {
		elapsed = twapWindowSlots
	}

	weight := int64(twapWindowSlots)
	a.LastMarkTwap = (a.LastMarkTwap*(weight-elapsed) + a.ReservePrice()*elapsed) / weight
	a.LastBidTwap = (a.LastBidTwap*(weight-elapsed) + a.BidPrice()*elapsed) / weight
	a.LastAskTwap = (a.LastAskTwap*(weight-elapsed) + a.AskPrice()*elapsed) / weight
	a.LastTwapSlot = currentSlot
}
