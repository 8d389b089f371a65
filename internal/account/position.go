package account

import (
	fpmath "PerpEngine/internal/math"
)

// Position is one market's perp exposure. BaseAssetAmount is signed
// (positive = long). QuoteEntryAmount carries the signed quote flow that
// built the position: negative for longs (cost paid), positive for shorts
// (proceeds received), so unrealized PnL at a price p is
// base*p/base_scale + quoteEntry.
type Position struct {
	MarketIndex          uint16
	BaseAssetAmount      int64 // base scale, signed
	QuoteEntryAmount     int64 // quote scale, signed
	QuoteBreakEvenAmount int64 // quote scale, entry plus fees
	SettledPerpPnl       int64 // quote scale, realized + settled
	LastFundingTs        int64

	open bool
}

// IsOpen reports whether the slot is in use.
func (p *Position) IsOpen() bool { return p.open }

// IsFlat reports whether the position has no exposure.
func (p *Position) IsFlat() bool { return p.BaseAssetAmount == 0 }

// SideSign returns +1 for long, -1 for short, 0 for flat.
func (p *Position) SideSign() int64 { return fpmath.SignInt64(p.BaseAssetAmount) }

// UnrealizedPnl marks the position to the given price.
func (p *Position) UnrealizedPnl(price int64) int64 {
	if p.BaseAssetAmount == 0 {
		return 0
	}
	baseValue := fpmath.BaseToQuote(p.BaseAssetAmount, price, fpmath.RoundHalfEven)
	return baseValue + p.QuoteEntryAmount
}

// Notional is the absolute quote value of the exposure at a price.
func (p *Position) Notional(price int64) int64 {
	return fpmath.BaseToQuote(fpmath.AbsInt64(p.BaseAssetAmount), price, fpmath.RoundHalfEven)
}

// EntryPrice derives the average entry price from the cost basis.
func (p *Position) EntryPrice() int64 {
	if p.BaseAssetAmount == 0 {
		return 0
	}
	return fpmath.MulDiv(
		fpmath.AbsInt64(p.QuoteEntryAmount),
		fpmath.BaseConfig.Scale,
		fpmath.AbsInt64(p.BaseAssetAmount),
		fpmath.RoundHalfEven,
	)
}

// ApplyDelta folds a fill into the position. baseDelta is signed (+ buy),
// quoteDelta is the signed quote flow of the fill (- for buys). Increases
// accumulate into the cost basis; decreases release a proportional share
// of the basis and realize the difference into SettledPerpPnl; a
// sign-flipping delta closes the old exposure first and opens the
// remainder at the fill's implied price. Returns the PnL realized by this
// delta.
func (p *Position) ApplyDelta(baseDelta, quoteDelta int64) int64 {
	if baseDelta == 0 {
		return 0
	}

	oldBase := p.BaseAssetAmount

	// Opening or increasing: same sign or starting flat.
	if oldBase == 0 || fpmath.SignInt64(oldBase) == fpmath.SignInt64(baseDelta) {
		p.BaseAssetAmount = oldBase + baseDelta
		p.QuoteEntryAmount += quoteDelta
		p.QuoteBreakEvenAmount += quoteDelta
		return 0
	}

	absDelta := fpmath.AbsInt64(baseDelta)
	absBase := fpmath.AbsInt64(oldBase)

	if absDelta <= absBase {
		// Reducing (or exactly closing): release entry proportionally.
		entryReleased := fpmath.MulDiv(p.QuoteEntryAmount, absDelta, absBase, fpmath.RoundHalfEven)
		breakEvenReleased := fpmath.MulDiv(p.QuoteBreakEvenAmount, absDelta, absBase, fpmath.RoundHalfEven)

		realized := quoteDelta + entryReleased

		p.BaseAssetAmount = oldBase + baseDelta
		p.QuoteEntryAmount -= entryReleased
		p.QuoteBreakEvenAmount -= breakEvenReleased
		p.SettledPerpPnl += realized

		if p.BaseAssetAmount == 0 {
			// Flush any residual basis from rounding.
			p.SettledPerpPnl += p.QuoteEntryAmount
			p.QuoteEntryAmount = 0
			p.QuoteBreakEvenAmount = 0
		}
		return realized
	}

	// Flipping: close the whole old exposure, open the remainder.
	closeQuote := fpmath.MulDiv(quoteDelta, absBase, absDelta, fpmath.RoundHalfEven)
	realized := closeQuote + p.QuoteEntryAmount

	p.SettledPerpPnl += realized
	p.BaseAssetAmount = oldBase + baseDelta
	p.QuoteEntryAmount = quoteDelta - closeQuote
	p.QuoteBreakEvenAmount = p.QuoteEntryAmount
	return realized
}
