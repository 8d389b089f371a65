package risk

import (
	"fmt"

	"PerpEngine/internal/account"
	fpmath "PerpEngine/internal/math"
)

// CheckSettleBand rejects settlement when the AMM mark TWAP has diverged
// from the oracle by more than the market's band. Settlement at a price the
// pool disagrees with would let one side drain the other.
func CheckSettleBand(oraclePrice, markTwap, bandPct int64) error {
	if oraclePrice <= 0 {
		return fmt.Errorf("oracle price non-positive: %d", oraclePrice)
	}
	divergence := fpmath.MulDiv(fpmath.AbsInt64(markTwap-oraclePrice), fpmath.PctConfig.Scale, oraclePrice, fpmath.RoundUp)
	if divergence > bandPct {
		return fmt.Errorf("mark twap %d diverges %d pct from oracle %d (band %d)", markTwap, divergence, oraclePrice, bandPct)
	}
	return nil
}

// ApplySettlement realizes the position's mark-to-oracle PnL: the cost basis
// is rebased to the oracle price and the difference moves into
// SettledPerpPnl, leaving unrealized PnL at zero. Returns the settled
// amount; zero means there was nothing to settle.
func ApplySettlement(pos *account.Position, oraclePrice int64) int64 {
	if pos == nil {
		return 0
	}
	upnl := pos.UnrealizedPnl(oraclePrice)
	if upnl == 0 {
		return 0
	}

	newEntry := -fpmath.BaseToQuote(pos.BaseAssetAmount, oraclePrice, fpmath.RoundHalfEven)
	shift := newEntry - pos.QuoteEntryAmount
	pos.QuoteEntryAmount = newEntry
	pos.QuoteBreakEvenAmount += shift
	pos.SettledPerpPnl += upnl
	return upnl
}
