package risk

import (
	"PerpEngine/internal/account"
	"PerpEngine/internal/market"
	fpmath "PerpEngine/internal/math"
)

// FundingUpdate is one computed funding period for a market.
type FundingUpdate struct {
	MarketIndex uint16
	Rate        int64 // rate scale, positive = longs pay shorts
	MarkTwap    int64 // price scale
	OracleTwap  int64 // price scale
	Ts          int64
}

// ComputeFundingUpdate derives the period's funding rate from the AMM mark
// TWAP and the oracle TWAP. The premium is paid out over a day, so a single
// period carries premium / periods_per_day, clamped to the max rate.
func ComputeFundingUpdate(marketIndex uint16, amm *market.AMM, oracleTwap, nowTs int64) FundingUpdate {
	periodsPerDay := int64(1)
	if amm.FundingPeriod > 0 && amm.FundingPeriod < 86_400 {
		periodsPerDay = 86_400 / amm.FundingPeriod
	}

	rate := fpmath.ComputeFundingRate(amm.LastMarkTwap, oracleTwap, periodsPerDay, fpmath.DefaultMaxFundingRate)

	return FundingUpdate{
		MarketIndex: marketIndex,
		Rate:        rate,
		MarkTwap:    amm.LastMarkTwap,
		OracleTwap:  oracleTwap,
		Ts:          nowTs,
	}
}

// SettleFunding applies one funding payment to a position and stamps it with
// the period timestamp. Returns the signed payment (positive = position
// paid). Flat positions only get the stamp.
func SettleFunding(pos *account.Position, rate, oraclePrice, nowTs int64) int64 {
	pos.LastFundingTs = nowTs
	if pos.IsFlat() {
		return 0
	}
	payment := fpmath.ComputeFundingPayment(rate, pos.BaseAssetAmount, oraclePrice)
	pos.SettledPerpPnl -= payment
	return payment
}
