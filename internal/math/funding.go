package math

// Funding-rate math. The rate is a proportional-control signal pulling the
// AMM mark TWAP toward the oracle TWAP, expressed per funding period.

// DefaultMaxFundingRate caps |rate| at 0.5% per period (rate scale).
const DefaultMaxFundingRate = RateScale / 200

// RateScale mirrors RateConfig.Scale for use in constant expressions.
const RateScale = 1_000_000_000

// ComputeFundingRate derives the period funding rate from the mark and
// oracle TWAPs: (markTwap - oracleTwap) / oracleTwap, divided across the
// number of periods per day, clamped to maxRate.
func ComputeFundingRate(markTwap, oracleTwap, periodsPerDay, maxRate int64) int64 {
	if oracleTwap <= 0 || periodsPerDay <= 0 {
		return 0
	}

	raw := MulDiv(markTwap-oracleTwap, RateConfig.Scale, oracleTwap, RoundHalfEven)
	rate := raw / periodsPerDay

	if maxRate > 0 {
		rate = ClampInt64(rate, -maxRate, maxRate)
	}
	return rate
}

// ComputeFundingPayment calculates the funding payment for a position.
// Positive = position pays, negative = position receives.
// Longs pay when the rate is positive; shorts receive.
func ComputeFundingPayment(fundingRate, baseAssetAmount, oraclePrice int64) int64 {
	if baseAssetAmount == 0 || fundingRate == 0 {
		return 0
	}

	notional := BaseToQuote(AbsInt64(baseAssetAmount), oraclePrice, RoundHalfEven)
	payment := MulDiv(notional, fundingRate, RateConfig.Scale, RoundHalfEven)

	return payment * SignInt64(baseAssetAmount)
}
