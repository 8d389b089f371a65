package math

import (
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// Standard configs
	PriceConfig  = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}     // 0.000001 USD
	BaseConfig   = DecimalConfig{DecimalPrecision: 9, Scale: 1_000_000_000} // 1e-9 base units
	QuoteConfig  = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}     // 0.000001 USDC
	RateConfig   = DecimalConfig{DecimalPrecision: 9, Scale: 1_000_000_000} // funding rate
	MarginConfig = DecimalConfig{DecimalPrecision: 4, Scale: 10_000}        // margin ratios
	PegConfig    = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}     // AMM peg multiplier
	PctConfig    = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}     // spreads, bands, weights
)

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

// DivideInt128 performs numerator / denominator with rounding
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	// QuoRem truncates toward zero, which keeps rounding symmetric for
	// negative numerators.
	quotient.QuoRem(numerator, denom, remainder)

	result := quotient.Int64()

	switch roundingMode {
	case RoundHalfEven:
		// Banker's rounding: if |remainder| == denominator/2, round to even
		half := big.NewInt(denominator / 2)
		cmp := remainder.CmpAbs(half)

		if cmp > 0 {
			result += signOf(numerator)
		} else if cmp == 0 && denominator%2 == 0 {
			if result%2 != 0 {
				result += signOf(numerator)
			}
		}
	case RoundDown:
		// already truncated
	case RoundUp:
		if remainder.Sign() != 0 {
			result += signOf(numerator)
		}
	}

	putInt128(quotient)
	putInt128(remainder)

	return result
}

func signOf(v *big.Int) int64 {
	if v.Sign() < 0 {
		return -1
	}
	return 1
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding (default)
	RoundDown
	RoundUp
)

// MulDiv computes a * b / denom with an int128 intermediate.
func MulDiv(a, b, denom int64, roundingMode RoundingMode) int64 {
	num := MultiplyInt128(a, b)
	result := DivideInt128(num, denom, roundingMode)
	putInt128(num)
	return result
}

// BaseToQuote converts a base amount at a price to quote units.
// Quote and price share a scale, so quote = base * price / base_scale.
func BaseToQuote(baseAmount, price int64, roundingMode RoundingMode) int64 {
	return MulDiv(baseAmount, price, BaseConfig.Scale, roundingMode)
}

// QuoteToBase converts a quote amount at a price to base units.
func QuoteToBase(quoteAmount, price int64, roundingMode RoundingMode) int64 {
	if price == 0 {
		return 0
	}
	return MulDiv(quoteAmount, BaseConfig.Scale, price, roundingMode)
}

// SnapToTick snaps a price to the market tick in the taker's favor:
// buyers snap down (never pay above the raw price), sellers snap up.
func SnapToTick(price, tick int64, isBuy bool) int64 {
	if tick <= 0 {
		return price
	}
	rem := price % tick
	if rem == 0 {
		return price
	}
	if isBuy {
		return price - rem
	}
	return price - rem + tick
}

// Interpolate returns start + (end-start) * elapsed / total, clamped to the
// endpoints for elapsed outside [0, total].
func Interpolate(start, end, elapsed, total int64) int64 {
	if total <= 0 || elapsed >= total {
		return end
	}
	if elapsed <= 0 {
		return start
	}
	delta := MulDiv(end-start, elapsed, total, RoundDown)
	return start + delta
}

// ComputeAvgEntryPrice calculates weighted average entry price
func ComputeAvgEntryPrice(oldSize, oldAvgEntry, fillQty, fillPrice int64) int64 {
	if oldSize == 0 {
		return fillPrice
	}

	// numerator = oldSize * oldAvgEntry + fillQty * fillPrice
	term1 := MultiplyInt128(oldSize, oldAvgEntry)
	term2 := MultiplyInt128(fillQty, fillPrice)
	numerator := getInt128()
	numerator.Add(term1, term2)

	denominator := oldSize + fillQty

	result := DivideInt128(numerator, denominator, RoundHalfEven)

	putInt128(term1)
	putInt128(term2)
	putInt128(numerator)

	return result
}

// AbsInt64 returns |v|.
func AbsInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// MinInt64 returns the smaller of a and b.
func MinInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// SignInt64 returns -1, 0 or +1.
func SignInt64(v int64) int64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// ClampInt64 bounds v into [lo, hi].
func ClampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
